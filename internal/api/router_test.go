package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetpipe/internal/config"
	"assetpipe/internal/server/auth"
	"assetpipe/internal/server/storage"
	"assetpipe/internal/server/storage/storagetest"
	"assetpipe/internal/service/cleanup"
	"assetpipe/internal/service/multipart"
	"assetpipe/internal/service/upload"
)

const testSecret = "test-secret"

type fixture struct {
	router     *gin.Engine
	mem        *storagetest.Memory
	automation *cleanup.Automation
	token      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := storagetest.NewMemory()
	mgr, err := multipart.NewManager(mem, multipart.Config{PartSize: 8 * upload.MiB})
	require.NoError(t, err)
	uploads := upload.NewService(mem, upload.Options{Sessions: mgr})
	engine := cleanup.NewEngine(mgr)
	automation := cleanup.NewAutomation(engine, nil, cleanup.Config{Interval: time.Hour})
	t.Cleanup(automation.Stop)

	authCfg := config.AuthSettings{JWTSecret: testSecret, Leeway: time.Second}
	r := SetupRouter(Deps{
		BaseCtx:    context.Background(),
		Auth:       authCfg,
		Uploads:    uploads,
		Multipart:  mgr,
		Cleanup:    engine,
		Automation: automation,
		Gatherer:   prometheus.NewRegistry(),
	})

	token, _, err := auth.SignAccessToken("u-1", "studio", "operator", time.Hour, testSecret)
	require.NoError(t, err)
	return &fixture{router: r, mem: mem, automation: automation, token: token}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestRouter_RequiresToken(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/uploads/sign", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SignRejectsBeforeStorage(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/uploads/sign", gin.H{
		"purpose": "asset", "filename": "big.jpg", "content_type": "image/jpeg", "size": 25_000_000,
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, "file_too_large", body["code"])
	assert.EqualValues(t, 25_000_000, body["size"])

	code, body = f.do(t, http.MethodPost, "/api/uploads/sign", gin.H{
		"purpose": "project_photo", "filename": "a.jpg", "content_type": "image/jpeg", "size": 10,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "missing_context", body["code"])

	assert.Zero(t, f.mem.TotalCalls())
}

func TestRouter_SignTransferConfirm(t *testing.T) {
	f := newFixture(t)

	code, cred := f.do(t, http.MethodPost, "/api/uploads/sign", gin.H{
		"purpose": "asset", "filename": "a.jpg", "content_type": "image/jpeg", "size": 100,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "presigned_put", cred["strategy"])
	assert.EqualValues(t, 3600, cred["expires_in"])
	key := cred["object_key"].(string)

	confirm := gin.H{"purpose": "asset", "object_key": key, "filename": "a.jpg", "size": 100, "content_type": "image/jpeg"}
	code, body := f.do(t, http.MethodPost, "/api/uploads/confirm", confirm)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["code"])

	f.mem.PutObject(key, 100)
	code, body = f.do(t, http.MethodPost, "/api/uploads/confirm", confirm)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "https://cdn.example.test/"+key, body["access_url"])
	assert.NotEmpty(t, body["id"])

	code, body = f.do(t, http.MethodGet, "/api/uploads/download-url?object_key="+key, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["url"], "https://private.example.test/")
}

func TestRouter_MultipartLifecycle(t *testing.T) {
	f := newFixture(t)

	code, sess := f.do(t, http.MethodPost, "/api/uploads/multipart", gin.H{
		"purpose": "project_video", "filename": "film.mp4", "content_type": "video/mp4", "size": upload.GiB, "context_id": "p-1",
	})
	require.Equal(t, http.StatusCreated, code)
	key := sess["object_key"].(string)
	id := sess["upload_id"].(string)
	assert.EqualValues(t, 8*upload.MiB, sess["part_size"])

	var parts []storage.CompletedPart
	for n := 1; n <= 2; n++ {
		code, part := f.do(t, http.MethodPost, "/api/uploads/multipart/sign-part", gin.H{"object_key": key, "upload_id": id, "part_number": n})
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, n, part["part_number"])
		etag, err := f.mem.PutPart(id, n)
		require.NoError(t, err)
		parts = append([]storage.CompletedPart{{PartNumber: n, ETag: etag}}, parts...)
	}

	code, listed := f.do(t, http.MethodGet, "/api/uploads/multipart/parts?object_key="+key+"&upload_id="+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, listed["parts"], 2)

	code, _ = f.do(t, http.MethodPost, "/api/uploads/multipart/complete", gin.H{"object_key": key, "upload_id": id, "parts": parts})
	require.Equal(t, http.StatusOK, code)

	code, body := f.do(t, http.MethodPost, "/api/uploads/multipart/complete", gin.H{"object_key": key, "upload_id": id, "parts": parts})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "session_closed", body["code"])

	code, body = f.do(t, http.MethodPost, "/api/uploads/multipart/complete", gin.H{"object_key": key, "upload_id": "unknown", "parts": parts})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "session_not_found", body["code"])

	code, _ = f.do(t, http.MethodPost, "/api/uploads/multipart/abort", gin.H{"object_key": key, "upload_id": "unknown"})
	assert.Equal(t, http.StatusOK, code)
}

func TestRouter_IncompleteAndCleanup(t *testing.T) {
	f := newFixture(t)
	old := time.Now().Add(-3 * time.Hour)
	f.mem.AddIncomplete("a/b/1.jpg", old)
	f.mem.AddIncomplete("a/b/2.jpg", old)
	f.mem.AddIncomplete("a/c/3.jpg", time.Now())

	code, body := f.do(t, http.MethodGet, "/api/uploads/incomplete?group=directory", nil)
	require.Equal(t, http.StatusOK, code)
	groups := body["groups"].([]any)
	require.Len(t, groups, 2)
	assert.Equal(t, "a/b", groups[0].(map[string]any)["directory"])
	assert.EqualValues(t, 2, groups[0].(map[string]any)["count"])

	code, body = f.do(t, http.MethodGet, "/api/uploads/incomplete?older_than_seconds=3600", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["total"])

	code, _ = f.do(t, http.MethodGet, "/api/uploads/incomplete?older_than_seconds=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(t, http.MethodPost, "/api/uploads/cleanup", gin.H{"older_than_seconds": 3600})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["cleaned"])
	assert.EqualValues(t, 0, body["failed"])
	assert.EqualValues(t, 2, body["total"])

	code, body = f.do(t, http.MethodGet, "/api/uploads/cleanup/history", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["runs"], 1)
}

func TestRouter_CleanupWithoutBody(t *testing.T) {
	f := newFixture(t)
	f.mem.AddIncomplete("a/b/1.mp4", time.Now().Add(-time.Minute))

	post := func(body string, chunked bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/uploads/cleanup", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+f.token)
		if chunked {
			req.ContentLength = -1
			req.TransferEncoding = []string{"chunked"}
		}
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		return w
	}

	w := post("", true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.EqualValues(t, 1, res["cleaned"])

	assert.Equal(t, http.StatusOK, post("", false).Code)
	assert.Equal(t, http.StatusBadRequest, post("{", true).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"older_than_seconds":-1}`, false).Code)
}

func TestRouter_Automation(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/uploads/automation/start", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "no_rule_enabled", body["code"])

	code, _ = f.do(t, http.MethodPut, "/api/uploads/automation", gin.H{"cleanup_enabled": true, "interval_minutes": 60})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(t, http.MethodPut, "/api/uploads/automation", gin.H{
		"cleanup_enabled": true, "cleanup_threshold_seconds": 86400, "interval_minutes": 60,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["is_running"])

	code, body = f.do(t, http.MethodPost, "/api/uploads/automation/start", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["is_running"])

	code, _ = f.do(t, http.MethodPost, "/api/uploads/automation/start", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, body = f.do(t, http.MethodGet, "/api/uploads/automation", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 86400, body["cleanup_threshold_seconds"])

	code, body = f.do(t, http.MethodPost, "/api/uploads/automation/stop", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["is_running"])
	assert.False(t, f.automation.IsRunning())
}
