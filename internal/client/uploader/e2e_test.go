package uploader_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetpipe/internal/api"
	"assetpipe/internal/client/uploader"
	"assetpipe/internal/config"
	"assetpipe/internal/server/auth"
	"assetpipe/internal/server/storage"
	"assetpipe/internal/server/storage/storagetest"
	"assetpipe/internal/service/cleanup"
	"assetpipe/internal/service/multipart"
	"assetpipe/internal/service/upload"
)

const secret = "e2e-secret"

type stack struct {
	mem    *storagetest.Memory
	client *uploader.Client
}

// newStack 启动 API 服务和一个模拟对象存储的 HTTP 服务
func newStack(t *testing.T, strategy storage.Strategy) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := storagetest.NewMemory()
	mem.Strategy = strategy

	blobs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/bucket/")
		switch r.Method {
		case http.MethodPut:
			data, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if id := r.URL.Query().Get("uploadId"); id != "" {
				n, _ := strconv.Atoi(r.URL.Query().Get("partNumber"))
				etag, err := mem.PutPart(id, n)
				if err != nil {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				w.Header().Set("ETag", `"`+etag+`"`)
				return
			}
			mem.PutObject(key, int64(len(data)))
		case http.MethodPost:
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if r.FormValue("policy") == "" {
				http.Error(w, "missing policy", http.StatusForbidden)
				return
			}
			f, hdr, err := r.FormFile("file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			f.Close()
			mem.PutObject(r.FormValue("key"), hdr.Size)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(blobs.Close)
	mem.UploadBase = blobs.URL + "/bucket"

	mgr, err := multipart.NewManager(mem, multipart.Config{PartSize: storage.MinPartSize})
	require.NoError(t, err)
	engine := cleanup.NewEngine(mem)
	automation := cleanup.NewAutomation(engine, nil, cleanup.Config{Interval: time.Hour})
	router := api.SetupRouter(api.Deps{
		Auth:       config.AuthSettings{JWTSecret: secret},
		Uploads:    upload.NewService(mem, upload.Options{Sessions: mgr}),
		Multipart:  mgr,
		Cleanup:    engine,
		Automation: automation,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	token, _, err := auth.SignAccessToken("u-1", "studio", "operator", time.Hour, secret)
	require.NoError(t, err)
	return &stack{mem: mem, client: uploader.NewClient(srv.URL, token)}
}

func asset(name, ct string, data []byte) uploader.File {
	f := uploader.BytesFile(name, ct, data)
	f.Purpose = upload.PurposeAsset
	return f
}

func drain(t *testing.T, s *uploader.Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestEndToEnd_PresignedPut(t *testing.T) {
	st := newStack(t, storage.StrategyPresignedPut)
	s := uploader.NewScheduler(st.client, uploader.NewHTTPTransport(), uploader.Options{Concurrency: 2})

	ids := s.Add(
		asset("a.jpg", "image/jpeg", []byte("first")),
		asset("b.png", "image/png", []byte("second")),
		asset("c.gif", "image/gif", []byte("rejected")),
	)
	drain(t, s)

	for _, id := range ids[:2] {
		it, _ := s.Item(id)
		require.Equal(t, uploader.StatusSuccess, it.Status, it.ErrorMessage)
		require.NotNil(t, it.Result)
		assert.Equal(t, "https://cdn.example.test/"+it.ObjectKey, it.Result.AccessURL)
		ok, err := st.mem.FileExists(context.Background(), it.ObjectKey)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	rejected, _ := s.Item(ids[2])
	assert.Equal(t, uploader.StatusError, rejected.Status)
	assert.Contains(t, rejected.ErrorMessage, "invalid_content_type")
}

func TestEndToEnd_FormPost(t *testing.T) {
	st := newStack(t, storage.StrategyFormPost)
	s := uploader.NewScheduler(st.client, uploader.NewHTTPTransport(), uploader.Options{})

	id := s.Add(asset("a.jpg", "image/jpeg", []byte("form bytes")))[0]
	drain(t, s)

	it, _ := s.Item(id)
	require.Equal(t, uploader.StatusSuccess, it.Status, it.ErrorMessage)
	assert.True(t, strings.HasPrefix(it.ObjectKey, "assets/"))
}

func TestEndToEnd_Multipart(t *testing.T) {
	st := newStack(t, storage.StrategyPresignedPut)
	s := uploader.NewScheduler(st.client, uploader.NewHTTPTransport(), uploader.Options{MultipartThreshold: 1024})

	data := bytes.Repeat([]byte("v"), int(storage.MinPartSize)+100)
	id := s.Add(asset("clip.mp4", "video/mp4", data))[0]
	drain(t, s)

	it, _ := s.Item(id)
	require.Equal(t, uploader.StatusSuccess, it.Status, it.ErrorMessage)
	assert.Equal(t, 100, it.Progress)

	completed := st.mem.Completed()
	require.Len(t, completed, 1)
	assert.Equal(t, []storage.CompletedPart{{PartNumber: 1, ETag: "etag-1"}, {PartNumber: 2, ETag: "etag-2"}}, completed[0])
}

func TestEndToEnd_ResumeSkipsUploadedParts(t *testing.T) {
	st := newStack(t, storage.StrategyPresignedPut)
	ctx := context.Background()
	data := bytes.Repeat([]byte("r"), 2*int(storage.MinPartSize)+1)

	sess, err := st.client.CreateMultipart(ctx, upload.SignRequest{
		Purpose: upload.PurposeAsset, Filename: "long.mp4", ContentType: "video/mp4", Size: int64(len(data)),
	})
	require.NoError(t, err)
	_, err = st.mem.PutPart(sess.UploadID, 1)
	require.NoError(t, err)

	mu := &uploader.MultipartUploader{API: st.client, Transport: uploader.NewHTTPTransport()}
	var (
		pmu  sync.Mutex
		peak int64
	)
	err = mu.Resume(ctx, sess, bytes.NewReader(data), int64(len(data)), func(sent int64) {
		pmu.Lock()
		peak = max(peak, sent)
		pmu.Unlock()
	})
	require.NoError(t, err)

	assert.Equal(t, 2, st.mem.Calls("SignUploadPart"))
	assert.EqualValues(t, len(data), peak)
	ok, err := st.mem.FileExists(ctx, sess.ObjectKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEndToEnd_CleanupThroughClient(t *testing.T) {
	st := newStack(t, storage.StrategyPresignedPut)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		st.mem.AddIncomplete(fmt.Sprintf("assets/old/%d.mp4", i), time.Now().Add(-48*time.Hour))
	}
	st.mem.AddIncomplete("assets/new/x.mp4", time.Now())

	stale, err := st.client.ListIncomplete(ctx, 3600)
	require.NoError(t, err)
	assert.Len(t, stale, 3)

	res, err := st.client.Cleanup(ctx, 3600)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Cleaned)

	left, err := st.client.ListIncomplete(ctx, 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "assets/new/x.mp4", left[0].ObjectKey)
}
