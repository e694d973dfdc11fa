// Package storagetest provides an in-memory storage.Provider for tests.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"assetpipe/internal/server/storage"
)

var ErrInvalidPart = errors.New("invalid_part")

type upload struct {
	key         string
	contentType string
	initiated   time.Time
	parts       map[int]string
}

// Memory records every call so tests can assert that validation failures never
// reach the backend.
type Memory struct {
	mu sync.Mutex

	PublicBase string
	// UploadBase prefixes issued upload URLs; point it at an httptest server to
	// receive real transfers.
	UploadBase string
	Strategy   storage.Strategy
	Now        func() time.Time

	objects   map[string]int64
	uploads   map[string]*upload
	calls     map[string]int
	completed [][]storage.CompletedPart
	abortErrs map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		PublicBase: "https://cdn.example.test",
		UploadBase: "https://upload.example.test/bucket",
		Strategy:   storage.StrategyPresignedPut,
		Now:        time.Now,
		objects:    map[string]int64{},
		uploads:    map[string]*upload{},
		calls:      map[string]int{},
		abortErrs:  map[string]error{},
	}
}

func (m *Memory) record(name string) {
	m.calls[name]++
}

// Calls returns how many times the named Provider method was called.
func (m *Memory) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// TotalCalls counts every Provider call.
func (m *Memory) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

// PutObject simulates a finished byte transfer.
func (m *Memory) PutObject(key string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = size
}

// PutPart simulates a stored part and returns its etag.
func (m *Memory) PutPart(uploadID string, partNumber int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[uploadID]
	if !ok {
		return "", storage.ErrUploadNotFound
	}
	etag := fmt.Sprintf("etag-%d", partNumber)
	u.parts[partNumber] = etag
	return etag, nil
}

// AddIncomplete registers an open multipart session initiated at the given time.
func (m *Memory) AddIncomplete(key string, initiated time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.uploads[id] = &upload{key: key, initiated: initiated, parts: map[int]string{}}
	return id
}

// FailAbort makes AbortMultipartUpload return err for the given upload id.
func (m *Memory) FailAbort(uploadID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abortErrs[uploadID] = err
}

// Completed returns the part lists submitted to CompleteMultipartUpload, in call order.
func (m *Memory) Completed() [][]storage.CompletedPart {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]storage.CompletedPart, len(m.completed))
	copy(out, m.completed)
	return out
}

func (m *Memory) Name() string {
	return "memory"
}

func (m *Memory) GenerateUploadToken(ctx context.Context, objectKey string, expires time.Duration, opts storage.UploadOptions) (storage.UploadCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GenerateUploadToken")
	cred := storage.UploadCredential{
		UploadURL: m.UploadBase + "/" + objectKey,
		ObjectKey: objectKey,
		ExpiresIn: int64(expires / time.Second),
		Strategy:  m.Strategy,
	}
	if m.Strategy == storage.StrategyFormPost {
		cred.Token = "policy-" + objectKey
		cred.UploadURL = m.UploadBase
		cred.FormFields = map[string]string{"key": objectKey, "policy": cred.Token}
	}
	return cred, nil
}

func (m *Memory) PublicURL(objectKey string) (string, error) {
	if m.PublicBase == "" {
		return "", storage.ErrNoPublicDomain
	}
	return strings.TrimRight(m.PublicBase, "/") + "/" + objectKey, nil
}

func (m *Memory) PrivateDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("PrivateDownloadURL")
	v := url.Values{}
	v.Set("expires", fmt.Sprint(int64(expires/time.Second)))
	return "https://private.example.test/" + objectKey + "?" + v.Encode(), nil
}

func (m *Memory) FileExists(ctx context.Context, objectKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("FileExists")
	_, ok := m.objects[objectKey]
	return ok, nil
}

func (m *Memory) DeleteFile(ctx context.Context, objectKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteFile")
	delete(m.objects, objectKey)
	return nil
}

func (m *Memory) DeleteFiles(ctx context.Context, objectKeys []string) error {
	var errs []error
	for _, k := range objectKeys {
		if err := m.DeleteFile(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Memory) CreateMultipartUpload(ctx context.Context, objectKey string, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateMultipartUpload")
	id := uuid.NewString()
	m.uploads[id] = &upload{key: objectKey, contentType: contentType, initiated: m.Now(), parts: map[int]string{}}
	return id, nil
}

func (m *Memory) SignUploadPart(ctx context.Context, objectKey string, uploadID string, partNumber int, expires time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SignUploadPart")
	if _, ok := m.uploads[uploadID]; !ok {
		return "", storage.ErrUploadNotFound
	}
	return fmt.Sprintf("%s/%s?partNumber=%d&uploadId=%s", m.UploadBase, objectKey, partNumber, uploadID), nil
}

func (m *Memory) ListUploadedParts(ctx context.Context, objectKey string, uploadID string) ([]storage.CompletedPart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListUploadedParts")
	u, ok := m.uploads[uploadID]
	if !ok {
		return nil, storage.ErrUploadNotFound
	}
	parts := make([]storage.CompletedPart, 0, len(u.parts))
	for n, etag := range u.parts {
		parts = append(parts, storage.CompletedPart{PartNumber: n, ETag: etag})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, nil
}

func (m *Memory) CompleteMultipartUpload(ctx context.Context, objectKey string, uploadID string, parts []storage.CompletedPart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CompleteMultipartUpload")
	submitted := make([]storage.CompletedPart, len(parts))
	copy(submitted, parts)
	m.completed = append(m.completed, submitted)
	u, ok := m.uploads[uploadID]
	if !ok || u.key != objectKey {
		return storage.ErrUploadNotFound
	}
	for i, p := range parts {
		if p.PartNumber != i+1 || u.parts[p.PartNumber] != p.ETag {
			return fmt.Errorf("%w: part %d", ErrInvalidPart, p.PartNumber)
		}
	}
	delete(m.uploads, uploadID)
	m.objects[objectKey] = int64(len(parts))
	return nil
}

func (m *Memory) AbortMultipartUpload(ctx context.Context, objectKey string, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("AbortMultipartUpload")
	if err, ok := m.abortErrs[uploadID]; ok {
		return err
	}
	if _, ok := m.uploads[uploadID]; !ok {
		return storage.ErrUploadNotFound
	}
	delete(m.uploads, uploadID)
	return nil
}

func (m *Memory) ListMultipartUploads(ctx context.Context) ([]storage.IncompleteUpload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListMultipartUploads")
	out := make([]storage.IncompleteUpload, 0, len(m.uploads))
	for id, u := range m.uploads {
		out = append(out, storage.IncompleteUpload{ObjectKey: u.key, UploadID: id, InitiatedAt: u.initiated})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ObjectKey != out[j].ObjectKey {
			return out[i].ObjectKey < out[j].ObjectKey
		}
		return out[i].UploadID < out[j].UploadID
	})
	return out, nil
}

var _ storage.Provider = (*Memory)(nil)
