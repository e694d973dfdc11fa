package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"assetpipe/internal/server/storage"
	"assetpipe/internal/service/multipart"
	"assetpipe/internal/service/upload"
)

// fakeAPI 签名时为每次调用分配新的 key
type fakeAPI struct {
	mu       sync.Mutex
	signs    int
	keys     []string
	confirms int
	onSign   func()
}

func (f *fakeAPI) Sign(ctx context.Context, req upload.SignRequest) (storage.UploadCredential, error) {
	if f.onSign != nil {
		f.onSign()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signs++
	key := fmt.Sprintf("assets/2026/10/%d-%s", f.signs, req.Filename)
	f.keys = append(f.keys, key)
	return storage.UploadCredential{ObjectKey: key, UploadURL: "memory://" + key, Strategy: storage.StrategyPresignedPut}, nil
}

func (f *fakeAPI) Confirm(ctx context.Context, req upload.ConfirmRequest) (upload.ConfirmResult, error) {
	if err := ctx.Err(); err != nil {
		return upload.ConfirmResult{}, canceledOr(ctx, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms++
	return upload.ConfirmResult{ID: fmt.Sprint(f.confirms), ObjectKey: req.ObjectKey, AccessURL: "https://cdn/" + req.ObjectKey}, nil
}

func (f *fakeAPI) CreateMultipart(ctx context.Context, req upload.SignRequest) (multipart.Session, error) {
	return multipart.Session{}, errors.New("not supported")
}

func (f *fakeAPI) SignPart(ctx context.Context, objectKey, uploadID string, partNumber int) (multipart.PartURL, error) {
	return multipart.PartURL{}, errors.New("not supported")
}

func (f *fakeAPI) ListParts(ctx context.Context, objectKey, uploadID string) ([]storage.CompletedPart, error) {
	return nil, errors.New("not supported")
}

func (f *fakeAPI) CompleteMultipart(ctx context.Context, objectKey, uploadID string, parts []storage.CompletedPart) error {
	return errors.New("not supported")
}

func (f *fakeAPI) AbortMultipart(ctx context.Context, objectKey, uploadID string) error {
	return nil
}

func (f *fakeAPI) signedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

// fakeTransport 可选地阻塞在 gate 上，直到放行或取消
type fakeTransport struct {
	mu       sync.Mutex
	gate     chan struct{}
	failOnce map[string]error
	onUpload func()
}

func (f *fakeTransport) Upload(ctx context.Context, cred storage.UploadCredential, body io.Reader, size int64, contentType string, progress func(sent int64)) error {
	if f.onUpload != nil {
		f.onUpload()
	}
	n, err := io.Copy(io.Discard, io.LimitReader(body, size/2))
	if err != nil {
		return err
	}
	progress(n)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return canceledOr(ctx, ctx.Err())
		}
	}
	f.mu.Lock()
	for name, ferr := range f.failOnce {
		if strings.HasSuffix(cred.ObjectKey, name) {
			delete(f.failOnce, name)
			f.mu.Unlock()
			return ferr
		}
	}
	f.mu.Unlock()
	progress(size)
	return nil
}

func (f *fakeTransport) PutPart(ctx context.Context, url string, body io.Reader, size int64, progress func(sent int64)) (string, error) {
	return "", errors.New("not supported")
}

func files(n int) []File {
	out := make([]File, 0, n)
	for i := 0; i < n; i++ {
		f := BytesFile(fmt.Sprintf("photo-%d.jpg", i), "image/jpeg", []byte(fmt.Sprintf("jpeg bytes %d", i)))
		f.Purpose = upload.PurposeAsset
		out = append(out, f)
	}
	return out
}
