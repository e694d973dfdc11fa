package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"assetpipe/internal/server/storage"
)

// ErrCanceled 传输被取消，与普通 I/O 错误区分
var ErrCanceled = errors.New("canceled")

var ErrUnsupportedStrategy = errors.New("unsupported_upload_strategy")

// Transport 把字节直接传到存储服务
type Transport interface {
	// Upload 按凭证的 strategy 选择 PUT 或表单提交
	Upload(ctx context.Context, cred storage.UploadCredential, body io.Reader, size int64, contentType string, progress func(sent int64)) error
	// PutPart 上传单个分片，返回 etag
	PutPart(ctx context.Context, url string, body io.Reader, size int64, progress func(sent int64)) (string, error)
}

type HTTPTransport struct {
	Client *http.Client
}

func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{Client: http.DefaultClient}
}

func (t *HTTPTransport) Upload(ctx context.Context, cred storage.UploadCredential, body io.Reader, size int64, contentType string, progress func(sent int64)) error {
	switch cred.Strategy {
	case storage.StrategyPresignedPut, "":
		headers := map[string]string{"Content-Type": contentType}
		for k, v := range cred.Headers {
			headers[k] = v
		}
		_, err := t.put(ctx, cred.UploadURL, body, size, headers, progress)
		return err
	case storage.StrategyFormPost:
		return t.formPost(ctx, cred, body, contentType, progress)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedStrategy, cred.Strategy)
	}
}

func (t *HTTPTransport) PutPart(ctx context.Context, url string, body io.Reader, size int64, progress func(sent int64)) (string, error) {
	resp, err := t.put(ctx, url, body, size, nil, progress)
	if err != nil {
		return "", err
	}
	etag := strings.Trim(resp.Header.Get("ETag"), "\"")
	if etag == "" {
		return "", errors.New("part upload returned no etag")
	}
	return etag, nil
}

func (t *HTTPTransport) put(ctx context.Context, url string, body io.Reader, size int64, headers map[string]string, progress func(sent int64)) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, &progressReader{r: body, fn: progress})
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return t.send(ctx, req)
}

// formPost 表单字段必须在文件之前
func (t *HTTPTransport) formPost(ctx context.Context, cred storage.UploadCredential, body io.Reader, contentType string, progress func(sent int64)) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			for k, v := range cred.FormFields {
				if err := mw.WriteField(k, v); err != nil {
					return err
				}
			}
			if _, ok := cred.FormFields["Content-Type"]; !ok && contentType != "" {
				if err := mw.WriteField("Content-Type", contentType); err != nil {
					return err
				}
			}
			fw, err := mw.CreateFormFile("file", cred.ObjectKey)
			if err != nil {
				return err
			}
			if _, err := io.Copy(fw, &progressReader{r: body, fn: progress}); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cred.UploadURL, pr)
	if err != nil {
		pr.CloseWithError(err)
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	_, err = t.send(ctx, req)
	// 请求失败时让写协程退出
	pr.CloseWithError(errors.New("request finished"))
	return err
}

func (t *HTTPTransport) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, canceledOr(ctx, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("storage responded %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return resp, nil
}

// canceledOr 取消导致的错误统一转换为 ErrCanceled
func canceledOr(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	return err
}

type progressReader struct {
	r    io.Reader
	fn   func(int64)
	sent int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.fn != nil {
			p.fn(p.sent)
		}
	}
	return n, err
}
