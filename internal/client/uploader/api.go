package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"assetpipe/internal/server/storage"
	"assetpipe/internal/service/cleanup"
	"assetpipe/internal/service/multipart"
	"assetpipe/internal/service/upload"
)

// API 上传流程调用的服务端接口
type API interface {
	Sign(ctx context.Context, req upload.SignRequest) (storage.UploadCredential, error)
	Confirm(ctx context.Context, req upload.ConfirmRequest) (upload.ConfirmResult, error)
	CreateMultipart(ctx context.Context, req upload.SignRequest) (multipart.Session, error)
	SignPart(ctx context.Context, objectKey, uploadID string, partNumber int) (multipart.PartURL, error)
	ListParts(ctx context.Context, objectKey, uploadID string) ([]storage.CompletedPart, error)
	CompleteMultipart(ctx context.Context, objectKey, uploadID string, parts []storage.CompletedPart) error
	AbortMultipart(ctx context.Context, objectKey, uploadID string) error
}

// APIError 服务端返回的非 2xx 响应
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("%s (http %d)", e.Message, e.Status)
}

// Client 通过 /api/uploads 调用服务端
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), Token: token, HTTP: http.DefaultClient}
}

func (c *Client) Sign(ctx context.Context, req upload.SignRequest) (storage.UploadCredential, error) {
	var cred storage.UploadCredential
	err := c.do(ctx, http.MethodPost, "/api/uploads/sign", req, &cred)
	return cred, err
}

func (c *Client) Confirm(ctx context.Context, req upload.ConfirmRequest) (upload.ConfirmResult, error) {
	var res upload.ConfirmResult
	err := c.do(ctx, http.MethodPost, "/api/uploads/confirm", req, &res)
	return res, err
}

func (c *Client) CreateMultipart(ctx context.Context, req upload.SignRequest) (multipart.Session, error) {
	var sess multipart.Session
	err := c.do(ctx, http.MethodPost, "/api/uploads/multipart", req, &sess)
	return sess, err
}

func (c *Client) SignPart(ctx context.Context, objectKey, uploadID string, partNumber int) (multipart.PartURL, error) {
	var part multipart.PartURL
	body := map[string]any{"object_key": objectKey, "upload_id": uploadID, "part_number": partNumber}
	err := c.do(ctx, http.MethodPost, "/api/uploads/multipart/sign-part", body, &part)
	return part, err
}

func (c *Client) ListParts(ctx context.Context, objectKey, uploadID string) ([]storage.CompletedPart, error) {
	var out struct {
		Parts []storage.CompletedPart `json:"parts"`
	}
	q := url.Values{"object_key": {objectKey}, "upload_id": {uploadID}}
	err := c.do(ctx, http.MethodGet, "/api/uploads/multipart/parts?"+q.Encode(), nil, &out)
	return out.Parts, err
}

func (c *Client) CompleteMultipart(ctx context.Context, objectKey, uploadID string, parts []storage.CompletedPart) error {
	body := map[string]any{"object_key": objectKey, "upload_id": uploadID, "parts": parts}
	return c.do(ctx, http.MethodPost, "/api/uploads/multipart/complete", body, nil)
}

func (c *Client) AbortMultipart(ctx context.Context, objectKey, uploadID string) error {
	body := map[string]any{"object_key": objectKey, "upload_id": uploadID}
	return c.do(ctx, http.MethodPost, "/api/uploads/multipart/abort", body, nil)
}

// ListIncomplete 运维命令使用
func (c *Client) ListIncomplete(ctx context.Context, olderThanSeconds int64) ([]storage.IncompleteUpload, error) {
	var out struct {
		Uploads []storage.IncompleteUpload `json:"uploads"`
	}
	path := "/api/uploads/incomplete"
	if olderThanSeconds > 0 {
		path += fmt.Sprintf("?older_than_seconds=%d", olderThanSeconds)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Uploads, err
}

func (c *Client) Cleanup(ctx context.Context, olderThanSeconds int64) (cleanup.Result, error) {
	var res cleanup.Result
	err := c.do(ctx, http.MethodPost, "/api/uploads/cleanup", map[string]int64{"older_than_seconds": olderThanSeconds}, &res)
	return res, err
}

func (c *Client) do(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return canceledOr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return canceledOr(ctx, fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

// IsNotFound 服务端确认时对象不存在
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
