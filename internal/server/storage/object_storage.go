package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

type Strategy string

const (
	// StrategyPresignedPut 客户端直接 PUT 到预签名 URL
	StrategyPresignedPut Strategy = "presigned_put"
	// StrategyFormPost 客户端以 multipart/form-data 提交，表单中携带策略与签名
	StrategyFormPost Strategy = "form_post"
)

const (
	ProviderMinio = "minio"
	ProviderOSS   = "oss"
	ProviderS3    = "s3"
)

// MinPartSize S3/OSS 协议要求除最后一片外每片不小于 5MiB
const MinPartSize int64 = 5 * 1024 * 1024

var ErrUploadNotFound = errors.New("upload_not_found")
var ErrNoPublicDomain = errors.New("no_public_domain")
var ErrUnknownProvider = errors.New("unknown_storage_provider")
var ErrUnsupportedStrategy = errors.New("unsupported_upload_strategy")
var ErrObjectKeyRequired = errors.New("object_key_required")
var ErrUploadIDRequired = errors.New("upload_id_required")

type UploadCredential struct {
	Token      string            `json:"token"`
	UploadURL  string            `json:"upload_url"`
	ObjectKey  string            `json:"object_key"`
	ExpiresIn  int64             `json:"expires_in"`
	Strategy   Strategy          `json:"strategy"`
	FormFields map[string]string `json:"form_fields,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

type UploadOptions struct {
	ContentType string
	MaxSize     int64
}

type CompletedPart struct {
	PartNumber int    `json:"part_number"`
	ETag       string `json:"etag"`
}

type IncompleteUpload struct {
	ObjectKey   string    `json:"object_key"`
	UploadID    string    `json:"upload_id"`
	InitiatedAt time.Time `json:"initiated_at"`
}

// Provider 对接某一个具体对象存储服务
type Provider interface {
	Name() string

	GenerateUploadToken(ctx context.Context, objectKey string, expires time.Duration, opts UploadOptions) (UploadCredential, error)
	PublicURL(objectKey string) (string, error)
	PrivateDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)
	FileExists(ctx context.Context, objectKey string) (bool, error)
	DeleteFile(ctx context.Context, objectKey string) error
	DeleteFiles(ctx context.Context, objectKeys []string) error

	CreateMultipartUpload(ctx context.Context, objectKey string, contentType string) (string, error)
	SignUploadPart(ctx context.Context, objectKey string, uploadID string, partNumber int, expires time.Duration) (string, error)
	ListUploadedParts(ctx context.Context, objectKey string, uploadID string) ([]CompletedPart, error)
	CompleteMultipartUpload(ctx context.Context, objectKey string, uploadID string, parts []CompletedPart) error
	AbortMultipartUpload(ctx context.Context, objectKey string, uploadID string) error
	ListMultipartUploads(ctx context.Context) ([]IncompleteUpload, error)
}

// publicURL 拼接公共访问域名与对象 key，key 的每一段单独转义
func publicURL(base string, objectKey string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", ErrNoPublicDomain
	}
	if strings.TrimSpace(objectKey) == "" {
		return "", ErrObjectKeyRequired
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return u.JoinPath(strings.Split(objectKey, "/")...).String(), nil
}

// deleteEach 批量删除退化为逐个删除，汇总所有错误
func deleteEach(ctx context.Context, keys []string, del func(context.Context, string) error) error {
	var errs []error
	for _, k := range keys {
		if err := del(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func cleanETag(etag string) string {
	return strings.Trim(strings.TrimSpace(etag), "\"")
}

func expiresSeconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
