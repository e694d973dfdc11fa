package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"assetpipe/internal/config"
)

type minioStorage struct {
	client     *minio.Client
	core       minio.Core
	bucket     string
	publicBase string
	strategy   Strategy
}

func InitMinioStorage(ctx context.Context, cfg config.Minio, strategy Strategy) (Provider, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("minio endpoint is empty")
	}
	accessKey := strings.TrimSpace(cfg.AccessKey)
	secretKey := cfg.SecretKeyOrEnv()
	bucket := strings.TrimSpace(cfg.Bucket)
	if accessKey == "" || secretKey == "" || bucket == "" {
		return nil, errors.New("minio credentials or bucket is empty")
	}
	switch strategy {
	case StrategyPresignedPut, StrategyFormPost:
	default:
		return nil, fmt.Errorf("%w: minio does not support %q", ErrUnsupportedStrategy, strategy)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check minio bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("minio bucket not found: %s", bucket)
	}

	return &minioStorage{
		client:     client,
		core:       minio.Core{Client: client},
		bucket:     bucket,
		publicBase: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		strategy:   strategy,
	}, nil
}

func (s *minioStorage) Name() string {
	return ProviderMinio
}

func (s *minioStorage) GenerateUploadToken(ctx context.Context, objectKey string, expires time.Duration, opts UploadOptions) (UploadCredential, error) {
	if s.strategy == StrategyFormPost {
		return s.postPolicy(ctx, objectKey, expires, opts)
	}
	u, err := s.client.PresignedPutObject(ctx, s.bucket, objectKey, expires)
	if err != nil {
		return UploadCredential{}, err
	}
	return UploadCredential{
		UploadURL: u.String(),
		ObjectKey: objectKey,
		ExpiresIn: expiresSeconds(expires),
		Strategy:  StrategyPresignedPut,
	}, nil
}

func (s *minioStorage) postPolicy(ctx context.Context, objectKey string, expires time.Duration, opts UploadOptions) (UploadCredential, error) {
	policy := minio.NewPostPolicy()
	if err := policy.SetBucket(s.bucket); err != nil {
		return UploadCredential{}, err
	}
	if err := policy.SetKey(objectKey); err != nil {
		return UploadCredential{}, err
	}
	if err := policy.SetExpires(time.Now().UTC().Add(expires)); err != nil {
		return UploadCredential{}, err
	}
	if ct := strings.TrimSpace(opts.ContentType); ct != "" {
		if err := policy.SetContentType(ct); err != nil {
			return UploadCredential{}, err
		}
	}
	if opts.MaxSize > 0 {
		if err := policy.SetContentLengthRange(1, opts.MaxSize); err != nil {
			return UploadCredential{}, err
		}
	}
	u, form, err := s.client.PresignedPostPolicy(ctx, policy)
	if err != nil {
		return UploadCredential{}, err
	}
	return UploadCredential{
		Token:      form["policy"],
		UploadURL:  u.String(),
		ObjectKey:  objectKey,
		ExpiresIn:  expiresSeconds(expires),
		Strategy:   StrategyFormPost,
		FormFields: form,
	}, nil
}

func (s *minioStorage) PublicURL(objectKey string) (string, error) {
	return publicURL(s.publicBase, objectKey)
}

func (s *minioStorage) PrivateDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, expires, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *minioStorage) FileExists(ctx context.Context, objectKey string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, objectKey, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

func (s *minioStorage) DeleteFile(ctx context.Context, objectKey string) error {
	return s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{})
}

func (s *minioStorage) DeleteFiles(ctx context.Context, objectKeys []string) error {
	return deleteEach(ctx, objectKeys, s.DeleteFile)
}

func (s *minioStorage) CreateMultipartUpload(ctx context.Context, objectKey string, contentType string) (string, error) {
	opts := minio.PutObjectOptions{}
	if ct := strings.TrimSpace(contentType); ct != "" {
		opts.ContentType = ct
	}
	uploadID, err := s.core.NewMultipartUpload(ctx, s.bucket, objectKey, opts)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(uploadID) == "" {
		return "", errors.New("minio new multipart upload: empty upload id")
	}
	return uploadID, nil
}

func (s *minioStorage) SignUploadPart(ctx context.Context, objectKey string, uploadID string, partNumber int, expires time.Duration) (string, error) {
	params := url.Values{}
	params.Set("partNumber", strconv.Itoa(partNumber))
	params.Set("uploadId", uploadID)
	u, err := s.client.Presign(ctx, http.MethodPut, s.bucket, objectKey, expires, params)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *minioStorage) ListUploadedParts(ctx context.Context, objectKey string, uploadID string) ([]CompletedPart, error) {
	return collectParts(ctx, func(ctx context.Context, marker int) (partsPage, error) {
		res, err := s.core.ListObjectParts(ctx, s.bucket, objectKey, uploadID, marker, 1000)
		if err != nil {
			return partsPage{}, minioErr(err)
		}
		parts := make([]CompletedPart, 0, len(res.ObjectParts))
		for _, p := range res.ObjectParts {
			parts = append(parts, CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag})
		}
		return partsPage{Parts: parts, Next: res.NextPartNumberMarker, Truncated: res.IsTruncated}, nil
	})
}

func (s *minioStorage) CompleteMultipartUpload(ctx context.Context, objectKey string, uploadID string, parts []CompletedPart) error {
	completeParts := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completeParts = append(completeParts, minio.CompletePart{PartNumber: p.PartNumber, ETag: cleanETag(p.ETag)})
	}
	_, err := s.core.CompleteMultipartUpload(ctx, s.bucket, objectKey, uploadID, completeParts, minio.PutObjectOptions{})
	return minioErr(err)
}

func (s *minioStorage) AbortMultipartUpload(ctx context.Context, objectKey string, uploadID string) error {
	return minioErr(s.core.AbortMultipartUpload(ctx, s.bucket, objectKey, uploadID))
}

func (s *minioStorage) ListMultipartUploads(ctx context.Context) ([]IncompleteUpload, error) {
	return collectUploads(ctx, func(ctx context.Context, m uploadMarker) (uploadsPage, error) {
		res, err := s.core.ListMultipartUploads(ctx, s.bucket, "", m.Key, m.UploadID, "", 1000)
		if err != nil {
			return uploadsPage{}, err
		}
		uploads := make([]IncompleteUpload, 0, len(res.Uploads))
		for _, u := range res.Uploads {
			uploads = append(uploads, IncompleteUpload{ObjectKey: u.Key, UploadID: u.UploadID, InitiatedAt: u.Initiated})
		}
		return uploadsPage{
			Uploads:   uploads,
			Next:      uploadMarker{Key: res.NextKeyMarker, UploadID: res.NextUploadIDMarker},
			Truncated: res.IsTruncated,
		}, nil
	})
}

func minioErr(err error) error {
	if err == nil {
		return nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchUpload" {
		return fmt.Errorf("%w: %v", ErrUploadNotFound, err)
	}
	return err
}
