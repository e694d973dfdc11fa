package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"

	"assetpipe/internal/config"
)

type ossStorage struct {
	client     *oss.Client
	bucket     string
	publicBase string
}

func InitOSSStorage(cfg config.OSS, strategy Strategy) (Provider, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		return nil, errors.New("oss region is empty")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("oss bucket is empty")
	}
	if strategy != StrategyPresignedPut {
		return nil, fmt.Errorf("%w: oss does not support %q", ErrUnsupportedStrategy, strategy)
	}

	ossCfg := oss.LoadDefaultConfig().
		WithRegion(region).
		WithCredentialsProvider(credentials.NewStaticCredentialsProvider(strings.TrimSpace(cfg.AccessKeyID), cfg.AccessKeySecretOrEnv(), strings.TrimSpace(cfg.SecurityToken))).
		WithDisableSSL(cfg.DisableSSL).
		WithUseCName(cfg.UseCName).
		WithUsePathStyle(cfg.UsePathStyle)

	if ep := strings.TrimSpace(cfg.Endpoint); ep != "" {
		ossCfg = ossCfg.WithEndpoint(ep)
	}

	return &ossStorage{
		client:     oss.NewClient(ossCfg),
		bucket:     bucket,
		publicBase: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
	}, nil
}

func (s *ossStorage) Name() string {
	return ProviderOSS
}

func (s *ossStorage) GenerateUploadToken(ctx context.Context, objectKey string, expires time.Duration, opts UploadOptions) (UploadCredential, error) {
	req := &oss.PutObjectRequest{
		Bucket: oss.Ptr(s.bucket),
		Key:    oss.Ptr(objectKey),
	}
	if ct := strings.TrimSpace(opts.ContentType); ct != "" {
		req.ContentType = oss.Ptr(ct)
	}
	out, err := s.client.Presign(ctx, req, oss.PresignExpires(expires))
	if err != nil {
		return UploadCredential{}, err
	}
	return UploadCredential{
		UploadURL: out.URL,
		ObjectKey: objectKey,
		ExpiresIn: expiresSeconds(expires),
		Strategy:  StrategyPresignedPut,
		Headers:   out.SignedHeaders,
	}, nil
}

func (s *ossStorage) PublicURL(objectKey string) (string, error) {
	return publicURL(s.publicBase, objectKey)
}

func (s *ossStorage) PrivateDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	out, err := s.client.Presign(ctx, &oss.GetObjectRequest{
		Bucket: oss.Ptr(s.bucket),
		Key:    oss.Ptr(objectKey),
	}, oss.PresignExpires(expires))
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

func (s *ossStorage) FileExists(ctx context.Context, objectKey string) (bool, error) {
	return s.client.IsObjectExist(ctx, s.bucket, objectKey)
}

func (s *ossStorage) DeleteFile(ctx context.Context, objectKey string) error {
	_, err := s.client.DeleteObject(ctx, &oss.DeleteObjectRequest{
		Bucket: oss.Ptr(s.bucket),
		Key:    oss.Ptr(objectKey),
	})
	return err
}

func (s *ossStorage) DeleteFiles(ctx context.Context, objectKeys []string) error {
	return deleteEach(ctx, objectKeys, s.DeleteFile)
}

func (s *ossStorage) CreateMultipartUpload(ctx context.Context, objectKey string, contentType string) (string, error) {
	req := &oss.InitiateMultipartUploadRequest{
		Bucket: oss.Ptr(s.bucket),
		Key:    oss.Ptr(objectKey),
	}
	if ct := strings.TrimSpace(contentType); ct != "" {
		req.ContentType = oss.Ptr(ct)
	}
	out, err := s.client.InitiateMultipartUpload(ctx, req)
	if err != nil {
		return "", err
	}
	if out.UploadId == nil || strings.TrimSpace(*out.UploadId) == "" {
		return "", errors.New("oss initiate multipart upload: empty upload id")
	}
	return *out.UploadId, nil
}

func (s *ossStorage) SignUploadPart(ctx context.Context, objectKey string, uploadID string, partNumber int, expires time.Duration) (string, error) {
	out, err := s.client.Presign(ctx, &oss.UploadPartRequest{
		Bucket:     oss.Ptr(s.bucket),
		Key:        oss.Ptr(objectKey),
		UploadId:   oss.Ptr(uploadID),
		PartNumber: int32(partNumber),
	}, oss.PresignExpires(expires))
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

func (s *ossStorage) ListUploadedParts(ctx context.Context, objectKey string, uploadID string) ([]CompletedPart, error) {
	return collectParts(ctx, func(ctx context.Context, marker int) (partsPage, error) {
		out, err := s.client.ListParts(ctx, &oss.ListPartsRequest{
			Bucket:           oss.Ptr(s.bucket),
			Key:              oss.Ptr(objectKey),
			UploadId:         oss.Ptr(uploadID),
			PartNumberMarker: int32(marker),
			MaxParts:         1000,
		})
		if err != nil {
			return partsPage{}, ossErr(err)
		}
		parts := make([]CompletedPart, 0, len(out.Parts))
		for _, p := range out.Parts {
			parts = append(parts, CompletedPart{PartNumber: int(p.PartNumber), ETag: oss.ToString(p.ETag)})
		}
		return partsPage{Parts: parts, Next: int(out.NextPartNumberMarker), Truncated: out.IsTruncated}, nil
	})
}

func (s *ossStorage) CompleteMultipartUpload(ctx context.Context, objectKey string, uploadID string, parts []CompletedPart) error {
	uploadParts := make([]oss.UploadPart, 0, len(parts))
	for _, p := range parts {
		uploadParts = append(uploadParts, oss.UploadPart{
			PartNumber: int32(p.PartNumber),
			ETag:       oss.Ptr(cleanETag(p.ETag)),
		})
	}
	_, err := s.client.CompleteMultipartUpload(ctx, &oss.CompleteMultipartUploadRequest{
		Bucket:   oss.Ptr(s.bucket),
		Key:      oss.Ptr(objectKey),
		UploadId: oss.Ptr(uploadID),
		CompleteMultipartUpload: &oss.CompleteMultipartUpload{
			Parts: uploadParts,
		},
	})
	return ossErr(err)
}

func (s *ossStorage) AbortMultipartUpload(ctx context.Context, objectKey string, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &oss.AbortMultipartUploadRequest{
		Bucket:   oss.Ptr(s.bucket),
		Key:      oss.Ptr(objectKey),
		UploadId: oss.Ptr(uploadID),
	})
	return ossErr(err)
}

func (s *ossStorage) ListMultipartUploads(ctx context.Context) ([]IncompleteUpload, error) {
	return collectUploads(ctx, func(ctx context.Context, m uploadMarker) (uploadsPage, error) {
		req := &oss.ListMultipartUploadsRequest{
			Bucket:     oss.Ptr(s.bucket),
			MaxUploads: 1000,
		}
		if m.Key != "" {
			req.KeyMarker = oss.Ptr(m.Key)
		}
		if m.UploadID != "" {
			req.UploadIdMarker = oss.Ptr(m.UploadID)
		}
		out, err := s.client.ListMultipartUploads(ctx, req)
		if err != nil {
			return uploadsPage{}, err
		}
		uploads := make([]IncompleteUpload, 0, len(out.Uploads))
		for _, u := range out.Uploads {
			var initiated time.Time
			if u.Initiated != nil {
				initiated = *u.Initiated
			}
			uploads = append(uploads, IncompleteUpload{
				ObjectKey:   oss.ToString(u.Key),
				UploadID:    oss.ToString(u.UploadId),
				InitiatedAt: initiated,
			})
		}
		return uploadsPage{
			Uploads:   uploads,
			Next:      uploadMarker{Key: oss.ToString(out.NextKeyMarker), UploadID: oss.ToString(out.NextUploadIdMarker)},
			Truncated: out.IsTruncated,
		}, nil
	})
}

func ossErr(err error) error {
	if err == nil {
		return nil
	}
	var serr *oss.ServiceError
	if errors.As(err, &serr) && serr.Code == "NoSuchUpload" {
		return fmt.Errorf("%w: %v", ErrUploadNotFound, err)
	}
	return err
}
