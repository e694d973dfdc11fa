package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"assetpipe/internal/config"
)

type s3Storage struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	publicBase string
}

func InitS3Storage(ctx context.Context, cfg config.S3, strategy Strategy) (Provider, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		return nil, errors.New("s3 region is empty")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is empty")
	}
	if strategy != StrategyPresignedPut {
		return nil, fmt.Errorf("%w: s3 does not support %q", ErrUnsupportedStrategy, strategy)
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if ak := strings.TrimSpace(cfg.AccessKeyID); ak != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ak, cfg.SecretAccessKeyOrEnv(), strings.TrimSpace(cfg.SessionToken)),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if ep := strings.TrimSpace(cfg.Endpoint); ep != "" {
			o.BaseEndpoint = aws.String(ep)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, fmt.Errorf("check s3 bucket %s: %w", bucket, err)
	}

	return &s3Storage{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     bucket,
		publicBase: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
	}, nil
}

func (s *s3Storage) Name() string {
	return ProviderS3
}

func (s *s3Storage) GenerateUploadToken(ctx context.Context, objectKey string, expires time.Duration, opts UploadOptions) (UploadCredential, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}
	if ct := strings.TrimSpace(opts.ContentType); ct != "" {
		in.ContentType = aws.String(ct)
	}
	req, err := s.presigner.PresignPutObject(ctx, in, s3.WithPresignExpires(expires))
	if err != nil {
		return UploadCredential{}, err
	}
	return UploadCredential{
		UploadURL: req.URL,
		ObjectKey: objectKey,
		ExpiresIn: expiresSeconds(expires),
		Strategy:  StrategyPresignedPut,
		Headers:   signedHeaders(req.SignedHeader),
	}, nil
}

// signedHeaders 客户端 PUT 时必须原样带上的签名头，Host 由 HTTP 客户端自行设置
func signedHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if strings.EqualFold(k, "Host") || len(v) == 0 {
			continue
		}
		out[k] = v[0]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *s3Storage) PublicURL(objectKey string) (string, error) {
	return publicURL(s.publicBase, objectKey)
}

func (s *s3Storage) PrivateDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (s *s3Storage) FileExists(ctx context.Context, objectKey string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
		return false, nil
	}
	return false, err
}

func (s *s3Storage) DeleteFile(ctx context.Context, objectKey string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	return err
}

func (s *s3Storage) DeleteFiles(ctx context.Context, objectKeys []string) error {
	return deleteEach(ctx, objectKeys, s.DeleteFile)
}

func (s *s3Storage) CreateMultipartUpload(ctx context.Context, objectKey string, contentType string) (string, error) {
	in := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}
	if ct := strings.TrimSpace(contentType); ct != "" {
		in.ContentType = aws.String(ct)
	}
	out, err := s.client.CreateMultipartUpload(ctx, in)
	if err != nil {
		return "", err
	}
	uploadID := aws.ToString(out.UploadId)
	if strings.TrimSpace(uploadID) == "" {
		return "", errors.New("s3 create multipart upload: empty upload id")
	}
	return uploadID, nil
}

func (s *s3Storage) SignUploadPart(ctx context.Context, objectKey string, uploadID string, partNumber int, expires time.Duration) (string, error) {
	req, err := s.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(objectKey),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(int32(partNumber)),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (s *s3Storage) ListUploadedParts(ctx context.Context, objectKey string, uploadID string) ([]CompletedPart, error) {
	return collectParts(ctx, func(ctx context.Context, marker int) (partsPage, error) {
		in := &s3.ListPartsInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(objectKey),
			UploadId: aws.String(uploadID),
			MaxParts: aws.Int32(1000),
		}
		if marker > 0 {
			in.PartNumberMarker = aws.String(strconv.Itoa(marker))
		}
		out, err := s.client.ListParts(ctx, in)
		if err != nil {
			return partsPage{}, s3Err(err)
		}
		parts := make([]CompletedPart, 0, len(out.Parts))
		for _, p := range out.Parts {
			parts = append(parts, CompletedPart{PartNumber: int(aws.ToInt32(p.PartNumber)), ETag: aws.ToString(p.ETag)})
		}
		next := 0
		if m := aws.ToString(out.NextPartNumberMarker); m != "" {
			if n, err := strconv.Atoi(m); err == nil {
				next = n
			}
		}
		return partsPage{Parts: parts, Next: next, Truncated: aws.ToBool(out.IsTruncated)}, nil
	})
}

func (s *s3Storage) CompleteMultipartUpload(ctx context.Context, objectKey string, uploadID string, parts []CompletedPart) error {
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(cleanETag(p.ETag)),
			PartNumber: aws.Int32(int32(p.PartNumber)),
		})
	}
	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(objectKey),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	return s3Err(err)
}

func (s *s3Storage) AbortMultipartUpload(ctx context.Context, objectKey string, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(objectKey),
		UploadId: aws.String(uploadID),
	})
	return s3Err(err)
}

func (s *s3Storage) ListMultipartUploads(ctx context.Context) ([]IncompleteUpload, error) {
	return collectUploads(ctx, func(ctx context.Context, m uploadMarker) (uploadsPage, error) {
		in := &s3.ListMultipartUploadsInput{
			Bucket:     aws.String(s.bucket),
			MaxUploads: aws.Int32(1000),
		}
		if m.Key != "" {
			in.KeyMarker = aws.String(m.Key)
		}
		if m.UploadID != "" {
			in.UploadIdMarker = aws.String(m.UploadID)
		}
		out, err := s.client.ListMultipartUploads(ctx, in)
		if err != nil {
			return uploadsPage{}, err
		}
		uploads := make([]IncompleteUpload, 0, len(out.Uploads))
		for _, u := range out.Uploads {
			uploads = append(uploads, IncompleteUpload{
				ObjectKey:   aws.ToString(u.Key),
				UploadID:    aws.ToString(u.UploadId),
				InitiatedAt: aws.ToTime(u.Initiated),
			})
		}
		return uploadsPage{
			Uploads:   uploads,
			Next:      uploadMarker{Key: aws.ToString(out.NextKeyMarker), UploadID: aws.ToString(out.NextUploadIdMarker)},
			Truncated: aws.ToBool(out.IsTruncated),
		}, nil
	})
}

func s3Err(err error) error {
	if err == nil {
		return nil
	}
	var nsu *types.NoSuchUpload
	if errors.As(err, &nsu) {
		return fmt.Errorf("%w: %v", ErrUploadNotFound, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchUpload" {
		return fmt.Errorf("%w: %v", ErrUploadNotFound, err)
	}
	return err
}
