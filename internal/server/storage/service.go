package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"assetpipe/internal/config"
	"assetpipe/internal/logger"
)

// Service 与具体存储无关的入口，启动时根据配置选定 Provider，之后只做转发
type Service struct {
	provider Provider
}

// NewService 未知的 provider 或不支持的上传策略在启动时直接报错
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	strategy, err := ParseStrategy(cfg.Storage.UploadStrategyOrDefault())
	if err != nil {
		return nil, err
	}
	var p Provider
	switch name := cfg.Storage.ProviderOrDefault(); name {
	case ProviderMinio:
		p, err = InitMinioStorage(ctx, cfg.Minio, strategy)
	case ProviderOSS:
		p, err = InitOSSStorage(cfg.OSS, strategy)
	case ProviderS3:
		p, err = InitS3Storage(ctx, cfg.S3, strategy)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	if err != nil {
		return nil, err
	}
	logger.Info().Str("provider", p.Name()).Str("strategy", string(strategy)).Msg("storage: provider ready")
	return &Service{provider: p}, nil
}

func NewServiceWithProvider(p Provider) *Service {
	return &Service{provider: p}
}

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyPresignedPut, StrategyFormPost:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedStrategy, s)
	}
}

func (s *Service) Provider() string {
	return s.provider.Name()
}

func (s *Service) GenerateUploadToken(ctx context.Context, objectKey string, expires time.Duration, opts UploadOptions) (UploadCredential, error) {
	if strings.TrimSpace(objectKey) == "" {
		return UploadCredential{}, ErrObjectKeyRequired
	}
	cred, err := s.provider.GenerateUploadToken(ctx, objectKey, expires, opts)
	if err != nil {
		return UploadCredential{}, fmt.Errorf("generate upload token: %w", err)
	}
	logger.Ctx(ctx).Debug().
		Str("object_key", objectKey).
		Str("strategy", string(cred.Strategy)).
		Msg("storage: upload credential issued")
	return cred, nil
}

func (s *Service) PublicURL(objectKey string) (string, error) {
	return s.provider.PublicURL(objectKey)
}

func (s *Service) PrivateDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	if strings.TrimSpace(objectKey) == "" {
		return "", ErrObjectKeyRequired
	}
	return s.provider.PrivateDownloadURL(ctx, objectKey, expires)
}

func (s *Service) FileExists(ctx context.Context, objectKey string) (bool, error) {
	if strings.TrimSpace(objectKey) == "" {
		return false, ErrObjectKeyRequired
	}
	return s.provider.FileExists(ctx, objectKey)
}

func (s *Service) DeleteFile(ctx context.Context, objectKey string) error {
	if strings.TrimSpace(objectKey) == "" {
		return ErrObjectKeyRequired
	}
	return s.provider.DeleteFile(ctx, objectKey)
}

func (s *Service) DeleteFiles(ctx context.Context, objectKeys []string) error {
	if len(objectKeys) == 0 {
		return nil
	}
	return s.provider.DeleteFiles(ctx, objectKeys)
}

func (s *Service) CreateMultipartUpload(ctx context.Context, objectKey string, contentType string) (string, error) {
	if strings.TrimSpace(objectKey) == "" {
		return "", ErrObjectKeyRequired
	}
	return s.provider.CreateMultipartUpload(ctx, objectKey, contentType)
}

func (s *Service) SignUploadPart(ctx context.Context, objectKey string, uploadID string, partNumber int, expires time.Duration) (string, error) {
	if err := requireSession(objectKey, uploadID); err != nil {
		return "", err
	}
	return s.provider.SignUploadPart(ctx, objectKey, uploadID, partNumber, expires)
}

func (s *Service) ListUploadedParts(ctx context.Context, objectKey string, uploadID string) ([]CompletedPart, error) {
	if err := requireSession(objectKey, uploadID); err != nil {
		return nil, err
	}
	return s.provider.ListUploadedParts(ctx, objectKey, uploadID)
}

func (s *Service) CompleteMultipartUpload(ctx context.Context, objectKey string, uploadID string, parts []CompletedPart) error {
	if err := requireSession(objectKey, uploadID); err != nil {
		return err
	}
	return s.provider.CompleteMultipartUpload(ctx, objectKey, uploadID, parts)
}

func (s *Service) AbortMultipartUpload(ctx context.Context, objectKey string, uploadID string) error {
	if err := requireSession(objectKey, uploadID); err != nil {
		return err
	}
	return s.provider.AbortMultipartUpload(ctx, objectKey, uploadID)
}

func (s *Service) ListMultipartUploads(ctx context.Context) ([]IncompleteUpload, error) {
	return s.provider.ListMultipartUploads(ctx)
}

func requireSession(objectKey, uploadID string) error {
	if strings.TrimSpace(objectKey) == "" {
		return ErrObjectKeyRequired
	}
	if strings.TrimSpace(uploadID) == "" {
		return ErrUploadIDRequired
	}
	return nil
}
