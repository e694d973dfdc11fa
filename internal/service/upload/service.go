package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"assetpipe/internal/logger"
	"assetpipe/internal/server/events"
	"assetpipe/internal/server/metrics"
	"assetpipe/internal/server/storage"
	"assetpipe/internal/service/multipart"
)

// Storage 上传服务依赖的存储能力，*storage.Service 满足该接口
type Storage interface {
	GenerateUploadToken(ctx context.Context, objectKey string, expires time.Duration, opts storage.UploadOptions) (storage.UploadCredential, error)
	PublicURL(objectKey string) (string, error)
	PrivateDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)
	FileExists(ctx context.Context, objectKey string) (bool, error)
}

// SessionCreator 大文件走分片上传时使用
type SessionCreator interface {
	Create(ctx context.Context, objectKey string, contentType string) (multipart.Session, error)
}

type ConfirmRequest struct {
	Purpose     Purpose `json:"purpose"`
	ObjectKey   string  `json:"object_key"`
	Filename    string  `json:"filename"`
	Size        int64   `json:"size"`
	ContentType string  `json:"content_type"`
	ContextID   string  `json:"context_id,omitempty"`
	UploadedBy  string  `json:"-"`
}

type ConfirmResult struct {
	ID        string            `json:"id"`
	ObjectKey string            `json:"object_key"`
	AccessURL string            `json:"access_url"`
	Variants  map[string]string `json:"variants,omitempty"`
}

type Service struct {
	planner     *Planner
	storage     Storage
	sessions    SessionCreator
	publisher   events.Publisher
	tokenTTL    time.Duration
	downloadTTL time.Duration
}

type Options struct {
	Planner     *Planner
	Sessions    SessionCreator
	Publisher   events.Publisher
	TokenTTL    time.Duration
	DownloadTTL time.Duration
}

func NewService(store Storage, opts Options) *Service {
	if opts.Planner == nil {
		opts.Planner = NewPlanner()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.DownloadTTL <= 0 {
		opts.DownloadTTL = 15 * time.Minute
	}
	return &Service{
		planner:     opts.Planner,
		storage:     store,
		sessions:    opts.Sessions,
		publisher:   opts.Publisher,
		tokenTTL:    opts.TokenTTL,
		downloadTTL: opts.DownloadTTL,
	}
}

// Plan 只做校验与命名；失败时记录拒绝原因
func (s *Service) Plan(req SignRequest) (Plan, error) {
	plan, err := s.planner.Plan(req)
	if err != nil {
		metrics.UploadRejections.WithLabelValues(string(req.Purpose), rejectionReason(err)).Inc()
		return Plan{}, err
	}
	return plan, nil
}

// Sign 校验通过后才向存储申请凭证
func (s *Service) Sign(ctx context.Context, req SignRequest) (storage.UploadCredential, error) {
	plan, err := s.Plan(req)
	if err != nil {
		return storage.UploadCredential{}, err
	}
	cred, err := s.storage.GenerateUploadToken(ctx, plan.ObjectKey, s.tokenTTL, storage.UploadOptions{
		ContentType: plan.ContentType,
		MaxSize:     plan.MaxBytes,
	})
	if err != nil {
		return storage.UploadCredential{}, err
	}
	metrics.CredentialsIssued.WithLabelValues(string(plan.Purpose), string(cred.Strategy)).Inc()
	logger.Ctx(ctx).Info().
		Str("purpose", string(plan.Purpose)).
		Str("object_key", plan.ObjectKey).
		Int64("size", req.Size).
		Msg("upload: credential issued")
	return cred, nil
}

// CreateMultipart 与 Sign 相同的校验与命名，然后开启分片会话
func (s *Service) CreateMultipart(ctx context.Context, req SignRequest) (multipart.Session, error) {
	if s.sessions == nil {
		return multipart.Session{}, ErrMultipartUnavailable
	}
	plan, err := s.Plan(req)
	if err != nil {
		return multipart.Session{}, err
	}
	return s.sessions.Create(ctx, plan.ObjectKey, plan.ContentType)
}

// Confirm 必须在存储中确实存在对象，防止客户端跳过实际上传
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (ConfirmResult, error) {
	key := strings.TrimSpace(req.ObjectKey)
	if _, ok := LookupPolicy(req.Purpose); !ok {
		return ConfirmResult{}, fmt.Errorf("%w: %q", ErrUnknownPurpose, req.Purpose)
	}
	if !OwnsKey(req.Purpose, req.ContextID, key) {
		return ConfirmResult{}, fmt.Errorf("%w: %s", ErrKeyMismatch, key)
	}
	exists, err := s.storage.FileExists(ctx, key)
	if err != nil {
		return ConfirmResult{}, err
	}
	if !exists {
		metrics.UploadsConfirmed.WithLabelValues(string(req.Purpose), "not_found").Inc()
		return ConfirmResult{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	accessURL, err := s.storage.PublicURL(key)
	if errors.Is(err, storage.ErrNoPublicDomain) {
		accessURL, err = s.storage.PrivateDownloadURL(ctx, key, s.downloadTTL)
	}
	if err != nil {
		return ConfirmResult{}, err
	}

	res := ConfirmResult{
		ID:        uuid.NewString(),
		ObjectKey: key,
		AccessURL: accessURL,
		Variants:  map[string]string{"original": accessURL},
	}
	evt := events.AssetUploaded{
		ID:          res.ID,
		Purpose:     string(req.Purpose),
		ObjectKey:   key,
		ContextID:   req.ContextID,
		FileName:    req.Filename,
		SizeBytes:   req.Size,
		ContentType: normalizeContentType(req.ContentType),
		UploadedBy:  req.UploadedBy,
		UploadedAt:  time.Now().UTC(),
	}
	if err := s.publisher.PublishAssetUploaded(ctx, evt); err != nil {
		// 下游处理失败不影响上传本身，靠对账补偿
		logger.Ctx(ctx).Warn().Err(err).Str("object_key", key).Msg("upload: publish asset.uploaded failed")
	}
	metrics.UploadsConfirmed.WithLabelValues(string(req.Purpose), "success").Inc()
	return res, nil
}

func (s *Service) DownloadURL(ctx context.Context, objectKey string) (string, error) {
	return s.storage.PrivateDownloadURL(ctx, objectKey, s.downloadTTL)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidContentType):
		return "invalid_content_type"
	case errors.Is(err, ErrFileTooLarge):
		return "file_too_large"
	case errors.Is(err, ErrMissingContext):
		return "missing_context"
	case errors.Is(err, ErrEmptyFile):
		return "empty_file"
	case errors.Is(err, ErrUnknownPurpose):
		return "unknown_purpose"
	default:
		return "invalid_request"
	}
}
