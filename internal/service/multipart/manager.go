package multipart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"assetpipe/internal/logger"
	"assetpipe/internal/server/metrics"
	"assetpipe/internal/server/storage"
)

var ErrPartSizeTooSmall = errors.New("part_size_too_small")
var ErrInvalidPartNumber = errors.New("invalid_part_number")
var ErrNoParts = errors.New("no_parts")
var ErrSessionClosed = errors.New("session_closed")
var ErrSessionNotFound = errors.New("session_not_found")

// terminalRetention 本地记住已结束会话的时长
const terminalRetention = 24 * time.Hour

// DefaultOpenRetention 未结束的会话超过该时长没有任何操作就不再跟踪，交给后端判断
const DefaultOpenRetention = 7 * 24 * time.Hour

const pruneEvery = time.Minute

type State string

const (
	StateCreated        State = "created"
	StatePartsUploading State = "parts_uploading"
	StateCompleted      State = "completed"
	StateAborted        State = "aborted"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Storage 分片会话需要的存储能力
type Storage interface {
	CreateMultipartUpload(ctx context.Context, objectKey string, contentType string) (string, error)
	SignUploadPart(ctx context.Context, objectKey string, uploadID string, partNumber int, expires time.Duration) (string, error)
	ListUploadedParts(ctx context.Context, objectKey string, uploadID string) ([]storage.CompletedPart, error)
	CompleteMultipartUpload(ctx context.Context, objectKey string, uploadID string, parts []storage.CompletedPart) error
	AbortMultipartUpload(ctx context.Context, objectKey string, uploadID string) error
	ListMultipartUploads(ctx context.Context) ([]storage.IncompleteUpload, error)
}

type Session struct {
	ObjectKey string    `json:"object_key"`
	UploadID  string    `json:"upload_id"`
	PartSize  int64     `json:"part_size"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

type PartURL struct {
	PartNumber int    `json:"part_number"`
	URL        string `json:"url"`
	ExpiresIn  int64  `json:"expires_in"`
}

type Config struct {
	PartSize   int64
	PartURLTTL time.Duration
	// OpenRetention 未结束会话的本地记录保留时长
	OpenRetention time.Duration
	Now           func() time.Time
}

type tracked struct {
	state     State
	updatedAt time.Time
}

type Manager struct {
	storage  Storage
	partSize int64
	urlTTL   time.Duration
	openTTL  time.Duration
	now      func() time.Time

	mu        sync.Mutex
	sessions  map[string]*tracked
	lastPrune time.Time
}

func NewManager(store Storage, cfg Config) (*Manager, error) {
	if cfg.PartSize < storage.MinPartSize {
		return nil, fmt.Errorf("%w: %d < %d", ErrPartSizeTooSmall, cfg.PartSize, storage.MinPartSize)
	}
	if cfg.PartURLTTL <= 0 {
		cfg.PartURLTTL = 15 * time.Minute
	}
	if cfg.OpenRetention <= 0 {
		cfg.OpenRetention = DefaultOpenRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		storage:  store,
		partSize: cfg.PartSize,
		urlTTL:   cfg.PartURLTTL,
		openTTL:  cfg.OpenRetention,
		now:      cfg.Now,
		sessions: map[string]*tracked{},
	}, nil
}

func (m *Manager) PartSize() int64 {
	return m.partSize
}

func (m *Manager) Create(ctx context.Context, objectKey string, contentType string) (Session, error) {
	if strings.TrimSpace(objectKey) == "" {
		return Session{}, storage.ErrObjectKeyRequired
	}
	uploadID, err := m.storage.CreateMultipartUpload(ctx, objectKey, contentType)
	if err != nil {
		return Session{}, fmt.Errorf("create multipart upload: %w", err)
	}
	now := m.now()
	m.mu.Lock()
	m.pruneLocked(now)
	m.sessions[uploadID] = &tracked{state: StateCreated, updatedAt: now}
	m.mu.Unlock()
	metrics.MultipartSessions.WithLabelValues("created").Inc()
	logger.Ctx(ctx).Info().Str("object_key", objectKey).Str("upload_id", uploadID).Msg("multipart: session created")
	return Session{
		ObjectKey: objectKey,
		UploadID:  uploadID,
		PartSize:  m.partSize,
		State:     StateCreated,
		CreatedAt: now,
	}, nil
}

// SignPart 为单个分片签发 PUT 地址，分片号从 1 开始
func (m *Manager) SignPart(ctx context.Context, objectKey string, uploadID string, partNumber int) (PartURL, error) {
	if partNumber < 1 {
		return PartURL{}, fmt.Errorf("%w: %d", ErrInvalidPartNumber, partNumber)
	}
	if err := m.checkOpen(uploadID); err != nil {
		return PartURL{}, err
	}
	u, err := m.storage.SignUploadPart(ctx, objectKey, uploadID, partNumber, m.urlTTL)
	if err != nil {
		return PartURL{}, m.mapNotFound(err)
	}
	if st, ok := m.transition(uploadID, StatePartsUploading); !ok {
		return PartURL{}, fmt.Errorf("%w: %s", ErrSessionClosed, st)
	}
	return PartURL{PartNumber: partNumber, URL: u, ExpiresIn: int64(m.urlTTL / time.Second)}, nil
}

func (m *Manager) ListParts(ctx context.Context, objectKey string, uploadID string) ([]storage.CompletedPart, error) {
	if err := m.checkOpen(uploadID); err != nil {
		return nil, err
	}
	parts, err := m.storage.ListUploadedParts(ctx, objectKey, uploadID)
	if err != nil {
		return nil, m.mapNotFound(err)
	}
	return parts, nil
}

// Complete 提交前按分片号升序排序，调用方给出的顺序无关紧要
func (m *Manager) Complete(ctx context.Context, objectKey string, uploadID string, parts []storage.CompletedPart) error {
	if len(parts) == 0 {
		return ErrNoParts
	}
	if err := m.checkOpen(uploadID); err != nil {
		return err
	}
	sorted := make([]storage.CompletedPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PartNumber < sorted[j].PartNumber
	})
	for _, p := range sorted {
		if p.PartNumber < 1 {
			return fmt.Errorf("%w: %d", ErrInvalidPartNumber, p.PartNumber)
		}
	}
	if err := m.storage.CompleteMultipartUpload(ctx, objectKey, uploadID, sorted); err != nil {
		metrics.MultipartSessions.WithLabelValues("complete_failed").Inc()
		return m.mapNotFound(err)
	}
	m.transition(uploadID, StateCompleted)
	metrics.MultipartSessions.WithLabelValues("completed").Inc()
	logger.Ctx(ctx).Info().Str("object_key", objectKey).Str("upload_id", uploadID).Int("parts", len(sorted)).Msg("multipart: session completed")
	return nil
}

// Abort 幂等：重复中止或后端已不存在都视为成功；已完成的会话不能再中止
func (m *Manager) Abort(ctx context.Context, objectKey string, uploadID string) error {
	if st, ok := m.stateOf(uploadID); ok {
		switch st {
		case StateAborted:
			return nil
		case StateCompleted:
			return fmt.Errorf("%w: %s", ErrSessionClosed, st)
		}
	}
	err := m.storage.AbortMultipartUpload(ctx, objectKey, uploadID)
	if errors.Is(err, storage.ErrUploadNotFound) {
		logger.Ctx(ctx).Debug().Str("object_key", objectKey).Str("upload_id", uploadID).Msg("multipart: abort on unknown session")
		err = nil
	}
	if err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	if st, ok := m.transition(uploadID, StateAborted); !ok && st == StateCompleted {
		return fmt.Errorf("%w: %s", ErrSessionClosed, st)
	}
	metrics.MultipartSessions.WithLabelValues("aborted").Inc()
	return nil
}

// ListMultipartUploads 与 AbortMultipartUpload 让清理引擎经过 Manager，
// 被清理的会话在本地同步标记为 aborted
func (m *Manager) ListMultipartUploads(ctx context.Context) ([]storage.IncompleteUpload, error) {
	return m.storage.ListMultipartUploads(ctx)
}

// AbortMultipartUpload 原样返回后端错误，不做幂等处理
func (m *Manager) AbortMultipartUpload(ctx context.Context, objectKey string, uploadID string) error {
	err := m.storage.AbortMultipartUpload(ctx, objectKey, uploadID)
	if err == nil || errors.Is(err, storage.ErrUploadNotFound) {
		m.mu.Lock()
		if t, ok := m.sessions[uploadID]; ok && !t.state.Terminal() {
			t.state = StateAborted
			t.updatedAt = m.now()
		}
		m.mu.Unlock()
	}
	return err
}

// ListIncomplete 桶内所有未完成会话，不限于本实例创建的
func (m *Manager) ListIncomplete(ctx context.Context) ([]storage.IncompleteUpload, error) {
	return m.storage.ListMultipartUploads(ctx)
}

// State 返回本地记录的会话状态
func (m *Manager) State(uploadID string) (State, bool) {
	return m.stateOf(uploadID)
}

func (m *Manager) checkOpen(uploadID string) error {
	if strings.TrimSpace(uploadID) == "" {
		return storage.ErrUploadIDRequired
	}
	if st, ok := m.stateOf(uploadID); ok && st.Terminal() {
		return fmt.Errorf("%w: %s", ErrSessionClosed, st)
	}
	return nil
}

func (m *Manager) mapNotFound(err error) error {
	if errors.Is(err, storage.ErrUploadNotFound) {
		return fmt.Errorf("%w: %w", ErrSessionNotFound, err)
	}
	return err
}

func (m *Manager) stateOf(uploadID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.sessions[uploadID]
	if !ok {
		return "", false
	}
	return t.state, true
}

// transition 已结束的会话不会被改写，返回 false 和当前状态；未跟踪的会话直接记录
func (m *Manager) transition(uploadID string, to State) (State, bool) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(now)
	if t, ok := m.sessions[uploadID]; ok {
		if t.state.Terminal() {
			return t.state, false
		}
		t.state = to
		t.updatedAt = now
		return to, true
	}
	m.sessions[uploadID] = &tracked{state: to, updatedAt: now}
	return to, true
}

// pruneLocked 最多每分钟扫描一次
func (m *Manager) pruneLocked(now time.Time) {
	if now.Sub(m.lastPrune) < pruneEvery {
		return
	}
	m.lastPrune = now
	for id, t := range m.sessions {
		ttl := m.openTTL
		if t.state.Terminal() {
			ttl = terminalRetention
		}
		if now.Sub(t.updatedAt) > ttl {
			delete(m.sessions, id)
		}
	}
}
