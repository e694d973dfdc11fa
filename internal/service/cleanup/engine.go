package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"assetpipe/internal/logger"
	"assetpipe/internal/server/metrics"
	"assetpipe/internal/server/storage"
)

// Trigger 标识一次清理由谁发起
type Trigger string

const (
	TriggerManual      Trigger = "manual"
	TriggerCleanupRule Trigger = "cleanup_rule"
	TriggerAbortRule   Trigger = "abort_rule"
)

// EventRunFinished 推送给运维端的事件类型
const EventRunFinished = "cleanup.run_finished"

// Storage 清理只需要列出和中止分片会话
type Storage interface {
	ListMultipartUploads(ctx context.Context) ([]storage.IncompleteUpload, error)
	AbortMultipartUpload(ctx context.Context, objectKey string, uploadID string) error
}

// Notifier 接收每次执行的结果，hub.Hub 满足该接口
type Notifier interface {
	Publish(eventType string, payload any)
}

type Detail struct {
	ObjectKey string `json:"object_key"`
	UploadID  string `json:"upload_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Result 部分失败不是错误，调用方通过 Details 判断哪些会话仍需处理
type Result struct {
	Cleaned int      `json:"cleaned"`
	Failed  int      `json:"failed"`
	Total   int      `json:"total"`
	Details []Detail `json:"details"`
}

type Run struct {
	ID        string        `json:"id"`
	Trigger   Trigger       `json:"trigger"`
	Threshold time.Duration `json:"-"`
	// ThresholdSeconds 为 0 表示不按时间过滤
	ThresholdSeconds int64     `json:"threshold_seconds"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Result           Result    `json:"result"`
	Error            string    `json:"error,omitempty"`
}

type Engine struct {
	storage  Storage
	recorder Recorder
	notifier Notifier
	now      func() time.Time
}

type EngineOption func(*Engine)

func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Storage, opts ...EngineOption) *Engine {
	e := &Engine{storage: store, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	if e.recorder == nil {
		e.recorder = NewMemoryRecorder(DefaultHistorySize)
	}
	return e
}

func (e *Engine) Recorder() Recorder {
	return e.recorder
}

// ListIncomplete 列出所有未完成会话；olderThan > 0 时只保留发起时间早于 now-olderThan 的
func (e *Engine) ListIncomplete(ctx context.Context, olderThan time.Duration) ([]storage.IncompleteUpload, error) {
	all, err := e.storage.ListMultipartUploads(ctx)
	if err != nil {
		return nil, err
	}
	if olderThan <= 0 {
		return all, nil
	}
	cutoff := e.now().Add(-olderThan)
	out := make([]storage.IncompleteUpload, 0, len(all))
	for _, u := range all {
		if u.InitiatedAt.Before(cutoff) {
			out = append(out, u)
		}
	}
	return out, nil
}

// Cleanup 手动触发的清理
func (e *Engine) Cleanup(ctx context.Context, olderThan time.Duration) (Result, error) {
	run, err := e.run(ctx, olderThan, TriggerManual)
	return run.Result, err
}

// run 逐个中止会话，单个失败不影响其余会话
func (e *Engine) run(ctx context.Context, olderThan time.Duration, trigger Trigger) (Run, error) {
	run := Run{
		ID:               uuid.NewString(),
		Trigger:          trigger,
		Threshold:        olderThan,
		ThresholdSeconds: int64(olderThan / time.Second),
		StartedAt:        e.now(),
	}
	timer := time.Now()
	defer func() {
		metrics.CleanupRunDuration.WithLabelValues(string(trigger)).Observe(time.Since(timer).Seconds())
	}()

	uploads, err := e.ListIncomplete(ctx, olderThan)
	if err != nil {
		run.FinishedAt = e.now()
		run.Error = err.Error()
		e.finish(ctx, run)
		return run, err
	}

	res := Result{Total: len(uploads), Details: make([]Detail, 0, len(uploads))}
	for _, u := range uploads {
		d := Detail{ObjectKey: u.ObjectKey, UploadID: u.UploadID}
		err := ctx.Err()
		if err == nil {
			err = e.storage.AbortMultipartUpload(ctx, u.ObjectKey, u.UploadID)
		}
		// 其他实例可能已中止该会话
		if errors.Is(err, storage.ErrUploadNotFound) {
			err = nil
		}
		if err != nil {
			d.Error = err.Error()
			res.Failed++
			metrics.CleanupAborts.WithLabelValues(string(trigger), "failed").Inc()
			logger.Ctx(ctx).Warn().Err(err).
				Str("object_key", u.ObjectKey).
				Str("upload_id", u.UploadID).
				Msg("cleanup: abort failed")
		} else {
			d.Success = true
			res.Cleaned++
			metrics.CleanupAborts.WithLabelValues(string(trigger), "success").Inc()
		}
		res.Details = append(res.Details, d)
	}
	run.Result = res
	run.FinishedAt = e.now()

	logger.Ctx(ctx).Info().
		Str("trigger", string(trigger)).
		Dur("threshold", olderThan).
		Int("total", res.Total).
		Int("cleaned", res.Cleaned).
		Int("failed", res.Failed).
		Msg("cleanup: run finished")
	e.finish(ctx, run)
	return run, nil
}

func (e *Engine) finish(ctx context.Context, run Run) {
	if err := e.recorder.Record(ctx, run); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("run_id", run.ID).Msg("cleanup: record run failed")
	}
	if e.notifier != nil {
		e.notifier.Publish(EventRunFinished, run)
	}
}
