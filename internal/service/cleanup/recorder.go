package cleanup

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"assetpipe/internal/models"
)

const DefaultHistorySize = 100

// Recorder 保存清理执行历史
type Recorder interface {
	Record(ctx context.Context, run Run) error
	List(ctx context.Context, limit int) ([]Run, error)
}

// MemoryRecorder 未配置数据库时使用，只保留最近 size 条
type MemoryRecorder struct {
	mu   sync.Mutex
	size int
	runs []Run
}

func NewMemoryRecorder(size int) *MemoryRecorder {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &MemoryRecorder{size: size}
}

func (m *MemoryRecorder) Record(ctx context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	if over := len(m.runs) - m.size; over > 0 {
		m.runs = append([]Run(nil), m.runs[over:]...)
	}
	return nil
}

// List 最新的在前
func (m *MemoryRecorder) List(ctx context.Context, limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.runs)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Run, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

type GormRecorder struct {
	db *gorm.DB
}

func NewGormRecorder(db *gorm.DB) *GormRecorder {
	return &GormRecorder{db: db}
}

func (g *GormRecorder) Record(ctx context.Context, run Run) error {
	details, err := json.Marshal(run.Result.Details)
	if err != nil {
		return err
	}
	row := models.CleanupRun{
		ID:               run.ID,
		Trigger:          string(run.Trigger),
		ThresholdSeconds: run.ThresholdSeconds,
		Total:            run.Result.Total,
		Cleaned:          run.Result.Cleaned,
		Failed:           run.Result.Failed,
		Details:          datatypes.JSON(details),
		StartedAt:        run.StartedAt,
		FinishedAt:       run.FinishedAt,
	}
	if run.Error != "" {
		msg := run.Error
		row.Error = &msg
	}
	return g.db.WithContext(ctx).Create(&row).Error
}

func (g *GormRecorder) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	var rows []models.CleanupRun
	if err := g.db.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(rows))
	for _, r := range rows {
		run := Run{
			ID:               r.ID,
			Trigger:          Trigger(r.Trigger),
			Threshold:        time.Duration(r.ThresholdSeconds) * time.Second,
			ThresholdSeconds: r.ThresholdSeconds,
			StartedAt:        r.StartedAt,
			FinishedAt:       r.FinishedAt,
			Result:           Result{Total: r.Total, Cleaned: r.Cleaned, Failed: r.Failed},
		}
		if r.Error != nil {
			run.Error = *r.Error
		}
		if len(r.Details) > 0 {
			if err := json.Unmarshal(r.Details, &run.Result.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, run)
	}
	return out, nil
}
