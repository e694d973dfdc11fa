package models

import (
	"time"

	"gorm.io/datatypes"
)

// CleanupRun 一次手动或定时清理的执行记录
// Details 保存每个会话的处理结果 JSON 数组
type CleanupRun struct {
	ID               string         `gorm:"type:char(36);primaryKey" json:"id"`
	Trigger          string         `gorm:"size:32;index;not null" json:"trigger"`
	ThresholdSeconds int64          `gorm:"not null" json:"threshold_seconds"`
	Total            int            `gorm:"not null" json:"total"`
	Cleaned          int            `gorm:"not null" json:"cleaned"`
	Failed           int            `gorm:"not null" json:"failed"`
	Error            *string        `gorm:"type:text" json:"error,omitempty"`
	Details          datatypes.JSON `gorm:"type:json" json:"details"`
	StartedAt        time.Time      `gorm:"index;not null" json:"started_at"`
	FinishedAt       time.Time      `gorm:"not null" json:"finished_at"`
}

func (CleanupRun) TableName() string {
	return "cleanup_runs"
}
