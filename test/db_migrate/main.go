package main

import (
	"context"
	"time"

	"github.com/google/uuid"

	"assetpipe/internal/config"
	"assetpipe/internal/logger"
	"assetpipe/internal/models"
	database "assetpipe/internal/server/db"
	"assetpipe/internal/service/cleanup"
)

// 建表后写入并读回一条清理记录，验证 cleanup_runs 表结构
func main() {
	cfg, err := config.LoadDefault()
	if err != nil {
		logger.Fatal().Err(err).Msg("读取配置失败")
	}
	if !cfg.Database.Enabled() {
		logger.Fatal().Msg("未配置 database.driver")
	}

	db, err := database.OpenGorm(cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("数据库连接失败")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("数据库迁移失败")
	}
	logger.Info().Msg("迁移完成")

	ctx := context.Background()
	rec := cleanup.NewGormRecorder(db)
	now := time.Now()
	run := cleanup.Run{
		ID:               uuid.NewString(),
		Trigger:          cleanup.TriggerManual,
		ThresholdSeconds: 0,
		StartedAt:        now,
		FinishedAt:       now,
		Result:           cleanup.Result{Details: []cleanup.Detail{}},
	}
	if err := rec.Record(ctx, run); err != nil {
		logger.Fatal().Err(err).Msg("写入测试记录失败")
	}
	runs, err := rec.List(ctx, 1)
	if err != nil || len(runs) == 0 {
		logger.Fatal().Err(err).Msg("读取测试记录失败")
	}
	if err := db.Delete(&models.CleanupRun{}, "id = ?", run.ID).Error; err != nil {
		logger.Warn().Err(err).Msg("删除测试记录失败")
	}
	logger.Info().Str("id", runs[0].ID).Msg("读写校验通过")
}
