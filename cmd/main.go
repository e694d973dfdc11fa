package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"assetpipe/internal/api"
	"assetpipe/internal/config"
	"assetpipe/internal/logger"
	database "assetpipe/internal/server/db"
	"assetpipe/internal/server/events"
	"assetpipe/internal/server/hub"
	"assetpipe/internal/server/metrics"
	"assetpipe/internal/server/storage"
	"assetpipe/internal/service/cleanup"
	"assetpipe/internal/service/multipart"
	"assetpipe/internal/service/upload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 加载配置
	cfg, err := config.LoadDefault()
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}
	uploadCfg := cfg.Upload.ToSettings()

	store, err := storage.NewService(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("对象存储初始化失败")
	}

	// 分片大小低于协议下限时拒绝启动
	sessions, err := multipart.NewManager(store, multipart.Config{
		PartSize:   cfg.Multipart.PartSizeOrDefault(),
		PartURLTTL: uploadCfg.PartURLTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("分片上传配置无效")
	}

	publisher, err := events.NewPublisher(cfg.Broker)
	if err != nil {
		logger.Fatal().Err(err).Msg("消息队列连接失败")
	}
	defer publisher.Close()

	uploads := upload.NewService(store, upload.Options{
		Sessions:    sessions,
		Publisher:   publisher,
		TokenTTL:    uploadCfg.TokenTTL,
		DownloadTTL: uploadCfg.DownloadURLTTL,
	})

	var recorder cleanup.Recorder = cleanup.NewMemoryRecorder(cleanup.DefaultHistorySize)
	if cfg.Database.Enabled() {
		db, err := database.OpenGorm(cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("数据库连接失败")
		}
		if sqlDB, err := db.DB(); err != nil {
			logger.Fatal().Err(err).Msg("获取底层连接失败")
		} else if err := sqlDB.PingContext(ctx); err != nil {
			logger.Fatal().Err(err).Msg("数据库不可用")
		}
		logger.Info().Msg("正在检查并迁移数据库结构...")
		if err := database.Migrate(db); err != nil {
			logger.Fatal().Err(err).Msg("数据库迁移失败")
		}
		recorder = cleanup.NewGormRecorder(db)
	}

	wsHub := hub.New()
	go wsHub.Run(ctx)

	// 经由会话管理器清理, 本地状态随之标记为 aborted
	engine := cleanup.NewEngine(sessions, cleanup.WithRecorder(recorder), cleanup.WithNotifier(wsHub))

	var locker cleanup.Locker = &cleanup.LocalLocker{}
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.PasswordOrEnv(),
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis 不可用")
		}
		locker = cleanup.NewRedisLocker(rdb, cfg.Redis.LockKeyOrDefault(), cfg.Redis.LockTTLOrDefault())
	}

	autoCfg := cfg.Automation.ToSettings()
	automation := cleanup.NewAutomation(engine, locker, cleanup.ConfigFromSettings(autoCfg))
	if autoCfg.AutoStart {
		if err := automation.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("自动清理未启动")
		}
	}
	defer automation.Stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	r := api.SetupRouter(api.Deps{
		BaseCtx:    ctx,
		Auth:       cfg.Auth.ToSettings(),
		Uploads:    uploads,
		Multipart:  sessions,
		Cleanup:    engine,
		Automation: automation,
		Hub:        wsHub,
		Gatherer:   reg,
	})

	srv := &http.Server{
		Addr:              cfg.Server.AddrOrDefault(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("provider", store.Provider()).Msg("HTTP 服务器已启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP 服务启动失败")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("正在关闭服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP 服务关闭失败")
	}
}
