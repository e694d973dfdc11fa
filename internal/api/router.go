package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"assetpipe/internal/api/handler"
	"assetpipe/internal/config"
	"assetpipe/internal/middleware"
	"assetpipe/internal/server/hub"
	"assetpipe/internal/service/cleanup"
	"assetpipe/internal/service/multipart"
	"assetpipe/internal/service/upload"
)

// Deps 路由依赖的服务
type Deps struct {
	BaseCtx    context.Context
	Auth       config.AuthSettings
	Uploads    *upload.Service
	Multipart  *multipart.Manager
	Cleanup    *cleanup.Engine
	Automation *cleanup.Automation
	Hub        *hub.Hub
	Gatherer   prometheus.Gatherer
}

// SetupRouter 初始化 Gin 路由
func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	uploads := r.Group("/api/uploads")

	// 浏览器 WebSocket 只能通过 ?token= 传令牌
	if d.Hub != nil {
		wsHandler := handler.NewWsHandler(d.Hub)
		uploads.GET("/ws", middleware.JWTAuthFromHeaderOrQuery(d.Auth), wsHandler.Handle)
	}

	authed := uploads.Group("", middleware.JWTAuth(d.Auth))

	uploadHandler := handler.NewUploadHandler(d.Uploads)
	authed.POST("/sign", uploadHandler.Sign)
	authed.POST("/confirm", uploadHandler.Confirm)
	authed.GET("/download-url", uploadHandler.DownloadURL)

	if d.Multipart != nil {
		mp := handler.NewMultipartHandler(d.Uploads, d.Multipart)
		authed.POST("/multipart", mp.Create)
		authed.POST("/multipart/sign-part", mp.SignPart)
		authed.GET("/multipart/parts", mp.ListParts)
		authed.POST("/multipart/complete", mp.Complete)
		authed.POST("/multipart/abort", mp.Abort)
	}

	if d.Cleanup != nil && d.Automation != nil {
		baseCtx := d.BaseCtx
		if baseCtx == nil {
			baseCtx = context.Background()
		}
		ch := handler.NewCleanupHandler(baseCtx, d.Cleanup, d.Automation)
		authed.GET("/incomplete", ch.ListIncomplete)
		authed.POST("/cleanup", ch.Cleanup)
		authed.GET("/cleanup/history", ch.History)
		authed.GET("/automation", ch.GetAutomation)
		authed.PUT("/automation", ch.UpdateAutomation)
		authed.POST("/automation/start", ch.StartAutomation)
		authed.POST("/automation/stop", ch.StopAutomation)
	}

	return r
}
