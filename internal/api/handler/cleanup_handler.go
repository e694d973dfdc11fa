package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"assetpipe/internal/logger"
	"assetpipe/internal/service/cleanup"
)

type CleanupHandler struct {
	engine     *cleanup.Engine
	automation *cleanup.Automation
	// baseCtx 定时循环的生命周期跟随进程而不是请求
	baseCtx context.Context
}

func NewCleanupHandler(baseCtx context.Context, engine *cleanup.Engine, automation *cleanup.Automation) *CleanupHandler {
	return &CleanupHandler{engine: engine, automation: automation, baseCtx: baseCtx}
}

type cleanupRequest struct {
	OlderThanSeconds int64 `json:"older_than_seconds"`
}

type automationView struct {
	CleanupEnabled          bool         `json:"cleanup_enabled"`
	CleanupThresholdSeconds int64        `json:"cleanup_threshold_seconds"`
	AbortEnabled            bool         `json:"abort_enabled"`
	AbortThresholdSeconds   int64        `json:"abort_threshold_seconds"`
	IntervalMinutes         int64        `json:"interval_minutes"`
	IsRunning               bool         `json:"is_running"`
	LastRun                 *cleanup.Run `json:"last_run,omitempty"`
	NextRunAt               *time.Time   `json:"next_run_at,omitempty"`
}

type automationRequest struct {
	CleanupEnabled          bool  `json:"cleanup_enabled"`
	CleanupThresholdSeconds int64 `json:"cleanup_threshold_seconds"`
	AbortEnabled            bool  `json:"abort_enabled"`
	AbortThresholdSeconds   int64 `json:"abort_threshold_seconds"`
	IntervalMinutes         int64 `json:"interval_minutes"`
}

func (r automationRequest) toConfig() cleanup.Config {
	return cleanup.Config{
		CleanupEnabled:   r.CleanupEnabled,
		CleanupThreshold: time.Duration(r.CleanupThresholdSeconds) * time.Second,
		AbortEnabled:     r.AbortEnabled,
		AbortThreshold:   time.Duration(r.AbortThresholdSeconds) * time.Second,
		Interval:         time.Duration(r.IntervalMinutes) * time.Minute,
	}
}

func viewOf(st cleanup.Status) automationView {
	return automationView{
		CleanupEnabled:          st.CleanupEnabled,
		CleanupThresholdSeconds: int64(st.CleanupThreshold / time.Second),
		AbortEnabled:            st.AbortEnabled,
		AbortThresholdSeconds:   int64(st.AbortThreshold / time.Second),
		IntervalMinutes:         int64(st.Interval / time.Minute),
		IsRunning:               st.IsRunning,
		LastRun:                 st.LastRun,
		NextRunAt:               st.NextRunAt,
	}
}

// ListIncomplete ?older_than_seconds= 过滤，?group=directory 按目录分组
func (h *CleanupHandler) ListIncomplete(c *gin.Context) {
	olderThan, ok := secondsQuery(c, "older_than_seconds")
	if !ok {
		return
	}
	uploads, err := h.engine.ListIncomplete(c.Request.Context(), olderThan)
	if err != nil {
		logger.Ctx(c.Request.Context()).Error().Err(err).Msg("cleanup: list incomplete uploads")
		c.JSON(http.StatusBadGateway, gin.H{"error": "查询未完成上传失败", "code": "backend_unavailable"})
		return
	}
	if c.Query("group") == "directory" {
		c.JSON(http.StatusOK, gin.H{"total": len(uploads), "groups": cleanup.GroupByDirectory(uploads)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": len(uploads), "uploads": uploads})
}

// Cleanup 手动清理，部分失败也返回 200，由 details 说明
func (h *CleanupHandler) Cleanup(c *gin.Context) {
	var req cleanupRequest
	// 空请求体（含 chunked 编码）按不限阈值处理
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误", "code": "invalid_request"})
		return
	}
	if req.OlderThanSeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "阈值不能为负", "code": "invalid_request"})
		return
	}
	res, err := h.engine.Cleanup(c.Request.Context(), time.Duration(req.OlderThanSeconds)*time.Second)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "清理失败", "code": "backend_unavailable"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *CleanupHandler) History(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit 参数错误", "code": "invalid_request"})
			return
		}
		limit = n
	}
	runs, err := h.engine.Recorder().List(c.Request.Context(), limit)
	if err != nil {
		logger.Ctx(c.Request.Context()).Error().Err(err).Msg("cleanup: list history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询清理记录失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *CleanupHandler) GetAutomation(c *gin.Context) {
	c.JSON(http.StatusOK, viewOf(h.automation.Status()))
}

func (h *CleanupHandler) UpdateAutomation(c *gin.Context) {
	var req automationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误", "code": "invalid_request"})
		return
	}
	if err := h.automation.Update(req.toConfig()); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "自动清理配置无效", "code": "invalid_automation_config"})
		return
	}
	c.JSON(http.StatusOK, viewOf(h.automation.Status()))
}

func (h *CleanupHandler) StartAutomation(c *gin.Context) {
	err := h.automation.Start(h.baseCtx)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, viewOf(h.automation.Status()))
	case errors.Is(err, cleanup.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "自动清理已在运行", "code": "automation_already_running"})
	case errors.Is(err, cleanup.ErrNoRuleEnabled):
		c.JSON(http.StatusBadRequest, gin.H{"error": "没有启用任何清理规则", "code": "no_rule_enabled"})
	case errors.Is(err, cleanup.ErrInvalidConfig):
		c.JSON(http.StatusBadRequest, gin.H{"error": "自动清理配置无效", "code": "invalid_automation_config"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "启动自动清理失败"})
	}
}

func (h *CleanupHandler) StopAutomation(c *gin.Context) {
	h.automation.Stop()
	c.JSON(http.StatusOK, viewOf(h.automation.Status()))
}

func secondsQuery(c *gin.Context, name string) (time.Duration, bool) {
	v := c.Query(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " 参数错误", "code": "invalid_request"})
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
