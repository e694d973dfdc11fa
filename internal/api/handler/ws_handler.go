package handler

import (
	"github.com/gin-gonic/gin"

	"assetpipe/internal/logger"
	"assetpipe/internal/server/hub"
)

type WsHandler struct {
	hub *hub.Hub
}

func NewWsHandler(h *hub.Hub) *WsHandler {
	return &WsHandler{hub: h}
}

// Handle 运维页面订阅清理执行结果
func (h *WsHandler) Handle(c *gin.Context) {
	if err := h.hub.ServeWS(c.Writer, c.Request, c.GetString("user_id")); err != nil {
		logger.Ctx(c.Request.Context()).Debug().Err(err).Msg("ws: upgrade failed")
	}
}
