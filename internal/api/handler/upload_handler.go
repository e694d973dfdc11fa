package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"assetpipe/internal/logger"
	"assetpipe/internal/server/storage"
	"assetpipe/internal/service/multipart"
	"assetpipe/internal/service/upload"
)

type UploadHandler struct {
	svc *upload.Service
}

func NewUploadHandler(svc *upload.Service) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// Sign 校验文件并签发直传凭证
func (h *UploadHandler) Sign(c *gin.Context) {
	var req upload.SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误", "code": "invalid_request"})
		return
	}
	cred, err := h.svc.Sign(c.Request.Context(), req)
	if err != nil {
		writeUploadError(c, err, "签发上传凭证失败")
		return
	}
	c.JSON(http.StatusOK, cred)
}

// Confirm 客户端直传完成后调用，对象必须已存在
func (h *UploadHandler) Confirm(c *gin.Context) {
	var req upload.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误", "code": "invalid_request"})
		return
	}
	req.UploadedBy = c.GetString("user_id")
	res, err := h.svc.Confirm(c.Request.Context(), req)
	if err != nil {
		writeUploadError(c, err, "确认上传失败")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *UploadHandler) DownloadURL(c *gin.Context) {
	key := strings.TrimSpace(c.Query("object_key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 object_key", "code": "object_key_required"})
		return
	}
	u, err := h.svc.DownloadURL(c.Request.Context(), key)
	if err != nil {
		writeUploadError(c, err, "生成临时链接失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": u})
}

// writeUploadError 校验类错误 4xx，其余视为存储后端故障
func writeUploadError(c *gin.Context, err error, fallback string) {
	var tooLarge *upload.TooLargeError
	switch {
	case errors.As(err, &tooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "文件过大",
			"code":  "file_too_large",
			"size":  tooLarge.Size,
			"limit": tooLarge.Limit,
		})
	case errors.Is(err, upload.ErrUnknownPurpose):
		c.JSON(http.StatusBadRequest, gin.H{"error": "未知的上传用途", "code": "unknown_purpose"})
	case errors.Is(err, upload.ErrInvalidContentType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "不支持的文件类型", "code": "invalid_content_type"})
	case errors.Is(err, upload.ErrMissingContext):
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少项目或账号标识", "code": "missing_context"})
	case errors.Is(err, upload.ErrEmptyFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": "文件为空", "code": "empty_file"})
	case errors.Is(err, upload.ErrFilenameRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少文件名", "code": "filename_required"})
	case errors.Is(err, upload.ErrKeyMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "对象 key 与用途不匹配", "code": "object_key_mismatch"})
	case errors.Is(err, storage.ErrObjectKeyRequired), errors.Is(err, storage.ErrUploadIDRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少会话参数", "code": "invalid_request"})
	case errors.Is(err, multipart.ErrInvalidPartNumber), errors.Is(err, multipart.ErrNoParts):
		c.JSON(http.StatusBadRequest, gin.H{"error": "分片参数错误", "code": "invalid_part"})
	case errors.Is(err, upload.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "文件尚未上传", "code": "not_found"})
	case errors.Is(err, multipart.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "分片会话不存在", "code": "session_not_found"})
	case errors.Is(err, multipart.ErrSessionClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "分片会话已结束", "code": "session_closed"})
	case errors.Is(err, upload.ErrMultipartUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "分片上传未启用", "code": "multipart_unavailable"})
	default:
		logger.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("upload: backend error")
		c.JSON(http.StatusBadGateway, gin.H{"error": fallback, "code": "backend_unavailable"})
	}
}
