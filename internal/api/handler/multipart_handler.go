package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"assetpipe/internal/server/storage"
	"assetpipe/internal/service/multipart"
	"assetpipe/internal/service/upload"
)

type MultipartHandler struct {
	uploads  *upload.Service
	sessions *multipart.Manager
}

func NewMultipartHandler(uploads *upload.Service, sessions *multipart.Manager) *MultipartHandler {
	return &MultipartHandler{uploads: uploads, sessions: sessions}
}

type sessionRequest struct {
	ObjectKey string `json:"object_key" form:"object_key" binding:"required"`
	UploadID  string `json:"upload_id" form:"upload_id" binding:"required"`
}

type signPartRequest struct {
	sessionRequest
	PartNumber int `json:"part_number" binding:"required"`
}

type completeRequest struct {
	sessionRequest
	Parts []storage.CompletedPart `json:"parts" binding:"required"`
}

// Create 与 Sign 使用同一套校验，然后开启分片会话
func (h *MultipartHandler) Create(c *gin.Context) {
	var req upload.SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误", "code": "invalid_request"})
		return
	}
	sess, err := h.uploads.CreateMultipart(c.Request.Context(), req)
	if err != nil {
		writeUploadError(c, err, "创建分片上传失败")
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *MultipartHandler) SignPart(c *gin.Context) {
	var req signPartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误", "code": "invalid_request"})
		return
	}
	part, err := h.sessions.SignPart(c.Request.Context(), req.ObjectKey, req.UploadID, req.PartNumber)
	if err != nil {
		writeUploadError(c, err, "签发分片地址失败")
		return
	}
	c.JSON(http.StatusOK, part)
}

// ListParts 断点续传时查询已上传的分片
func (h *MultipartHandler) ListParts(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误", "code": "invalid_request"})
		return
	}
	parts, err := h.sessions.ListParts(c.Request.Context(), req.ObjectKey, req.UploadID)
	if err != nil {
		writeUploadError(c, err, "查询分片失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"parts": parts})
}

func (h *MultipartHandler) Complete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误", "code": "invalid_request"})
		return
	}
	if err := h.sessions.Complete(c.Request.Context(), req.ObjectKey, req.UploadID, req.Parts); err != nil {
		writeUploadError(c, err, "合并分片失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"object_key": req.ObjectKey, "upload_id": req.UploadID, "state": multipart.StateCompleted})
}

func (h *MultipartHandler) Abort(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误", "code": "invalid_request"})
		return
	}
	if err := h.sessions.Abort(c.Request.Context(), req.ObjectKey, req.UploadID); err != nil {
		writeUploadError(c, err, "取消分片上传失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"object_key": req.ObjectKey, "upload_id": req.UploadID, "state": multipart.StateAborted})
}
