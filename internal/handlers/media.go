package handlers

import (
	"fmt"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chat-backend/internal/media"
	"chat-backend/internal/middleware"
	"chat-backend/internal/models"
)

// MediaHandler accepts uploads and returns the stored URL.
type MediaHandler struct {
	uploader    media.Uploader
	maxFileSize int64
	log         *zap.Logger
}

func NewMediaHandler(uploader media.Uploader, maxFileSize int64, logger *zap.Logger) *MediaHandler {
	return &MediaHandler{uploader: uploader, maxFileSize: maxFileSize, log: logger.Named("handlers.media")}
}

// Upload stores the multipart "file" field under the optional "folder".
func (h *MediaHandler) Upload(c *gin.Context) {
	if h.uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "media store not configured", "code": "unavailable"})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	if header.Size <= 0 || (h.maxFileSize > 0 && header.Size > h.maxFileSize) {
		writeError(c, h.log, models.Invalid("file_size", fmt.Sprintf("must be between 1 and %d bytes", h.maxFileSize)))
		return
	}

	file, err := header.Open()
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	folder := c.PostForm("folder")
	if folder == "" {
		folder = path.Join("users", middleware.UserID(c))
	}

	url, err := h.uploader.Upload(c.Request.Context(), file, header.Size, contentType, folder, uuid.NewString())
	if err != nil {
		h.log.Warn("media upload failed", zap.String("folder", folder), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed", "code": "upload_failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"secure_url": url,
		"file_type":  media.FileTypeFor(contentType),
		"file_name":  header.Filename,
		"file_size":  header.Size,
	})
}
