package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/roomchat/internal/attachment"
	"github.com/weiawesome/wes-io-live/roomchat/internal/audit"
	"github.com/weiawesome/wes-io-live/roomchat/internal/auth"
	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
	"github.com/weiawesome/wes-io-live/roomchat/internal/service"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/log"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/response"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/storage"
)

const uploadFormField = "file"

type HTTPHandler struct {
	history   service.HistoryService
	resolver  attachment.Resolver
	storage   storage.Storage
	validator auth.Validator
	maxUpload int64
}

func NewHTTPHandler(
	history service.HistoryService,
	resolver attachment.Resolver,
	store storage.Storage,
	v auth.Validator,
	maxUpload int64,
) *HTTPHandler {
	return &HTTPHandler{
		history:   history,
		resolver:  resolver,
		storage:   store,
		validator: v,
		maxUpload: maxUpload,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	messages := r.Group("/messages", auth.RequireAuth(h.validator))
	{
		messages.POST("/upload", h.UploadAttachment)
		messages.GET("/:roomId", h.GetMessages)
	}

	if h.storage != nil {
		r.GET("/attachments/*key", h.GetAttachment)
	}
	r.GET("/health", h.HealthCheck)
}

// GetMessages returns the recent history of a room, oldest first.
func (h *HTTPHandler) GetMessages(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("roomId"))
	if roomID == "" {
		response.BadRequest(c, "roomId is required")
		return
	}

	messages, err := h.history.Recent(c.Request.Context(), roomID)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to load room history")
		response.InternalError(c, "failed to get messages")
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}

	response.Success(c, messages)
}

// UploadAttachment stores the multipart field "file" and returns the
// attachment reference to put into a sendMessage event.
func (h *HTTPHandler) UploadAttachment(c *gin.Context) {
	ctx := c.Request.Context()
	userID := auth.GetUserID(c)

	if h.maxUpload > 0 {
		// Leave room for the multipart framing around the file.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+(1<<20))
	}

	fileHeader, err := c.FormFile(uploadFormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.PayloadTooLarge(c, "file is too large")
			return
		}
		response.BadRequest(c, "no file uploaded")
		return
	}
	if h.maxUpload > 0 && fileHeader.Size > h.maxUpload {
		response.PayloadTooLarge(c, "file is too large")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "failed to read upload")
		return
	}
	defer file.Close()

	att, err := h.resolver.Upload(ctx, fileHeader.Filename, file)
	switch {
	case err == nil:
	case errors.Is(err, attachment.ErrTooLarge):
		response.PayloadTooLarge(c, "file is too large")
		return
	case errors.Is(err, attachment.ErrUnsupportedType):
		response.UnsupportedMediaType(c, "file type is not allowed")
		return
	case errors.Is(err, attachment.ErrEmpty):
		response.BadRequest(c, "no file uploaded")
		return
	default:
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to store attachment")
		response.InternalError(c, "failed to upload file")
		return
	}

	audit.LogWithDetail(ctx, audit.ActionUpload, userID, att.PublicID, "attachment uploaded")
	response.Created(c, att)
}

// GetAttachment streams a stored attachment. Local storage URLs point here.
func (h *HTTPHandler) GetAttachment(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		response.NotFound(c, "attachment not found")
		return
	}

	rc, err := h.storage.Read(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.NotFound(c, "attachment not found")
			return
		}
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str("key", key).Msg("failed to read attachment")
		response.InternalError(c, "failed to read attachment")
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Str("key", key).Msg("attachment stream interrupted")
	}
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
