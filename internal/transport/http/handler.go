package httptransport

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/middleware"
	"gmailbulker/internal/relay"
)

// DownloadReader 查询后台下载记录
type DownloadReader interface {
	Record(ctx context.Context, id int64) (*domain.DownloadRecord, error)
	Records(ctx context.Context) ([]domain.DownloadRecord, error)
}

// Handler 聚合中继 HTTP 处理逻辑
type Handler struct {
	relay     relay.Handler
	downloads DownloadReader
	log       *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(handler relay.Handler, downloads DownloadReader, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{relay: handler, downloads: downloads, log: log}
}

// HandleMessage 处理 POST /v1/messages
//
// 响应体始终是中继响应本身。请求体无法解析或消息类型未知时返回 400，
// 其余业务失败以 status=error 的 200 响应返回。
func (h *Handler) HandleMessage(c *gin.Context) {
	var req domain.RelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		// 超限由 BodySizeLimit 回复 413
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return
		}
		c.JSON(http.StatusBadRequest, domain.ErrorResponse(MsgInvalidJSON))
		return
	}
	c.Set(middleware.RequestIDKey, req.RequestID)

	resp := h.relay.Handle(c.Request.Context(), req)
	if relay.IsUnknownType(resp) {
		h.log.Warn("unknown relay message type", zap.String("type", string(req.Type)))
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListDownloads 处理 GET /v1/downloads
func (h *Handler) ListDownloads(c *gin.Context) {
	records, err := h.downloads.Records(c.Request.Context())
	if err != nil {
		h.log.Error("list downloads failed", zap.Error(err))
		Fail(c, err, MsgDownloadListFailed)
		return
	}
	OK(c, records)
}

// GetDownload 处理 GET /v1/downloads/:id
func (h *Handler) GetDownload(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		Reject(c, http.StatusBadRequest, MsgInvalidDownloadID)
		return
	}

	record, err := h.downloads.Record(c.Request.Context(), id)
	if err != nil {
		if !Fail(c, err, MsgDownloadGetFailed) {
			h.log.Error("get download failed", zap.Int64("id", id), zap.Error(err))
		}
		return
	}
	OK(c, record)
}
