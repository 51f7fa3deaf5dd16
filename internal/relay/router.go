package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/monitoring"
)

// msgScriptingUnavailable 没有配置脚本注入器时的响应
const msgScriptingUnavailable = "scripting API unavailable"

// Router 按消息类型分发中继请求，实现 Handler
type Router struct {
	fetcher    *Fetcher
	downloader *Downloader
	injector   ScriptInjector
	metrics    *monitoring.Metrics
	log        *zap.Logger
}

// NewRouter 创建消息路由
//
// 参数:
//   - fetcher: 处理 fetchAttachmentBlob
//   - downloader: 处理 downloadAttachment，可以为 nil
//   - injector: 处理 SDK 引导消息，可以为 nil
func NewRouter(fetcher *Fetcher, downloader *Downloader, injector ScriptInjector, metrics *monitoring.Metrics, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		fetcher:    fetcher,
		downloader: downloader,
		injector:   injector,
		metrics:    metrics,
		log:        log,
	}
}

// Handle 实现 Handler
//
// 未知或缺失的消息类型返回带 ErrUnknownMessageType 文本的错误响应，
// 传输层据此回复 400 或错误帧。
func (r *Router) Handle(ctx context.Context, req domain.RelayRequest) domain.RelayResponse {
	var resp domain.RelayResponse
	switch req.Type {
	case domain.MessageTypeDownloadAttachment:
		resp = r.handleDownload(ctx, req.Payload)
	case domain.MessageTypeFetchBlob:
		resp = r.handleFetch(ctx, req.Payload)
	case domain.MessageTypeInjectPageWorld:
		resp = r.handleInject(ctx, req.Payload)
	default:
		resp = domain.ErrorResponse(domain.ErrUnknownMessageType.Error())
	}

	resp.RequestID = req.RequestID
	r.metrics.RecordRelayMessage(string(req.Type), responseStatus(resp))
	return resp
}

// IsUnknownType 判断响应是否由未知消息类型产生
func IsUnknownType(resp domain.RelayResponse) bool {
	return resp.Status == domain.StatusError && resp.Message == domain.ErrUnknownMessageType.Error()
}

func responseStatus(resp domain.RelayResponse) string {
	if resp.OK != nil {
		if *resp.OK {
			return domain.StatusSuccess
		}
		return domain.StatusError
	}
	if resp.Status == "" {
		return domain.StatusSuccess
	}
	return resp.Status
}

func (r *Router) handleDownload(ctx context.Context, raw json.RawMessage) domain.RelayResponse {
	var p domain.DownloadAttachmentPayload
	if err := decodePayload(raw, &p); err != nil {
		return domain.ErrorResponse(err.Error())
	}
	if r.downloader == nil {
		return domain.ErrorResponse(ErrDownloadNotStarted.Error())
	}

	id, err := r.downloader.Download(ctx, p)
	if err != nil {
		r.log.Warn("download failed", zap.String("filename", p.Filename), zap.Error(err))
		return domain.ErrorResponse(err.Error())
	}
	return domain.RelayResponse{
		RelayPayload: domain.RelayPayload{Status: domain.StatusSuccess},
		DownloadID:   id,
	}
}

func (r *Router) handleFetch(ctx context.Context, raw json.RawMessage) domain.RelayResponse {
	var p domain.FetchBlobPayload
	if err := decodePayload(raw, &p); err != nil {
		return domain.ErrorResponse(err.Error())
	}
	if err := domain.ValidateFetchRequest(p.URL); err != nil {
		return domain.ErrorResponse(err.Error())
	}
	return domain.RelayResponse{RelayPayload: r.fetcher.Fetch(ctx, p.URL, p.Filename)}
}

func (r *Router) handleInject(ctx context.Context, raw json.RawMessage) domain.RelayResponse {
	if r.injector == nil {
		return injectResponse(msgScriptingUnavailable)
	}

	var p domain.InjectPageWorldPayload
	if err := decodePayload(raw, &p); err != nil {
		return injectResponse(err.Error())
	}
	if err := r.injector.InjectPageWorld(ctx, p); err != nil {
		r.log.Error("pageWorld injection failed", zap.Error(err))
		return injectResponse(err.Error())
	}
	return injectResponse("")
}

// injectResponse 引导消息使用 {ok, error} 形式的响应
func injectResponse(errMsg string) domain.RelayResponse {
	ok := errMsg == ""
	return domain.RelayResponse{OK: &ok, Error: errMsg}
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
