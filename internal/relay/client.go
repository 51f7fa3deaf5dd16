// Package relay 实现特权中继：抓取附件、后台下载、SDK 引导，以及页面侧访问中继的几种传输方式。
//
// 页面侧与中继之间不共享内存，只通过带 requestId 的请求/响应消息通信，
// 二进制内容以 base64 data URI 的形式跨越边界。
package relay

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"gmailbulker/internal/config"
	"gmailbulker/internal/domain"
)

var (
	// ErrClientClosed 客户端已关闭
	ErrClientClosed = errors.New("relay client closed")
	// ErrNoResponse 中继在连接关闭前没有给出响应
	ErrNoResponse = errors.New("relay returned no response")
)

// Client 页面侧向中继发送消息的通道
type Client interface {
	// Send 发送一条请求并等待对应的响应
	Send(ctx context.Context, req domain.RelayRequest) (domain.RelayResponse, error)
	Close() error
}

// Handler 处理一条中继请求，由 Router 实现
type Handler interface {
	Handle(ctx context.Context, req domain.RelayRequest) domain.RelayResponse
}

// HandlerFunc 函数形式的 Handler
type HandlerFunc func(ctx context.Context, req domain.RelayRequest) domain.RelayResponse

// Handle 实现 Handler
func (f HandlerFunc) Handle(ctx context.Context, req domain.RelayRequest) domain.RelayResponse {
	return f(ctx, req)
}

// FetchBlob 发送 fetchAttachmentBlob 并返回抓取结果
//
// 传输层错误以 error 返回，中继报告的失败以 status=error 的 RelayPayload 返回。
func FetchBlob(ctx context.Context, c Client, url, filename string) (domain.RelayPayload, error) {
	req, err := domain.NewRelayRequest(domain.MessageTypeFetchBlob, domain.FetchBlobPayload{URL: url, Filename: filename})
	if err != nil {
		return domain.RelayPayload{}, err
	}
	resp, err := c.Send(ctx, req)
	if err != nil {
		return domain.RelayPayload{}, err
	}
	return resp.RelayPayload, nil
}

// DownloadAttachment 发送 downloadAttachment，返回后台下载编号
func DownloadAttachment(ctx context.Context, c Client, payload domain.DownloadAttachmentPayload) (domain.RelayResponse, error) {
	req, err := domain.NewRelayRequest(domain.MessageTypeDownloadAttachment, payload)
	if err != nil {
		return domain.RelayResponse{}, err
	}
	return c.Send(ctx, req)
}

// NewClient 按配置选择传输方式
//
// 没有配置中继地址时使用进程内通道，由 local 处理请求；
// 否则按 Transport 使用 HTTP 或 WebSocket 连接独立运行的中继。
func NewClient(ctx context.Context, cfg config.RelayConfig, local Handler, log *zap.Logger) (Client, error) {
	if cfg.Address == "" {
		if local == nil {
			return nil, errors.New("relay address is empty and no local handler is configured")
		}
		return NewBridge(local, log), nil
	}
	if cfg.Transport == "ws" {
		return DialWS(ctx, cfg.Address, log)
	}
	return NewHTTPClient(cfg.Address, cfg.RequestTimeout), nil
}

// InjectPageWorld 发送 SDK 引导消息
func InjectPageWorld(ctx context.Context, c Client, target domain.InjectPageWorldPayload) (domain.RelayResponse, error) {
	req, err := domain.NewRelayRequest(domain.MessageTypeInjectPageWorld, target)
	if err != nil {
		return domain.RelayResponse{}, err
	}
	return c.Send(ctx, req)
}
