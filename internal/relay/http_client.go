package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"gmailbulker/internal/domain"
)

// MessagesPath 中继 HTTP 消息入口
const MessagesPath = "/v1/messages"

// HTTPClient 通过 POST /v1/messages 访问独立运行的中继
type HTTPClient struct {
	base   string
	client *http.Client
}

// NewHTTPClient 创建 HTTP 中继客户端
//
// 参数:
//   - base: 中继地址，如 "http://127.0.0.1:8787"
//   - timeout: 单次请求超时，0 表示不限制
func NewHTTPClient(base string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}
}

// Send 实现 Client
//
// 中继对业务失败同样返回 JSON 响应体，只有无法解析响应时才返回 error。
func (c *HTTPClient) Send(ctx context.Context, req domain.RelayRequest) (domain.RelayResponse, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return domain.RelayResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+MessagesPath, bytes.NewReader(body))
	if err != nil {
		return domain.RelayResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return domain.RelayResponse{}, fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	var out domain.RelayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.RelayResponse{}, fmt.Errorf("relay response (HTTP %d): %w", resp.StatusCode, err)
	}
	return out, nil
}

// Close 实现 Client
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
