package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gmailbulker/internal/domain"
)

const (
	// WebSocketPath 中继 WebSocket 入口
	WebSocketPath = "/v1/ws"

	wsWriteWait = 10 * time.Second
)

// WSClient 通过一条 WebSocket 连接访问中继，响应按 requestId 匹配
type WSClient struct {
	conn *websocket.Conn
	log  *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan domain.RelayResponse
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

// DialWS 连接中继
//
// 参数:
//   - ctx: 只用于建立连接
//   - base: 中继地址，http(s) 会被换成 ws(s)
func DialWS(ctx context.Context, base string, log *zap.Logger) (*WSClient, error) {
	if log == nil {
		log = zap.NewNop()
	}

	url := base + WebSocketPath
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial relay websocket (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial relay websocket: %w", err)
	}

	c := &WSClient{
		conn:    conn,
		log:     log,
		pending: make(map[string]chan domain.RelayResponse),
		done:    make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

// Send 实现 Client
func (c *WSClient) Send(ctx context.Context, req domain.RelayRequest) (domain.RelayResponse, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ch := make(chan domain.RelayResponse, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return domain.RelayResponse{}, err
	}
	c.pending[req.RequestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
	}()

	if err := c.write(req); err != nil {
		return domain.RelayResponse{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return domain.RelayResponse{}, ctx.Err()
	case <-c.done:
		return domain.RelayResponse{}, c.closedErr()
	}
}

func (c *WSClient) write(req domain.RelayRequest) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write relay request: %w", err)
	}
	return nil
}

// readPump 读取响应帧并交给等待的调用方
func (c *WSClient) readPump() {
	defer c.shutdown(ErrNoResponse)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("relay websocket error", zap.Error(err))
			}
			return
		}

		var resp domain.RelayResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			c.log.Warn("invalid relay frame", zap.Error(err))
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.RequestID]
		c.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case ch <- resp:
		default:
		}
	}
}

func (c *WSClient) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.err == nil {
			c.err = err
		}
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *WSClient) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close 实现 Client
func (c *WSClient) Close() error {
	c.mu.Lock()
	if c.err == nil {
		c.err = ErrClientClosed
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteWait))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}
