// Package websocket 通过 WebSocket 提供中继消息入口，每条连接上可以并发处理多条请求。
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// 请求帧只携带地址与文件名
	maxFrameSize = 1 << 20

	// 单条连接上同时处理的请求数
	maxInflight = 16

	sendBuffer = 64
)

// originPolicy 为空集合或包含 "*" 时放行所有来源；不带 Origin 的请求视为同源
type originPolicy map[string]struct{}

func newOriginPolicy(origins []string) originPolicy {
	p := make(originPolicy, len(origins))
	for _, o := range origins {
		p[o] = struct{}{}
	}
	return p
}

func (p originPolicy) allow(r *http.Request) bool {
	if _, all := p["*"]; all || len(p) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, ok := p[origin]
	return ok
}

// session 一条页面侧连接
type session struct {
	id       string
	conn     *websocket.Conn
	outbox   chan domain.RelayResponse
	inflight *semaphore.Weighted
	hub      *Hub
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Hub 跟踪所有中继连接，关闭时断开全部连接
type Hub struct {
	handler  relay.Handler
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
	join     chan *session
	leave    chan *session
	done     chan struct{}
}

// NewHub 创建 WebSocket Hub
//
// 参数:
//   - handler: 处理每一帧中继请求
//   - allowedOrigins: 允许的 Origin 列表，为空时允许所有
//   - log: 日志
func NewHub(handler relay.Handler, allowedOrigins []string, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	policy := newOriginPolicy(allowedOrigins)

	return &Hub{
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     policy.allow,
		},
		log:      log,
		sessions: make(map[string]*session),
		join:     make(chan *session),
		leave:    make(chan *session),
		done:     make(chan struct{}),
	}
}

// Run 处理连接的加入与离开，直到 ctx 取消
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.join:
			h.mu.Lock()
			h.sessions[s.id] = s
			h.mu.Unlock()
			s.log.Debug("relay session opened")
		case s := <-h.leave:
			h.mu.Lock()
			delete(h.sessions, s.id)
			h.mu.Unlock()
			s.log.Debug("relay session closed")
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		s.cancel()
		_ = s.conn.Close()
		delete(h.sessions, id)
	}
	h.log.Info("websocket hub stopped")
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// HandleWebSocket 升级连接并开始收发中继消息
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := hub.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.GetHeader("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		id := uuid.NewString()
		ctx, cancel := context.WithCancel(context.Background())
		s := &session{
			id:       id,
			conn:     conn,
			outbox:   make(chan domain.RelayResponse, sendBuffer),
			inflight: semaphore.NewWeighted(maxInflight),
			hub:      hub,
			log:      hub.log.With(zap.String("session", id)),
			ctx:      ctx,
			cancel:   cancel,
		}

		select {
		case hub.join <- s:
		case <-hub.done:
			cancel()
			_ = conn.Close()
			return
		}

		go s.writeLoop()
		go s.readLoop()
	}
}

// readLoop 读取请求帧，每帧在独立协程中处理，同时处理的帧数受 inflight 限制
func (s *session) readLoop() {
	defer func() {
		s.cancel()
		s.wg.Wait()
		select {
		case s.hub.leave <- s:
		case <-s.hub.done:
		}
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req domain.RelayRequest
		if err := s.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		if err := s.inflight.Acquire(s.ctx, 1); err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.inflight.Release(1)
			s.reply(s.hub.handler.Handle(s.ctx, req))
		}()
	}
}

func (s *session) reply(resp domain.RelayResponse) {
	select {
	case s.outbox <- resp:
	case <-s.ctx.Done():
	}
}

// writeLoop 写出响应帧并定期发送 ping
func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return

		case resp := <-s.outbox:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(resp); err != nil {
				s.log.Warn("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
