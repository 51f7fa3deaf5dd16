package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gmailbulker/internal/domain"
)

// Bridge 进程内的中继通道
//
// 页面侧与中继侧各自运行在独立的协程里，只通过请求/响应两条 channel 交换消息，
// 响应按 requestId 回到等待它的调用方。
type Bridge struct {
	handler   Handler
	requests  chan domain.RelayRequest
	responses chan domain.RelayResponse
	log       *zap.Logger

	mu      sync.Mutex
	pending map[string]chan domain.RelayResponse

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewBridge 创建并启动进程内通道
func NewBridge(handler Handler, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		handler:   handler,
		requests:  make(chan domain.RelayRequest),
		responses: make(chan domain.RelayResponse, 64),
		log:       log,
		pending:   make(map[string]chan domain.RelayResponse),
		ctx:       ctx,
		cancel:    cancel,
	}

	b.wg.Add(2)
	go b.serve()
	go b.dispatch()
	return b
}

// Send 实现 Client
func (b *Bridge) Send(ctx context.Context, req domain.RelayRequest) (domain.RelayResponse, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ch := make(chan domain.RelayResponse, 1)
	b.mu.Lock()
	if b.ctx.Err() != nil {
		b.mu.Unlock()
		return domain.RelayResponse{}, ErrClientClosed
	}
	b.pending[req.RequestID] = ch
	b.mu.Unlock()
	defer b.forget(req.RequestID)

	select {
	case b.requests <- req:
	case <-ctx.Done():
		return domain.RelayResponse{}, ctx.Err()
	case <-b.ctx.Done():
		return domain.RelayResponse{}, ErrClientClosed
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return domain.RelayResponse{}, ctx.Err()
	case <-b.ctx.Done():
		return domain.RelayResponse{}, ErrClientClosed
	}
}

// Close 实现 Client，等待中继侧协程退出
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.cancel()
		b.mu.Unlock()
		b.wg.Wait()
	})
	return nil
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// serve 中继侧：每条请求在独立协程中处理
func (b *Bridge) serve() {
	defer b.wg.Done()

	var handlers sync.WaitGroup
	defer handlers.Wait()

	for {
		select {
		case <-b.ctx.Done():
			return
		case req := <-b.requests:
			handlers.Add(1)
			go func(req domain.RelayRequest) {
				defer handlers.Done()
				resp := b.handle(req)
				select {
				case b.responses <- resp:
				case <-b.ctx.Done():
				}
			}(req)
		}
	}
}

func (b *Bridge) handle(req domain.RelayRequest) (resp domain.RelayResponse) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("relay handler panicked", zap.String("type", string(req.Type)), zap.Any("panic", r))
			resp = domain.ErrorResponse("relay handler failed")
			resp.RequestID = req.RequestID
		}
	}()
	resp = b.handler.Handle(b.ctx, req)
	resp.RequestID = req.RequestID
	return resp
}

// dispatch 页面侧：把响应交给等待的调用方
func (b *Bridge) dispatch() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case resp := <-b.responses:
			b.mu.Lock()
			ch, ok := b.pending[resp.RequestID]
			b.mu.Unlock()
			if !ok {
				b.log.Debug("dropping response without waiter", zap.String("request_id", resp.RequestID))
				continue
			}
			select {
			case ch <- resp:
			default:
			}
		}
	}
}
