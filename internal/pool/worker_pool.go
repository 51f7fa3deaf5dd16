// Package pool 提供固定数量协程的任务池，用于限制中继后台下载的并发。
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrPoolStopped 协程池已停止，不再接受任务
var ErrPoolStopped = errors.New("worker pool stopped")

// Task 池中执行的任务，ctx 在协程池启动上下文取消时取消
type Task func(ctx context.Context)

// WorkerPool 固定协程数的任务池，任务 panic 只记录日志
type WorkerPool struct {
	workers int
	queue   chan Task
	log     *zap.Logger

	wg     sync.WaitGroup
	active atomic.Int64

	// closed 与 queue 的关闭受 mu 保护，提交方持读锁
	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool 创建协程池
//
// 参数:
//   - workers: 协程数，<=0 时为 1
//   - queueSize: 排队上限，<0 时为 0
//   - log: 日志
func NewWorkerPool(workers, queueSize int, log *zap.Logger) *WorkerPool {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool{
		workers: max(workers, 1),
		queue:   make(chan Task, max(queueSize, 0)),
		log:     log,
	}
}

// Start 启动协程，ctx 取消后协程不再领取新任务
func (p *WorkerPool) Start(ctx context.Context) {
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.loop(ctx)
	}
}

// Submit 提交任务，队列已满时阻塞直到有空位或 ctx 取消
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolStopped
	}

	select {
	case p.queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit 提交任务，队列已满或已停止时立即返回 false
func (p *WorkerPool) TrySubmit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.queue <- task:
		return true
	default:
		return false
	}
}

// Active 正在执行的任务数
func (p *WorkerPool) Active() int {
	return int(p.active.Load())
}

// Stop 停止接收任务并等待协程退出，可重复调用
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *WorkerPool) loop(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.exec(ctx, task)
		}
	}
}

func (p *WorkerPool) exec(ctx context.Context, task Task) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	task(ctx)
}
