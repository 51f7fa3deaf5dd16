package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/host"
	"gmailbulker/internal/relay"
)

// BootstrapLoader 加载宿主 SDK 前先请求中继注入页面脚本
//
// 注入只在第一次加载时尝试一次，失败只记录日志，不影响 SDK 加载。
type BootstrapLoader struct {
	client relay.Client
	inner  host.Loader
	target domain.InjectPageWorldPayload
	log    *zap.Logger

	once sync.Once
}

// NewBootstrapLoader 包装 inner
func NewBootstrapLoader(client relay.Client, inner host.Loader, target domain.InjectPageWorldPayload, log *zap.Logger) *BootstrapLoader {
	if log == nil {
		log = zap.NewNop()
	}
	return &BootstrapLoader{client: client, inner: inner, target: target, log: log}
}

// Load 实现 host.Loader
func (l *BootstrapLoader) Load(ctx context.Context) (host.SDK, error) {
	l.once.Do(func() {
		if err := l.inject(ctx); err != nil {
			l.log.Debug("pageWorld injection failed", zap.Error(err))
		}
	})
	return l.inner.Load(ctx)
}

func (l *BootstrapLoader) inject(ctx context.Context) error {
	resp, err := relay.InjectPageWorld(ctx, l.client, l.target)
	if err != nil {
		return err
	}
	if resp.OK == nil || !*resp.OK {
		msg := resp.Error
		if msg == "" {
			msg = resp.Message
		}
		if msg == "" {
			msg = "injection rejected"
		}
		return errors.New(msg)
	}
	return nil
}
