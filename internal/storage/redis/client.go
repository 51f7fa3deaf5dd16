// Package redis 用 Redis 保存中继的后台下载记录，便于多个中继实例共享下载状态。
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gmailbulker/internal/config"
)

// DefaultNamespace 所有键的公共前缀
const DefaultNamespace = "gmailbulker"

const connectTimeout = 5 * time.Second

// Option 调整底层连接参数
type Option func(*goredis.Options)

// WithPoolSize 设置连接池大小
func WithPoolSize(n int) Option {
	return func(o *goredis.Options) {
		o.PoolSize = n
		if o.MinIdleConns > n {
			o.MinIdleConns = n
		}
	}
}

// Client 带命名空间的 Redis 连接
type Client struct {
	rdb       *goredis.Client
	namespace string
	log       *zap.Logger
}

// New 建立连接并确认 Redis 可用
//
// 参数:
//   - cfg: 地址、密码、库编号
//   - log: 日志，可为 nil
//   - opts: 覆盖默认连接参数
//
// 返回值:
//   - *Client: 可用的连接，用完后调用 Close
//   - error: Redis 不可达时返回
func New(cfg config.RedisConfig, log *zap.Logger, opts ...Option) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}

	options := &goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  connectTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
	for _, opt := range opts {
		opt(options)
	}

	c := &Client{
		rdb:       goredis.NewClient(options),
		namespace: DefaultNamespace,
		log:       log.With(zap.String("redis", cfg.Address), zap.Int("db", cfg.DB)),
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Address, err)
	}

	c.log.Info("connected to redis")
	return c, nil
}

// Key 用命名空间拼出完整键名，各段以冒号分隔
func (c *Client) Key(parts ...string) string {
	return c.namespace + ":" + strings.Join(parts, ":")
}

// Raw 返回底层 go-redis 客户端
func (c *Client) Raw() *goredis.Client {
	return c.rdb
}

// Ping 检查连接
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close 关闭连接池
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.log.Warn("failed to close redis connection", zap.Error(err))
		return err
	}
	c.log.Debug("redis connection closed")
	return nil
}
