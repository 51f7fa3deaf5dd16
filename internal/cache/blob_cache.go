package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ObjectURLPrefix 对象引用地址的前缀
const ObjectURLPrefix = "blob:"

// BlobCache 进程内的对象引用表（类似浏览器的 object URL）
//
// 特点：
// - 使用 sync.Map 实现无锁读取
// - 每个引用都有过期时间，即使调用方忘记释放也会被清理
// - 显式 Revoke 后立即失效
type BlobCache struct {
	data  sync.Map
	ttl   time.Duration
	count atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
}

type blobEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewBlobCache 创建对象引用表
//
// 参数:
//   - ttl: 引用的最长存活时间
//   - cleanupInterval: 过期清理间隔，<=0 时不启动后台清理
func NewBlobCache(ttl, cleanupInterval time.Duration) *BlobCache {
	c := &BlobCache{ttl: ttl, stop: make(chan struct{})}
	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

// Create 登记一段内容并返回引用地址
func (c *BlobCache) Create(data []byte) string {
	url := ObjectURLPrefix + uuid.NewString()
	c.data.Store(url, &blobEntry{data: data, expiresAt: time.Now().Add(c.ttl)})
	c.count.Add(1)
	return url
}

// Get 按引用地址取回内容
func (c *BlobCache) Get(url string) ([]byte, bool) {
	val, ok := c.data.Load(url)
	if !ok {
		return nil, false
	}

	entry := val.(*blobEntry)
	if time.Now().After(entry.expiresAt) {
		c.Revoke(url)
		return nil, false
	}
	return entry.data, true
}

// Revoke 释放引用，重复释放无副作用
func (c *BlobCache) Revoke(url string) {
	if _, loaded := c.data.LoadAndDelete(url); loaded {
		c.count.Add(-1)
	}
}

// Len 当前有效引用数
func (c *BlobCache) Len() int {
	return int(c.count.Load())
}

// Close 停止后台清理
func (c *BlobCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// cleanupLoop 定期清理过期引用
func (c *BlobCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.data.Range(func(key, value interface{}) bool {
				if now.After(value.(*blobEntry).expiresAt) {
					c.Revoke(key.(string))
				}
				return true
			})
		}
	}
}
