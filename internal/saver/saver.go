// Package saver 把生成的文件交给用户：登记对象引用、写入下载目录、稍后释放引用。
package saver

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"gmailbulker/internal/cache"
)

// DefaultRevokeDelay 保存后释放对象引用前的等待时间
const DefaultRevokeDelay = time.Second

// maxUniquifyAttempts 同名文件最多尝试的编号
const maxUniquifyAttempts = 10000

// ErrObjectURLRevoked 保存时对象引用已经失效
var ErrObjectURLRevoked = errors.New("object url revoked before save")

// Saver 保存动作
type Saver interface {
	// Save 保存内容，返回最终路径
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// FileSaver 把内容写到下载目录，同名时追加 " (n)"
type FileSaver struct {
	fs          afero.Fs
	dir         string
	blobs       *cache.BlobCache
	revokeDelay time.Duration
	log         *zap.Logger
}

// NewFileSaver 创建文件保存器
//
// 参数:
//   - fs: 文件系统
//   - dir: 下载目录
//   - blobs: 对象引用表
//   - revokeDelay: 保存后释放引用的延迟
func NewFileSaver(fs afero.Fs, dir string, blobs *cache.BlobCache, revokeDelay time.Duration, log *zap.Logger) *FileSaver {
	if log == nil {
		log = zap.NewNop()
	}
	if revokeDelay < 0 {
		revokeDelay = DefaultRevokeDelay
	}
	return &FileSaver{fs: fs, dir: dir, blobs: blobs, revokeDelay: revokeDelay, log: log}
}

// Save 实现 Saver
//
// 对象引用在保存触发后延迟 revokeDelay 才释放，而不是立即释放。
func (s *FileSaver) Save(ctx context.Context, name string, data []byte) (string, error) {
	url := s.blobs.Create(data)
	defer time.AfterFunc(s.revokeDelay, func() {
		s.blobs.Revoke(url)
		s.log.Debug("object url revoked", zap.String("url", url))
	})

	if err := ctx.Err(); err != nil {
		return "", err
	}

	blob, ok := s.blobs.Get(url)
	if !ok {
		return "", ErrObjectURLRevoked
	}

	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	target, err := UniquePath(s.fs, s.dir, name)
	if err != nil {
		return "", err
	}
	if err := afero.WriteFile(s.fs, target, blob, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}

	s.log.Info("file saved", zap.String("path", target), zap.Int("bytes", len(blob)))
	return target, nil
}

// UniquePath 返回目录下不冲突的路径，冲突时生成 "name (1).ext"、"name (2).ext" ...
//
// name 中的目录部分会被丢弃，只保留文件名。
func UniquePath(fs afero.Fs, dir, name string) (string, error) {
	name = path.Base(filepath.ToSlash(name))
	if name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(dir, name)
	for n := 1; n <= maxUniquifyAttempts; n++ {
		exists, err := afero.Exists(fs, candidate)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, n, ext))
	}
	return "", fmt.Errorf("no free file name for %q", name)
}
