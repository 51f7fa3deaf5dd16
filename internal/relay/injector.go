package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"gmailbulker/internal/domain"
)

// ErrMissingTarget 引导消息没有指明目标页面
var ErrMissingTarget = errors.New("missing target tab")

// ScriptInjector 把宿主 SDK 的页面脚本注入目标页面
type ScriptInjector interface {
	InjectPageWorld(ctx context.Context, target domain.InjectPageWorldPayload) error
}

// Injection 一次成功的注入
type Injection struct {
	Target domain.InjectPageWorldPayload
	Script string
	Size   int
}

// FileInjector 从文件系统读取页面脚本并记录注入目标
//
// 目标优先按 documentId 定位，其次是 frameId。
type FileInjector struct {
	fs     afero.Fs
	script string
	log    *zap.Logger

	mu         sync.Mutex
	injections []Injection
}

// NewFileInjector 创建脚本注入器
//
// 参数:
//   - fs: 文件系统
//   - script: 页面脚本路径，如 "pageWorld.js"
func NewFileInjector(fs afero.Fs, script string, log *zap.Logger) *FileInjector {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileInjector{fs: fs, script: script, log: log}
}

// InjectPageWorld 实现 ScriptInjector
func (i *FileInjector) InjectPageWorld(ctx context.Context, target domain.InjectPageWorldPayload) error {
	if target.TabID <= 0 {
		return ErrMissingTarget
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	code, err := afero.ReadFile(i.fs, i.script)
	if err != nil {
		i.log.Error("pageWorld injection failed", zap.Error(err))
		return fmt.Errorf("could not load file: '%s'", i.script)
	}

	// documentId 与 frameId 只保留一个
	if target.DocumentID != "" {
		target.FrameID = nil
	}

	i.mu.Lock()
	i.injections = append(i.injections, Injection{Target: target, Script: i.script, Size: len(code)})
	i.mu.Unlock()

	i.log.Debug("page world injected", zap.Int("tab_id", target.TabID), zap.String("document_id", target.DocumentID))
	return nil
}

// Injections 返回已完成的注入
func (i *FileInjector) Injections() []Injection {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Injection(nil), i.injections...)
}
