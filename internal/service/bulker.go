package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gmailbulker/internal/host"
	"gmailbulker/internal/sanitize"
	"gmailbulker/internal/saver"
)

const (
	// ButtonTooltip 附件工具栏按钮的提示文字
	ButtonTooltip = "Download all as ZIP"
	// ButtonIconURL 附件工具栏按钮图标
	ButtonIconURL = "images/icon-48.png"

	// 宿主 SDK 未就绪时的轮询间隔
	loaderPollInterval = 200 * time.Millisecond

	msgNoAttachments = "No attachments found to download."
	msgZipFailed     = "Failed to create ZIP file: "
)

// Bulker 把"全部下载为 ZIP"按钮挂到每个邮件视图上，并处理点击
type Bulker struct {
	collector *Collector
	assembler *Assembler
	saver     saver.Saver
	notifier  host.Notifier
	log       *zap.Logger
	now       func() time.Time

	wg sync.WaitGroup
}

// NewBulker 创建点击处理器
func NewBulker(collector *Collector, assembler *Assembler, s saver.Saver, notifier host.Notifier, log *zap.Logger) *Bulker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bulker{
		collector: collector,
		assembler: assembler,
		saver:     s,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

// Start 轮询加载宿主 SDK，成功后挂载按钮
//
// 加载失败不会报错，只会继续等待，直到 ctx 取消。
func (b *Bulker) Start(ctx context.Context, loader host.Loader) error {
	ticker := time.NewTicker(loaderPollInterval)
	defer ticker.Stop()

	for {
		sdk, err := loader.Load(ctx)
		if err == nil && sdk != nil {
			b.Attach(sdk)
			return nil
		}
		if err != nil {
			b.log.Debug("host sdk not ready", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Attach 为每个已加载的邮件视图添加工具栏按钮，错误只记录不抛出
func (b *Bulker) Attach(sdk host.SDK) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.Debug("attach to host sdk panicked", zap.Any("panic", rec))
		}
	}()

	sdk.RegisterMessageViewHandler(func(view host.MessageView) {
		if view == nil || !view.IsLoaded() {
			return
		}
		err := view.AddAttachmentsToolbarButton(host.ButtonDescriptor{
			Tooltip: ButtonTooltip,
			IconURL: ButtonIconURL,
			OnClick: b.HandleClick,
		})
		if err != nil {
			b.log.Debug("add toolbar button failed", zap.Error(err))
		}
	})
}

// HandleClick 按钮点击回调，在后台协程中完成收集、打包、保存后立即返回
func (b *Bulker) HandleClick(ctx context.Context, event host.ClickEvent) {
	if len(event.AttachmentHandles) == 0 {
		return
	}

	// 点击回调返回后批次仍需继续
	ctx = context.WithoutCancel(ctx)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if _, err := b.Run(ctx, event.AttachmentHandles); err != nil {
			b.log.Debug("zip batch finished with error", zap.Error(err))
		}
	}()
}

// Wait 等待所有进行中的批次结束
func (b *Bulker) Wait() {
	b.wg.Wait()
}

// Run 同步执行一次批量下载，失败时提示用户
//
// 返回值:
//   - string: 保存路径，没有附件时为空
//   - error: 打包或保存失败
func (b *Bulker) Run(ctx context.Context, handles []host.AttachmentHandle) (path string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%v", rec)
			b.alert(msgZipFailed + err.Error())
		}
	}()

	descriptors := b.collector.Collect(ctx, handles)
	if len(descriptors) == 0 {
		b.alert(msgNoAttachments)
		return "", nil
	}

	result, err := b.assembler.Assemble(ctx, descriptors)
	if err != nil {
		b.alert(msgZipFailed + err.Error())
		return "", err
	}

	path, err = b.SaveArchive(ctx, sanitize.ArchiveName(b.now()), result.Data)
	if err != nil {
		b.alert(msgZipFailed + err.Error())
		return "", err
	}

	b.log.Info("zip download started",
		zap.String("path", path),
		zap.Int("count", len(descriptors)),
		zap.Int("failed", result.Failed))
	return path, nil
}

// SaveArchive 以清理后的文件名保存 ZIP，清理结果为空时使用默认名
func (b *Bulker) SaveArchive(ctx context.Context, name string, data []byte) (string, error) {
	filename := sanitize.SanitizeFilename(name, "attachments")
	if filename == "" {
		filename = sanitize.DefaultArchiveName
	}
	return b.saver.Save(ctx, filename, data)
}

func (b *Bulker) alert(message string) {
	if b.notifier != nil {
		b.notifier.Alert(message)
	}
}
