package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vincent-petithory/dataurl"
	"go.uber.org/zap"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/monitoring"
	"gmailbulker/internal/relay"
	"gmailbulker/internal/sanitize"
)

var (
	// ErrNoAttachments 没有可以打包的附件
	ErrNoAttachments = errors.New("no attachments to download")
	// ErrNoData 中继成功返回但没有内容
	ErrNoData = errors.New("no data received from relay")
)

// AssemblyResult 一次打包的结果
type AssemblyResult struct {
	Data    []byte               // ZIP 内容
	Entries []domain.EntryResult // 与输入顺序一致的条目结果
	Stored  int
	Failed  int
}

// Assembler 并发抓取所有附件并组装为一个 ZIP
type Assembler struct {
	client  relay.Client
	level   int
	metrics *monitoring.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewAssembler 创建归档组装器
//
// 参数:
//   - client: 访问中继的客户端
//   - level: DEFLATE 压缩级别
//   - log: 日志
func NewAssembler(client relay.Client, level int, log *zap.Logger) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{client: client, level: level, log: log, now: time.Now}
}

// SetMetrics 设置监控指标
func (a *Assembler) SetMetrics(m *monitoring.Metrics) {
	a.metrics = m
}

// Assemble 为每个附件启动一个抓取，全部结束后序列化归档
//
// 单个附件失败不会中断整体：失败的附件以 ERROR_{文件名}.txt 占位。
// 同名条目后写覆盖先写。
func (a *Assembler) Assemble(ctx context.Context, descriptors []domain.AttachmentDescriptor) (*AssemblyResult, error) {
	if len(descriptors) == 0 {
		return nil, ErrNoAttachments
	}

	a.log.Info("creating zip archive", zap.Int("attachments", len(descriptors)))

	archive := NewArchive(a.now())
	entries := make([]domain.EntryResult, len(descriptors))

	var wg sync.WaitGroup
	for i, d := range descriptors {
		wg.Add(1)
		go func(i int, d domain.AttachmentDescriptor) {
			defer wg.Done()
			entries[i] = a.addEntry(ctx, archive, i, len(descriptors), d)
		}(i, d)
	}
	wg.Wait()

	data, err := archive.Bytes(a.level)
	if err != nil {
		return nil, fmt.Errorf("generate zip: %w", err)
	}

	result := &AssemblyResult{Data: data, Entries: entries}
	for _, e := range entries {
		if e.Status == domain.EntryStored {
			result.Stored++
		} else {
			result.Failed++
		}
	}
	a.metrics.RecordArchive(result.Stored, result.Failed, int64(len(data)))

	a.log.Info("zip archive created",
		zap.String("size", sanitize.FormatBytes(int64(len(data)), 2)),
		zap.Int("stored", result.Stored),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (a *Assembler) addEntry(ctx context.Context, archive *Archive, i, total int, d domain.AttachmentDescriptor) (entry domain.EntryResult) {
	fallback := fmt.Sprintf("attachment_%d", i+1)
	filename := d.Filename
	if filename == "" {
		filename = fallback
	}
	entry = domain.EntryResult{SourceFilename: d.Filename, URL: d.URL}

	defer func() {
		if rec := recover(); rec != nil {
			entry = a.addError(archive, entry, filename, fmt.Errorf("%v", rec))
		}
	}()

	a.log.Debug("fetching attachment", zap.String("filename", filename), zap.Int("n", i+1), zap.Int("total", total))

	data, err := a.fetch(ctx, d)
	if err != nil {
		a.log.Warn("failed to fetch attachment", zap.String("filename", filename), zap.Error(err))
		return a.addError(archive, entry, filename, err)
	}

	entry.Name = sanitize.SanitizeFilename(filename, fallback)
	if err := archive.Put(entry.Name, data); err != nil {
		return a.addError(archive, entry, filename, err)
	}
	entry.Size = int64(len(data))
	entry.Status = domain.EntryStored

	a.log.Debug("added to zip", zap.String("name", entry.Name), zap.String("size", sanitize.FormatBytes(entry.Size, 2)))
	return entry
}

// fetch 通过中继抓取并解码 data URI
func (a *Assembler) fetch(ctx context.Context, d domain.AttachmentDescriptor) ([]byte, error) {
	payload, err := relay.FetchBlob(ctx, a.client, d.URL, d.Filename)
	if err != nil {
		return nil, err
	}
	if !payload.IsSuccess() {
		if payload.Message == "" {
			return nil, errors.New("unknown relay error")
		}
		return nil, errors.New(payload.Message)
	}
	if payload.Data == "" {
		return nil, ErrNoData
	}

	du, err := dataurl.DecodeString(payload.Data)
	if err != nil {
		return nil, fmt.Errorf("decode data uri: %w", err)
	}
	return du.Data, nil
}

// addError 写入 ERROR_{文件名}.txt 占位条目
func (a *Assembler) addError(archive *Archive, entry domain.EntryResult, filename string, cause error) domain.EntryResult {
	entry.Name = sanitize.SanitizeFilename("ERROR_"+filename+".txt", "ERROR_attachment")
	entry.Status = domain.EntryFailed
	entry.Error = cause.Error()
	entry.Size = 0

	body := []byte("Failed to download this file: " + cause.Error())
	if err := archive.Put(entry.Name, body); err != nil {
		a.log.Error("failed to add error entry", zap.String("name", entry.Name), zap.Error(err))
	}
	return entry
}
