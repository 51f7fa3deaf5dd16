package service

import (
	"context"

	"go.uber.org/zap"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/host"
)

// Collector 对每个附件卡片执行元数据提取和地址解析，输出附件描述列表
type Collector struct {
	resolver  *Resolver
	extractor *Extractor
	log       *zap.Logger
}

// NewCollector 创建附件收集器
func NewCollector(resolver *Resolver, extractor *Extractor, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{resolver: resolver, extractor: extractor, log: log}
}

// Collect 按输入顺序收集附件
//
// 空句柄和解析不出地址的附件直接跳过，不会用占位项代替，
// 因此返回的长度可能小于输入。不返回错误。
func (c *Collector) Collect(ctx context.Context, handles []host.AttachmentHandle) []domain.AttachmentDescriptor {
	descriptors := make([]domain.AttachmentDescriptor, 0, len(handles))

	for index, handle := range handles {
		if handle == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		meta := c.extractor.Extract(ctx, handle, index)
		filename := meta.FilenameOr("")

		url := c.resolver.Resolve(ctx, handle)
		if url == "" {
			c.log.Debug("no download url found, skipping attachment",
				zap.String("filename", filename), zap.Int("index", index))
			continue
		}

		descriptor, err := domain.NewAttachmentDescriptor(url, filename, meta)
		if err != nil {
			c.log.Debug("resolved url rejected, skipping attachment",
				zap.String("filename", filename), zap.Int("index", index), zap.String("url", url), zap.Error(err))
			continue
		}

		quality := ValidateDownloadURL(url)
		c.log.Debug("attachment collected",
			zap.String("filename", filename),
			zap.String("url", url),
			zap.Bool("drive", quality.IsDrive),
			zap.Bool("thumbnail", quality.IsThumbnail),
			zap.Bool("proxy", quality.IsProxy),
			zap.Bool("has_parameters", quality.HasParameters),
		)
		descriptors = append(descriptors, descriptor)
	}

	return descriptors
}
