package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/host"
	"gmailbulker/internal/sanitize"
)

// sizeSelectors 按顺序查找显示文件大小的节点
var sizeSelectors = []string{
	".aZo span",
	".aQw span",
	`[role="link"] span`,
	".aQw",
	".aZo",
	"span[title]",
	"div[aria-label] span",
}

var sizePattern = regexp.MustCompile(`(?i)\(?(\d+\.?\d*\s*[KMGT]?B)\)?`)

// Extractor 从附件卡片中读取文件名、大小、类型
type Extractor struct {
	log *zap.Logger
}

// NewExtractor 创建元数据提取器
func NewExtractor(log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{log: log}
}

// Extract 提取附件元数据，失败的字段保持为空，不返回错误
//
// 参数:
//   - ctx: 上下文
//   - handle: 附件卡片
//   - index: 附件在列表中的位置，用于生成兜底文件名
func (e *Extractor) Extract(ctx context.Context, handle host.AttachmentHandle, index int) (meta domain.AttachmentMetadata) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Debug("extract attachment metadata panicked", zap.Int("index", index), zap.Any("panic", rec))
		}
	}()

	if handle == nil {
		return meta
	}

	title, err := handle.GetTitle(ctx)
	if err != nil || strings.TrimSpace(title) == "" {
		title = sanitize.FallbackFilename(fmt.Sprintf("attachment_%d", index))
	}
	meta.Filename = domain.StringPtr(title)

	if kind, err := handle.GetAttachmentType(); err == nil {
		meta.AttachmentType = domain.StringPtr(kind)
	}

	if el := handle.GetElement(); el != nil && el.Length() > 0 {
		meta.IsCloudLinked = el.Find(`a[href*="drive.google.com"]`).Length() > 0
		meta.Size = domain.StringPtr(findSize(el))
	}

	meta.Type = domain.StringPtr(MimeTypeForFilename(title))
	return meta
}

// findSize 第一个有匹配的选择器胜出
func findSize(el *goquery.Selection) string {
	for _, selector := range sizeSelectors {
		var size string
		el.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if m := sizePattern.FindStringSubmatch(strings.TrimSpace(s.Text())); m != nil {
				size = strings.TrimSpace(m[1])
				return false
			}
			return true
		})
		if size != "" {
			return size
		}
	}
	return ""
}
