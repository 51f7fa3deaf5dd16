package webmail

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"

	"gmailbulker/internal/host"
)

// 附件类型
const (
	AttachmentTypeFile  = "FILE"
	AttachmentTypeDrive = "DRIVE"
)

// Card 一个附件卡片，实现 host.AttachmentHandle、host.Interactor 和 host.BaseURLProvider
//
// 带 data-lazy-download-url 的卡片只有在 Hover 之后才会给出下载地址，
// 与网页邮箱在鼠标悬停后才生成地址的行为一致。
type Card struct {
	sel     *goquery.Selection
	baseURL string

	hovered atomic.Bool
	focused atomic.Bool
}

func newCard(s *goquery.Selection, baseURL string) *Card {
	return &Card{sel: s, baseURL: baseURL}
}

// GetElement 实现 host.AttachmentHandle
func (c *Card) GetElement() *goquery.Selection {
	return c.sel
}

// BaseURL 实现 host.BaseURLProvider
func (c *Card) BaseURL() string {
	return c.baseURL
}

// GetTitle 优先读取标题节点，其次是 download_url 中的文件名
func (c *Card) GetTitle(ctx context.Context) (string, error) {
	if title := strings.TrimSpace(c.sel.Find(".aV3").First().Text()); title != "" {
		return title, nil
	}
	if _, filename, _, ok := c.downloadURLAttr(); ok && filename != "" {
		return filename, nil
	}
	if title := strings.TrimSpace(c.sel.AttrOr("data-title", "")); title != "" {
		return title, nil
	}
	return "", host.ErrNotAvailable
}

// GetDownloadURL 解析 download_url="mime:filename:url" 属性
func (c *Card) GetDownloadURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, _, url, ok := c.downloadURLAttr(); ok {
		return url, nil
	}
	if c.hovered.Load() {
		if lazy := strings.TrimSpace(c.sel.AttrOr("data-lazy-download-url", "")); lazy != "" {
			return lazy, nil
		}
	}
	return "", nil
}

// GetAttachmentType 链接到网盘的卡片为 DRIVE，其余为 FILE
func (c *Card) GetAttachmentType() (string, error) {
	if c.sel.Find(`a[href*="drive.google.com"]`).Length() > 0 {
		return AttachmentTypeDrive, nil
	}
	return AttachmentTypeFile, nil
}

// Hover 实现 host.Interactor
func (c *Card) Hover(ctx context.Context) error {
	c.hovered.Store(true)
	return nil
}

// Focus 聚焦卡片内第一个可交互元素
func (c *Card) Focus(ctx context.Context) error {
	if c.sel.Find("a, button, [tabindex]").Length() == 0 {
		return host.ErrNotAvailable
	}
	c.focused.Store(true)
	return nil
}

// Hovered 是否已模拟过悬停
func (c *Card) Hovered() bool {
	return c.hovered.Load()
}

// downloadURLAttr 在卡片自身或其后代上查找 download_url
func (c *Card) downloadURLAttr() (mime, filename, url string, ok bool) {
	attr, found := c.sel.Attr("download_url")
	if !found {
		attr, found = c.sel.Find("[download_url]").First().Attr("download_url")
	}
	if !found {
		return "", "", "", false
	}

	parts := strings.SplitN(strings.TrimSpace(attr), ":", 3)
	if len(parts) != 3 || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
