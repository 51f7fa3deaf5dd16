// Package webmail 基于 goquery 实现宿主 SDK，从已渲染的网页邮箱页面中读取邮件视图和附件卡片。
package webmail

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/afero"

	"gmailbulker/internal/host"
	"gmailbulker/internal/sanitize"
)

const (
	// 邮件视图：展开的邮件块
	messageViewSelector = "div.adn, [data-message-id]"
	// 附件卡片
	cardSelector = ".aZo"
	// 没有 .aZo 时退回到带 download_url 属性的元素
	fallbackCardSelector = "[download_url]"
)

// Page 一个已渲染的网页邮箱页面，实现 host.SDK
type Page struct {
	doc     *goquery.Document
	baseURL string

	mu    sync.Mutex
	views []*MessageView
}

// ParsePage 解析页面 HTML
//
// 参数:
//   - r: 页面 HTML
//   - baseURL: 页面地址，用于解析相对链接
func ParsePage(r io.Reader, baseURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	p := &Page{doc: doc, baseURL: baseURL}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && baseURL == "" {
		p.baseURL = href
	}

	doc.Find(messageViewSelector).Each(func(i int, s *goquery.Selection) {
		// 嵌套匹配时只保留最外层
		if s.ParentsFiltered(messageViewSelector).Length() > 0 {
			return
		}
		p.views = append(p.views, newMessageView(p, s, i))
	})

	return p, nil
}

// OpenPage 从本地文件或 http(s) 地址加载页面
func OpenPage(ctx context.Context, fs afero.Fs, client *http.Client, source, baseURL string) (*Page, error) {
	if sanitize.StripURL(source) != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch page: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("fetch page: HTTP %d", resp.StatusCode)
		}
		if baseURL == "" {
			baseURL = source
		}
		return ParsePage(resp.Body, baseURL)
	}

	f, err := fs.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer f.Close()
	return ParsePage(f, baseURL)
}

// BaseURL 页面地址
func (p *Page) BaseURL() string {
	return p.baseURL
}

// RegisterMessageViewHandler 实现 host.SDK，对页面上的每个邮件视图调用 handler
func (p *Page) RegisterMessageViewHandler(handler host.MessageViewHandler) {
	p.mu.Lock()
	views := append([]*MessageView(nil), p.views...)
	p.mu.Unlock()

	for _, v := range views {
		handler(v)
	}
}

// MessageViews 返回页面上的所有邮件视图
func (p *Page) MessageViews() []*MessageView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*MessageView(nil), p.views...)
}

// Loader 返回总是成功加载本页面的 host.Loader
func (p *Page) Loader() host.Loader {
	return host.LoaderFunc(func(ctx context.Context) (host.SDK, error) {
		return p, nil
	})
}

// MessageView 页面上的一封邮件，实现 host.MessageView
type MessageView struct {
	page  *Page
	sel   *goquery.Selection
	id    string
	index int

	mu      sync.Mutex
	buttons []host.ButtonDescriptor
}

func newMessageView(p *Page, s *goquery.Selection, index int) *MessageView {
	id := s.AttrOr("data-message-id", "")
	if id == "" {
		id = s.AttrOr("id", fmt.Sprintf("message-%d", index))
	}
	return &MessageView{page: p, sel: s, id: id, index: index}
}

// ID 邮件视图标识
func (v *MessageView) ID() string {
	return v.id
}

// IsLoaded 折叠的邮件（class kv 或 data-loaded="false"）视为未加载
func (v *MessageView) IsLoaded() bool {
	if v.sel.HasClass("kv") {
		return false
	}
	return !strings.EqualFold(v.sel.AttrOr("data-loaded", "true"), "false")
}

// AddAttachmentsToolbarButton 实现 host.MessageView
func (v *MessageView) AddAttachmentsToolbarButton(button host.ButtonDescriptor) error {
	if button.OnClick == nil {
		return fmt.Errorf("toolbar button %q has no click handler", button.Tooltip)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.buttons = append(v.buttons, button)
	return nil
}

// Buttons 返回已添加的工具栏按钮
func (v *MessageView) Buttons() []host.ButtonDescriptor {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]host.ButtonDescriptor(nil), v.buttons...)
}

// AttachmentHandles 返回该邮件的附件卡片，顺序与页面一致
func (v *MessageView) AttachmentHandles() []host.AttachmentHandle {
	cards := v.sel.Find(cardSelector)
	if cards.Length() == 0 {
		cards = v.sel.Find(fallbackCardSelector)
	}

	handles := make([]host.AttachmentHandle, 0, cards.Length())
	cards.Each(func(_ int, s *goquery.Selection) {
		handles = append(handles, newCard(s, v.page.baseURL))
	})
	return handles
}

// Click 模拟点击第 n 个工具栏按钮
func (v *MessageView) Click(ctx context.Context, n int) error {
	buttons := v.Buttons()
	if n < 0 || n >= len(buttons) {
		return fmt.Errorf("message view %s has no toolbar button #%d", v.id, n)
	}
	buttons[n].OnClick(ctx, host.ClickEvent{AttachmentHandles: v.AttachmentHandles()})
	return nil
}
