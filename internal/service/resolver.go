package service

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"gmailbulker/internal/config"
	"gmailbulker/internal/host"
	"gmailbulker/internal/sanitize"
)

var driveFileID = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)

// link 卡片内的一个链接，href 已解析为绝对地址
type link struct {
	href     string
	download bool
}

// domRule 一条从卡片节点中挑选下载地址的规则，不修改文档
type domRule struct {
	name  string
	match func(links []link, el *goquery.Selection, base *url.URL) string
}

// domRules 按优先级排列，第一个给出结果的规则胜出
var domRules = []domRule{
	{"drive-file", func(links []link, _ *goquery.Selection, _ *url.URL) string {
		for _, l := range links {
			if !strings.Contains(l.href, "drive.google.com/file/d/") {
				continue
			}
			if m := driveFileID.FindStringSubmatch(l.href); m != nil {
				return "https://drive.google.com/uc?export=download&id=" + m[1]
			}
		}
		return ""
	}},
	{"download-attribute", func(links []link, _ *goquery.Selection, _ *url.URL) string {
		return firstLink(links, func(l link) bool {
			return l.download && strings.Contains(l.href, "googleusercontent.com") && !l.thumbnail()
		})
	}},
	{"mail-attachment", func(links []link, _ *goquery.Selection, _ *url.URL) string {
		return firstLink(links, func(l link) bool {
			return strings.Contains(l.href, "mail-attachment.googleusercontent.com") && !l.thumbnail()
		})
	}},
	{"view-att", func(links []link, _ *goquery.Selection, _ *url.URL) string {
		return firstLink(links, func(l link) bool {
			return strings.Contains(l.href, "/mail/") && strings.Contains(l.href, "view=att") && !l.thumbnail()
		})
	}},
	{"attid", func(links []link, _ *goquery.Selection, _ *url.URL) string {
		return firstLink(links, func(l link) bool { return strings.Contains(l.href, "attid=") && !l.thumbnail() })
	}},
	{"disp-attd", func(links []link, _ *goquery.Selection, _ *url.URL) string {
		return firstLink(links, func(l link) bool { return strings.Contains(l.href, "disp=attd") && !l.thumbnail() })
	}},
	{"full-size-googleusercontent", func(links []link, _ *goquery.Selection, _ *url.URL) string {
		return firstLink(links, func(l link) bool {
			return strings.Contains(l.href, "googleusercontent.com") && !hasSizeMarker(l.href)
		})
	}},
	{"mail-link", func(links []link, _ *goquery.Selection, _ *url.URL) string {
		// 只看第一个非缩略图的 /mail/ 链接
		for _, l := range links {
			if !strings.Contains(l.href, "/mail/") || l.thumbnail() {
				continue
			}
			if strings.Contains(l.href, "view=") || strings.Contains(l.href, "attid=") || strings.Contains(l.href, "attach") {
				return l.href
			}
			return ""
		}
		return ""
	}},
	{"cleaned-googleusercontent", func(links []link, _ *goquery.Selection, _ *url.URL) string {
		href := firstLink(links, func(l link) bool { return strings.Contains(l.href, "googleusercontent.com") })
		return sanitize.RemoveURLImageParameters(href)
	}},
	{"image-source", func(_ []link, el *goquery.Selection, base *url.URL) string {
		var found string
		el.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
			src := resolveHref(base, img.AttrOr("src", ""))
			if strings.Contains(src, "googleusercontent.com") {
				found = sanitize.RemoveURLImageParameters(src)
				return false
			}
			return true
		})
		return found
	}},
}

func firstLink(links []link, pred func(link) bool) string {
	for _, l := range links {
		if pred(l) {
			return l.href
		}
	}
	return ""
}

// sizedPath 路径末尾的缩放后缀，如 "=s220"、"=w100-h100"、"=s220-c"
var sizedPath = regexp.MustCompile(`=[swh]\d+(-[a-z0-9]+)*$`)

// thumbnail 链接是否指向缩略图：路径带缩放后缀或查询参数里有 sz
//
// 只看路径末尾和 sz 参数，"disp=safe" 这类查询参数不算缩放标记。
func (l link) thumbnail() bool {
	u, err := url.Parse(l.href)
	if err != nil {
		return hasSizeMarker(l.href)
	}
	return sizedPath.MatchString(u.Path) || u.Query().Has("sz")
}

func hasSizeMarker(href string) bool {
	return strings.Contains(href, "=s") || strings.Contains(href, "sz=") ||
		strings.Contains(href, "=w") || strings.Contains(href, "=h")
}

// resolveHref 按页面地址把相对链接解析为绝对地址，无法解析时原样返回
func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// URLQuality 下载地址的质量判断，只用于日志
type URLQuality struct {
	IsProxy       bool
	IsThumbnail   bool
	HasParameters bool
	IsDrive       bool
}

// ValidateDownloadURL 判断地址是否为代理、缩略图、带参数或网盘直链
func ValidateDownloadURL(u string) URLQuality {
	var q URLQuality
	if u == "" {
		return q
	}
	if strings.Contains(u, "drive.google.com/uc?export=download") {
		q.IsDrive = true
		return q
	}

	q.IsThumbnail = strings.Contains(u, "=s") || strings.Contains(u, "=w") || strings.Contains(u, "=h") ||
		strings.Contains(u, "/sz=") || strings.Contains(u, "&sz=")
	q.IsProxy = strings.Contains(u, "&disp=inline") || strings.Contains(u, "?disp=inline")
	q.HasParameters = strings.ContainsAny(u, "?&")
	return q
}

// Resolver 为附件卡片找到最好的下载地址
type Resolver struct {
	settleDelay time.Duration
	retryDelay  time.Duration
	maxRetries  int
	baseURL     string
	log         *zap.Logger
}

// NewResolver 创建地址解析器
func NewResolver(cfg config.ResolverConfig, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		settleDelay: cfg.SettleDelay,
		retryDelay:  cfg.RetryDelay,
		maxRetries:  cfg.MaxRetries,
		baseURL:     cfg.BaseURL,
		log:         log,
	}
}

// Resolve 返回附件的下载地址，无法解析时返回空串
//
// 先模拟悬停和聚焦，再向宿主访问器要地址（空值重试、缩略图直接放弃），
// 最后按规则从卡片节点中挑选。不返回错误，也不会 panic。
//
// 参数:
//   - ctx: 取消时立即返回已有结果
//   - handle: 附件卡片
//
// 返回值:
//   - string: 下载地址，"" 表示未解析
func (r *Resolver) Resolve(ctx context.Context, handle host.AttachmentHandle) (resolved string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Debug("resolve download url panicked", zap.Any("panic", rec))
			resolved = ""
		}
	}()

	if handle == nil {
		return ""
	}

	base := r.base(handle)
	if u := r.fromAccessor(ctx, handle, base); u != "" {
		return u
	}

	el := handle.GetElement()
	if el == nil || el.Length() == 0 {
		return ""
	}
	return r.ExtractFromElement(el, base)
}

// ExtractFromElement 依次应用 DOM 规则
func (r *Resolver) ExtractFromElement(el *goquery.Selection, base *url.URL) string {
	if el == nil {
		return ""
	}

	var links []link
	el.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		_, download := a.Attr("download")
		links = append(links, link{href: resolveHref(base, href), download: download})
	})

	for _, rule := range domRules {
		if u := rule.match(links, el, base); u != "" {
			r.log.Debug("download url found in element", zap.String("rule", rule.name), zap.String("url", u))
			return u
		}
	}
	return ""
}

func (r *Resolver) fromAccessor(ctx context.Context, handle host.AttachmentHandle, base *url.URL) string {
	r.interact(ctx, handle)

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 && !sleep(ctx, r.retryDelay) {
			return ""
		}

		u, err := handle.GetDownloadURL(ctx)
		if err != nil {
			r.log.Debug("download url accessor failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if sanitize.IsThumbnailURL(u) {
			r.log.Debug("accessor returned thumbnail url", zap.String("url", u))
			return ""
		}
		return resolveHref(base, u)
	}
	return ""
}

// interact 模拟悬停和聚焦，然后等待宿主生成地址
func (r *Resolver) interact(ctx context.Context, handle host.AttachmentHandle) {
	in, ok := handle.(host.Interactor)
	if !ok {
		return
	}
	if err := in.Hover(ctx); err != nil {
		r.log.Debug("hover attachment failed", zap.Error(err))
	}
	if err := in.Focus(ctx); err != nil {
		r.log.Debug("focus attachment failed", zap.Error(err))
	}
	sleep(ctx, r.settleDelay)
}

func (r *Resolver) base(handle host.AttachmentHandle) *url.URL {
	raw := r.baseURL
	if p, ok := handle.(host.BaseURLProvider); ok && p.BaseURL() != "" {
		raw = p.BaseURL()
	}
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		r.log.Debug("invalid base url", zap.String("base_url", raw), zap.Error(err))
		return nil
	}
	return u
}

// sleep 等待 d，ctx 取消时返回 false
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
