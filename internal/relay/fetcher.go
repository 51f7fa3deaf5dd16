package relay

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/vincent-petithory/dataurl"
	"go.uber.org/zap"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/monitoring"
	"gmailbulker/internal/sanitize"
)

// Fetcher 在特权侧抓取附件并编码为 data URI
type Fetcher struct {
	client    *http.Client
	userAgent string
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewFetcher 创建附件抓取器
//
// 参数:
//   - client: HTTP 客户端，nil 时使用 http.DefaultClient
//   - userAgent: 请求头中的 User-Agent，留空不设置
//   - metrics: 监控指标，可以为 nil
//   - log: 日志
func NewFetcher(client *http.Client, userAgent string, metrics *monitoring.Metrics, log *zap.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{client: client, userAgent: userAgent, metrics: metrics, log: log}
}

// Fetch 下载 url 的全部内容
//
// 网络错误和非 2xx 响应都以 status=error 的结果返回，不返回 error。
//
// 参数:
//   - ctx: 上下文
//   - url: 附件地址
//   - filename: 仅用于日志
func (f *Fetcher) Fetch(ctx context.Context, url, filename string) domain.RelayPayload {
	start := time.Now()
	f.log.Debug("fetching blob for zip", zap.String("filename", filename))

	payload, err := f.fetch(ctx, url)
	if err != nil {
		f.metrics.RecordFetch(domain.StatusError, time.Since(start), 0)
		f.log.Warn("failed to fetch attachment", zap.String("filename", filename), zap.Error(err))
		return domain.ErrorPayload(err.Error())
	}

	f.metrics.RecordFetch(domain.StatusSuccess, time.Since(start), payload.Size)
	f.log.Info("blob fetched",
		zap.String("filename", filename),
		zap.String("size", sanitize.FormatBytes(payload.Size, 2)),
		zap.String("type", payload.Type))
	return payload
}

func (f *Fetcher) fetch(ctx context.Context, url string) (domain.RelayPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.RelayPayload{}, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.RelayPayload{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.RelayPayload{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.RelayPayload{}, fmt.Errorf("read blob data: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mimetype.Detect(body).String()
	}

	return domain.RelayPayload{
		Status: domain.StatusSuccess,
		Data:   EncodeDataURL(body, contentType),
		Size:   int64(len(body)),
		Type:   contentType,
	}, nil
}

// EncodeDataURL 把内容编码为 base64 data URI，无法解析的类型按 application/octet-stream 处理
func EncodeDataURL(data []byte, contentType string) string {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || strings.Count(mediaType, "/") != 1 {
		mediaType, params = "application/octet-stream", nil
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, params[k])
	}
	return dataurl.New(data, mediaType, pairs...).String()
}
