package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/relay"
)

// fragment 解析 HTML 片段并返回第一个元素
func fragment(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body>" + html + "</body></html>"))
	require.NoError(t, err)
	return doc.Find("body").Children().First()
}

// fakeHandle 可编程的附件卡片
type fakeHandle struct {
	mu sync.Mutex

	el       *goquery.Selection
	title    string
	titleErr error
	kind     string
	urls     []string // 依次返回，用完后一直返回最后一个
	urlErr   error
	panicOn  string
	base     string

	urlCalls int
	hovered  bool
	focused  bool
}

func (h *fakeHandle) GetElement() *goquery.Selection {
	if h.panicOn == "element" {
		panic("element exploded")
	}
	return h.el
}

func (h *fakeHandle) GetTitle(ctx context.Context) (string, error) {
	if h.panicOn == "title" {
		panic("title exploded")
	}
	return h.title, h.titleErr
}

func (h *fakeHandle) GetDownloadURL(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panicOn == "url" {
		panic("url exploded")
	}
	h.urlCalls++
	if h.urlErr != nil {
		return "", h.urlErr
	}
	if len(h.urls) == 0 {
		return "", nil
	}
	i := h.urlCalls - 1
	if i >= len(h.urls) {
		i = len(h.urls) - 1
	}
	return h.urls[i], nil
}

func (h *fakeHandle) GetAttachmentType() (string, error) {
	return h.kind, nil
}

func (h *fakeHandle) Hover(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hovered = true
	return nil
}

func (h *fakeHandle) Focus(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.focused = true
	return nil
}

func (h *fakeHandle) BaseURL() string {
	return h.base
}

func (h *fakeHandle) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.urlCalls
}

// MockRelayClient 模拟中继客户端
type MockRelayClient struct {
	mock.Mock
}

func (m *MockRelayClient) Send(ctx context.Context, req domain.RelayRequest) (domain.RelayResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.RelayResponse), args.Error(1)
}

func (m *MockRelayClient) Close() error {
	return nil
}

var _ relay.Client = (*MockRelayClient)(nil)

// fetchOf 匹配抓取指定地址的请求
func fetchOf(url string) interface{} {
	return mock.MatchedBy(func(req domain.RelayRequest) bool {
		if req.Type != domain.MessageTypeFetchBlob {
			return false
		}
		var p domain.FetchBlobPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return false
		}
		return p.URL == url
	})
}

func blobResponse(data, contentType string) domain.RelayResponse {
	return domain.RelayResponse{RelayPayload: domain.RelayPayload{
		Status: domain.StatusSuccess,
		Data:   relay.EncodeDataURL([]byte(data), contentType),
		Size:   int64(len(data)),
		Type:   contentType,
	}}
}

func descriptor(t *testing.T, url, filename string) domain.AttachmentDescriptor {
	t.Helper()
	d, err := domain.NewAttachmentDescriptor(url, filename, domain.AttachmentMetadata{Filename: domain.StringPtr(filename)})
	require.NoError(t, err)
	return d
}
