package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/host"
)

func newTestCollector() *Collector {
	return NewCollector(newTestResolver(), NewExtractor(nil), nil)
}

func TestCollector(t *testing.T) {
	ctx := context.Background()

	t.Run("保持输入顺序并跳过无法解析的附件", func(t *testing.T) {
		handles := []host.AttachmentHandle{
			&fakeHandle{title: "a.pdf", urls: []string{"https://example.com/a.pdf"}},
			&fakeHandle{title: "missing.txt"},
			nil,
			&fakeHandle{title: "c.png", el: fragment(t, `<div><a href="https://example.com/get?attid=0.3">c</a></div>`)},
		}

		got := newTestCollector().Collect(ctx, handles)
		require.Len(t, got, 2)

		assert.Equal(t, "https://example.com/a.pdf", got[0].URL)
		assert.Equal(t, "a.pdf", got[0].Filename)
		assert.Equal(t, "application/pdf", domain.Deref(got[0].Metadata.Type, ""))

		assert.Equal(t, "https://example.com/get?attid=0.3", got[1].URL)
		assert.Equal(t, "c.png", got[1].Filename)
	})

	t.Run("拒绝非 http 地址", func(t *testing.T) {
		handles := []host.AttachmentHandle{
			&fakeHandle{title: "x", urls: []string{"ftp://example.com/x"}},
		}
		assert.Empty(t, newTestCollector().Collect(ctx, handles))
	})

	t.Run("空输入", func(t *testing.T) {
		assert.Empty(t, newTestCollector().Collect(ctx, nil))
	})

	t.Run("上下文取消后停止", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		handles := []host.AttachmentHandle{&fakeHandle{title: "a", urls: []string{"https://example.com/a"}}}
		assert.Empty(t, newTestCollector().Collect(cancelled, handles))
	})
}
