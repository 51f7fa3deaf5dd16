package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmailbulker/internal/domain"
)

func TestExtractor(t *testing.T) {
	ctx := context.Background()
	e := NewExtractor(nil)

	t.Run("完整卡片", func(t *testing.T) {
		h := &fakeHandle{
			title: "report.pdf",
			kind:  "FILE",
			el:    fragment(t, `<span class="aZo"><span class="aV3">report.pdf</span><div class="aQw"><span>(1.5 MB)</span></div></span>`),
		}
		meta := e.Extract(ctx, h, 0)

		assert.Equal(t, "report.pdf", domain.Deref(meta.Filename, ""))
		assert.Equal(t, "application/pdf", domain.Deref(meta.Type, ""))
		assert.Equal(t, "1.5 MB", domain.Deref(meta.Size, ""))
		assert.Equal(t, "FILE", domain.Deref(meta.AttachmentType, ""))
		assert.False(t, meta.IsCloudLinked)
	})

	t.Run("网盘链接", func(t *testing.T) {
		h := &fakeHandle{
			title: "Budget.xlsx",
			kind:  "DRIVE",
			el:    fragment(t, `<div><a href="https://drive.google.com/file/d/X/view">Budget.xlsx</a><span title="size">230 KB</span></div>`),
		}
		meta := e.Extract(ctx, h, 1)

		assert.True(t, meta.IsCloudLinked)
		assert.Equal(t, "230 KB", domain.Deref(meta.Size, ""))
		assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", domain.Deref(meta.Type, ""))
	})

	t.Run("标题不可用时使用兜底文件名", func(t *testing.T) {
		h := &fakeHandle{titleErr: errors.New("no title")}
		meta := e.Extract(ctx, h, 4)

		require.NotNil(t, meta.Filename)
		assert.Regexp(t, regexp.MustCompile(`^attachment_4_\d+\.download$`), *meta.Filename)
		assert.Nil(t, meta.Type)
		assert.Nil(t, meta.Size)
	})

	t.Run("未知扩展名没有类型", func(t *testing.T) {
		meta := e.Extract(ctx, &fakeHandle{title: "notes.xyz"}, 0)
		assert.Nil(t, meta.Type)
	})

	t.Run("没有大小文本", func(t *testing.T) {
		h := &fakeHandle{title: "a.txt", el: fragment(t, `<span class="aZo"><span>a.txt</span></span>`)}
		assert.Nil(t, e.Extract(ctx, h, 0).Size)
	})

	t.Run("panic 时返回已提取的部分", func(t *testing.T) {
		h := &fakeHandle{title: "a.txt", panicOn: "element"}
		var meta domain.AttachmentMetadata
		assert.NotPanics(t, func() { meta = e.Extract(ctx, h, 0) })
		assert.Equal(t, "a.txt", domain.Deref(meta.Filename, ""))
	})

	t.Run("空句柄", func(t *testing.T) {
		assert.Equal(t, domain.AttachmentMetadata{}, e.Extract(ctx, nil, 0))
	})
}

func TestMimeTypeForFilename(t *testing.T) {
	assert.Equal(t, "image/jpeg", MimeTypeForFilename("Photo.JPG"))
	assert.Equal(t, "application/gzip", MimeTypeForFilename("backup.tar.gz"))
	assert.Equal(t, "", MimeTypeForFilename("README"))
	assert.Equal(t, "application/pdf", MimeTypeForFilename("pdf"))
	assert.Equal(t, "application/json", MimeTypeForExtension(".json"))
}
