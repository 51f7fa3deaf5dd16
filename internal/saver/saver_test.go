package saver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmailbulker/internal/cache"
)

func TestFileSaver(t *testing.T) {
	ctx := context.Background()

	t.Run("写入并在延迟后释放引用", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		blobs := cache.NewBlobCache(time.Minute, 0)
		s := NewFileSaver(fs, "/dl", blobs, 20*time.Millisecond, nil)

		path, err := s.Save(ctx, "a.zip", []byte("zip"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/dl", "a.zip"), path)

		data, err := afero.ReadFile(fs, path)
		require.NoError(t, err)
		assert.Equal(t, "zip", string(data))

		assert.Equal(t, 1, blobs.Len())
		assert.Eventually(t, func() bool { return blobs.Len() == 0 }, time.Second, 5*time.Millisecond)
	})

	t.Run("同名文件追加序号", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		s := NewFileSaver(fs, "/dl", cache.NewBlobCache(time.Minute, 0), 0, nil)

		var paths []string
		for i := 0; i < 3; i++ {
			p, err := s.Save(ctx, "a.zip", []byte("zip"))
			require.NoError(t, err)
			paths = append(paths, filepath.Base(p))
		}
		assert.Equal(t, []string{"a.zip", "a (1).zip", "a (2).zip"}, paths)
	})

	t.Run("上下文已取消", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		s := NewFileSaver(afero.NewMemMapFs(), "/dl", cache.NewBlobCache(time.Minute, 0), 0, nil)
		_, err := s.Save(cancelled, "a.zip", nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestUniquePath(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/dl/report", nil, 0644))

	t.Run("丢弃目录部分", func(t *testing.T) {
		p, err := UniquePath(fs, "/dl", "../../etc/passwd")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/dl", "passwd"), p)
	})

	t.Run("没有扩展名", func(t *testing.T) {
		p, err := UniquePath(fs, "/dl", "report")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/dl", "report (1)"), p)
	})

	t.Run("非法文件名", func(t *testing.T) {
		_, err := UniquePath(fs, "/dl", "..")
		assert.Error(t, err)
	})
}
