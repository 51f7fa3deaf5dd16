package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/storage"
)

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("编号递增", func(t *testing.T) {
		s := NewStore(time.Hour)
		first, err := s.NextID(ctx)
		require.NoError(t, err)
		second, err := s.NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), first)
		assert.Equal(t, int64(2), second)
	})

	t.Run("保存副本", func(t *testing.T) {
		s := NewStore(time.Hour)
		record := &domain.DownloadRecord{ID: 1, Filename: "a.txt", State: domain.DownloadInProgress}
		require.NoError(t, s.SaveDownload(ctx, record))

		record.State = domain.DownloadComplete
		got, err := s.GetDownload(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.DownloadInProgress, got.State)
	})

	t.Run("列表按编号排序", func(t *testing.T) {
		s := NewStore(0)
		for _, id := range []int64{3, 1, 2} {
			require.NoError(t, s.SaveDownload(ctx, &domain.DownloadRecord{ID: id}))
		}
		records, err := s.ListDownloads(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, []int64{1, 2, 3}, []int64{records[0].ID, records[1].ID, records[2].ID})
	})

	t.Run("过期记录不可见", func(t *testing.T) {
		s := NewStore(time.Minute)
		now := time.Now()
		s.now = func() time.Time { return now }
		require.NoError(t, s.SaveDownload(ctx, &domain.DownloadRecord{ID: 1}))

		s.now = func() time.Time { return now.Add(2 * time.Minute) }
		_, err := s.GetDownload(ctx, 1)
		assert.ErrorIs(t, err, storage.ErrDownloadNotFound)

		records, err := s.ListDownloads(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("不存在", func(t *testing.T) {
		_, err := NewStore(time.Hour).GetDownload(ctx, 9)
		assert.ErrorIs(t, err, storage.ErrDownloadNotFound)
	})

	t.Run("健康检查", func(t *testing.T) {
		assert.NoError(t, NewStore(time.Hour).Health(ctx))
	})
}

func BenchmarkStore_SaveDownload(b *testing.B) {
	s := NewStore(24 * time.Hour)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id, _ := s.NextID(ctx)
		s.SaveDownload(ctx, &domain.DownloadRecord{ID: id, Filename: "a.pdf", StartedAt: time.Now()})
	}
}
