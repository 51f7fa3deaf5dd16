package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/storage"
)

// Store 使用内存保存下载记录，进程退出即丢失
type Store struct {
	mu      sync.RWMutex
	records map[int64]*entry
	seq     int64
	ttl     time.Duration
	now     func() time.Time
}

type entry struct {
	record    domain.DownloadRecord
	expiresAt time.Time
}

// NewStore 创建内存存储
//
// 参数:
//   - ttl: 记录保留时间，<=0 表示永不过期
func NewStore(ttl time.Duration) *Store {
	return &Store{
		records: make(map[int64]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// NextID 实现 storage.DownloadStore
func (s *Store) NextID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

// SaveDownload 保存记录副本并刷新过期时间
func (s *Store) SaveDownload(ctx context.Context, record *domain.DownloadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{record: *record}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.records[record.ID] = e
	return nil
}

// GetDownload 实现 storage.DownloadStore
func (s *Store) GetDownload(ctx context.Context, id int64) (*domain.DownloadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return nil, storage.ErrDownloadNotFound
	}
	if s.expired(e) {
		delete(s.records, id)
		return nil, storage.ErrDownloadNotFound
	}
	record := e.record
	return &record, nil
}

// ListDownloads 实现 storage.DownloadStore，顺带清理过期记录
func (s *Store) ListDownloads(ctx context.Context) ([]domain.DownloadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]domain.DownloadRecord, 0, len(s.records))
	for id, e := range s.records {
		if s.expired(e) {
			delete(s.records, id)
			continue
		}
		records = append(records, e.record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// Health 内存存储总是可用
func (s *Store) Health(ctx context.Context) error {
	return nil
}

func (s *Store) expired(e *entry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}
