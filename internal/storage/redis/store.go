package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/storage"
)

const (
	defaultTTL  = time.Hour
	listTimeout = 5 * time.Second
)

// Store 把下载记录保存在 Redis 中，记录带 TTL，索引用有序集合
type Store struct {
	client *Client
	ttl    time.Duration
}

// NewStore 创建 Redis 下载记录存储
func NewStore(client *Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

func (s *Store) recordKey(id int64) string {
	return s.client.Key("download", strconv.FormatInt(id, 10))
}

func (s *Store) seqKey() string   { return s.client.Key("download", "seq") }
func (s *Store) indexKey() string { return s.client.Key("downloads") }

// NextID 实现 storage.DownloadStore
func (s *Store) NextID(ctx context.Context) (int64, error) {
	id, err := s.client.Raw().Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate download id: %w", err)
	}
	return id, nil
}

// SaveDownload 实现 storage.DownloadStore
func (s *Store) SaveDownload(ctx context.Context, record *domain.DownloadRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	pipe := s.client.Raw().TxPipeline()
	pipe.Set(ctx, s.recordKey(record.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), goredis.Z{Score: float64(record.ID), Member: record.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save download %d: %w", record.ID, err)
	}
	return nil
}

// GetDownload 实现 storage.DownloadStore
func (s *Store) GetDownload(ctx context.Context, id int64) (*domain.DownloadRecord, error) {
	data, err := s.client.Raw().Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrDownloadNotFound
		}
		return nil, err
	}

	var record domain.DownloadRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListDownloads 实现 storage.DownloadStore，索引中已过期的编号会被移除
func (s *Store) ListDownloads(ctx context.Context) ([]domain.DownloadRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	ids, err := s.client.Raw().ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	records := make([]domain.DownloadRecord, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		record, err := s.GetDownload(ctx, id)
		if errors.Is(err, storage.ErrDownloadNotFound) {
			s.client.Raw().ZRem(ctx, s.indexKey(), raw)
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// Health 实现 storage.DownloadStore
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx)
}
