package storage

import (
	"context"
	"errors"

	"gmailbulker/internal/domain"
)

var (
	// ErrDownloadNotFound 下载记录不存在或已过期
	ErrDownloadNotFound = errors.New("download not found")
)

// DownloadStore 保存中继后台下载的状态记录
type DownloadStore interface {
	// NextID 分配一个新的下载编号，从 1 开始递增
	NextID(ctx context.Context) (int64, error)
	SaveDownload(ctx context.Context, record *domain.DownloadRecord) error
	GetDownload(ctx context.Context, id int64) (*domain.DownloadRecord, error)
	// ListDownloads 按编号升序返回未过期的记录
	ListDownloads(ctx context.Context) ([]domain.DownloadRecord, error)
	Health(ctx context.Context) error
}
