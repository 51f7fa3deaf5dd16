package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"gmailbulker/internal/domain"
	"gmailbulker/internal/monitoring"
	"gmailbulker/internal/pool"
	"gmailbulker/internal/sanitize"
	"gmailbulker/internal/saver"
	"gmailbulker/internal/storage"
)

// ErrDownloadNotStarted 下载队列已满或下载器已停止
var ErrDownloadNotStarted = errors.New("Download could not be started")

// DownloaderOptions 后台下载器的依赖
type DownloaderOptions struct {
	Client    *http.Client
	Fs        afero.Fs
	Dir       string
	Pool      *pool.WorkerPool
	Store     storage.DownloadStore
	Metrics   *monitoring.Metrics
	UserAgent string
	Logger    *zap.Logger
}

// Downloader 在协程池中把附件直接下载到下载目录，同名文件自动改名
type Downloader struct {
	client    *http.Client
	fs        afero.Fs
	dir       string
	pool      *pool.WorkerPool
	store     storage.DownloadStore
	metrics   *monitoring.Metrics
	userAgent string
	log       *zap.Logger
	now       func() time.Time

	// 保护目标路径的分配，避免两个下载拿到同一个名字
	pathMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDownloader 创建后台下载器
func NewDownloader(opts DownloaderOptions) *Downloader {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Downloader{
		client:    opts.Client,
		fs:        opts.Fs,
		dir:       opts.Dir,
		pool:      opts.Pool,
		store:     opts.Store,
		metrics:   opts.Metrics,
		userAgent: opts.UserAgent,
		log:       opts.Logger,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start 启动下载协程
func (d *Downloader) Start() {
	d.pool.Start(d.ctx)
}

// Stop 取消进行中的下载并等待协程退出
func (d *Downloader) Stop() {
	d.cancel()
	d.pool.Stop()
}

// Download 校验请求并在后台开始下载
//
// 参数:
//   - ctx: 只用于分配编号和保存初始记录
//   - req: 下载请求
//
// 返回值:
//   - int64: 下载编号
//   - error: 校验失败或无法开始下载
func (d *Downloader) Download(ctx context.Context, req domain.DownloadAttachmentPayload) (int64, error) {
	d.logRequest(req)

	if err := domain.ValidateDownloadRequest(req.URL, req.Filename); err != nil {
		return 0, err
	}

	id, err := d.store.NextID(ctx)
	if err != nil {
		return 0, err
	}

	record := &domain.DownloadRecord{
		ID:        id,
		URL:       req.URL,
		Filename:  req.Filename,
		State:     domain.DownloadInProgress,
		StartedAt: d.now(),
	}
	if req.Metadata != nil {
		record.ExpectedSize = domain.Deref(req.Metadata.Size, "")
	}
	if err := d.store.SaveDownload(ctx, record); err != nil {
		return 0, err
	}

	// 先计入进行中，传输可能在 TrySubmit 返回前就结束
	d.metrics.RecordDownloadStarted()
	if !d.pool.TrySubmit(func(ctx context.Context) { d.transfer(ctx, record) }) {
		d.metrics.RecordDownloadFinished(string(stateFor(ErrDownloadNotStarted)))
		d.finish(record, ErrDownloadNotStarted)
		return 0, ErrDownloadNotStarted
	}

	d.log.Info("download started", zap.String("filename", req.Filename), zap.Int64("download_id", id))
	return id, nil
}

func (d *Downloader) logRequest(req domain.DownloadAttachmentPayload) {
	url := req.URL
	if len(url) > 100 {
		url = url[:100] + "..."
	}
	if req.Metadata == nil {
		d.log.Info("download request received", zap.String("url", url), zap.String("filename", req.Filename))
		return
	}
	d.log.Info("download request received",
		zap.String("filename", req.Filename),
		zap.String("size", domain.Deref(req.Metadata.Size, "unknown")),
		zap.String("type", domain.Deref(req.Metadata.Type, "unknown")),
		zap.String("attachment_type", domain.Deref(req.Metadata.AttachmentType, "unknown")),
		zap.String("url", url))
}

// transfer 在工作协程中执行下载
func (d *Downloader) transfer(ctx context.Context, record *domain.DownloadRecord) {
	path, n, err := d.copyTo(ctx, record)
	record.Path = path
	record.BytesReceived = n
	if err != nil && path != "" {
		if rmErr := d.fs.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			d.log.Warn("failed to remove partial download", zap.String("path", path), zap.Error(rmErr))
		}
		record.Path = ""
	}
	d.metrics.RecordDownloadFinished(string(stateFor(err)))
	d.finish(record, err)
}

func (d *Downloader) copyTo(ctx context.Context, record *domain.DownloadRecord) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, record.URL, nil)
	if err != nil {
		return "", 0, err
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	f, path, err := d.reserve(record.Filename)
	if err != nil {
		return "", 0, err
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return path, n, copyErr
	}
	return path, n, closeErr
}

// reserve 分配不冲突的文件名并立即创建文件占位
func (d *Downloader) reserve(filename string) (afero.File, string, error) {
	d.pathMu.Lock()
	defer d.pathMu.Unlock()

	if err := d.fs.MkdirAll(d.dir, 0755); err != nil {
		return nil, "", fmt.Errorf("create download dir: %w", err)
	}
	path, err := saver.UniquePath(d.fs, d.dir, sanitize.SanitizeFilename(filename, "download"))
	if err != nil {
		return nil, "", err
	}
	f, err := d.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

func stateFor(err error) domain.DownloadState {
	if err != nil {
		return domain.DownloadInterrupted
	}
	return domain.DownloadComplete
}

// finish 保存最终状态并输出日志
func (d *Downloader) finish(record *domain.DownloadRecord, err error) {
	ended := d.now()
	record.EndedAt = &ended
	record.State = stateFor(err)
	if err != nil {
		record.Error = err.Error()
	}

	// 下载器自身的上下文可能已经取消，最终状态仍然要写入
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if saveErr := d.store.SaveDownload(ctx, record); saveErr != nil {
		d.log.Error("failed to save download record", zap.Int64("download_id", record.ID), zap.Error(saveErr))
	}

	if err != nil {
		d.log.Error("download error", zap.String("filename", record.Filename), zap.Int64("download_id", record.ID), zap.Error(err))
		return
	}

	d.log.Info("download completed", zap.String("filename", record.Filename), zap.String("path", record.Path))
	if record.ExpectedSize != "" && record.BytesReceived > 0 {
		d.log.Info("size verification",
			zap.String("filename", record.Filename),
			zap.String("expected", record.ExpectedSize),
			zap.String("actual", sanitize.FormatBytes(record.BytesReceived, 2)))
	}
}

// Record 查询下载记录
func (d *Downloader) Record(ctx context.Context, id int64) (*domain.DownloadRecord, error) {
	return d.store.GetDownload(ctx, id)
}

// Records 列出所有下载记录
func (d *Downloader) Records(ctx context.Context) ([]domain.DownloadRecord, error) {
	return d.store.ListDownloads(ctx)
}
