package relay

import (
	"fmt"
	"net/http"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"gmailbulker/internal/config"
	"gmailbulker/internal/monitoring"
	"gmailbulker/internal/pool"
	"gmailbulker/internal/storage"
	"gmailbulker/internal/storage/memory"
	"gmailbulker/internal/storage/redis"
)

// Stack 中继侧的全部组件
type Stack struct {
	Router     *Router
	Downloader *Downloader
	Fetcher    *Fetcher
	Injector   *FileInjector
	Pool       *pool.WorkerPool
	Store      storage.DownloadStore

	redis *redis.Client
	log   *zap.Logger
}

// NewStack 按配置组装中继：下载记录存储、协程池、抓取器、下载器与脚本注入
//
// 参数:
//   - cfg: 完整配置
//   - fs: 下载目录与页面脚本所在的文件系统
//   - metrics: 监控指标，可以为 nil
//   - log: 日志
//
// 返回值:
//   - *Stack: 已启动下载协程的中继，用完后调用 Close
func NewStack(cfg *config.Config, fs afero.Fs, metrics *monitoring.Metrics, log *zap.Logger) (*Stack, error) {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Stack{log: log}

	switch cfg.Download.StoreType {
	case "redis":
		client, err := redis.New(cfg.Redis, log, redis.WithPoolSize(cfg.Download.Workers+2))
		if err != nil {
			return nil, fmt.Errorf("init download store: %w", err)
		}
		s.redis = client
		s.Store = redis.NewStore(client, cfg.Download.RecordTTL)
	default:
		s.Store = memory.NewStore(cfg.Download.RecordTTL)
	}
	log.Info("download store initialized", zap.String("type", cfg.Download.StoreType))

	httpClient := &http.Client{Timeout: cfg.Relay.FetchTimeout}

	s.Pool = pool.NewWorkerPool(cfg.Download.Workers, cfg.Download.QueueSize, log)
	s.Fetcher = NewFetcher(httpClient, cfg.Relay.UserAgent, metrics, log)
	s.Downloader = NewDownloader(DownloaderOptions{
		Client:    httpClient,
		Fs:        fs,
		Dir:       cfg.Download.Dir,
		Pool:      s.Pool,
		Store:     s.Store,
		Metrics:   metrics,
		UserAgent: cfg.Relay.UserAgent,
		Logger:    log,
	})

	var injector ScriptInjector
	if cfg.Relay.PageWorld != "" {
		s.Injector = NewFileInjector(fs, cfg.Relay.PageWorld, log)
		injector = s.Injector
	}

	s.Router = NewRouter(s.Fetcher, s.Downloader, injector, metrics, log)
	s.Downloader.Start()
	return s, nil
}

// Close 停止后台下载并释放存储连接
func (s *Stack) Close() error {
	s.Downloader.Stop()
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
