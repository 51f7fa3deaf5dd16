package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"gmailbulker/internal/storage"
)

const (
	checkTimeout      = 5 * time.Second
	maxGoroutineCount = 10000
)

// Options 健康检查依赖
type Options struct {
	Store      storage.DownloadStore
	Fs         afero.Fs
	Dir        string                // 下载保存目录
	Registerer prometheus.Registerer // 非空时检查结果同时导出为指标
	Namespace  string
	Logger     *zap.Logger
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.DownloadStore
	fs     afero.Fs
	dir    string
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(opts Options) *HealthChecker {
	handler := healthcheck.NewHandler()
	if opts.Registerer != nil {
		handler = healthcheck.NewMetricsHandler(opts.Registerer, opts.Namespace)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	hc := &HealthChecker{
		health: handler,
		store:  opts.Store,
		fs:     opts.Fs,
		dir:    opts.Dir,
		logger: opts.Logger,
	}
	hc.addChecks()
	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutineCount))

	if hc.store != nil {
		hc.health.AddReadinessCheck("download-store", healthcheck.Timeout(hc.checkStore, checkTimeout))
	}
	if hc.fs != nil && hc.dir != "" {
		hc.health.AddReadinessCheck("download-dir", hc.checkDir)
	}
}

func (hc *HealthChecker) checkStore() error {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()
	return hc.store.Health(ctx)
}

// checkDir 下载目录存在或可以创建
func (hc *HealthChecker) checkDir() error {
	if err := hc.fs.MkdirAll(hc.dir, 0o755); err != nil {
		return fmt.Errorf("download dir %q: %w", hc.dir, err)
	}
	info, err := hc.fs.Stat(hc.dir)
	if err != nil {
		return fmt.Errorf("download dir %q: %w", hc.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("download dir %q is not a directory", hc.dir)
	}
	return nil
}

// Handler 返回健康检查处理器，提供 /live 与 /ready
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行检查并返回每项的结果
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if hc.store != nil {
		results["download-store"] = status(hc.checkStore())
	}
	if hc.fs != nil && hc.dir != "" {
		results["download-dir"] = status(hc.checkDir())
	}
	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}

func status(err error) string {
	if err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}
	return "OK"
}
