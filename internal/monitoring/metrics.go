package monitoring

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
//
// 所有 Record 方法在 nil 接收者上是空操作，未接入监控的组件可以直接传 nil。
type Metrics struct {
	gatherer  prometheus.Gatherer
	startedAt time.Time

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 中继消息指标
	RelayMessagesTotal *prometheus.CounterVec

	// 附件抓取指标
	FetchDuration *prometheus.HistogramVec
	FetchSize     prometheus.Histogram

	// 后台下载指标
	DownloadsTotal  *prometheus.CounterVec
	DownloadsActive prometheus.Gauge

	// 归档指标
	ArchivesCreated prometheus.Counter
	ArchiveEntries  *prometheus.CounterVec
	ArchiveSize     prometheus.Histogram

	// 系统指标
	SystemUptime prometheus.Gauge
	MemoryUsage  prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 在默认注册表上创建监控指标，进程内只能调用一次
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWith 在指定注册表上创建监控指标，测试中使用独立的 prometheus.NewRegistry()
func NewMetricsWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer:  gatherer,
		startedAt: time.Now(),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gmailbulker_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gmailbulker_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gmailbulker_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gmailbulker_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		RelayMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gmailbulker_relay_messages_total",
				Help: "Total number of relay messages by type and status",
			},
			[]string{"type", "status"},
		),

		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gmailbulker_fetch_duration_seconds",
				Help:    "Attachment fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),

		FetchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gmailbulker_fetch_size_bytes",
				Help:    "Fetched attachment size in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 2, 20),
			},
		),

		DownloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gmailbulker_downloads_total",
				Help: "Total number of background downloads by final state",
			},
			[]string{"state"},
		),

		DownloadsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gmailbulker_downloads_active",
				Help: "Number of background downloads in progress",
			},
		),

		ArchivesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gmailbulker_archives_created_total",
				Help: "Total number of ZIP archives created",
			},
		),

		ArchiveEntries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gmailbulker_archive_entries_total",
				Help: "Total number of archive entries by status",
			},
			[]string{"status"},
		),

		ArchiveSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gmailbulker_archive_size_bytes",
				Help:    "ZIP archive size in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 12),
			},
		),

		SystemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gmailbulker_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gmailbulker_memory_usage_bytes",
				Help: "Memory usage in bytes",
			},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gmailbulker_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gmailbulker_panics_total",
				Help: "Total number of panics",
			},
		),

		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gmailbulker_rate_limit_blocks_total",
				Help: "Total number of rate limit blocks",
			},
			[]string{"type"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize, responseSize int64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordRelayMessage 记录一条中继消息的处理结果
func (m *Metrics) RecordRelayMessage(msgType, status string) {
	if m == nil {
		return
	}
	m.RelayMessagesTotal.WithLabelValues(msgType, status).Inc()
}

// RecordFetch 记录一次附件抓取
func (m *Metrics) RecordFetch(status string, duration time.Duration, size int64) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(status).Observe(duration.Seconds())
	if size > 0 {
		m.FetchSize.Observe(float64(size))
	}
}

// RecordDownloadStarted 记录后台下载开始
func (m *Metrics) RecordDownloadStarted() {
	if m == nil {
		return
	}
	m.DownloadsActive.Inc()
}

// RecordDownloadFinished 记录后台下载结束
func (m *Metrics) RecordDownloadFinished(state string) {
	if m == nil {
		return
	}
	m.DownloadsActive.Dec()
	m.DownloadsTotal.WithLabelValues(state).Inc()
}

// RecordArchive 记录一次打包
func (m *Metrics) RecordArchive(stored, failed int, size int64) {
	if m == nil {
		return
	}
	m.ArchivesCreated.Inc()
	m.ArchiveEntries.WithLabelValues("stored").Add(float64(stored))
	m.ArchiveEntries.WithLabelValues("failed").Add(float64(failed))
	m.ArchiveSize.Observe(float64(size))
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	if m == nil {
		return
	}
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// UpdateSystemMetrics 更新运行时间与内存使用
func (m *Metrics) UpdateSystemMetrics() {
	if m == nil {
		return
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.MemoryUsage.Set(float64(ms.Alloc))
	m.SystemUptime.Set(time.Since(m.startedAt).Seconds())
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
