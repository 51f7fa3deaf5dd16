package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gmailbulker/internal/monitoring"
)

// unmatchedRoute 未命中路由的请求统一归到一个标签下，避免标签基数失控
const unmatchedRoute = "unmatched"

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// HTTPMetrics 按路由模板记录请求数、耗时与收发字节数
//
// 429 同时计入限流拦截，5xx 同时计入错误数。
func HTTPMetrics(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), time.Since(start),
			nonNegative(c.Request.ContentLength), nonNegative(int64(c.Writer.Size())))

		if status == http.StatusTooManyRequests {
			metrics.RecordRateLimitBlock("http")
		} else if status >= http.StatusInternalServerError {
			metrics.RecordError("http_error", "http")
		}
	}
}

// SystemMetrics 抓取指标前刷新运行时指标
func SystemMetrics(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.UpdateSystemMetrics()
		c.Next()
	}
}
