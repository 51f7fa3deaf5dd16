package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gmailbulker/internal/domain"
)

// DefaultBodyLimit 中继消息入口的请求体上限，消息只携带地址与文件名
const DefaultBodyLimit int64 = 1 << 20

// BodySizeLimit 限制请求体大小，超限时回复 413 和中继错误响应
//
// 声明了 Content-Length 的请求在进入处理器前拒绝；
// 未声明长度的请求在处理器读取超限、且尚未写出响应时拒绝。
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	reject := func(c *gin.Context) {
		msg := fmt.Sprintf("request body exceeds %d bytes", maxBytes)
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, domain.ErrorResponse(msg))
	}
	limit := strconv.FormatInt(maxBytes, 10)

	return func(c *gin.Context) {
		c.Header("X-Max-Body-Size", limit)
		if c.Request.ContentLength > maxBytes {
			reject(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

		c.Next()

		if c.Writer.Written() {
			return
		}
		var maxErr *http.MaxBytesError
		for _, e := range c.Errors {
			if errors.As(e.Err, &maxErr) {
				reject(c)
				return
			}
		}
	}
}
