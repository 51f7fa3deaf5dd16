package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gmailbulker/internal/storage"
)

// CodeOK 成功时的业务码；失败时业务码等于 HTTP 状态码
const CodeOK = 0

// 提示信息
const (
	MsgOK                 = "ok"
	MsgInvalidJSON        = "invalid request body"
	MsgInvalidDownloadID  = "下载编号无效"
	MsgDownloadListFailed = "获取下载记录失败"
	MsgDownloadGetFailed  = "获取下载记录详情失败"
)

// Envelope 下载记录接口的响应结构，/v1/messages 直接返回中继响应不经过这里
type Envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// knownError 可以直接告诉调用方的业务错误
type knownError struct {
	target error
	status int
	msg    string
}

var knownErrors = []knownError{
	{target: storage.ErrDownloadNotFound, status: http.StatusNotFound, msg: "下载记录不存在或已过期"},
}

// OK 返回 200 和数据
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Code: CodeOK, Msg: MsgOK, Data: data})
}

// Reject 以指定状态码拒绝请求
func Reject(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Envelope{Code: status, Msg: msg})
}

// Fail 把错误翻译成响应
//
// 已知业务错误使用对应的状态码和提示；其余一律 500，提示为 fallback，
// 原始错误只记录在 gin 的错误列表里。
//
// 返回值:
//   - bool: 是否是已知业务错误
func Fail(c *gin.Context, err error, fallback string) bool {
	for _, k := range knownErrors {
		if errors.Is(err, k.target) {
			Reject(c, k.status, k.msg)
			return true
		}
	}
	_ = c.Error(err)
	Reject(c, http.StatusInternalServerError, fallback)
	return false
}
