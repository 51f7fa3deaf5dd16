package domain

import (
	"errors"
	"strings"
)

// 验证相关的错误定义
var (
	ErrMissingURLOrFilename = errors.New("URL or filename missing")
	ErrMissingURL           = errors.New("URL is required")
	ErrInvalidURLFormat     = errors.New("Invalid URL format")
)

// IsHTTPURL 判断地址是否以 http:// 或 https:// 开头
func IsHTTPURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// ValidateDownloadRequest 校验下载请求
//
// 参数:
//   - url: 附件地址，必须是 http/https
//   - filename: 保存的文件名，不能为空
//
// 返回值:
//   - error: 校验失败时返回 ErrMissingURLOrFilename 或 ErrInvalidURLFormat
func ValidateDownloadRequest(url, filename string) error {
	if url == "" || filename == "" {
		return ErrMissingURLOrFilename
	}
	if !IsHTTPURL(url) {
		return ErrInvalidURLFormat
	}
	return nil
}

// ValidateFetchRequest 校验抓取请求，只要求 URL 存在
func ValidateFetchRequest(url string) error {
	if url == "" {
		return ErrMissingURL
	}
	return nil
}
