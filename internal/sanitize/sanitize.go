// Package sanitize 提供文件名清理、附件地址规范化和字节数格式化等纯函数。
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// MaxFilenameLength 文件名最大长度（按字符计）
const MaxFilenameLength = 180

// MaxExtensionLength 截断时保留的扩展名最大长度（含点号）
const MaxExtensionLength = 12

var (
	// 控制字符和文件系统禁止的字符
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)
	extensionPattern     = regexp.MustCompile(`(\.[^.]*)$`)
)

// now 便于测试替换
var now = time.Now

// FallbackFilename 生成 "{base}_{毫秒时间戳}.download" 形式的兜底文件名
func FallbackFilename(base string) string {
	return fmt.Sprintf("%s_%d.download", base, now().UnixMilli())
}

// SanitizeFilename 清理文件名
//
// 非法字符替换为下划线，去掉结尾的点和空白；结果为空时使用兜底文件名；
// 超过 MaxFilenameLength 时截断，并尽量保留扩展名的前 MaxExtensionLength 个字符。
//
// 参数:
//   - name: 原始文件名
//   - fallbackBase: 兜底文件名前缀
//
// 返回值:
//   - string: 可安全写入文件系统和 ZIP 的文件名
func SanitizeFilename(name, fallbackBase string) string {
	cleaned := strings.TrimSpace(name)
	cleaned = invalidFilenameChars.ReplaceAllString(cleaned, "_")
	cleaned = trimTrailing(cleaned)

	if cleaned == "" {
		cleaned = trimTrailing(invalidFilenameChars.ReplaceAllString(FallbackFilename(fallbackBase), "_"))
	}

	runes := []rune(cleaned)
	if len(runes) > MaxFilenameLength {
		ext := []rune(extensionPattern.FindString(cleaned))
		if len(ext) > MaxExtensionLength {
			ext = ext[:MaxExtensionLength]
		}
		base := runes[:MaxFilenameLength-len(ext)]
		cleaned = trimTrailing(string(base) + string(ext))
	}

	return cleaned
}

// trimTrailing 去掉结尾的点和空白字符
func trimTrailing(s string) string {
	return strings.TrimRightFunc(s, func(r rune) bool {
		return r == '.' || unicode.IsSpace(r)
	})
}
