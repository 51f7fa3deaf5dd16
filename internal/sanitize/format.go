package sanitize

import (
	"strconv"
	"strings"
	"time"
)

var byteUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatBytes 将字节数格式化为 "1.5 KB" 形式，小数位去掉末尾的 0
func FormatBytes(bytes int64, decimals int) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	if decimals < 0 {
		decimals = 0
	}

	value := float64(bytes)
	unit := 0
	for value >= 1024 && unit < len(byteUnits)-1 {
		value /= 1024
		unit++
	}

	rounded, err := strconv.ParseFloat(strconv.FormatFloat(value, 'f', decimals, 64), 64)
	if err != nil {
		rounded = value
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + byteUnits[unit]
}

// DefaultArchiveName 生成文件名失败时的兜底 ZIP 文件名
const DefaultArchiveName = "gmail-bulker.zip"

// ArchiveName 生成 "gmail-bulker-2026-10-19T08-30-00.zip" 形式的 ZIP 文件名
func ArchiveName(t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	if len(stamp) > 19 {
		stamp = stamp[:19]
	}
	return "gmail-bulker-" + stamp + ".zip"
}
