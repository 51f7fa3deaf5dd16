package sanitize

import (
	"regexp"
	"strings"
)

// 路径末尾的缩放后缀，如 "=s220"、"=w100-h80-c"
var sizeSuffixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)=s\d+(?:-[a-z0-9]+)*$`),
	regexp.MustCompile(`(?i)=w\d+(?:-h\d+)?(?:-[a-z0-9]+)*$`),
	regexp.MustCompile(`(?i)=h\d+(?:-w\d+)?(?:-[a-z0-9]+)*$`),
	regexp.MustCompile(`(?i)-s\d+(?:-[a-z0-9]+)*$`),
	regexp.MustCompile(`(?i)-w\d+(?:-h\d+)?(?:-[a-z0-9]+)*$`),
}

// 查询参数中的缩放与展示参数，保留前面的分隔符交给后续归一化处理
var queryParamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)([?&])sz=\d+`),
	regexp.MustCompile(`(?i)([?&])s=\d+`),
	regexp.MustCompile(`(?i)([?&])w=\d+`),
	regexp.MustCompile(`(?i)([?&])h=\d+`),
	regexp.MustCompile(`(?i)([?&])size=\d+`),
	regexp.MustCompile(`(?i)([?&])width=\d+`),
	regexp.MustCompile(`(?i)([?&])height=\d+`),
	regexp.MustCompile(`(?i)([?&])disp=inline`),
	regexp.MustCompile(`(?i)([?&])format=[^&]*`),
}

var (
	trailingSeparator = regexp.MustCompile(`[?&]+$`)
	repeatedAmpersand = regexp.MustCompile(`&{2,}`)
	questionAmpersand = regexp.MustCompile(`\?&+`)
	doubleSlash       = regexp.MustCompile(`([^:])//`)
)

// RemoveURLImageParameters 去掉附件地址中的缩放和展示参数
//
// 先删除路径后缀与查询参数，再清理遗留的 "&&"、"?&"、结尾的 "?"/"&" 以及协议之外的 "//"。
// 重复执行直到结果不再变化，因此函数是幂等的。
func RemoveURLImageParameters(url string) string {
	if url == "" {
		return url
	}

	cleaned := url
	for {
		next := removeImageParametersOnce(cleaned)
		if next == cleaned {
			return cleaned
		}
		cleaned = next
	}
}

func removeImageParametersOnce(url string) string {
	cleaned := url
	for _, p := range sizeSuffixPatterns {
		cleaned = p.ReplaceAllString(cleaned, "")
	}
	for _, p := range queryParamPatterns {
		cleaned = p.ReplaceAllString(cleaned, "$1")
	}

	cleaned = repeatedAmpersand.ReplaceAllString(cleaned, "&")
	cleaned = questionAmpersand.ReplaceAllString(cleaned, "?")
	cleaned = trailingSeparator.ReplaceAllString(cleaned, "")
	cleaned = doubleSlash.ReplaceAllString(cleaned, "$1/")
	return cleaned
}

var strictURLPattern = regexp.MustCompile(`^(https?://)([\w.-]+(:[\w.-]+)*@)?([\w-]+(\.[\w-]+)+)(:[0-9]+)?(/[\w\-.~:/?#\[\]@!$&'()*+,;=]*)?$`)

// StripURL 按严格的 http(s) 语法校验地址，不合法时返回空串
func StripURL(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return ""
	}
	return strictURLPattern.FindString(url)
}

// IsThumbnailURL 判断访问器返回的地址是否为缩略图/代理地址
func IsThumbnailURL(url string) bool {
	return strings.Contains(url, "=s") || strings.Contains(url, "sz=")
}
