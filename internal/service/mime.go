package service

import "strings"

// mimeTypes 扩展名到 MIME 类型的静态表，不做内容嗅探
var mimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"svg":  "image/svg+xml",
	"webp": "image/webp",
	"txt":  "text/plain",
	"csv":  "text/csv",
	"html": "text/html",
	"htm":  "text/html",
	"zip":  "application/zip",
	"rar":  "application/x-rar-compressed",
	"7z":   "application/x-7z-compressed",
	"tar":  "application/x-tar",
	"gz":   "application/gzip",
	"mp3":  "audio/mpeg",
	"mp4":  "video/mp4",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",
	"json": "application/json",
	"xml":  "application/xml",
}

// MimeTypeForExtension 按扩展名（不含点，大小写不敏感）查表，未知返回空串
func MimeTypeForExtension(ext string) string {
	return mimeTypes[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

// MimeTypeForFilename 取文件名最后一个点之后的部分查表
func MimeTypeForFilename(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		// 没有点时整个文件名被当作扩展名
		return MimeTypeForExtension(filename)
	}
	return MimeTypeForExtension(filename[i+1:])
}
