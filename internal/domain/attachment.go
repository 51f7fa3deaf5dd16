package domain

// AttachmentMetadata 从附件卡片提取的元数据，nil 表示未知。
//
// 每次解析都新建，构造完成后不再修改。
type AttachmentMetadata struct {
	Filename       *string `json:"filename"`       // 文件名
	Type           *string `json:"type"`           // 由扩展名推断的 MIME 类型
	Size           *string `json:"size"`           // 页面上显示的大小，如 "1.5 MB"
	AttachmentType *string `json:"attachmentType"` // 宿主报告的附件类型
	IsCloudLinked  bool    `json:"isCloudLinked"`  // 是否为云端网盘链接附件
}

// FilenameOr 返回文件名，未知时返回 def
func (m AttachmentMetadata) FilenameOr(def string) string {
	if m.Filename == nil || *m.Filename == "" {
		return def
	}
	return *m.Filename
}

// AttachmentDescriptor 已解析出下载地址的附件。
//
// URL 必须是非空的 http/https 地址，只能通过 NewAttachmentDescriptor 构造。
type AttachmentDescriptor struct {
	URL      string             `json:"url"`
	Filename string             `json:"filename"`
	Metadata AttachmentMetadata `json:"metadata"`
}

// NewAttachmentDescriptor 校验 URL 后创建附件描述
func NewAttachmentDescriptor(url, filename string, metadata AttachmentMetadata) (AttachmentDescriptor, error) {
	if !IsHTTPURL(url) {
		return AttachmentDescriptor{}, ErrInvalidURLFormat
	}
	return AttachmentDescriptor{
		URL:      url,
		Filename: filename,
		Metadata: metadata,
	}, nil
}

// EntryStatus 归档条目的结果
type EntryStatus string

const (
	EntryStored EntryStatus = "stored" // 已写入文件内容
	EntryFailed EntryStatus = "failed" // 写入了 ERROR_*.txt 占位
)

// EntryResult 单个附件在归档中的处理结果
type EntryResult struct {
	Name           string      `json:"name"`           // 归档内的条目名
	SourceFilename string      `json:"sourceFilename"` // 原始文件名
	URL            string      `json:"url"`
	Size           int64       `json:"size"`
	Status         EntryStatus `json:"status"`
	Error          string      `json:"error,omitempty"`
}

// StringPtr 返回 s 的指针，空串返回 nil
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref 解引用字符串指针，nil 返回 def
func Deref(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
