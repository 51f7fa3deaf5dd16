package domain

import "time"

// DownloadState 中继后台下载的状态
type DownloadState string

const (
	DownloadInProgress  DownloadState = "in_progress"
	DownloadComplete    DownloadState = "complete"
	DownloadInterrupted DownloadState = "interrupted"
)

// DownloadRecord 中继下载管理器的一条下载记录
type DownloadRecord struct {
	ID            int64         `json:"id"`
	URL           string        `json:"url"`
	Filename      string        `json:"filename"`
	Path          string        `json:"path,omitempty"` // 实际写入的路径（冲突时会改名）
	State         DownloadState `json:"state"`
	BytesReceived int64         `json:"bytesReceived"`
	ExpectedSize  string        `json:"expectedSize,omitempty"` // 页面上显示的大小
	Error         string        `json:"error,omitempty"`
	StartedAt     time.Time     `json:"startedAt"`
	EndedAt       *time.Time    `json:"endedAt,omitempty"`
}
