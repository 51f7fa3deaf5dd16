package domain

import (
	"encoding/json"
	"errors"
)

// MessageType 页面侧与特权中继之间的消息类型
type MessageType string

const (
	MessageTypeDownloadAttachment MessageType = "downloadAttachment"
	MessageTypeFetchBlob          MessageType = "fetchAttachmentBlob"
	MessageTypeInjectPageWorld    MessageType = "inboxsdk__injectPageWorld"
)

// 响应状态
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrUnknownMessageType 消息缺少类型或类型无法识别
var ErrUnknownMessageType = errors.New("unknown message type")

// RelayRequest 发往中继的请求
type RelayRequest struct {
	RequestID string          `json:"requestId,omitempty"` // 关联请求与响应
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewRelayRequest 序列化 payload 并构造请求
func NewRelayRequest(msgType MessageType, payload interface{}) (RelayRequest, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return RelayRequest{}, err
	}
	return RelayRequest{Type: msgType, Payload: raw}, nil
}

// DownloadAttachmentPayload downloadAttachment 的请求体
type DownloadAttachmentPayload struct {
	URL      string              `json:"url"`
	Filename string              `json:"filename"`
	Metadata *AttachmentMetadata `json:"metadata,omitempty"`
}

// FetchBlobPayload fetchAttachmentBlob 的请求体
type FetchBlobPayload struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// InjectPageWorldPayload SDK 引导消息，标识需要注入脚本的目标
type InjectPageWorldPayload struct {
	TabID      int    `json:"tabId"`
	DocumentID string `json:"documentId,omitempty"`
	FrameID    *int   `json:"frameId,omitempty"`
}

// RelayPayload 中继抓取结果，只在一次往返期间存在
type RelayPayload struct {
	Status  string `json:"status,omitempty"`
	Data    string `json:"data,omitempty"` // base64 data URI
	Size    int64  `json:"size,omitempty"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"` // 失败原因
}

// RelayResponse 中继的响应，按消息类型填充不同字段
type RelayResponse struct {
	RequestID string `json:"requestId,omitempty"`
	RelayPayload
	DownloadID int64  `json:"downloadId,omitempty"`
	OK         *bool  `json:"ok,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ErrorPayload 构造失败的抓取结果
func ErrorPayload(message string) RelayPayload {
	return RelayPayload{Status: StatusError, Message: message}
}

// ErrorResponse 构造失败响应
func ErrorResponse(message string) RelayResponse {
	return RelayResponse{RelayPayload: ErrorPayload(message)}
}

// IsSuccess 判断响应是否成功
func (p RelayPayload) IsSuccess() bool {
	return p.Status == StatusSuccess
}
