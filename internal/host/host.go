// Package host 定义宿主 SDK 暴露给扩展的能力接口。
//
// 解析与元数据提取只依赖这些接口，不依赖任何具体的网页实现。
package host

import (
	"context"
	"errors"

	"github.com/PuerkitoBio/goquery"
)

// ErrNotAvailable 宿主尚未就绪或不提供该能力
var ErrNotAvailable = errors.New("host capability not available")

// AttachmentHandle 一个附件卡片的只读引用
type AttachmentHandle interface {
	// GetElement 返回附件卡片渲染后的节点，可能为 nil
	GetElement() *goquery.Selection
	// GetTitle 返回附件标题（通常就是文件名）
	GetTitle(ctx context.Context) (string, error)
	// GetDownloadURL 返回宿主给出的下载地址，可能为空或是缩略图地址
	GetDownloadURL(ctx context.Context) (string, error)
	// GetAttachmentType 返回宿主的附件类型，如 "FILE"、"DRIVE"
	GetAttachmentType() (string, error)
}

// Interactor 可选能力：模拟鼠标悬停与聚焦，促使宿主懒加载下载地址
type Interactor interface {
	Hover(ctx context.Context) error
	Focus(ctx context.Context) error
}

// BaseURLProvider 可选能力：提供解析相对链接所需的页面地址
type BaseURLProvider interface {
	BaseURL() string
}

// ClickEvent 工具栏按钮点击事件
type ClickEvent struct {
	AttachmentHandles []AttachmentHandle
}

// ButtonDescriptor 添加到附件工具栏的按钮
type ButtonDescriptor struct {
	Tooltip string
	IconURL string
	OnClick func(ctx context.Context, event ClickEvent)
}

// MessageView 一封邮件的视图
type MessageView interface {
	IsLoaded() bool
	AddAttachmentsToolbarButton(button ButtonDescriptor) error
}

// MessageViewHandler 每个邮件视图出现时被调用
type MessageViewHandler func(view MessageView)

// SDK 宿主 SDK
type SDK interface {
	RegisterMessageViewHandler(handler MessageViewHandler)
}

// Loader 加载宿主 SDK，未就绪时返回 ErrNotAvailable
type Loader interface {
	Load(ctx context.Context) (SDK, error)
}

// LoaderFunc 函数形式的 Loader
type LoaderFunc func(ctx context.Context) (SDK, error)

// Load 实现 Loader
func (f LoaderFunc) Load(ctx context.Context) (SDK, error) {
	return f(ctx)
}

// Notifier 向用户展示批次级别的提示（对应页面上的 alert）
type Notifier interface {
	Alert(message string)
}
