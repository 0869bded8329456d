package messaging

import (
	"context"

	"github.com/defensoria-civil/divorcios/document"
)

// Transport 消息通道
type Transport interface {
	// SendText 向会话发送一条文本
	SendText(ctx context.Context, chatID, text string) error
	// SendDocument 向会话发送文件，caption 可为空
	SendDocument(ctx context.Context, chatID string, data []byte, filename, caption string) error
	// DownloadMedia 下载入站消息附带的媒体
	DownloadMedia(ctx context.Context, url string) (*document.Media, error)
}

// Inbound 从回调中解析出的一条用户消息
type Inbound struct {
	// ID 通道侧的消息标识，用于去重
	ID string
	// From 会话标识（例如 5492604111111@c.us）
	From string
	Body string
	// MediaURL 非空表示消息带附件
	MediaURL  string
	MediaMIME string
	Timestamp int64
}

// HasMedia 是否带附件
func (m Inbound) HasMedia() bool { return m.MediaURL != "" }
