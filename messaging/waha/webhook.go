package waha

import (
	"encoding/json"
	"strings"

	"github.com/defensoria-civil/divorcios/messaging"
	"github.com/defensoria-civil/divorcios/types"
)

// WAHA 回调事件名
const (
	EventMessage    = "message"
	EventMessageAny = "message.any"
)

// Event WAHA 回调信封。旧版网关把消息放在 Messages 数组中。
type Event struct {
	ID       string          `json:"id,omitempty"`
	Event    string          `json:"event"`
	Session  string          `json:"session,omitempty"`
	Payload  *MessagePayload `json:"payload,omitempty"`
	Messages []LegacyMessage `json:"messages,omitempty"`
}

// MessagePayload message / message.any 事件的消息体
type MessagePayload struct {
	ID        string     `json:"id"`
	Timestamp int64      `json:"timestamp"`
	From      string     `json:"from"`
	FromMe    bool       `json:"fromMe"`
	To        string     `json:"to,omitempty"`
	Body      string     `json:"body"`
	HasMedia  bool       `json:"hasMedia"`
	Media     *MediaInfo `json:"media,omitempty"`
	// 旧版字段
	MediaURL string `json:"mediaUrl,omitempty"`
}

// MediaInfo 附件信息
type MediaInfo struct {
	URL      string `json:"url"`
	MIMEType string `json:"mimetype"`
	Filename string `json:"filename,omitempty"`
}

// LegacyMessage 旧版 {"messages": [...]} 回调中的一条消息
type LegacyMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	ChatID    string `json:"chatId"`
	Body      string `json:"body"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// ParseWebhook 解析回调体，返回需要处理的用户消息。
// 自己发出的消息、群组与状态广播被丢弃；非消息事件返回空列表。
func ParseWebhook(body []byte) ([]messaging.Inbound, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid webhook payload").WithCause(err)
	}

	var out []messaging.Inbound
	if ev.Payload != nil {
		if ev.Event != "" && ev.Event != EventMessage && ev.Event != EventMessageAny {
			return nil, nil
		}
		p := ev.Payload
		if p.FromMe || !acceptChat(p.From) {
			return nil, nil
		}
		m := messaging.Inbound{
			ID:        p.ID,
			From:      p.From,
			Body:      p.Body,
			Timestamp: p.Timestamp,
		}
		if p.HasMedia {
			switch {
			case p.Media != nil && p.Media.URL != "":
				m.MediaURL = p.Media.URL
				m.MediaMIME = p.Media.MIMEType
			case p.MediaURL != "":
				m.MediaURL = p.MediaURL
			}
		}
		out = append(out, m)
		return out, nil
	}

	for _, lm := range ev.Messages {
		from := lm.From
		if from == "" {
			from = lm.ChatID
		}
		if !acceptChat(from) {
			continue
		}
		out = append(out, messaging.Inbound{
			ID:        lm.ID,
			From:      from,
			Body:      lm.Body,
			Timestamp: lm.Timestamp,
		})
	}
	return out, nil
}

func acceptChat(from string) bool {
	if from == "" || from == "status@broadcast" {
		return false
	}
	return !strings.HasSuffix(from, "@g.us")
}
