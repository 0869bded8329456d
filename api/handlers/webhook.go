package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/defensoria-civil/divorcios/api"
	"github.com/defensoria-civil/divorcios/intake"
	"github.com/defensoria-civil/divorcios/messaging"
	"github.com/defensoria-civil/divorcios/messaging/waha"
	"github.com/defensoria-civil/divorcios/types"
)

// MsgMediaDownloadFailed 附件无法下载时的回复
const MsgMediaDownloadFailed = "No pudimos descargar el archivo que enviaste. ¿Podés mandarlo de nuevo?"

// InboundHandler 是 intake.Engine 的入站能力
type InboundHandler interface {
	HandleInbound(ctx context.Context, in intake.Inbound) (intake.Reply, error)
}

// =============================================================================
// 📨 WhatsApp 回调 Handler
// =============================================================================

// WebhookHandler 处理 WAHA 回调.
// 同一会话的消息按到达顺序串行处理（含附件下载），不同会话之间并行.
type WebhookHandler struct {
	engine    InboundHandler
	transport messaging.Transport
	timeout   time.Duration
	logger    *zap.Logger
	wg        sync.WaitGroup

	mu     sync.Mutex
	queues map[string][]messaging.Inbound
}

// NewWebhookHandler 创建回调处理器。timeout 为每条消息的处理上限（含附件下载与回复发送）。
func NewWebhookHandler(engine InboundHandler, transport messaging.Transport, timeout time.Duration, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &WebhookHandler{
		engine:    engine,
		transport: transport,
		timeout:   timeout,
		logger:    logger.With(zap.String("component", "webhook")),
		queues:    make(map[string][]messaging.Inbound),
	}
}

// HandleWhatsApp 处理 POST /webhook/whatsapp。立即应答，消息在后台处理。
func (h *WebhookHandler) HandleWhatsApp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	body, err := ReadBody(w, r, h.logger)
	if err != nil {
		return
	}
	msgs, err := waha.ParseWebhook(body)
	if err != nil {
		h.logger.Warn("invalid webhook payload", zap.Error(err))
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid webhook payload", nil)
		return
	}

	for _, m := range msgs {
		h.enqueue(m)
	}
	WriteJSON(w, http.StatusOK, api.WebhookAck{Received: true, Accepted: len(msgs)})
}

// Wait 等待所有进行中的消息处理完成
func (h *WebhookHandler) Wait() {
	h.wg.Wait()
}

// Drain 与 Wait 相同，但最多等到 ctx 结束；超时时仍在处理的消息继续在后台运行
func (h *WebhookHandler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.mu.Lock()
		chats := len(h.queues)
		h.mu.Unlock()
		h.logger.Warn("webhook drain timed out", zap.Int("pending_chats", chats))
		return ctx.Err()
	}
}

// =============================================================================
// 🔁 按会话排队
// =============================================================================

// enqueue 追加到会话队列；队列此前为空时启动该会话的 worker
func (h *WebhookHandler) enqueue(m messaging.Inbound) {
	h.wg.Add(1)
	h.mu.Lock()
	pending, running := h.queues[m.From]
	h.queues[m.From] = append(pending, m)
	h.mu.Unlock()
	if !running {
		go h.drain(m.From)
	}
}

// drain 依次处理会话队列直到为空，然后移除队列
func (h *WebhookHandler) drain(chatID string) {
	for {
		h.mu.Lock()
		pending := h.queues[chatID]
		if len(pending) == 0 {
			delete(h.queues, chatID)
			h.mu.Unlock()
			return
		}
		m := pending[0]
		h.queues[chatID] = pending[1:]
		h.mu.Unlock()

		h.process(m)
	}
}

func (h *WebhookHandler) process(m messaging.Inbound) {
	defer h.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic while processing message",
				zap.String("message_id", m.ID),
				zap.Any("panic", rec),
				zap.Stack("stack"))
		}
	}()

	// 与请求生命周期无关
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	in := intake.Inbound{MessageID: m.ID, Identity: m.From, Text: m.Body}
	if m.HasMedia() {
		media, err := h.transport.DownloadMedia(ctx, m.MediaURL)
		if err != nil {
			h.logger.Warn("media download failed",
				zap.String("message_id", m.ID),
				zap.Error(err))
			h.send(ctx, m.From, MsgMediaDownloadFailed)
			return
		}
		if media.MIMEType == "" {
			media.MIMEType = m.MediaMIME
		}
		in.Media = media
	}

	reply, err := h.engine.HandleInbound(ctx, in)
	if err != nil {
		h.logger.Error("message processing failed",
			zap.String("message_id", m.ID),
			zap.Error(err))
		h.send(ctx, m.From, intake.TechnicalProblemReply)
		return
	}
	if reply.ShouldSend && reply.Text != "" {
		h.send(ctx, m.From, reply.Text)
	}
}

func (h *WebhookHandler) send(ctx context.Context, chatID, text string) {
	if err := h.transport.SendText(ctx, chatID, text); err != nil {
		h.logger.Error("reply delivery failed",
			zap.String("chat_id", chatID),
			zap.Error(err))
	}
}
