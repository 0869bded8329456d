// =============================================================================
// WAHA (WhatsApp HTTP API) Client
// =============================================================================
// Outbound text/file delivery and inbound media download against a WAHA
// gateway. Every request carries the X-Api-Key header and is paced by a
// token bucket so bursts of replies do not trip WhatsApp's anti-spam limits.
// =============================================================================

package waha

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/defensoria-civil/divorcios/config"
	"github.com/defensoria-civil/divorcios/document"
	"github.com/defensoria-civil/divorcios/internal/tlsutil"
	"github.com/defensoria-civil/divorcios/messaging"
	"github.com/defensoria-civil/divorcios/types"
)

const (
	providerName = "waha"
	// 下载上限；超出部分由 document 服务按配置判定为过大
	maxMediaBytes = 32 << 20
)

var _ messaging.Transport = (*Client)(nil)

// Config WAHA 客户端配置
type Config struct {
	BaseURL string
	APIKey  string
	// Session WAHA 会话名，默认 "default"
	Session string
	// Timeout 单次请求超时
	Timeout time.Duration
	// SendRPS 出站速率，<=0 表示不限速
	SendRPS   float64
	SendBurst int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseURL:   "http://localhost:3000",
		Session:   "default",
		Timeout:   30 * time.Second,
		SendRPS:   5,
		SendBurst: 10,
	}
}

// ConfigFrom 由全局配置构建
func ConfigFrom(c config.MessagingConfig) Config {
	cfg := DefaultConfig()
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	cfg.APIKey = c.APIKey
	if c.Session != "" {
		cfg.Session = c.Session
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	if c.SendRPS > 0 {
		cfg.SendRPS = c.SendRPS
	}
	if c.SendBurst > 0 {
		cfg.SendBurst = c.SendBurst
	}
	return cfg
}

// Client 实现 messaging.Transport
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New 创建 WAHA 客户端
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Session == "" {
		cfg.Session = "default"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.SendRPS > 0 {
		burst := cfg.SendBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.SendRPS), burst)
	}

	return &Client{
		cfg:     cfg,
		http:    tlsutil.NewHTTPClient(tlsutil.ClientOptions{Timeout: cfg.Timeout}),
		limiter: limiter,
		logger:  logger.With(zap.String("component", "waha")),
	}
}

// =============================================================================
// 📤 出站
// =============================================================================

type sendTextRequest struct {
	Session string `json:"session"`
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
}

type filePayload struct {
	MIMEType string `json:"mimetype"`
	Filename string `json:"filename"`
	Data     string `json:"data"`
}

type sendFileRequest struct {
	Session string      `json:"session"`
	ChatID  string      `json:"chatId"`
	File    filePayload `json:"file"`
	Caption string      `json:"caption"`
}

// SendText 发送文本消息
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	chatID = ChatID(chatID)
	err := c.post(ctx, "/api/sendText", sendTextRequest{
		Session: c.cfg.Session,
		ChatID:  chatID,
		Text:    text,
	})
	if err != nil {
		c.logger.Error("send text failed", zap.String("chat_id", chatID), zap.Error(err))
		return err
	}
	c.logger.Debug("text sent", zap.String("chat_id", chatID), zap.Int("length", len(text)))
	return nil
}

// SendDocument 以 base64 发送文件
func (c *Client) SendDocument(ctx context.Context, chatID string, data []byte, filename, caption string) error {
	chatID = ChatID(chatID)
	err := c.post(ctx, "/api/sendFile", sendFileRequest{
		Session: c.cfg.Session,
		ChatID:  chatID,
		File: filePayload{
			MIMEType: MIMETypeFor(filename),
			Filename: filename,
			Data:     base64.StdEncoding.EncodeToString(data),
		},
		Caption: caption,
	})
	if err != nil {
		c.logger.Error("send document failed",
			zap.String("chat_id", chatID),
			zap.String("filename", filename),
			zap.Error(err))
		return err
	}
	c.logger.Info("document sent", zap.String("chat_id", chatID), zap.String("filename", filename))
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, body any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return transportError(err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return types.NewError(types.ErrInternalError, "encode waha request").WithCause(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return types.NewError(types.ErrInternalError, "build waha request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// =============================================================================
// 📥 媒体下载
// =============================================================================

// DownloadMedia 下载媒体。mediaURL 可以是绝对地址，也可以是 WAHA 返回的 /api/files/... 路径。
// X-Api-Key 只发给与 BaseURL 同源的地址.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) (*document.Media, error) {
	if mediaURL == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty media url")
	}
	if strings.HasPrefix(mediaURL, "/") {
		mediaURL = c.cfg.BaseURL + mediaURL
	} else if !strings.Contains(mediaURL, "://") {
		mediaURL = c.cfg.BaseURL + "/api/files/" + mediaURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "build media request").WithCause(err)
	}
	if c.sameOrigin(req.URL) {
		c.authorize(req)
	} else {
		c.logger.Debug("media url outside gateway, sending without api key", zap.String("host", req.URL.Host))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, transportError(err)
	}
	c.logger.Info("media downloaded", zap.Int("size", len(data)))
	return &document.Media{
		Data:     data,
		MIMEType: resp.Header.Get("Content-Type"),
	}, nil
}

// sameOrigin 比较 scheme 与 host（含端口）
func (c *Client) sameOrigin(u *url.URL) bool {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(base.Scheme, u.Scheme) && strings.EqualFold(base.Host, u.Host)
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// ChatID 规范化会话标识：已带 @ 后缀的原样返回；纯号码补阿根廷移动前缀 549 与 @c.us
func ChatID(identity string) string {
	identity = strings.TrimSpace(identity)
	if strings.Contains(identity, "@") {
		return identity
	}
	phone := strings.TrimPrefix(identity, "+")
	if !strings.HasPrefix(phone, "549") {
		phone = "549" + phone
	}
	return phone + "@c.us"
}

var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// MIMETypeFor 按扩展名推断 MIME 类型
func MIMETypeFor(filename string) string {
	if m, ok := mimeTypes[strings.ToLower(path.Ext(filename))]; ok {
		return m
	}
	return "application/octet-stream"
}

func statusError(resp *http.Response) *types.Error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	text := strings.TrimSpace(string(msg))
	if text == "" {
		text = resp.Status
	}
	code := types.ErrUpstreamError
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		code = types.ErrInvalidRequest
	}
	return types.NewError(code, fmt.Sprintf("waha %d: %s", resp.StatusCode, text)).
		WithHTTPStatus(resp.StatusCode).
		WithRetryable(resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500).
		WithProvider(providerName)
}

func transportError(err error) *types.Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return types.NewError(types.ErrUpstreamTimeout, "waha request timed out").
			WithCause(err).
			WithRetryable(true).
			WithProvider(providerName)
	}
	return types.NewError(types.ErrUpstreamError, "waha request failed").
		WithCause(err).
		WithRetryable(true).
		WithProvider(providerName)
}
