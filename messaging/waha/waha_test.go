package waha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defensoria-civil/divorcios/config"
	"github.com/defensoria-civil/divorcios/types"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return New(Config{BaseURL: server.URL + "/", APIKey: "secret", Timeout: 2 * time.Second}, nil)
}

// ---------------------------------------------------------------------------
// Outbound
// ---------------------------------------------------------------------------

func TestClient_SendText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/sendText", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		var body sendTextRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "default", body.Session)
		assert.Equal(t, "5492604111111@c.us", body.ChatID)
		assert.Equal(t, "¡Hola!", body.Text)
		fmt.Fprint(w, `{"id":"true_5492604111111@c.us_ABC"}`)
	})

	require.NoError(t, c.SendText(context.Background(), "2604111111", "¡Hola!"))
}

func TestClient_SendDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sendFile", r.URL.Path)
		var body sendFileRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "application/pdf", body.File.MIMEType)
		assert.Equal(t, "constancia.pdf", body.File.Filename)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-1.4")), body.File.Data)
		assert.Equal(t, "Tu constancia", body.Caption)
		w.WriteHeader(http.StatusCreated)
	})

	err := c.SendDocument(context.Background(), "5492604111111@c.us", []byte("%PDF-1.4"), "constancia.pdf", "Tu constancia")
	require.NoError(t, err)
}

func TestClient_SendErrors(t *testing.T) {
	tests := []struct {
		status    int
		code      types.ErrorCode
		retryable bool
	}{
		{http.StatusBadRequest, types.ErrInvalidRequest, false},
		{http.StatusTooManyRequests, types.ErrUpstreamError, true},
		{http.StatusInternalServerError, types.ErrUpstreamError, true},
		{http.StatusUnauthorized, types.ErrUpstreamError, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "session STOPPED", tt.status)
			})
			err := c.SendText(context.Background(), "x@c.us", "hola")
			require.Error(t, err)
			assert.Equal(t, tt.code, types.GetErrorCode(err))
			assert.Equal(t, tt.retryable, types.IsRetryable(err))
			assert.Contains(t, err.Error(), "session STOPPED")
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.SendText(ctx, "x@c.us", "hola")
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamTimeout, types.GetErrorCode(err))
}

func TestClient_RateLimited(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(server.Close)
	c := New(Config{BaseURL: server.URL, SendRPS: 1, SendBurst: 1}, nil)

	require.NoError(t, c.SendText(context.Background(), "x@c.us", "uno"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := c.SendText(ctx, "x@c.us", "dos")
	require.Error(t, err, "second send must wait for a token past the deadline")
	assert.Equal(t, int32(1), calls.Load())
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

func TestClient_DownloadMedia(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files/default/ABC.jpeg", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff, 0xe0})
	})

	for _, url := range []string{"/api/files/default/ABC.jpeg", c.cfg.BaseURL + "/api/files/default/ABC.jpeg", "default/ABC.jpeg"} {
		m, err := c.DownloadMedia(context.Background(), url)
		require.NoError(t, err, url)
		assert.Equal(t, "image/jpeg", m.MIMEType)
		assert.Len(t, m.Data, 4)
	}
}

func TestClient_DownloadMedia_KeyOnlyForGateway(t *testing.T) {
	var foreignKey atomic.Value
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignKey.Store(r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	t.Cleanup(foreign.Close)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte("ok"))
	})

	m, err := c.DownloadMedia(context.Background(), foreign.URL+"/media/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", m.MIMEType)
	assert.Equal(t, "", foreignKey.Load())

	_, err = c.DownloadMedia(context.Background(), "/api/files/default/x.pdf")
	require.NoError(t, err)
}

func TestClient_DownloadMediaErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	_, err := c.DownloadMedia(context.Background(), "/api/files/missing")
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	_, err = c.DownloadMedia(context.Background(), "")
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestChatID(t *testing.T) {
	assert.Equal(t, "5492604111111@c.us", ChatID("2604111111"))
	assert.Equal(t, "5492604111111@c.us", ChatID("+5492604111111"))
	assert.Equal(t, "5492604111111@c.us", ChatID("5492604111111@c.us"))
	assert.Equal(t, "123@lid", ChatID(" 123@lid "))
}

func TestMIMETypeFor(t *testing.T) {
	assert.Equal(t, "application/pdf", MIMETypeFor("acta.PDF"))
	assert.Equal(t, "image/jpeg", MIMETypeFor("dni.jpeg"))
	assert.Equal(t, "application/octet-stream", MIMETypeFor("archivo"))
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.MessagingConfig{BaseURL: "http://waha:3000", APIKey: "k", SendRPS: 2})
	assert.Equal(t, "http://waha:3000", cfg.BaseURL)
	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, "default", cfg.Session)
	assert.Equal(t, 2.0, cfg.SendRPS)
	assert.Equal(t, 10, cfg.SendBurst)
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

func TestParseWebhook(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantN     int
		wantMedia string
		wantMIME  string
	}{
		{
			name:  "text message",
			body:  `{"event":"message","session":"default","payload":{"id":"false_549@c.us_A","from":"5492604111111@c.us","fromMe":false,"body":"hola","hasMedia":false,"timestamp":1760000000}}`,
			wantN: 1,
		},
		{
			name:      "media message",
			body:      `{"event":"message","payload":{"id":"B","from":"5492604111111@c.us","body":"","hasMedia":true,"media":{"url":"http://waha:3000/api/files/default/B.jpeg","mimetype":"image/jpeg"}}}`,
			wantN:     1,
			wantMedia: "http://waha:3000/api/files/default/B.jpeg",
			wantMIME:  "image/jpeg",
		},
		{
			name:      "legacy media url",
			body:      `{"event":"message","payload":{"id":"C","from":"5492604111111@c.us","hasMedia":true,"mediaUrl":"/api/files/C.pdf"}}`,
			wantN:     1,
			wantMedia: "/api/files/C.pdf",
		},
		{
			name:  "own message on message.any",
			body:  `{"event":"message.any","payload":{"id":"D","from":"5492604111111@c.us","fromMe":true,"body":"respuesta del bot"}}`,
			wantN: 0,
		},
		{
			name:  "group chat",
			body:  `{"event":"message","payload":{"id":"E","from":"12036@g.us","body":"hola grupo"}}`,
			wantN: 0,
		},
		{
			name:  "status broadcast",
			body:  `{"event":"message","payload":{"id":"F","from":"status@broadcast","body":"estado"}}`,
			wantN: 0,
		},
		{
			name:  "session event",
			body:  `{"event":"session.status","payload":{"id":"G","from":"x@c.us"}}`,
			wantN: 0,
		},
		{
			name:  "legacy messages array",
			body:  `{"instanceId":"i","messages":[{"id":"H","chatId":"5492604111111@c.us","body":"hola"},{"id":"I","from":"1@g.us","body":"x"}]}`,
			wantN: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := ParseWebhook([]byte(tt.body))
			require.NoError(t, err)
			require.Len(t, msgs, tt.wantN)
			if tt.wantN == 0 {
				return
			}
			m := msgs[0]
			assert.Equal(t, "5492604111111@c.us", m.From)
			assert.NotEmpty(t, m.ID)
			assert.Equal(t, tt.wantMedia, m.MediaURL)
			assert.Equal(t, tt.wantMedia != "", m.HasMedia())
			assert.Equal(t, tt.wantMIME, m.MediaMIME)
		})
	}
}

func TestParseWebhook_InvalidJSON(t *testing.T) {
	_, err := ParseWebhook([]byte(`{"event":`))
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}
