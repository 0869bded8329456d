package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// ClientOptions 控制出站 HTTP 客户端（AI Provider、WAHA）的连接行为.
type ClientOptions struct {
	// Timeout 为整次请求的上限；路由器另有每次尝试的 context 超时.
	Timeout time.Duration
	// InsecureSkipVerify 仅用于内网自签名证书的 Ollama / WAHA 部署.
	InsecureSkipVerify bool
	// MaxIdleConnsPerHost 为 0 时使用 16.
	MaxIdleConnsPerHost int
}

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// NewTransport 根据选项构建 http.Transport.
func NewTransport(opts ClientOptions) *http.Transport {
	tlsCfg := DefaultTLSConfig()
	if opts.InsecureSkipVerify {
		tlsCfg.InsecureSkipVerify = true //nolint:gosec // opt-in for self-signed internal gateways
	}
	perHost := opts.MaxIdleConnsPerHost
	if perHost <= 0 {
		perHost = 16
	}
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tlsCfg,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   perHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewHTTPClient returns an http.Client with TLS hardening.
func NewHTTPClient(opts ClientOptions) *http.Client {
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: NewTransport(opts),
	}
}

// SecureHTTPClient 是 NewHTTPClient 的简写，只设置超时.
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return NewHTTPClient(ClientOptions{Timeout: timeout})
}
