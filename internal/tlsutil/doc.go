// Package tlsutil 为出站 HTTP 客户端（AI Provider、WAHA 网关）提供集中式 TLS 配置：
// TLS 1.2+，仅 AEAD 密码套件，可选跳过自签名证书校验。
package tlsutil
