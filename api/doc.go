// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

// Package api 定义 HTTP 接口的线上数据类型。
//
// # 端点
//
//   - POST /webhook/whatsapp  WAHA 回调，立即应答 WebhookAck，消息在后台处理
//   - GET  /health, /healthz  存活探针，附去重后端、向量索引规模与 Provider 列表
//   - GET  /ready, /readyz    就绪探针；数据库故障返回 503，Redis 或 Provider 故障为 degraded
//   - GET  /version           VersionInfo
//
// # 认证
//
// 配置了 server.webhook_api_key 时，回调请求必须带上相同的 X-Api-Key 头。
//
// Prometheus 指标在独立端口的 /metrics 上暴露。
package api
