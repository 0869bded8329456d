// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
Package main 提供 divorcios 服务端程序入口。

# 概述

cmd/divorcios 装配全部组件（存储、Provider 路由、分层记忆、护栏、
文件分类、对话引擎、WAHA 客户端），并提供 serve、migrate、ingest、
health、version 子命令。

# 核心类型

  - App：一次进程生命周期内的组件集合，按逆序释放
  - Server：以 server.Group 管理 webhook 端口与 metrics 端口及优雅关闭
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 中间件链：Recovery、RequestID（uuid）、SecurityHeaders、OTelTracing、
    MetricsMiddleware、RequestLogger、RateLimiter（基于 IP）、
    WebhookAuth（X-Api-Key 共享密钥）
  - 去重：Redis 可用时跨实例去重，否则进程内存储
  - 优雅关闭：信号监听 → 停止 webhook 端口 → 排空会话队列（有时限）→ 关闭 Metrics → 释放存储
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
