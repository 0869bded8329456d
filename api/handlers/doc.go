// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 HTTP 请求处理器。

# 核心类型

  - WebhookHandler：WAHA 回调，解析消息后立即应答，按会话排队处理
  - HealthHandler：/health、/healthz（存活与组件概况）、/ready、/readyz、/version
  - Check：一项就绪检查；Critical 失败返回 503，否则状态为 degraded
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码

# 回调处理

同一会话的消息进入先进先出队列，由该会话唯一的 worker 依次执行：
下载附件 → intake.Engine.HandleInbound → 按需回复。不同会话并行。
引擎返回错误（持久化失败）时发送固定的技术问题提示。
Drain 在关闭时等待所有已应答的消息，最多到 ctx 结束。

# 就绪

数据库为关键检查；Redis 去重与 Provider 为非关键检查，
故障时对话仍能推进（重复处理或不经 LLM 的状态机回复）。
*/
package handlers
