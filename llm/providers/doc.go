// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
# 概述

包 providers 提供 AI Provider 适配层的公共基础：请求/响应转换、
HTTP 错误映射与多模态图片编码。子包 openaicompat（Gemini 的 OpenAI 兼容端点）
与 ollama（本地与 Cloud）依赖本包完成共享逻辑。

# 核心函数

  - MapHTTPError：将 HTTP 状态码映射为 llm.Error（含 Retryable 标记）
  - MapTransportError：将超时/连接错误映射为 llm.Error
  - ConvertMessagesToOpenAI：消息转换，图片以 data URL 内联
  - ToLLMChatResponse：OpenAI 兼容响应到 llm.ChatResponse 的转换
  - ChooseModel：按优先级选择模型（请求 > 默认）
*/
package providers
