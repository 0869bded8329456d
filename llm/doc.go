// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、按任务选择模型、
有序回退路由与向量化。

# 概述

上层（对话引擎、护栏、文件分类、记忆）只依赖 [Router]。路由器按配置顺序
逐个尝试 Provider，每次尝试有独立超时；空响应、错误和超时都视为失败并转向
下一个 Provider。全部失败时返回 PROVIDER_EXHAUSTED。

# 核心接口

  - [Provider]：Completion / HealthCheck / Name
  - [Embedder]：可选能力，支持向量化的 Provider 实现它
  - [ModelSelector]：任务类型 → 模型名

# 核心类型

  - [ChatRequest] / [ChatResponse]：聊天请求与响应，支持内联 [Image]
  - [TaskType]：chat、extraction、summarization、hallucination_check、
    vision_ocr、embedding
  - [Route] / [RouterConfig]：路由表与超时配置
  - [CallOutcome]：一次尝试的结果，供日志与指标使用

# 向量化

[Router.Embed] 在所有 embedding Provider 失败时静默返回 nil，
调用方退化为关键词检索；[Router.EmbedStrict] 返回包装
[ErrEmbeddingsUnavailable] 的错误，用于知识导入。

# 相关子包

  - llm/providers：公共转换与错误映射
  - llm/providers/openaicompat：Gemini（OpenAI 兼容端点）
  - llm/providers/ollama：本地 Ollama 与 Ollama Cloud
  - llm/tokenizer：Token 计数与裁剪
*/
package llm
