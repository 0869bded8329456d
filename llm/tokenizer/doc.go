// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

// Package tokenizer 提供统一的 Token 计数与裁剪接口，
// 支持 tiktoken 精确计数与字符估算器，用于上下文段落的 Token 预算管理。
package tokenizer
