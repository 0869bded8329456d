// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
Package types 提供对话引擎全局共享的错误类型。

# 概述

types 是最底层的公共包，不依赖任何内部包。intake、llm、memory、
guardrails、document 等上层模块通过统一的 Error / ErrorCode 区分
校验失败、Provider 耗尽、注入拦截、幻觉拒绝、文档低置信度与持久化失败。

# 使用方式

	err := types.NewError(types.ErrProviderExhausted, "all providers failed").
		WithCause(lastErr)
	if types.IsCode(err, types.ErrProviderExhausted) {
		// 回复固定道歉语
	}

只有 ErrPersistenceFailure 会从 intake.Engine.HandleInbound 向调用方传播，
其余错误在引擎内部被转换为面向用户的回复。
*/
package types
