// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
Package testutil 提供测试共享的上下文、异步断言与内存 SQLite 仓储辅助。

# 子包

  - testutil/mocks: MockProvider（llm.Provider + llm.Embedder），
    支持 Builder 模式、错误注入、延迟与调用记录

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithName("gemini").WithResponse("hola")
	resp, err := provider.Completion(ctx, req)
*/
package testutil
