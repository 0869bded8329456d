// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

// Package dedup 提供按消息标识的去重存储（Redis SET NX 或进程内内存）
// 以及按会话标识串行化处理的 KeyedMutex。
//
// 网关可能重复投递同一事件，因此去重键是消息 ID 而不是会话 ID。
package dedup
