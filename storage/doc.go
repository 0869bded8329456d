// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
包 storage 提供基于 GORM 的持久化仓储：案件（cases）、消息（turns）、
分层记忆（memory_items）与支持文件（documents）。

Store 聚合各仓储并通过 InTx 保证一轮消息的所有写入在同一事务中提交；
所有失败统一包装为 types.ErrPersistenceFailure。会话记忆按
(case_id, kind, session_key) 唯一索引 upsert，即时记忆写入时裁剪到上限。
*/
package storage
