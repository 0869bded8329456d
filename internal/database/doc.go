// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
包 database 负责打开 GORM 连接并管理连接池。

Open 按驱动选择 postgres、mysql 或纯 Go sqlite（glebarez）。
PoolManager 配置连接池参数、后台健康检查，并提供 WithTransaction
与针对死锁/序列化失败的 WithTransactionRetry。每条入站消息的
持久化都在一个事务内完成。
*/
package database
