// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
包 migration 基于 golang-migrate 管理 cases、turns、memory_items 与
documents 表的 Schema 版本。

SQL 文件按方言内嵌在 migrations/{postgres,mysql} 下。sqlite 只用于本地
开发和测试，其 Schema 由 storage.AutoMigrate 创建。CLI 为
`divorcios migrate` 子命令提供格式化输出。
*/
package migration
