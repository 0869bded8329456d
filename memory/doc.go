// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
Package memory 实现案件对话的分层记忆。

# 层级

  - immediate：最近 N 条对话，写入时裁剪
  - session：案件数据快照，每个键一行，upsert
  - episodic：阶段性摘要，带向量
  - semantic：共享法律知识库，切块写入

# 检索

向量索引基于 chromem-go，可持久化，启动时由 Warm 从数据库重建。
索引缺失、查询向量不可用或查询失败时按时间倒序返回最近 k 条，
调用方看到的结果形状不变。

BuildContext 并发读取四个段落，以固定的西语标题拼接成生成上下文。
*/
package memory
