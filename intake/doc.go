// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
Package intake 实现离婚受理对话状态机。

每个阶段（Phase）在固定的处理器表中有一个处理函数：校验用户输入、写入案件字段、
返回下一阶段。校验失败时案件不变并回复纠正提示。documentation / completed
阶段没有处理器，走自由问答：构建记忆上下文 → 路由器 chat 任务 → 输出护栏。

# 单轮流程

  - 按消息标识去重（Redis SET NX 或内存实现）
  - 按会话标识串行化（KeyedMutex）
  - 注入检测：拒绝但仍创建案件并记录本轮
  - 媒体消息进入 document 子流程，与当前阶段无关
  - 本轮的对话记录、即时记忆、会话快照与案件更新在同一事务中提交

只有 PERSISTENCE_FAILURE 会从 HandleInbound 返回。
*/
package intake
