// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

/*
包 metrics 基于 Prometheus client_golang 提供业务指标采集。

Collector 覆盖 HTTP 请求、AI Provider 尝试（provider/model/task/status
与耗时）、向量降级、按阶段与结果统计的会话轮次、去重丢弃、护栏触发、
文档分类以及处理中的消息数。指标通过独立端口的 /metrics 暴露。
*/
package metrics
