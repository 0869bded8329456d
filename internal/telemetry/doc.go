// Copyright (c) Defensoría Civil San Rafael Authors.
// Licensed under the MIT License.

// Package telemetry 初始化 OpenTelemetry SDK（OTLP gRPC 导出 trace 与 metric），
// 资源属性携带受理辖区、存储驱动、去重后端与向量记忆开关。
package telemetry
