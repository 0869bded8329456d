// Package config 提供对话引擎的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 DIVORCIOS）的顺序叠加，
// 覆盖 HTTP 服务、数据库、Redis、AI Provider 路由、分层记忆、护栏、
// 状态机资格阈值、文档分类与 WAHA 网关。
package config
