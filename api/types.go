package api

// =============================================================================
// 📨 WhatsApp 回调
// =============================================================================

// WebhookAck 回调的即时应答；消息在后台处理
type WebhookAck struct {
	Received bool `json:"received"`
	// Accepted 进入处理的消息数（去除自己发出的、群组与非消息事件）
	Accepted int `json:"accepted"`
}

// =============================================================================
// 🏷️ 版本信息
// =============================================================================

// VersionInfo /version 响应
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}
