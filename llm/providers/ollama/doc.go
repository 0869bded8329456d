// Package ollama 通过原生 HTTP API 接入本地 Ollama 与 Ollama Cloud。
//
// 聊天走 /api/chat（stream=false，图片以 base64 放入 images 字段，
// JSONMode 对应 format=json），向量走 /api/embed，健康检查走 /api/tags。
// Ollama Cloud 与本地部署的区别仅在 BaseURL 与 Bearer APIKey。
package ollama
