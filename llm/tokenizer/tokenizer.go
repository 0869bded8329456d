package tokenizer

import "go.uber.org/zap"

// Tokenizer 是统一的 Token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Truncate 将文本裁剪到最多 max 个 token.
	// max <= 0 时原样返回.
	Truncate(text string, max int) (string, error)

	// Name 返回分词器的名称.
	Name() string
}

// DefaultEncoding 是上下文预算使用的编码.
const DefaultEncoding = "cl100k_base"

// New 返回 tiktoken 分词器; 编码无法加载时（离线环境需要下载 BPE 文件）
// 回退到字符估算器.
func New(encoding string, logger *zap.Logger) Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if encoding == "" {
		encoding = DefaultEncoding
	}
	t := NewTiktokenTokenizer(encoding)
	if err := t.init(); err != nil {
		logger.Warn("tiktoken unavailable, using estimator",
			zap.String("encoding", encoding),
			zap.Error(err))
		return NewEstimatorTokenizer()
	}
	return t
}
