// =============================================================================
// 📦 Divorcios 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("DIVORCIOS").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是对话引擎的完整配置结构
type Config struct {
	// Server HTTP 服务配置（webhook、健康检查、metrics）
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Database 持久化存储配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis 去重键存储配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// LLM Provider 路由配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Memory 分层记忆配置
	Memory MemoryConfig `yaml:"memory" env:"MEMORY"`

	// Guardrails 护栏配置
	Guardrails GuardrailsConfig `yaml:"guardrails" env:"GUARDRAILS"`

	// Intake 状态机与资格判定配置
	Intake IntakeConfig `yaml:"intake" env:"INTAKE"`

	// Documents 文档分类配置
	Documents DocumentsConfig `yaml:"documents" env:"DOCUMENTS"`

	// Messaging WAHA 消息网关配置
	Messaging MessagingConfig `yaml:"messaging" env:"MESSAGING"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个 IP 每秒请求数
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// WAHA 回调共享密钥（X-Api-Key），为空则不校验
	WebhookAPIKey string `yaml:"webhook_api_key" env:"WEBHOOK_API_KEY"`
	// 每条入站消息的处理超时
	MessageTimeout time.Duration `yaml:"message_timeout" env:"MESSAGE_TIMEOUT"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 死锁或序列化失败时事务的最大执行次数
	TxRetries int `yaml:"tx_retries" env:"TX_RETRIES"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用；关闭时去重使用进程内存储
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// ProviderConfig 单个 AI Provider 配置
type ProviderConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// API Key（本地 Ollama 可为空）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 默认模型
	DefaultModel string `yaml:"default_model" env:"DEFAULT_MODEL"`
	// 任务类型 → 模型，仅支持 YAML 配置
	Models map[string]string `yaml:"models" env:"-"`
	// 跳过 TLS 校验（仅限内网自签名证书）
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
}

// LLMConfig LLM 路由配置
type LLMConfig struct {
	// Gemini（OpenAI 兼容端点）
	Gemini ProviderConfig `yaml:"gemini" env:"GEMINI"`
	// 本地 Ollama
	Ollama ProviderConfig `yaml:"ollama" env:"OLLAMA"`
	// Ollama Cloud
	OllamaCloud ProviderConfig `yaml:"ollama_cloud" env:"OLLAMA_CLOUD"`
	// 生成任务的 Provider 顺序
	Order []string `yaml:"order" env:"ORDER"`
	// Embedding 的 Provider 顺序（首选 + 一级回退）
	EmbedOrder []string `yaml:"embed_order" env:"EMBED_ORDER"`
	// 每次尝试的超时
	AttemptTimeout time.Duration `yaml:"attempt_timeout" env:"ATTEMPT_TIMEOUT"`
	// 视觉 OCR 的单次超时（通常更长）
	VisionTimeout time.Duration `yaml:"vision_timeout" env:"VISION_TIMEOUT"`
	// 生成温度
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大输出 Token
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// MemoryConfig 分层记忆配置
type MemoryConfig struct {
	// 即时记忆上限
	ImmediateLimit int `yaml:"immediate_limit" env:"IMMEDIATE_LIMIT"`
	// 上下文中的即时消息数
	RecentTurns int `yaml:"recent_turns" env:"RECENT_TURNS"`
	// 情节记忆检索数
	EpisodicK int `yaml:"episodic_k" env:"EPISODIC_K"`
	// 语义记忆检索数
	SemanticK int `yaml:"semantic_k" env:"SEMANTIC_K"`
	// 是否启用向量索引
	VectorEnabled bool `yaml:"vector_enabled" env:"VECTOR_ENABLED"`
	// 向量索引持久化目录，为空则仅内存
	VectorPath string `yaml:"vector_path" env:"VECTOR_PATH"`
	// 每个上下文段落的 Token 预算，0 表示不裁剪
	SectionTokenBudget int `yaml:"section_token_budget" env:"SECTION_TOKEN_BUDGET"`
	// 知识切块大小（字符）
	ChunkSize int `yaml:"chunk_size" env:"CHUNK_SIZE"`
}

// GuardrailsConfig 护栏配置
type GuardrailsConfig struct {
	// 幻觉评分阈值
	HallucinationThreshold float64 `yaml:"hallucination_threshold" env:"HALLUCINATION_THRESHOLD"`
	// 是否启用 LLM 评审（失败时回退到规则评分）
	UseLLMJudge bool `yaml:"use_llm_judge" env:"USE_LLM_JUDGE"`
	// LLM 评审置信度阈值
	JudgeConfidence float64 `yaml:"judge_confidence" env:"JUDGE_CONFIDENCE"`
	// 额外的注入模式
	ExtraInjectionPatterns []string `yaml:"extra_injection_patterns" env:"EXTRA_INJECTION_PATTERNS"`
	// 已知地名（专有名词白名单）
	KnownPlaces []string `yaml:"known_places" env:"KNOWN_PLACES"`
}

// IntakeConfig 状态机配置
type IntakeConfig struct {
	// 受理辖区
	AllowedJurisdictions []string `yaml:"allowed_jurisdictions" env:"ALLOWED_JURISDICTIONS"`
	// 最低年龄
	MinAge int `yaml:"min_age" env:"MIN_AGE"`
	// 最多子女数
	MaxDependents int `yaml:"max_dependents" env:"MAX_DEPENDENTS"`
	// 收入基准阈值（ARS / 月）
	IncomeThreshold int64 `yaml:"income_threshold" env:"INCOME_THRESHOLD"`
	// 每个子女增加的阈值
	IncomePerDependent int64 `yaml:"income_per_dependent" env:"INCOME_PER_DEPENDENT"`
	// 去重 TTL
	DedupTTL time.Duration `yaml:"dedup_ttl" env:"DEDUP_TTL"`
	// 去重键前缀
	DedupPrefix string `yaml:"dedup_prefix" env:"DEDUP_PREFIX"`
}

// DocumentsConfig 文档分类配置
type DocumentsConfig struct {
	// 结构化提取的最低置信度
	MinConfidence float64 `yaml:"min_confidence" env:"MIN_CONFIDENCE"`
	// pdftoppm 可执行文件
	RasterizerPath string `yaml:"rasterizer_path" env:"RASTERIZER_PATH"`
	// 栅格化 DPI
	RasterizerDPI int `yaml:"rasterizer_dpi" env:"RASTERIZER_DPI"`
	// 栅格化超时
	RasterizerTimeout time.Duration `yaml:"rasterizer_timeout" env:"RASTERIZER_TIMEOUT"`
	// 媒体最大字节数
	MaxBytes int64 `yaml:"max_bytes" env:"MAX_BYTES"`
}

// MessagingConfig WAHA 网关配置
type MessagingConfig struct {
	// WAHA 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// WAHA API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// WAHA 会话名
	Session string `yaml:"session" env:"SESSION"`
	// 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 出站发送速率（条/秒）
	SendRPS float64 `yaml:"send_rps" env:"SEND_RPS"`
	// 出站突发容量
	SendBurst int `yaml:"send_burst" env:"SEND_BURST"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "DIVORCIOS",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

var knownProviders = map[string]bool{"gemini": true, "ollama": true, "ollama_cloud": true}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	if len(c.LLM.Order) == 0 {
		errs = append(errs, "llm.order must name at least one provider")
	}
	for _, name := range c.LLM.Order {
		if !knownProviders[name] {
			errs = append(errs, fmt.Sprintf("unknown provider in llm.order: %s", name))
		}
	}
	if len(c.LLM.EmbedOrder) > 2 {
		errs = append(errs, "llm.embed_order allows one preferred provider and one fallback")
	}
	for _, name := range c.LLM.EmbedOrder {
		if !knownProviders[name] {
			errs = append(errs, fmt.Sprintf("unknown provider in llm.embed_order: %s", name))
		}
	}
	if c.LLM.AttemptTimeout <= 0 {
		errs = append(errs, "llm.attempt_timeout must be positive")
	}

	if c.Memory.ImmediateLimit <= 0 {
		errs = append(errs, "memory.immediate_limit must be positive")
	}
	if c.Memory.EpisodicK < 0 || c.Memory.SemanticK < 0 {
		errs = append(errs, "memory k values must not be negative")
	}

	if c.Guardrails.HallucinationThreshold < 0 || c.Guardrails.HallucinationThreshold > 1 {
		errs = append(errs, "guardrails.hallucination_threshold must be between 0 and 1")
	}

	if len(c.Intake.AllowedJurisdictions) == 0 {
		errs = append(errs, "intake.allowed_jurisdictions must not be empty")
	}
	if c.Intake.MinAge < 0 {
		errs = append(errs, "intake.min_age must not be negative")
	}
	if c.Intake.DedupTTL <= 0 {
		errs = append(errs, "intake.dedup_ttl must be positive")
	}

	if c.Documents.MinConfidence < 0 || c.Documents.MinConfidence > 1 {
		errs = append(errs, "documents.min_confidence must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// ModelFor 返回 Provider 在给定任务类型下的模型，未配置时返回默认模型
func (p ProviderConfig) ModelFor(task string) string {
	if m, ok := p.Models[task]; ok && m != "" {
		return m
	}
	return p.DefaultModel
}
