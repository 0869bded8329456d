// =============================================================================
// 📦 Divorcios 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Database:   DefaultDatabaseConfig(),
		Redis:      DefaultRedisConfig(),
		LLM:        DefaultLLMConfig(),
		Memory:     DefaultMemoryConfig(),
		Guardrails: DefaultGuardrailsConfig(),
		Intake:     DefaultIntakeConfig(),
		Documents:  DefaultDocumentsConfig(),
		Messaging:  DefaultMessagingConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
		MessageTimeout:  3 * time.Minute,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "",
		Name:            "def_civil",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		TxRetries:       3,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      true,
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultLLMConfig 返回默认 LLM 路由配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Gemini: ProviderConfig{
			Enabled:      true,
			BaseURL:      "https://generativelanguage.googleapis.com/v1beta/openai",
			DefaultModel: "gemini-2.5-flash",
			Models: map[string]string{
				"embeddings": "gemini-embedding-001",
			},
		},
		Ollama: ProviderConfig{
			Enabled:      true,
			BaseURL:      "http://ollama:11434",
			DefaultModel: "llama3.1",
			Models: map[string]string{
				"vision_ocr": "qwen3-vl",
				"embeddings": "nomic-embed-text",
			},
		},
		OllamaCloud: ProviderConfig{
			Enabled:      false,
			BaseURL:      "https://ollama.com",
			DefaultModel: "minimax-m2:cloud",
			Models: map[string]string{
				"hallucination_check": "glm-4.6:cloud",
				"vision_ocr":          "qwen3-vl:235b-cloud",
				"embeddings":          "nomic-embed-text",
			},
		},
		Order:          []string{"gemini", "ollama_cloud", "ollama"},
		EmbedOrder:     []string{"ollama", "gemini"},
		AttemptTimeout: 30 * time.Second,
		VisionTimeout:  90 * time.Second,
		Temperature:    0.3,
		MaxTokens:      1024,
	}
}

// DefaultMemoryConfig 返回默认记忆配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		ImmediateLimit:     10,
		RecentTurns:        10,
		EpisodicK:          3,
		SemanticK:          2,
		VectorEnabled:      true,
		VectorPath:         "",
		SectionTokenBudget: 0,
		ChunkSize:          1200,
	}
}

// DefaultGuardrailsConfig 返回默认护栏配置
func DefaultGuardrailsConfig() GuardrailsConfig {
	return GuardrailsConfig{
		HallucinationThreshold: 0.6,
		UseLLMJudge:            false,
		JudgeConfidence:        0.7,
		KnownPlaces:            []string{"san rafael", "mendoza", "argentina", "defensoría"},
	}
}

// DefaultIntakeConfig 返回默认状态机配置
func DefaultIntakeConfig() IntakeConfig {
	return IntakeConfig{
		AllowedJurisdictions: []string{"San Rafael", "Mendoza"},
		MinAge:               18,
		MaxDependents:        10,
		IncomeThreshold:      800000,
		IncomePerDependent:   150000,
		DedupTTL:             5 * time.Minute,
		DedupPrefix:          "divorcios:msg:",
	}
}

// DefaultDocumentsConfig 返回默认文档配置
func DefaultDocumentsConfig() DocumentsConfig {
	return DocumentsConfig{
		MinConfidence:     0.6,
		RasterizerPath:    "pdftoppm",
		RasterizerDPI:     150,
		RasterizerTimeout: 30 * time.Second,
		MaxBytes:          15 << 20,
	}
}

// DefaultMessagingConfig 返回默认 WAHA 配置
func DefaultMessagingConfig() MessagingConfig {
	return MessagingConfig{
		BaseURL:   "http://waha:3000",
		Session:   "default",
		Timeout:   20 * time.Second,
		SendRPS:   5,
		SendBurst: 10,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "divorcios",
		SampleRate:   0.1,
	}
}
