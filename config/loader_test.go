// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, []string{"gemini", "ollama_cloud", "ollama"}, cfg.LLM.Order)
	assert.Equal(t, []string{"ollama", "gemini"}, cfg.LLM.EmbedOrder)
	assert.Equal(t, "nomic-embed-text", cfg.LLM.Ollama.ModelFor("embeddings"))
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Gemini.ModelFor("chat"))

	assert.Equal(t, 10, cfg.Memory.ImmediateLimit)
	assert.Equal(t, 3, cfg.Memory.EpisodicK)
	assert.Equal(t, 2, cfg.Memory.SemanticK)

	assert.Equal(t, 0.6, cfg.Guardrails.HallucinationThreshold)
	assert.Equal(t, []string{"San Rafael", "Mendoza"}, cfg.Intake.AllowedJurisdictions)
	assert.Equal(t, 18, cfg.Intake.MinAge)
	assert.Equal(t, 5*time.Minute, cfg.Intake.DedupTTL)

	assert.Equal(t, "http://waha:3000", cfg.Messaging.BaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	require.NoError(t, cfg.Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  webhook_api_key: secreto
database:
  driver: sqlite
  name: /tmp/divorcios.db
llm:
  order: [ollama]
  ollama:
    base_url: http://localhost:11434
    models:
      chat: llama3.2
intake:
  allowed_jurisdictions: [San Rafael, General Alvear]
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, "secreto", cfg.Server.WebhookAPIKey)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/divorcios.db", cfg.Database.DSN())
	assert.Equal(t, []string{"ollama"}, cfg.LLM.Order)
	assert.Equal(t, "llama3.2", cfg.LLM.Ollama.ModelFor("chat"))
	assert.Equal(t, []string{"San Rafael", "General Alvear"}, cfg.Intake.AllowedJurisdictions)

	// 未覆盖的值保持默认
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unclosed"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("DIVORCIOS_SERVER_HTTP_PORT", "9999")
	t.Setenv("DIVORCIOS_REDIS_ADDR", "redis:6379")
	t.Setenv("DIVORCIOS_LLM_ORDER", "ollama, gemini")
	t.Setenv("DIVORCIOS_LLM_ATTEMPT_TIMEOUT", "45s")
	t.Setenv("DIVORCIOS_LLM_GEMINI_API_KEY", "gm-key")
	t.Setenv("DIVORCIOS_GUARDRAILS_USE_LLM_JUDGE", "true")
	t.Setenv("DIVORCIOS_INTAKE_INCOME_THRESHOLD", "950000")
	t.Setenv("DIVORCIOS_DOCUMENTS_MIN_CONFIDENCE", "0.75")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"ollama", "gemini"}, cfg.LLM.Order)
	assert.Equal(t, 45*time.Second, cfg.LLM.AttemptTimeout)
	assert.Equal(t, "gm-key", cfg.LLM.Gemini.APIKey)
	assert.True(t, cfg.Guardrails.UseLLMJudge)
	assert.Equal(t, int64(950000), cfg.Intake.IncomeThreshold)
	assert.Equal(t, 0.75, cfg.Documents.MinConfidence)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 7000\n"), 0o644))
	t.Setenv("DIVORCIOS_SERVER_HTTP_PORT", "7100")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Server.HTTPPort)
}

func TestLoader_CustomPrefixAndBadEnv(t *testing.T) {
	t.Setenv("ENGINE_SERVER_HTTP_PORT", "not-a-number")

	_, err := NewLoader().WithEnvPrefix("ENGINE").Load()
	assert.Error(t, err)
}

func TestLoader_Validator(t *testing.T) {
	t.Setenv("DIVORCIOS_LLM_ORDER", "openai")

	_, err := NewLoader().WithValidator(func(c *Config) error { return c.Validate() }).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }, "invalid HTTP port"},
		{"empty order", func(c *Config) { c.LLM.Order = nil }, "llm.order"},
		{"too many embed tiers", func(c *Config) { c.LLM.EmbedOrder = []string{"ollama", "gemini", "ollama_cloud"} }, "one preferred provider"},
		{"threshold out of range", func(c *Config) { c.Guardrails.HallucinationThreshold = 1.5 }, "hallucination_threshold"},
		{"no jurisdictions", func(c *Config) { c.Intake.AllowedJurisdictions = nil }, "allowed_jurisdictions"},
		{"zero dedup ttl", func(c *Config) { c.Intake.DedupTTL = 0 }, "dedup_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DefaultDatabaseConfig()
	assert.Equal(t, "host=localhost port=5432 user=postgres password= dbname=def_civil sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "d"}
	assert.Equal(t, "u:p@tcp(db:3306)/d?parseTime=true", my.DSN())

	unknown := DatabaseConfig{Driver: "oracle"}
	assert.Empty(t, unknown.DSN())
}
