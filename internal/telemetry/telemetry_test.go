package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap/zaptest"

	"github.com/defensoria-civil/divorcios/config"
)

func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.DefaultConfig()
	cfg.Telemetry.Enabled = false
	p, err := Init(cfg, "1.0.0", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.DefaultConfig()
	cfg.Telemetry = config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "divorcios-test",
		SampleRate:   1.0,
	}
	p, err := Init(cfg, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, isSDK)

	// 没有 collector 时导出可能失败，只校验不 panic
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NotPanics(t, func() { _ = p.Shutdown(ctx) })
}

func TestResource_DescribesDeployment(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Telemetry.ServiceName = "divorcios"
	cfg.Intake.AllowedJurisdictions = []string{"San Rafael", "General Alvear"}
	cfg.Database.Driver = "postgres"
	cfg.Redis.Enabled = true
	cfg.Memory.VectorEnabled = false

	res, err := Resource(cfg, "")
	require.NoError(t, err)
	set := res.Set()

	v, ok := set.Value(semconv.ServiceVersionKey)
	require.True(t, ok)
	assert.Equal(t, "dev", v.AsString())

	v, _ = set.Value(AttrJurisdictions)
	assert.Equal(t, []string{"San Rafael", "General Alvear"}, v.AsStringSlice())
	v, _ = set.Value(AttrDatabase)
	assert.Equal(t, "postgres", v.AsString())
	v, _ = set.Value(AttrDedupBackend)
	assert.Equal(t, "redis", v.AsString())
	v, ok = set.Value(AttrVectorMemory)
	require.True(t, ok)
	assert.False(t, v.AsBool())

	cfg.Redis.Enabled = false
	res, err = Resource(cfg, "1.2.0")
	require.NoError(t, err)
	v, _ = res.Set().Value(AttrDedupBackend)
	assert.Equal(t, "memory", v.AsString())
}

func TestProviders_ShutdownNil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Enabled())
}
