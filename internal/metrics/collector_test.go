package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("divorcios", reg, zap.NewNop()), reg
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, _ := newTestCollector(t)
	c.RecordHTTPRequest("POST", "/webhook/whatsapp", 200, 10*time.Millisecond)
	c.RecordHTTPRequest("POST", "/webhook/whatsapp", 200, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/webhook/whatsapp", "200")))
}

func TestCollector_RecordProviderCall(t *testing.T) {
	c, _ := newTestCollector(t)
	c.RecordProviderCall("gemini", "gemini-2.5-flash", "chat", false, time.Second)
	c.RecordProviderCall("ollama", "llama3.1", "chat", true, 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.providerCallsTotal.WithLabelValues("gemini", "gemini-2.5-flash", "chat", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.providerCallsTotal.WithLabelValues("ollama", "llama3.1", "chat", "success")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.providerCallDuration))
}

func TestCollector_ConversationMetrics(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordTurn("collecting-dni", "validation_failed", 5*time.Millisecond)
	c.RecordDuplicate()
	c.RecordGuardrail("input", "ignore previous instructions")
	c.RecordGuardrail("output", "dni", "email")
	c.RecordDocument("dni")
	c.RecordEmbeddingsUnavailable()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues("collecting-dni", "validation_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.duplicatesTotal))
	assert.Equal(t, 3, testutil.CollectAndCount(c.guardrailsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.documentsTotal.WithLabelValues("dni")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.embeddingsUnavailable))
}

func TestCollector_Inflight(t *testing.T) {
	c, _ := newTestCollector(t)
	done := c.MessageStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inflightMessages))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inflightMessages))
}

func TestCollector_RegistersOnGivenRegistry(t *testing.T) {
	c, reg := newTestCollector(t)
	c.RecordDuplicate()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "divorcios_duplicate_messages_total")

	// 同一 registry 重复注册会 panic
	assert.Panics(t, func() { NewCollector("divorcios", reg, nil) })
}
