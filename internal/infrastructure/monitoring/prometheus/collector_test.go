package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/logging"
)

func newTestCollector(t *testing.T) MetricsCollector {
	t.Helper()
	cfg := CollectorConfig{
		Namespace: "test",
		Subsystem: "unit",
	}
	c, err := NewMetricsCollector(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	return c
}

func scrapeMetrics(t *testing.T, collector MetricsCollector) string {
	t.Helper()
	handler := collector.Handler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestNewMetricsCollector_ValidConfig(t *testing.T) {
	c := newTestCollector(t)
	assert.NotNil(t, c)
}

func TestNewMetricsCollector_EmptyNamespace(t *testing.T) {
	cfg := CollectorConfig{
		Subsystem: "unit",
	}
	_, err := NewMetricsCollector(cfg, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestNewMetricsCollector_WithProcessMetrics(t *testing.T) {
	cfg := CollectorConfig{
		Namespace:            "test",
		EnableProcessMetrics: true,
	}
	c, err := NewMetricsCollector(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	output := scrapeMetrics(t, c)
	assert.Contains(t, output, "process_cpu_seconds_total")
}

func TestRegisterCounter_Success(t *testing.T) {
	c := newTestCollector(t)
	counter := c.RegisterCounter("requests_total", "Total requests")
	counter.WithLabelValues().Inc()

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, "test_unit_requests_total")
}

func TestRegisterCounter_WithLabels(t *testing.T) {
	c := newTestCollector(t)
	counter := c.RegisterCounter("molecules", "Molecules", "outcome")
	counter.WithLabelValues("prepared").Add(5)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, "test_unit_molecules{outcome=\"prepared\"}")
}

func TestRegisterCounter_DuplicateReturnsSame(t *testing.T) {
	c := newTestCollector(t)
	c1 := c.RegisterCounter("dup_counter", "help")
	c2 := c.RegisterCounter("dup_counter", "help")

	c1.WithLabelValues().Inc()
	c2.WithLabelValues().Inc()

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, "test_unit_dup_counter 2")
}

func TestRegisterCounter_ConflictingLabelsDegradesToNoop(t *testing.T) {
	cfg := CollectorConfig{Namespace: "test"}
	c, err := NewMetricsCollector(cfg, logging.NewNopLogger())
	require.NoError(t, err)

	// Re-registering the same name must not panic regardless of label set.
	c1 := c.RegisterCounter("conflict", "help", "a")
	c1.WithLabelValues("x").Inc()
	assert.NotPanics(t, func() {
		c2 := c.RegisterCounter("conflict", "help", "b")
		c2.WithLabelValues("y").Inc()
	})
}

func TestRegisterGauge_SetAndMove(t *testing.T) {
	c := newTestCollector(t)
	g := c.RegisterGauge("in_flight", "In flight")
	g.WithLabelValues().Set(3)
	g.WithLabelValues().Inc()
	g.WithLabelValues().Dec()
	g.WithLabelValues().Add(2)
	g.WithLabelValues().Sub(1)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, "test_unit_in_flight 4")
}

func TestRegisterHistogram_ObservesBuckets(t *testing.T) {
	c := newTestCollector(t)
	h := c.RegisterHistogram("stage_seconds", "Stage duration", []float64{0.1, 1, 10}, "stage")
	h.WithLabelValues("desalt").Observe(0.05)
	h.WithLabelValues("desalt").Observe(5)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, "test_unit_stage_seconds_bucket")
	assert.Contains(t, output, "stage=\"desalt\"")
}

func TestRegisterHistogram_NilBucketsUseDefaults(t *testing.T) {
	c := newTestCollector(t)
	h := c.RegisterHistogram("default_buckets", "help", nil)
	h.WithLabelValues().Observe(0.2)

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, "test_unit_default_buckets_count 1")
}

func TestTimer_ObserveDuration(t *testing.T) {
	c := newTestCollector(t)
	h := c.RegisterHistogram("timed", "help", nil)

	timer := NewTimer(h.WithLabelValues())
	time.Sleep(time.Millisecond)
	timer.ObserveDuration()

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, "test_unit_timed_count 1")
}

func TestTimer_NilHistogramNoPanic(t *testing.T) {
	timer := NewTimer(nil)
	assert.NotPanics(t, timer.ObserveDuration)
}

func TestNewPrepMetrics_RegistersAll(t *testing.T) {
	c := newTestCollector(t)
	m := NewPrepMetrics(c)
	require.NotNil(t, m)

	RecordMoleculeOutcome(m, "prepared")
	RecordEmbedding(m, "etkdg", true)
	RecordStage(m, "desalt", 10*time.Millisecond)
	RecordCacheAccess(m, "canonical", true)
	RecordCacheAccess(m, "canonical", false)
	RecordDBQuery(m, "insert_molecule", time.Millisecond, nil)
	RecordError(m, "prep", "MOLPREP_003")

	output := scrapeMetrics(t, c)
	assert.Contains(t, output, "test_unit_molecules_processed_total{outcome=\"prepared\"} 1")
	assert.Contains(t, output, "test_unit_conformers_generated_total{algorithm=\"etkdg\"} 1")
	assert.Contains(t, output, "test_unit_embedding_fallbacks_total 1")
	assert.Contains(t, output, "test_unit_cache_hits_total{cache=\"canonical\"} 1")
	assert.Contains(t, output, "test_unit_cache_misses_total{cache=\"canonical\"} 1")
	assert.Contains(t, output, "test_unit_errors_total{component=\"prep\",error_code=\"MOLPREP_003\"} 1")
}
