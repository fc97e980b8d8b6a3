package prometheus

import (
	"time"
)

// PrepMetrics holds all preparation-pipeline metrics.
type PrepMetrics struct {
	// Intake / fragment selection
	MoleculesProcessedTotal CounterVec
	MoleculesDesaltedTotal  CounterVec
	MoleculesDiscardedTotal CounterVec

	// Anomaly / repair
	AnomaliesDetectedTotal CounterVec
	RepairsAppliedTotal    CounterVec

	// Conformer generation
	ConformersGeneratedTotal  CounterVec
	ConformersEliminatedTotal CounterVec
	EmbeddingFailuresTotal    CounterVec
	EmbeddingFallbacksTotal   CounterVec
	ConformerEnergy           HistogramVec
	MinimizeDuration          HistogramVec

	// Pipeline stages
	StageDuration   HistogramVec
	BatchSize       HistogramVec
	BatchesInFlight GaugeVec

	// Infrastructure
	DBQueryDuration    HistogramVec
	CacheHitsTotal     CounterVec
	CacheMissesTotal   CounterVec
	EventsPublishTotal CounterVec

	// System health
	ErrorsTotal CounterVec
}

// Default buckets
var (
	DefaultStageDurationBuckets = []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30, 120}
	DefaultDBDurationBuckets    = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
	DefaultEnergyBuckets        = []float64{-100, -10, -1, 0, 1, 10, 100, 1000}
	DefaultBatchSizeBuckets     = []float64{1, 10, 50, 100, 500, 1000, 5000}
)

// NewPrepMetrics registers all pipeline metrics and returns them.
func NewPrepMetrics(collector MetricsCollector) *PrepMetrics {
	m := &PrepMetrics{}

	m.MoleculesProcessedTotal = collector.RegisterCounter("molecules_processed_total", "Molecules processed by the preparation pipeline", "outcome")
	m.MoleculesDesaltedTotal = collector.RegisterCounter("molecules_desalted_total", "Molecules reduced to their largest fragment")
	m.MoleculesDiscardedTotal = collector.RegisterCounter("molecules_discarded_total", "Molecules discarded from a batch", "reason")

	m.AnomaliesDetectedTotal = collector.RegisterCounter("anomalies_detected_total", "Structural anomalies detected", "pattern")
	m.RepairsAppliedTotal = collector.RegisterCounter("repairs_applied_total", "Repair rules applied", "rule")

	m.ConformersGeneratedTotal = collector.RegisterCounter("conformers_generated_total", "Conformers embedded", "algorithm")
	m.ConformersEliminatedTotal = collector.RegisterCounter("conformers_eliminated_total", "Conformers removed as structurally redundant")
	m.EmbeddingFailuresTotal = collector.RegisterCounter("embedding_failures_total", "Conformer embedding attempts that produced no coordinates")
	m.EmbeddingFallbacksTotal = collector.RegisterCounter("embedding_fallbacks_total", "Embeddings that fell back to plain distance geometry")
	m.ConformerEnergy = collector.RegisterHistogram("conformer_energy", "Force-field energy of generated conformers", DefaultEnergyBuckets, "minimized")
	m.MinimizeDuration = collector.RegisterHistogram("minimize_duration_seconds", "Geometry minimization duration", DefaultStageDurationBuckets)

	m.StageDuration = collector.RegisterHistogram("stage_duration_seconds", "Pipeline stage duration", DefaultStageDurationBuckets, "stage")
	m.BatchSize = collector.RegisterHistogram("batch_size", "Input molecules per batch", DefaultBatchSizeBuckets)
	m.BatchesInFlight = collector.RegisterGauge("batches_in_flight", "Preparation batches currently running")

	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "operation")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.EventsPublishTotal = collector.RegisterCounter("events_publish_total", "Domain events published", "topic", "status")

	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_code")

	return m
}

// Helpers

func RecordMoleculeOutcome(metrics *PrepMetrics, outcome string) {
	metrics.MoleculesProcessedTotal.WithLabelValues(outcome).Inc()
}

func RecordEmbedding(metrics *PrepMetrics, algorithm string, fellBack bool) {
	metrics.ConformersGeneratedTotal.WithLabelValues(algorithm).Inc()
	if fellBack {
		metrics.EmbeddingFallbacksTotal.WithLabelValues().Inc()
	}
}

func RecordStage(metrics *PrepMetrics, stage string, duration time.Duration) {
	metrics.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func RecordCacheAccess(metrics *PrepMetrics, cache string, hit bool) {
	if hit {
		metrics.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordDBQuery(metrics *PrepMetrics, operation string, duration time.Duration, err error) {
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("postgres", "query_error").Inc()
	}
}

func RecordError(metrics *PrepMetrics, component, errorCode string) {
	metrics.ErrorsTotal.WithLabelValues(component, errorCode).Inc()
}
