package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IdentificationMetrics covers the identification pipeline end to end.
type IdentificationMetrics struct {
	registry *prometheus.Registry

	identifyTotal    *prometheus.CounterVec
	identifyDuration *prometheus.HistogramVec
	stageDuration    *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec

	classifierAttempts        *prometheus.CounterVec
	classifierAttemptDuration *prometheus.HistogramVec

	enrichmentLookups *prometheus.CounterVec
	scanWrites        *prometheus.CounterVec
	imageUploads      *prometheus.CounterVec
}

// NewIdentificationMetrics creates and registers the pipeline collectors.
func NewIdentificationMetrics(registry *prometheus.Registry) (*IdentificationMetrics, error) {
	m := &IdentificationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register identification metrics: %w", err)
	}
	return m, nil
}

func (m *IdentificationMetrics) initMetrics() {
	m.identifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantid_identifications_total",
			Help: "Total number of identification requests by outcome",
		},
		[]string{"outcome"}, // accepted, rejected, cache_hit, invalid_image, unavailable, ...
	)

	m.identifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plantid_identification_duration_seconds",
			Help:    "End-to-end identification time",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~20s
		},
		[]string{"outcome"},
	)

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plantid_pipeline_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~16s
		},
		[]string{"stage"},
	)

	m.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantid_result_cache_lookups_total",
			Help: "Result cache lookups by result",
		},
		[]string{"result"}, // hit, miss
	)

	m.classifierAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantid_classifier_attempts_total",
			Help: "Classifier HTTP attempts by attempt number and outcome",
		},
		[]string{"attempt", "outcome"},
	)

	m.classifierAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plantid_classifier_attempt_duration_seconds",
			Help:    "Duration of individual classifier attempts",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
		},
		[]string{"outcome"},
	)

	m.enrichmentLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantid_catalog_lookups_total",
			Help: "Catalog enrichment lookups by outcome",
		},
		[]string{"outcome"}, // hit, miss, error
	)

	m.scanWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantid_scan_writes_total",
			Help: "Scan record writes by result",
		},
		[]string{"result"}, // success, error, skipped
	)

	m.imageUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantid_image_uploads_total",
			Help: "Normalized image uploads to object storage by result",
		},
		[]string{"result"},
	)
}

// RecordIdentification counts a finished Identify call.
func (m *IdentificationMetrics) RecordIdentification(outcome string, d time.Duration) {
	m.identifyTotal.WithLabelValues(outcome).Inc()
	m.identifyDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordStage records time spent in a pipeline stage.
func (m *IdentificationMetrics) RecordStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordCacheLookup counts a result cache hit or miss.
func (m *IdentificationMetrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveClassifierAttempt records one classifier attempt.
func (m *IdentificationMetrics) ObserveClassifierAttempt(attempt int, outcome string, elapsed time.Duration) {
	m.classifierAttempts.WithLabelValues(strconv.Itoa(attempt), outcome).Inc()
	m.classifierAttemptDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveEnrichment counts one catalog lookup.
func (m *IdentificationMetrics) ObserveEnrichment(outcome string) {
	m.enrichmentLookups.WithLabelValues(outcome).Inc()
}

// RecordScanWrite counts a scan record write attempt.
func (m *IdentificationMetrics) RecordScanWrite(result string) {
	m.scanWrites.WithLabelValues(result).Inc()
}

// RecordImageUpload counts an object storage upload attempt.
func (m *IdentificationMetrics) RecordImageUpload(result string) {
	m.imageUploads.WithLabelValues(result).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *IdentificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.identifyTotal.Describe(ch)
	m.identifyDuration.Describe(ch)
	m.stageDuration.Describe(ch)
	m.cacheLookups.Describe(ch)
	m.classifierAttempts.Describe(ch)
	m.classifierAttemptDuration.Describe(ch)
	m.enrichmentLookups.Describe(ch)
	m.scanWrites.Describe(ch)
	m.imageUploads.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *IdentificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.identifyTotal.Collect(ch)
	m.identifyDuration.Collect(ch)
	m.stageDuration.Collect(ch)
	m.cacheLookups.Collect(ch)
	m.classifierAttempts.Collect(ch)
	m.classifierAttemptDuration.Collect(ch)
	m.enrichmentLookups.Collect(ch)
	m.scanWrites.Collect(ch)
	m.imageUploads.Collect(ch)
}
