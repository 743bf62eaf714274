// Package metrics exposes Prometheus metrics for document processing.
package metrics

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medreports/medreports/internal/extraction"
)

// Status label values of DocumentsProcessed.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// ExtractionMetrics records per-document outcomes. It implements
// extraction.Recorder.
type ExtractionMetrics struct {
	DocumentsProcessed *prometheus.CounterVec
	Confidence         prometheus.Histogram
	Duration           prometheus.Histogram
	CacheHits          prometheus.Counter
	DiseaseCategories  *prometheus.CounterVec
}

// NewExtractionMetrics registers the extraction metrics on reg.
func NewExtractionMetrics(reg prometheus.Registerer) *ExtractionMetrics {
	f := promauto.With(reg)
	return &ExtractionMetrics{
		DocumentsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medreports_documents_processed_total",
			Help: "Documents run through extraction, by outcome",
		}, []string{"status"}),
		Confidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medreports_extraction_confidence",
			Help:    "Completeness score of successful extractions",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medreports_extraction_duration_seconds",
			Help:    "Time to decode and extract one document",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
		}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "medreports_cache_hits_total",
			Help: "Extraction results served from the result cache",
		}),
		DiseaseCategories: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medreports_disease_category_total",
			Help: "Successful extractions by disease category",
		}, []string{"category"}),
	}
}

// RecordResult implements extraction.Recorder.
func (m *ExtractionMetrics) RecordResult(res *extraction.Result, elapsed time.Duration) {
	m.Duration.Observe(elapsed.Seconds())
	if res == nil || !res.Success {
		m.DocumentsProcessed.WithLabelValues(StatusFailure).Inc()
		return
	}
	m.DocumentsProcessed.WithLabelValues(StatusSuccess).Inc()
	m.Confidence.Observe(float64(res.Confidence))
	if res.MedicalInfo != nil {
		m.DiseaseCategories.WithLabelValues(res.MedicalInfo.DiseaseCategory).Inc()
	}
}

// RecordCacheHit implements extraction.Recorder.
func (m *ExtractionMetrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
}
