// metrics.go - Prometheus-Instrumentierung des Klassifikationsdienstes
// Enthaelt: Zaehler, Fehler-Zaehler nach Typ, Verarbeitungszeit-Histogramm

package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fehlertypen fuer prediction_errors_total
const (
	errModelNotLoaded  = "model_not_loaded"
	errNoImageProvided = "no_image_provided"
	errEmptyFilename   = "empty_filename"
	errFileTooLarge    = "file_too_large"
	errProcessing      = "processing_error"
)

// metrics buendelt alle Prometheus-Collectoren auf einer eigenen Registry,
// damit Tests isolierte Instanzen bekommen
type metrics struct {
	registry   *prometheus.Registry
	requests   prometheus.Counter
	errors     *prometheus.CounterVec
	processing prometheus.Histogram
}

func newMetrics() *metrics {
	m := &metrics{registry: prometheus.NewRegistry()}

	m.requests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prediction_requests_total",
		Help: "Total number of prediction requests",
	})
	m.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prediction_errors_total",
		Help: "Total number of prediction errors",
	}, []string{"error_type"})
	m.processing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "prediction_processing_time_ms",
		Help:    "Time spent processing prediction requests in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2000, 5000},
	})

	m.registry.MustRegister(m.requests, m.errors, m.processing)
	return m
}

// handler liefert den /metrics-Endpunkt fuer die eigene Registry
func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
