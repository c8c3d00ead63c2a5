// Package metrics exposes ingestion counters to Prometheus and, when
// configured, mirrors a run summary to CloudWatch.
//
// Registers:
//
//	#bookflow_days_total{venue,outcome}
//	#bookflow_records_written_total{venue}
//	#bookflow_crossed_samples_total{venue}
//	#bookflow_fetch_retries_total{backend}
//	#bookflow_export_failures_total{venue}
//	#bookflow_day_duration_seconds{venue}
//	#go_* and process_* system metrics
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bookflow/logger"
)

// Metrics holds the Prometheus collectors of one process. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	DaysTotal      *prometheus.CounterVec
	RecordsWritten *prometheus.CounterVec
	CrossedSamples *prometheus.CounterVec
	FetchRetries   *prometheus.CounterVec
	ExportFailures *prometheus.CounterVec
	DayDuration    *prometheus.HistogramVec
}

// NewRegistry returns a registry preloaded with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookflow_days_total",
			Help: "Days processed by outcome",
		}, []string{"venue", "outcome"}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookflow_records_written_total",
			Help: "Minute records committed to the store",
		}, []string{"venue"}),
		CrossedSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookflow_crossed_samples_total",
			Help: "Book updates that left the book crossed",
		}, []string{"venue"}),
		FetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookflow_fetch_retries_total",
			Help: "Archive fetch attempts that were retried",
		}, []string{"backend"}),
		ExportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookflow_export_failures_total",
			Help: "Committed days whose parquet export failed",
		}, []string{"venue"}),
		DayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bookflow_day_duration_seconds",
			Help:    "Wall time from fetch to commit of one day",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"venue"}),
	}

	reg.MustRegister(
		m.DaysTotal,
		m.RecordsWritten,
		m.CrossedSamples,
		m.FetchRetries,
		m.ExportFailures,
		m.DayDuration,
	)
	return m
}

func (m *Metrics) DayOutcome(venue, outcome string) {
	if m == nil {
		return
	}
	m.DaysTotal.WithLabelValues(venue, outcome).Inc()
}

func (m *Metrics) Records(venue string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsWritten.WithLabelValues(venue).Add(float64(n))
}

func (m *Metrics) Crossed(venue string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.CrossedSamples.WithLabelValues(venue).Add(float64(n))
}

func (m *Metrics) FetchRetry(backend string) {
	if m == nil {
		return
	}
	m.FetchRetries.WithLabelValues(backend).Inc()
}

func (m *Metrics) ExportFailed(venue string) {
	if m == nil {
		return
	}
	m.ExportFailures.WithLabelValues(venue).Inc()
}

func (m *Metrics) ObserveDay(venue string, d time.Duration) {
	if m == nil {
		return
	}
	m.DayDuration.WithLabelValues(venue).Observe(d.Seconds())
}

// Serve exposes gatherer on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.GetLogger().WithComponent("metrics").WithFields(logger.Fields{"listen": addr}).Info("serving prometheus metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
