package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.DayOutcome("bybit", "committed")
	m.DayOutcome("bybit", "committed")
	m.DayOutcome("bybit", "not_published")
	m.Records("bybit", 1440)
	m.Records("bybit", 0)
	m.Crossed("bybit", 3)
	m.FetchRetry("http")
	m.ExportFailed("binance")
	m.ObserveDay("bybit", 2*time.Second)

	if got := testutil.ToFloat64(m.DaysTotal.WithLabelValues("bybit", "committed")); got != 2 {
		t.Fatalf("committed days = %v", got)
	}
	if got := testutil.ToFloat64(m.RecordsWritten.WithLabelValues("bybit")); got != 1440 {
		t.Fatalf("records = %v", got)
	}
	if got := testutil.ToFloat64(m.CrossedSamples.WithLabelValues("bybit")); got != 3 {
		t.Fatalf("crossed = %v", got)
	}
	if got := testutil.ToFloat64(m.FetchRetries.WithLabelValues("http")); got != 1 {
		t.Fatalf("retries = %v", got)
	}
	if got := testutil.CollectAndCount(m.DayDuration); got != 1 {
		t.Fatalf("histogram series = %d", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.DayOutcome("bybit", "committed")
	m.Records("bybit", 1)
	m.Crossed("bybit", 1)
	m.FetchRetry("s3")
	m.ExportFailed("bybit")
	m.ObserveDay("bybit", time.Second)
}

func TestServe(t *testing.T) {
	reg := NewRegistry()
	NewMetrics(reg).DayOutcome("binance", "failed")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, reg) }()

	var body string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		body = string(b)
		break
	}
	if !strings.Contains(body, `bookflow_days_total{outcome="failed",venue="binance"} 1`) {
		t.Fatalf("metric missing from scrape:\n%s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
