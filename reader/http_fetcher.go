package reader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"bookflow/config"
	"bookflow/logger"
)

// HTTPFetcher downloads archives from a public content store such as
// data.binance.vision or a quote-saver mirror.
type HTTPFetcher struct {
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	policy   RetryPolicy
	timeout  time.Duration
	spoolDir string
	log      *logger.Log
}

// NewHTTPFetcher creates a fetcher for objects under baseURL.
func NewHTTPFetcher(cfg *config.Config, baseURL string, policy RetryPolicy) *HTTPFetcher {
	log := logger.GetLogger()

	transport := &http.Transport{
		Proxy:              http.ProxyFromEnvironment,
		MaxIdleConns:       cfg.Reader.Pool.MaxIdleConns,
		MaxConnsPerHost:    cfg.Reader.Pool.MaxConnsPerHost,
		IdleConnTimeout:    cfg.Reader.Pool.IdleConnTimeout,
		DisableCompression: true,
	}

	rps := cfg.Reader.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Reader.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	f := &HTTPFetcher{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Transport: transport},
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		policy:   policy,
		timeout:  cfg.Reader.Timeout,
		spoolDir: cfg.Reader.SpoolDir,
		log:      log,
	}

	log.WithComponent("http_fetcher").WithFields(logger.Fields{
		"base_url":           f.baseURL,
		"max_idle_conns":     cfg.Reader.Pool.MaxIdleConns,
		"max_conns_per_host": cfg.Reader.Pool.MaxConnsPerHost,
		"timeout":            cfg.Reader.Timeout.String(),
	}).Info("http fetcher initialized")

	return f
}

// URL returns the absolute location of key.
func (f *HTTPFetcher) URL(key string) string {
	return f.baseURL + "/" + strings.TrimLeft(key, "/")
}

// Fetch downloads key. 404 and 403 responses mean the day is not published;
// 429, 5xx and network errors are retried.
func (f *HTTPFetcher) Fetch(ctx context.Context, key string) (*Archive, error) {
	log := f.log.WithComponent("http_fetcher").WithFields(logger.Fields{"key": key})
	url := f.URL(key)

	start := time.Now()
	archive, err := fetchWithRetry(ctx, log, f.policy, f.spoolDir, key, func(ctx context.Context, sp *spool) (Status, int64, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return 0, 0, permanent(err)
		}

		reqCtx := ctx
		if f.timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, f.timeout)
			defer cancel()
		}

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return 0, 0, permanent(err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return 0, 0, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden:
			io.Copy(io.Discard, resp.Body)
			return NotPublished, 0, nil
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			return 0, 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
		default:
			return 0, 0, permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
		}

		n, err := io.Copy(sp.f, resp.Body)
		if err != nil {
			return 0, 0, fmt.Errorf("read body: %w", err)
		}
		return Published, n, nil
	})
	if err != nil {
		return nil, err
	}

	logger.LogPerformanceEntry(log, "http_fetcher", "fetch", time.Since(start), logger.Fields{
		"status": archive.Status.String(),
		"bytes":  archive.Size(),
	})
	return archive, nil
}
