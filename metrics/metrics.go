// Package metrics exposes counters and histograms for the install
// pipeline over OpenTelemetry's Prometheus exporter, regeneralized
// from the teacher's HTTP-serving counters (downloads served,
// bytes transferred) to package-manager ones: cache hit/miss,
// download/extract outcomes, solve duration, and link failures.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds every counter/histogram binpack's components report
// into. A zero-value Metrics (not built by New) silently no-ops every
// method, so callers never need a nil check of their own.
type Metrics struct {
	CacheHitsTotal    metric.Int64Counter
	CacheMissesTotal  metric.Int64Counter
	DownloadsTotal    metric.Int64Counter
	DownloadedBytes   metric.Int64Counter
	ExtractFailures   metric.Int64Counter
	LinkFailuresTotal metric.Int64Counter
	SolveDuration     metric.Float64Histogram
}

func New() (m Metrics, err error) {
	exporter, err := prometheus.New()
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("github.com/binpack/binpack")

	if m.CacheHitsTotal, err = meter.Int64Counter("cache_hits_total", metric.WithDescription("Package cache queries satisfied without a download or extraction")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create cache_hits_total counter: %w", err)
	}
	if m.CacheMissesTotal, err = meter.Int64Counter("cache_misses_total", metric.WithDescription("Package cache queries requiring a download or extraction")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create cache_misses_total counter: %w", err)
	}
	if m.DownloadsTotal, err = meter.Int64Counter("downloads_total", metric.WithDescription("Archive downloads attempted, by outcome")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create downloads_total counter: %w", err)
	}
	if m.DownloadedBytes, err = meter.Int64Counter("downloaded_bytes_total", metric.WithDescription("Bytes fetched from channel origins")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create downloaded_bytes_total counter: %w", err)
	}
	if m.ExtractFailures, err = meter.Int64Counter("extract_failures_total", metric.WithDescription("Archive extractions that failed verification or unpacking")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create extract_failures_total counter: %w", err)
	}
	if m.LinkFailuresTotal, err = meter.Int64Counter("link_failures_total", metric.WithDescription("Per-package link operations that rolled back")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create link_failures_total counter: %w", err)
	}
	if m.SolveDuration, err = meter.Float64Histogram("solve_duration_seconds", metric.WithDescription("Wall-clock time spent in the dependency solver")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create solve_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// ListenAndServe exposes /metrics for Prometheus scraping.
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())
	return http.ListenAndServe(addr, mux)
}

func (m Metrics) RecordCacheHit(ctx context.Context, stage string) {
	if m.CacheHitsTotal == nil {
		return
	}
	m.CacheHitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (m Metrics) RecordCacheMiss(ctx context.Context, stage string) {
	if m.CacheMissesTotal == nil {
		return
	}
	m.CacheMissesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (m Metrics) RecordDownload(ctx context.Context, outcome string, bytes int64) {
	if m.DownloadsTotal != nil {
		m.DownloadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if m.DownloadedBytes != nil && bytes > 0 {
		m.DownloadedBytes.Add(ctx, bytes)
	}
}

func (m Metrics) RecordExtractFailure(ctx context.Context, reason string) {
	if m.ExtractFailures == nil {
		return
	}
	m.ExtractFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m Metrics) RecordLinkFailure(ctx context.Context, pkg string) {
	if m.LinkFailuresTotal == nil {
		return
	}
	m.LinkFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("package", pkg)))
}

// RecordSolveDuration reports the time one Solve call took.
func (m Metrics) RecordSolveDuration(ctx context.Context, d time.Duration) {
	if m.SolveDuration == nil {
		return
	}
	m.SolveDuration.Record(ctx, d.Seconds())
}
