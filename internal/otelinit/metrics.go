package otelinit

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promHTTPHandler serves the process-wide Prometheus registry the otel
// bridge exporter registered its collector into.
func promHTTPHandler() http.Handler {
	return promhttp.Handler()
}

// Metrics holds every instrument the daemon and resilience packages
// record against. Per-algorithm labels (algorithm="aho-corasick", ...)
// are attached as attributes at the call site, not baked into the
// instrument name.
type Metrics struct {
	ScanTotal      metric.Int64Counter
	ScanErrors     metric.Int64Counter
	ScanActive     metric.Int64UpDownCounter
	ScanLatency    metric.Float64Histogram
	ScanBytes      metric.Int64Histogram
	MatchTotal     metric.Int64Counter
	RuleCount      metric.Int64ObservableGauge
	ReloadTotal    metric.Int64Counter
	ReloadDuration metric.Float64Histogram
	LoadErrors     metric.Int64Counter

	RetryAttempts          metric.Int64Counter
	RetrySuccesses         metric.Int64Counter
	RetryFailures          metric.Int64Counter
	CircuitOpenTransitions metric.Int64Counter
}

// InitMetrics configures a push exporter (OTLP/gRPC, for a collector
// scraping the fleet centrally) and a pull exporter (Prometheus, for the
// daemon's own /metrics endpoint) sharing one MeterProvider, then builds
// every instrument sigscan records against. The returned handler is
// nil if the Prometheus registry could not be built.
func InitMetrics(ctx context.Context, service string) (shutdown func(context.Context) error, promHandler http.Handler, m Metrics) {
	res, _ := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
	))

	readers := []sdkmetric.Option{sdkmetric.WithResource(res)}

	promExp, err := prometheus.New()
	if err != nil {
		slog.Warn("prometheus exporter init failed", "error", err)
	} else {
		readers = append(readers, sdkmetric.WithReader(promExp))
	}

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	otlpExp, err := otlpmetricgrpc.New(initCtx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	shutdownFns := make([]func(context.Context) error, 0, 2)
	if err != nil {
		slog.Warn("otlp metrics exporter init failed", "error", err)
	} else {
		reader := sdkmetric.NewPeriodicReader(otlpExp, sdkmetric.WithInterval(10*time.Second))
		readers = append(readers, sdkmetric.WithReader(reader))
		shutdownFns = append(shutdownFns, reader.Shutdown)
	}

	mp := sdkmetric.NewMeterProvider(readers...)
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)

	var handler http.Handler
	if promExp != nil {
		handler = promHTTPHandler()
	}

	return func(ctx context.Context) error {
			var last error
			for _, fn := range shutdownFns {
				if err := fn(ctx); err != nil {
					last = err
				}
			}
			return last
		},
		handler,
		createInstruments()
}

func createInstruments() Metrics {
	meter := otel.Meter("sigscan")

	scanTotal, _ := meter.Int64Counter("sigscan_scan_total")
	scanErrors, _ := meter.Int64Counter("sigscan_scan_errors_total")
	scanActive, _ := meter.Int64UpDownCounter("sigscan_scan_active")
	scanLatency, _ := meter.Float64Histogram("sigscan_scan_latency_seconds")
	scanBytes, _ := meter.Int64Histogram("sigscan_scan_bytes")
	matchTotal, _ := meter.Int64Counter("sigscan_match_total")
	ruleCount, _ := meter.Int64ObservableGauge("sigscan_rule_count")
	reloadTotal, _ := meter.Int64Counter("sigscan_reload_total")
	reloadDuration, _ := meter.Float64Histogram("sigscan_reload_duration_seconds")
	loadErrors, _ := meter.Int64Counter("sigscan_rule_load_errors_total")

	retryAttempts, _ := meter.Int64Counter("sigscan_resilience_retry_attempts_total")
	retrySuccesses, _ := meter.Int64Counter("sigscan_resilience_retry_successes_total")
	retryFailures, _ := meter.Int64Counter("sigscan_resilience_retry_failures_total")
	circuitOpen, _ := meter.Int64Counter("sigscan_resilience_circuit_open_total")

	return Metrics{
		ScanTotal:              scanTotal,
		ScanErrors:             scanErrors,
		ScanActive:             scanActive,
		ScanLatency:            scanLatency,
		ScanBytes:              scanBytes,
		MatchTotal:             matchTotal,
		RuleCount:              ruleCount,
		ReloadTotal:            reloadTotal,
		ReloadDuration:         reloadDuration,
		LoadErrors:             loadErrors,
		RetryAttempts:          retryAttempts,
		RetrySuccesses:         retrySuccesses,
		RetryFailures:          retryFailures,
		CircuitOpenTransitions: circuitOpen,
	}
}
