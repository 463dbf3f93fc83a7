// Package daemon serves one engine's hot-reloadable scanner over HTTP:
// /scan, /reload, /v1/rules/reload, /stats, /metrics, /health. A circuit
// breaker guards /scan so a downstream stall degrades to fast 503s
// instead of piling up goroutines, and a token-bucket rate limiter caps
// sustained request volume ahead of it.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/swarmguard/sigscan/internal/engine"
	"github.com/swarmguard/sigscan/internal/hotreload"
	"github.com/swarmguard/sigscan/internal/otelinit"
	"github.com/swarmguard/sigscan/internal/resilience"
	"github.com/swarmguard/sigscan/internal/stats"
)

// Server is the sigscan HTTP daemon.
type Server struct {
	scanner     *hotreload.Scanner
	algorithm   string
	collector   *stats.Collector
	breaker     *resilience.CircuitBreaker
	rateLimiter *resilience.RateLimiter
	metrics     otelinit.Metrics

	mux        *http.ServeMux
	httpServer *http.Server
}

// New builds a Server. promHandler, if non-nil, is mounted at /metrics.
func New(addr string, scannerInst *hotreload.Scanner, algorithm string, metrics otelinit.Metrics, promHandler http.Handler) *Server {
	s := &Server{
		scanner:     scannerInst,
		algorithm:   algorithm,
		collector:   stats.NewCollector(),
		breaker:     resilience.NewCircuitBreaker(30*time.Second, 6, 20, 0.5, 5*time.Second, 3),
		rateLimiter: resilience.NewRateLimiter(200, 100, time.Second, 500),
		metrics:     metrics,
		mux:         http.NewServeMux(),
	}
	s.routes(promHandler)
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux}
	return s
}

func (s *Server) routes(promHandler http.Handler) {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/scan", s.handleScan)
	s.mux.HandleFunc("/reload", s.handleReload)
	s.mux.HandleFunc("/v1/rules/reload", s.handleReload)
	s.mux.HandleFunc("/stats", s.handleStats)
	if promHandler != nil {
		s.mux.Handle("/metrics", promHandler)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// apiMatch is the wire form of one engine.Match.
type apiMatch struct {
	PatternID uint32 `json:"pattern_id"`
	Start     uint64 `json:"start"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.rateLimiter.Allow() {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	if !s.breaker.Allow() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	reqID := r.Header.Get("X-Request-Id")
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set("X-Request-Id", reqID)

	meta := s.scanner.Metadata()
	w.Header().Set("X-Rule-Count", strconv.Itoa(meta.SignatureCount))
	w.Header().Set("X-Ruleset-Version", meta.Version)

	ctx, end := otelinit.WithSpan(r.Context(), "daemon.scan")
	defer end()

	s.metrics.ScanActive.Add(ctx, 1)
	defer s.metrics.ScanActive.Add(ctx, -1)

	start := time.Now()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.breaker.RecordResult(false)
		s.metrics.ScanErrors.Add(ctx, 1)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var matches []apiMatch
	var ids []uint32
	st := s.scanner.Scan(body, func(m engine.Match) bool {
		matches = append(matches, apiMatch{PatternID: m.PatternID, Start: m.Start})
		ids = append(ids, m.PatternID)
		return true
	})

	s.collector.Record(st, ids)
	s.breaker.RecordResult(true)

	s.metrics.ScanTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("algorithm", s.algorithm)))
	s.metrics.MatchTotal.Add(ctx, int64(len(matches)))
	s.metrics.ScanBytes.Record(ctx, int64(len(body)))
	s.metrics.ScanLatency.Record(ctx, time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Algorithm", s.algorithm)
	_ = json.NewEncoder(w).Encode(matches)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, end := otelinit.WithSpan(r.Context(), "daemon.reload")
	defer end()

	t0 := time.Now()
	if err := s.scanner.ForceReload(); err != nil {
		s.metrics.ReloadTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "failure")))
		s.metrics.LoadErrors.Add(ctx, 1)
		slog.Error("reload failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	meta := s.scanner.Metadata()
	dur := time.Since(t0).Seconds()
	s.metrics.ReloadDuration.Record(ctx, dur)
	s.metrics.ReloadTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "success")))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":            "ok",
		"duration_seconds":  dur,
		"signature_count":   meta.SignatureCount,
		"version":           meta.Version,
		"reload_count":      meta.ReloadCount,
		"build_duration_ms": meta.BuildDurationMs,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	meta := s.scanner.Metadata()
	snap := s.collector.Snapshot(10)

	resp := map[string]any{
		"algorithm":  s.algorithm,
		"goroutines": runtime.NumGoroutine(),
		"reload": map[string]any{
			"version":           meta.Version,
			"signature_count":   meta.SignatureCount,
			"last_reload_at":    meta.LastReloadAt.Format(time.RFC3339),
			"reload_count":      meta.ReloadCount,
			"build_duration_ms": meta.BuildDurationMs,
		},
		"scans": map[string]any{
			"total_scans":           snap.TotalScans,
			"total_matches":         snap.TotalMatches,
			"total_bytes_scanned":   snap.TotalBytesScanned,
			"total_errors":          snap.TotalErrors,
			"latency_histogram":     snap.LatencyHistogram,
			"recent_throughput_bps": snap.RecentThroughputBPS,
			"recent_scans_per_sec":  snap.RecentScansPerSec,
			"top_patterns":          snap.TopPatterns,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// ListenAndServe runs the HTTP server until Shutdown is called.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
