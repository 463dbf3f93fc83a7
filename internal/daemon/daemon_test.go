package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/swarmguard/sigscan/internal/engine/ac"
	"github.com/swarmguard/sigscan/internal/hotreload"
	"github.com/swarmguard/sigscan/internal/otelinit"
	"github.com/swarmguard/sigscan/internal/signature"
)

type staticLoader struct{ set *signature.Set }

func (l staticLoader) Load() (*signature.Set, error) { return l.set, nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	set, err := signature.Build([]signature.Input{{Pattern: []byte("needle")}})
	if err != nil {
		t.Fatalf("signature.Build: %v", err)
	}
	scannerInst, err := hotreload.New(ac.New(), staticLoader{set: set}, 0)
	if err != nil {
		t.Fatalf("hotreload.New: %v", err)
	}
	t.Cleanup(scannerInst.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, metrics := otelinit.InitMetrics(ctx, "daemon-test")

	return New(":0", scannerInst, "aho-corasick", metrics, nil)
}

func TestHandleHealthReturnsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestHandleScanRejectsNonPost(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/scan", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleScanReturnsMatchesAndHeaders(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewReader([]byte("find the needle here")))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := rec.Header().Get("X-Rule-Count"); got != "1" {
		t.Errorf("X-Rule-Count = %q, want %q", got, "1")
	}
	if got := rec.Header().Get("X-Ruleset-Version"); got == "" {
		t.Error("X-Ruleset-Version header is empty")
	}
	if got := rec.Header().Get("X-Request-Id"); got == "" {
		t.Error("X-Request-Id header is empty")
	}

	var matches []apiMatch
	if err := json.Unmarshal(rec.Body.Bytes(), &matches); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1: %v", len(matches), matches)
	}
}

func TestHandleScanPropagatesClientRequestID(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewReader([]byte("no match here")))
	req.Header.Set("X-Request-Id", "client-supplied-id")
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "client-supplied-id" {
		t.Errorf("X-Request-Id = %q, want %q", got, "client-supplied-id")
	}
}

func TestHandleScanRejectsWhenRateLimited(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 500; i++ {
		s.rateLimiter.Allow()
	}
	req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewReader([]byte("x")))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}

func TestHandleReloadReportsMetadata(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %v, want ok", resp["status"])
	}
}

func TestHandleReloadRejectsNonPost(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/reload", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleStatsReportsAlgorithmAndReload(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["algorithm"] != "aho-corasick" {
		t.Errorf("algorithm = %v, want aho-corasick", resp["algorithm"])
	}
}
