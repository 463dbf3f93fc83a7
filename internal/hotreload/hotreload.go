// Package hotreload generalizes ruleset hot-swapping to any
// internal/engine.Engine: a background poller (and, via ForceReload, a
// NATS rulebus consumer) rebuilds Tables off the hot path and swaps them
// in atomically, so in-flight Scan calls never observe a half-built
// table set.
package hotreload

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swarmguard/sigscan/internal/engine"
	"github.com/swarmguard/sigscan/internal/signature"
	"github.com/swarmguard/sigscan/internal/stats"
)

// Loader produces the current signature set from whatever source backs
// it (a rule file, a directory of rule files, a remote fetch).
type Loader interface {
	Load() (*signature.Set, error)
}

// Metadata reports the outcome of the most recent reload attempt.
type Metadata struct {
	Version         string
	LoadedAt        time.Time
	SignatureCount  int
	BuildDurationMs int64
	LastReloadAt    time.Time
	ReloadCount     int
	LastError       string
}

// Scanner wraps one Engine with hot-reloadable Tables.
type Scanner struct {
	eng    engine.Engine
	loader Loader

	tablesPtr atomic.Value // engine.Tables

	checkInterval time.Duration
	lastHash      string

	mu       sync.RWMutex
	metadata Metadata

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds the initial Tables from loader and, if checkInterval is
// positive, starts a background poller. The initial load must succeed.
func New(eng engine.Engine, loader Loader, checkInterval time.Duration) (*Scanner, error) {
	s := &Scanner{
		eng:           eng,
		loader:        loader,
		checkInterval: checkInterval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	if checkInterval > 0 {
		go s.watchLoop()
	} else {
		close(s.doneCh)
	}
	return s, nil
}

func (s *Scanner) reload() error {
	set, err := s.loader.Load()
	if err != nil {
		s.recordError(err)
		return err
	}
	hash := calculateHash(set)
	if hash == s.lastHash {
		return nil
	}

	start := time.Now()
	tables, err := s.eng.Preprocess(set)
	if err != nil {
		s.recordError(err)
		return err
	}
	s.tablesPtr.Store(tables)
	s.lastHash = hash

	s.mu.Lock()
	s.metadata = Metadata{
		Version:         hash[:12],
		LoadedAt:        start,
		SignatureCount:  set.Len(),
		BuildDurationMs: time.Since(start).Milliseconds(),
		LastReloadAt:    time.Now(),
		ReloadCount:     s.metadata.ReloadCount + 1,
	}
	s.mu.Unlock()
	return nil
}

func (s *Scanner) recordError(err error) {
	s.mu.Lock()
	s.metadata.LastError = err.Error()
	s.mu.Unlock()
}

// calculateHash hashes every enabled signature's id, pattern and nocase
// flag in id order, so identical rulesets always hash identically
// regardless of how they were loaded.
func calculateHash(set *signature.Set) string {
	h := sha256.New()
	for _, sig := range set.All() {
		h.Write([]byte{byte(sig.ID), byte(sig.ID >> 8), byte(sig.ID >> 16), byte(sig.ID >> 24)})
		h.Write(sig.Pattern)
		h.Write([]byte{0})
		if sig.NoCase {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Scanner) watchLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.reload()
		case <-s.stopCh:
			return
		}
	}
}

// Scan delegates to the currently installed Tables.
func (s *Scanner) Scan(data []byte, fn engine.MatchFunc) stats.Stats {
	tables := s.tablesPtr.Load().(engine.Tables)
	return s.eng.Scan(tables, data, fn)
}

// Metadata returns the most recent reload's outcome.
func (s *Scanner) Metadata() Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata
}

// ForceReload triggers an immediate reload check, used both by the
// daemon's /reload endpoint and by the rulebus consumer when a fleet
// push notification arrives.
func (s *Scanner) ForceReload() error {
	return s.reload()
}

// Stop halts the background poller, if one was started.
func (s *Scanner) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.doneCh
}
