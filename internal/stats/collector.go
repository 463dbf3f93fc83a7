package stats

import (
	"sync"
	"time"
)

// Collector aggregates per-scan Stats records into running totals, a
// latency histogram, and a sliding 60-second throughput window, the way
// a long-lived daemon process tracks its own health across many scans.
// One Stats value from one Scan call is one Record.
type Collector struct {
	mu sync.RWMutex

	totalScans        int64
	totalMatches      int64
	totalBytesScanned int64
	totalErrors       int64

	latencyHistogram []int64 // <1ms, <10ms, <100ms, <1s, >=1s

	patternHits map[uint32]int64

	window     []sample
	windowSize time.Duration
	now        func() time.Time
}

type sample struct {
	at      time.Time
	elapsed float64
	matches int
	bytes   int64
}

// NewCollector builds an empty Collector with a 60-second throughput
// window.
func NewCollector() *Collector {
	return &Collector{
		latencyHistogram: make([]int64, 5),
		patternHits:      make(map[uint32]int64),
		window:           make([]sample, 0, 1024),
		windowSize:       60 * time.Second,
		now:              time.Now,
	}
}

// Record folds one scan's Stats and the matched pattern ids into the
// running totals.
func (c *Collector) Record(st Stats, matchedPatternIDs []uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalScans++
	c.totalMatches += int64(st.Matches)
	c.totalBytesScanned += int64(st.InputLength)

	c.latencyHistogram[latencyBucket(st.ElapsedSec)]++

	for _, id := range matchedPatternIDs {
		c.patternHits[id]++
	}

	now := c.now()
	c.window = append(c.window, sample{at: now, elapsed: st.ElapsedSec, matches: int(st.Matches), bytes: int64(st.InputLength)})
	c.pruneLocked(now)
}

// RecordError increments the error counter independently of a Stats
// record, for scans that never produced one (e.g. a build-time failure).
func (c *Collector) RecordError() {
	c.mu.Lock()
	c.totalErrors++
	c.mu.Unlock()
}

func latencyBucket(elapsedSec float64) int {
	us := elapsedSec * 1_000_000
	switch {
	case us < 1_000:
		return 0
	case us < 10_000:
		return 1
	case us < 100_000:
		return 2
	case us < 1_000_000:
		return 3
	default:
		return 4
	}
}

func (c *Collector) pruneLocked(now time.Time) {
	cutoff := now.Add(-c.windowSize)
	i := 0
	for i < len(c.window) && c.window[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.window = c.window[i:]
	}
}

// Snapshot is a point-in-time view of the collector's state.
type Snapshot struct {
	TotalScans          int64
	TotalMatches        int64
	TotalBytesScanned   int64
	TotalErrors         int64
	LatencyHistogram    []int64
	RecentThroughputBPS float64
	RecentScansPerSec   float64
	TopPatterns         []PatternHit
}

// PatternHit is one pattern id's hit count.
type PatternHit struct {
	PatternID uint32
	Hits      int64
}

// Snapshot returns the current aggregate state, including the top n
// most-hit pattern ids.
func (c *Collector) Snapshot(n int) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		TotalScans:        c.totalScans,
		TotalMatches:      c.totalMatches,
		TotalBytesScanned: c.totalBytesScanned,
		TotalErrors:       c.totalErrors,
		LatencyHistogram:  append([]int64(nil), c.latencyHistogram...),
		TopPatterns:       c.topN(n),
	}
	if len(c.window) > 0 {
		var bytes int64
		for _, s := range c.window {
			bytes += s.bytes
		}
		elapsed := c.now().Sub(c.window[0].at).Seconds()
		if elapsed > 0 {
			snap.RecentThroughputBPS = float64(bytes) / elapsed
			snap.RecentScansPerSec = float64(len(c.window)) / elapsed
		}
	}
	return snap
}

func (c *Collector) topN(n int) []PatternHit {
	hits := make([]PatternHit, 0, len(c.patternHits))
	for id, count := range c.patternHits {
		hits = append(hits, PatternHit{PatternID: id, Hits: count})
	}
	for i := 0; i < n && i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].Hits > hits[i].Hits {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
	if n > len(hits) {
		n = len(hits)
	}
	return hits[:n]
}
