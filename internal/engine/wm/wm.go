// Package wm implements the Wu-Manber multi-pattern matcher in both its
// deterministic (prefix-hash verified) and probabilistic (Bloom-filter
// pre-filtered) variants. See SPEC_FULL.md §4.3.
package wm

import (
	"bytes"
	"time"

	"github.com/swarmguard/sigscan/internal/bloom"
	"github.com/swarmguard/sigscan/internal/engine"
	"github.com/swarmguard/sigscan/internal/signature"
	"github.com/swarmguard/sigscan/internal/stats"
)

const (
	algorithmDet  = "wu-manber-det"
	algorithmProb = "wu-manber-prob"

	bloomFalsePositiveRate = 0.01
)

// Config tunes the engine. Bloom selects the probabilistic variant.
// AllowLargeBlock gates the B=4 table size (per SPEC_FULL.md §9's
// requirement that it never be chosen silently): Preprocess fails with
// engine.ErrAllocation if the auto-selected block size is 4 and this is
// left false.
type Config struct {
	Bloom           bool
	AllowLargeBlock bool
}

// Engine is the Wu-Manber matcher implementation.
type Engine struct {
	cfg Config
}

// New constructs a Wu-Manber engine. cfg.Bloom selects WM-prob over
// WM-det.
func New(cfg Config) *Engine { return &Engine{cfg: cfg} }

func (e *Engine) algorithm() string {
	if e.cfg.Bloom {
		return algorithmProb
	}
	return algorithmDet
}

// core is one complete Wu-Manber table set, covering either the whole
// signature set (pure case mode) or one case-mode subset of it (mixed
// sets maintain two cores, per §4.3's soundness requirement).
type core struct {
	b          int
	m          int
	shift      map[uint32]int
	hashHead   map[uint32]int32
	next       []int32 // indexed by pattern id
	prefixHash map[uint32]uint32
	patLen     map[uint32]int
	patBytes   map[uint32][]byte
	bl         *bloom.Filter
}

func (c *core) shiftOf(k uint32) int {
	if v, ok := c.shift[k]; ok {
		return v
	}
	return c.m - c.b + 1
}

func (c *core) hashHeadOf(k uint32) int32 {
	if v, ok := c.hashHead[k]; ok {
		return v
	}
	return -1
}

func blockKey(b []byte) uint32 {
	var k uint32
	for i, bb := range b {
		k |= uint32(bb) << uint(8*i)
	}
	return k
}

// selectBlockSize implements §4.3's block-size rule over one subset's
// own statistics (each case-mode core is a complete, independent Wu-Manber
// instance; see DESIGN.md for this reading of the Open Question).
func selectBlockSize(minLength, patternCount int, avgLength float64) int {
	if minLength < 4 || patternCount > 5000 {
		return 2
	}
	if avgLength > 30 {
		return 4
	}
	return 3
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// buildCore constructs one Wu-Manber table set from sigs, whose Pattern
// bytes are already in the case this core scans (folded for a
// case-insensitive core, verbatim for a case-sensitive one). totalIDSpace
// sizes the next[] chain array so pattern ids can be used directly as
// indices.
func buildCore(sigs []signature.Signature, totalIDSpace int, cfg Config) (*core, error) {
	minLen := -1
	total := 0
	for _, s := range sigs {
		if minLen == -1 || len(s.Pattern) < minLen {
			minLen = len(s.Pattern)
		}
		total += len(s.Pattern)
	}
	avgLen := float64(total) / float64(len(sigs))
	b := selectBlockSize(minLen, len(sigs), avgLen)
	// B never exceeds the shortest pattern, so every pattern has a full
	// block ending at m-1.
	if b > minLen {
		b = minLen
	}
	if b == 4 && !cfg.AllowLargeBlock {
		return nil, engine.ErrAllocation
	}
	m := b
	if minLen > m {
		m = minLen
	}

	c := &core{
		b:          b,
		m:          m,
		shift:      make(map[uint32]int),
		hashHead:   make(map[uint32]int32),
		next:       make([]int32, totalIDSpace),
		prefixHash: make(map[uint32]uint32, len(sigs)),
		patLen:     make(map[uint32]int, len(sigs)),
		patBytes:   make(map[uint32][]byte, len(sigs)),
	}
	for i := range c.next {
		c.next[i] = -1
	}
	if cfg.Bloom {
		c.bl = bloom.New(len(sigs), bloomFalsePositiveRate)
	}

	block := make([]byte, b)
	for _, s := range sigs {
		id := s.ID
		p := s.Pattern
		l := len(p)
		c.patLen[id] = l
		c.patBytes[id] = p

		prefixLen := minInt(l, b)
		c.prefixHash[id] = engine.FNV1a(p[:prefixLen])
		if c.bl != nil {
			c.bl.Add(p[:prefixLen])
		}

		for j := 0; j <= m-b; j++ {
			for bi := 0; bi < b; bi++ {
				idx := j + bi
				if idx < l {
					block[bi] = p[idx]
				} else {
					block[bi] = 0
				}
			}
			k := blockKey(block)
			newShift := m - j - b
			if cur, ok := c.shift[k]; !ok || newShift < cur {
				c.shift[k] = newShift
			}
		}

		for bi := 0; bi < b; bi++ {
			idx := m - b + bi
			if idx < l {
				block[bi] = p[idx]
			} else {
				block[bi] = 0
			}
		}
		k := blockKey(block)
		c.next[id] = c.hashHeadOf(k)
		c.hashHead[k] = int32(id)
	}
	return c, nil
}

// scanCore runs one core's scan over data, returning false if the match
// callback requested cancellation.
func scanCore(c *core, data []byte, fn engine.MatchFunc, st *stats.Stats) bool {
	n := len(data)
	if c.m > n {
		return true
	}
	block := make([]byte, c.b)
	i := c.m - 1
	for i < n {
		for bi := 0; bi < c.b; bi++ {
			block[bi] = data[i-c.b+1+bi]
		}
		k := blockKey(block)
		st.Windows++
		s := c.shiftOf(k)
		st.SumShift += uint64(s)
		if s > 0 {
			i += s
			continue
		}
		st.HashHits++

		winStart := i - c.m + 1
		if c.bl != nil {
			st.BloomChecks++
			if !c.bl.MayContain(data[winStart : winStart+c.b]) {
				i++
				continue
			}
			st.BloomPass++
		}

		h := engine.FNV1a(data[winStart : winStart+c.b])
		for pid := c.hashHeadOf(k); pid != -1; pid = c.next[pid] {
			st.ChainSteps++
			id := uint32(pid)
			if c.prefixHash[id] != h {
				continue
			}
			pl := c.patLen[id]
			matchEnd := winStart + pl
			if matchEnd > n {
				continue
			}
			if !bytes.Equal(data[winStart:matchEnd], c.patBytes[id]) {
				continue
			}
			st.ExactMatches++
			st.Matches++
			if !fn(engine.Match{PatternID: id, Start: uint64(winStart)}) {
				return false
			}
		}
		i++
	}
	return true
}

// Tables holds up to two cores: a case-folded one for nocase patterns and
// a case-sensitive one for the rest (§4.3's mixed-mode soundness
// requirement, generalized beyond Bloom to the whole table set).
type Tables struct {
	algorithm string
	folded    *core
	exact     *core
}

func (t *Tables) Algorithm() string { return t.algorithm }

func (e *Engine) Preprocess(set *signature.Set) (engine.Tables, error) {
	if set.Len() == 0 {
		return nil, signature.ErrEmptySet
	}
	var foldedSigs, exactSigs []signature.Signature
	for _, s := range set.All() {
		if s.NoCase {
			foldedSigs = append(foldedSigs, signature.Signature{
				ID: s.ID, Pattern: signature.FoldBytes(s.Pattern), NoCase: true, Metadata: s.Metadata,
			})
		} else {
			exactSigs = append(exactSigs, s)
		}
	}
	t := &Tables{algorithm: e.algorithm()}
	if len(foldedSigs) > 0 {
		c, err := buildCore(foldedSigs, set.Len(), e.cfg)
		if err != nil {
			return nil, err
		}
		t.folded = c
	}
	if len(exactSigs) > 0 {
		c, err := buildCore(exactSigs, set.Len(), e.cfg)
		if err != nil {
			return nil, err
		}
		t.exact = c
	}
	return t, nil
}

func (e *Engine) Scan(tables engine.Tables, data []byte, fn engine.MatchFunc) stats.Stats {
	t, ok := tables.(*Tables)
	if !ok || t == nil {
		panic(engine.ErrInvalidHandle)
	}
	start := time.Now()
	st := stats.New(t.algorithm, len(data))

	cont := true
	if t.folded != nil {
		cont = scanCore(t.folded, signature.FoldBytes(data), fn, &st)
	}
	if cont && t.exact != nil {
		scanCore(t.exact, data, fn, &st)
	}
	st.ElapsedSec = time.Since(start).Seconds()
	return st
}
