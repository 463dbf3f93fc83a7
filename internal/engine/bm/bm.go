// Package bm implements the classic per-pattern Boyer-Moore matcher:
// independent bad-character and good-suffix (border) tables per
// signature, applied sequentially with no cross-pattern sharing. It is
// the baseline against which the multi-pattern engines are benchmarked.
// See SPEC_FULL.md §4.5.
package bm

import (
	"time"

	"github.com/swarmguard/sigscan/internal/engine"
	"github.com/swarmguard/sigscan/internal/signature"
	"github.com/swarmguard/sigscan/internal/stats"
)

const algorithmName = "boyer-moore"

// pattern holds one signature's precomputed tables. compareBytes is the
// case-folded pattern when NoCase is set, so the scan loop can fold the
// text byte-by-byte and compare directly without branching per
// comparison.
type pattern struct {
	id           uint32
	compareBytes []byte
	noCase       bool
	bad          [256]int
	good         []int
	border       []int
}

// Tables holds one independent pattern set, each with its own bad-char
// and good-suffix tables.
type Tables struct {
	patterns []pattern
}

func (t *Tables) Algorithm() string { return algorithmName }

// Engine is the Boyer-Moore matcher implementation.
type Engine struct{}

func New() *Engine { return &Engine{} }

func buildBadChar(p []byte) [256]int {
	var bad [256]int
	for i := range bad {
		bad[i] = -1
	}
	for j, c := range p {
		bad[c] = j
	}
	return bad
}

// buildGoodSuffix computes the border and strong-suffix-shift tables for
// p, each of length len(p)+1, via the standard two-pass algorithm (a
// suffix-that-is-also-a-prefix pass, then a fill pass using border[0]).
func buildGoodSuffix(p []byte) (border, good []int) {
	l := len(p)
	border = make([]int, l+1)
	good = make([]int, l+1)

	i, j := l, l+1
	border[i] = j
	for i > 0 {
		for j <= l && p[i-1] != p[j-1] {
			if good[j] == 0 {
				good[j] = j - i
			}
			j = border[j]
		}
		i--
		j--
		border[i] = j
	}

	j = border[0]
	for i := 0; i <= l; i++ {
		if good[i] == 0 {
			good[i] = j
		}
		if i == j {
			j = border[j]
		}
	}
	return border, good
}

func (e *Engine) Preprocess(set *signature.Set) (engine.Tables, error) {
	if set.Len() == 0 {
		return nil, signature.ErrEmptySet
	}
	t := &Tables{patterns: make([]pattern, 0, set.Len())}
	for _, s := range set.All() {
		cmp := s.Pattern
		if s.NoCase {
			cmp = signature.FoldBytes(s.Pattern)
		}
		border, good := buildGoodSuffix(cmp)
		t.patterns = append(t.patterns, pattern{
			id:           s.ID,
			compareBytes: cmp,
			noCase:       s.NoCase,
			bad:          buildBadChar(cmp),
			good:         good,
			border:       border,
		})
	}
	return t, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (e *Engine) Scan(tables engine.Tables, data []byte, fn engine.MatchFunc) stats.Stats {
	t, ok := tables.(*Tables)
	if !ok || t == nil {
		panic(engine.ErrInvalidHandle)
	}
	start := time.Now()
	st := stats.New(algorithmName, len(data))
	n := len(data)

	stop := false
	for pi := range t.patterns {
		if stop {
			break
		}
		p := &t.patterns[pi]
		l := len(p.compareBytes)
		shift := 0
		for shift+l <= n && !stop {
			j := l - 1
			for j >= 0 && textByte(data, shift+j, p.noCase) == p.compareBytes[j] {
				st.Comparisons++
				j--
			}
			if j < 0 {
				st.ExactMatches++
				st.Matches++
				st.Shifts++
				if !fn(engine.Match{PatternID: p.id, Start: uint64(shift)}) {
					stop = true
					break
				}
				shift += max(1, p.good[0])
				continue
			}
			st.Comparisons++
			c := textByte(data, shift+j, p.noCase)
			badSkip := j - p.bad[c]
			if p.bad[c] == -1 {
				badSkip = j + 1
			}
			goodSkip := p.good[j+1]
			st.Shifts++
			shift += max(1, max(badSkip, goodSkip))
		}
	}
	st.ElapsedSec = time.Since(start).Seconds()
	return st
}

func textByte(data []byte, i int, foldIt bool) byte {
	if foldIt {
		return signature.Fold(data[i])
	}
	return data[i]
}
