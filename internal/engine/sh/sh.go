// Package sh implements Set-Horspool: a single bad-character shift table
// shared across all patterns in a signature set (of the set's minimum
// pattern length). At every window the candidate bucket for the ending
// byte is checked unconditionally, same as the classic single-pattern
// algorithm's backward comparison; the shift value only controls how
// far the window advances once that check is done. Unlike ac and wm, a
// mixed-case signature set needs no split into separate tables: nocase
// patterns register both case variants of each byte directly into the
// shared shift and bucket tables. See SPEC_FULL.md §4.4.
package sh

import (
	"bytes"
	"time"

	"github.com/swarmguard/sigscan/internal/engine"
	"github.com/swarmguard/sigscan/internal/signature"
	"github.com/swarmguard/sigscan/internal/stats"
)

const algorithmName = "set-horspool"

// Tables is the shift table and end-byte buckets built from the whole
// signature set at its shared window length m (the shortest pattern).
// Patterns longer than m are still matched correctly: the shift table
// only governs window placement, and bucket verification compares the
// full pattern length starting at the window.
type Tables struct {
	m         int
	shift     [256]int
	bucket    [256][]uint32
	patLen    map[uint32]int
	patBytes  map[uint32][]byte
	patNoCase map[uint32]bool
}

func (t *Tables) Algorithm() string { return algorithmName }

// Engine is the Set-Horspool matcher implementation.
type Engine struct{}

func New() *Engine { return &Engine{} }

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// otherCase toggles the case of an ASCII letter byte; any other byte is
// returned unchanged.
func otherCase(c byte) byte {
	switch {
	case c >= 'a' && c <= 'z':
		return c - ('a' - 'A')
	case c >= 'A' && c <= 'Z':
		return c + ('a' - 'A')
	default:
		return c
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (e *Engine) Preprocess(set *signature.Set) (engine.Tables, error) {
	if set.Len() == 0 {
		return nil, signature.ErrEmptySet
	}
	m := set.MinLength()
	t := &Tables{
		m:         m,
		patLen:    make(map[uint32]int, set.Len()),
		patBytes:  make(map[uint32][]byte, set.Len()),
		patNoCase: make(map[uint32]bool, set.Len()),
	}
	for c := range t.shift {
		t.shift[c] = m
	}

	registerShift := func(c byte, d int, nocase bool) {
		if d < t.shift[c] {
			t.shift[c] = d
		}
		if nocase && isASCIILetter(c) {
			oc := otherCase(c)
			if d < t.shift[oc] {
				t.shift[oc] = d
			}
		}
	}
	registerBucket := func(c byte, id uint32, nocase bool) {
		t.bucket[c] = append(t.bucket[c], id)
		if nocase && isASCIILetter(c) {
			oc := otherCase(c)
			t.bucket[oc] = append(t.bucket[oc], id)
		}
	}

	for _, s := range set.All() {
		t.patLen[s.ID] = len(s.Pattern)
		t.patBytes[s.ID] = s.Pattern
		t.patNoCase[s.ID] = s.NoCase

		for i := 0; i <= m-2; i++ {
			registerShift(s.Pattern[i], m-1-i, s.NoCase)
		}
		registerBucket(s.Pattern[m-1], s.ID, s.NoCase)
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

	pos := 0
	stop := false
	for pos+t.m <= n && !stop {
		endByte := data[pos+t.m-1]
		st.Windows++
		s := t.shift[endByte]

		matchedAny := false
		for _, pid := range t.bucket[endByte] {
			pl := t.patLen[pid]
			if pos+pl > n {
				continue
			}
			candidate := data[pos : pos+pl]
			pat := t.patBytes[pid]
			st.Comparisons++
			var equal bool
			if t.patNoCase[pid] {
				equal = signature.EqualFold(candidate, pat)
			} else {
				equal = bytes.Equal(candidate, pat)
			}
			if !equal {
				continue
			}
			st.ExactMatches++
			st.Matches++
			matchedAny = true
			if !fn(engine.Match{PatternID: pid, Start: uint64(pos)}) {
				stop = true
				break
			}
		}
		st.Shifts++
		if stop {
			break
		}
		if matchedAny {
			st.SumShift++
			pos++
		} else {
			advance := max(1, s)
			st.SumShift += uint64(advance)
			pos += advance
		}
	}
	st.ElapsedSec = time.Since(start).Seconds()
	return st
}
