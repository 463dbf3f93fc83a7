// Package ac implements the Aho-Corasick multi-pattern matcher: a trie of
// 256-way transitions, failure links computed by breadth-first traversal,
// and output sets closed under failure. See SPEC_FULL.md §4.2.
package ac

import (
	"time"

	"github.com/swarmguard/sigscan/internal/engine"
	"github.com/swarmguard/sigscan/internal/signature"
	"github.com/swarmguard/sigscan/internal/stats"
)

const algorithmName = "aho-corasick"

// node is one automaton state. next holds the trie's 256-way transition
// table; -1 is the "no transition yet" sentinel used during insertion and
// left in place for non-root nodes after build (the scanner follows
// failure links at runtime instead). Nodes are addressed by index into a
// contiguous slice, never by pointer, so the failure-link graph can never
// form an ownership cycle.
type node struct {
	next [256]int32
	fail int32
	out  []uint32 // pattern ids reported on arrival, closed under failure
}

func newNode() node {
	n := node{fail: -1}
	for i := range n.next {
		n.next[i] = -1
	}
	return n
}

// automaton is one trie (either the case-folded or the case-sensitive
// half of a mixed-case signature set).
type automaton struct {
	nodes []node
}

func newAutomaton() *automaton {
	return &automaton{nodes: []node{newNode()}}
}

func (a *automaton) insert(pattern []byte, id uint32) {
	cur := int32(0)
	for _, b := range pattern {
		nxt := a.nodes[cur].next[b]
		if nxt == -1 {
			a.nodes = append(a.nodes, newNode())
			nxt = int32(len(a.nodes) - 1)
			a.nodes[cur].next[b] = nxt
		}
		cur = nxt
	}
	a.nodes[cur].out = append(a.nodes[cur].out, id)
}

// build computes failure links by BFS from the root, merges output sets
// across failure links, then gap-fills the root so it is a total sink.
func (a *automaton) build() {
	root := int32(0)
	queue := make([]int32, 0, 256)
	for b := 0; b < 256; b++ {
		child := a.nodes[root].next[b]
		if child == -1 {
			a.nodes[root].next[b] = root
			continue
		}
		a.nodes[child].fail = root
		queue = append(queue, child)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for b := 0; b < 256; b++ {
			child := a.nodes[cur].next[b]
			if child == -1 {
				continue
			}
			f := a.nodes[cur].fail
			for f != root && a.nodes[f].next[b] == -1 {
				f = a.nodes[f].fail
			}
			failState := a.nodes[f].next[b]
			if failState == -1 {
				failState = root
			}
			a.nodes[child].fail = failState
			if len(a.nodes[failState].out) > 0 {
				a.nodes[child].out = append(a.nodes[child].out, a.nodes[failState].out...)
			}
			queue = append(queue, child)
		}
	}
}

// step follows failure links until a transition on b is defined, then
// takes it, recording the work in st.
func (a *automaton) step(cur int32, b byte, st *stats.Stats) int32 {
	for cur != 0 && a.nodes[cur].next[b] == -1 {
		cur = a.nodes[cur].fail
		st.FailSteps++
	}
	st.Transitions++
	return a.nodes[cur].next[b]
}

// Tables holds up to two automatons: a case-folded one for nocase
// patterns and an exact one for case-sensitive patterns. A pure set only
// needs one; a mixed set needs both, scanned in lockstep over the same
// input (§4.2's "separate case-sensitive AC" requirement).
type Tables struct {
	folded *automaton
	exact  *automaton
	patLen map[uint32]int
}

func (t *Tables) Algorithm() string { return algorithmName }

// Engine is the Aho-Corasick matcher implementation.
type Engine struct{}

func New() *Engine { return &Engine{} }

func (e *Engine) Preprocess(set *signature.Set) (engine.Tables, error) {
	if set.Len() == 0 {
		return nil, signature.ErrEmptySet
	}
	t := &Tables{patLen: make(map[uint32]int, set.Len())}
	for _, s := range set.All() {
		t.patLen[s.ID] = len(s.Pattern)
		if s.NoCase {
			if t.folded == nil {
				t.folded = newAutomaton()
			}
			t.folded.insert(signature.FoldBytes(s.Pattern), s.ID)
		} else {
			if t.exact == nil {
				t.exact = newAutomaton()
			}
			t.exact.insert(s.Pattern, s.ID)
		}
	}
	if t.folded != nil {
		t.folded.build()
	}
	if t.exact != nil {
		t.exact.build()
	}
	return t, nil
}

func (e *Engine) Scan(tables engine.Tables, data []byte, fn engine.MatchFunc) stats.Stats {
	t, ok := tables.(*Tables)
	if !ok || t == nil {
		panic(engine.ErrInvalidHandle)
	}
	start := time.Now()
	st := stats.New(algorithmName, len(data))

	var foldedState, exactState int32
	stop := false
	for i := 0; i < len(data) && !stop; i++ {
		if t.folded != nil {
			foldedState = t.folded.step(foldedState, signature.Fold(data[i]), &st)
			stop = !t.emit(t.folded.nodes[foldedState].out, i, &st, fn) || stop
		}
		if !stop && t.exact != nil {
			exactState = t.exact.step(exactState, data[i], &st)
			stop = !t.emit(t.exact.nodes[exactState].out, i, &st, fn) || stop
		}
	}
	st.ElapsedSec = time.Since(start).Seconds()
	return st
}

// emit reports every pattern id in out as ending at byte index i, and
// returns false as soon as the match callback requests cancellation.
func (t *Tables) emit(out []uint32, i int, st *stats.Stats, fn engine.MatchFunc) bool {
	for _, pid := range out {
		st.Matches++
		start := i - t.patLen[pid] + 1
		if !fn(engine.Match{PatternID: pid, Start: uint64(start)}) {
			return false
		}
	}
	return true
}
