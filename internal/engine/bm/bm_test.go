package bm

import (
	"testing"

	"github.com/swarmguard/sigscan/internal/engine"
	"github.com/swarmguard/sigscan/internal/signature"
)

func buildSet(t *testing.T, inputs []signature.Input) *signature.Set {
	t.Helper()
	set, err := signature.Build(inputs)
	if err != nil {
		t.Fatalf("signature.Build: %v", err)
	}
	return set
}

func scanAll(t *testing.T, e *Engine, set *signature.Set, data []byte) []engine.Match {
	t.Helper()
	tables, err := e.Preprocess(set)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	var matches []engine.Match
	st := e.Scan(tables, data, func(m engine.Match) bool {
		matches = append(matches, m)
		return true
	})
	if int(st.Matches) != len(matches) {
		t.Errorf("Stats.Matches = %d, want %d", st.Matches, len(matches))
	}
	return matches
}

func TestClassicMultiPatternSet(t *testing.T) {
	set := buildSet(t, []signature.Input{
		{Pattern: []byte("he")},
		{Pattern: []byte("she")},
		{Pattern: []byte("his")},
		{Pattern: []byte("hers")},
	})
	matches := scanAll(t, New(), set, []byte("ushers"))
	got := map[[2]uint64]bool{}
	for _, m := range matches {
		got[[2]uint64{uint64(m.PatternID), m.Start}] = true
	}
	for _, exp := range [][2]uint64{{1, 1}, {0, 2}, {3, 2}} {
		if !got[exp] {
			t.Errorf("missing expected match patternID=%d start=%d in %v", exp[0], exp[1], matches)
		}
	}
	if len(matches) != 3 {
		t.Errorf("got %d matches, want 3: %v", len(matches), matches)
	}
}

func TestOverlappingSelfRepeatingPattern(t *testing.T) {
	set := buildSet(t, []signature.Input{{Pattern: []byte("aa")}})
	matches := scanAll(t, New(), set, []byte("aaaa"))
	starts := map[uint64]bool{}
	for _, m := range matches {
		starts[m.Start] = true
	}
	for _, want := range []uint64{0, 1, 2} {
		if !starts[want] {
			t.Errorf("missing match at start %d, got %v", want, matches)
		}
	}
	if len(matches) != 3 {
		t.Errorf("got %d matches, want 3", len(matches))
	}
}

func TestNoCaseMatchesCaseVariants(t *testing.T) {
	set := buildSet(t, []signature.Input{{Pattern: []byte("abc"), NoCase: true}})
	for _, input := range []string{"abc", "ABC", "aBc", "AbC"} {
		matches := scanAll(t, New(), set, []byte(input))
		if len(matches) != 1 {
			t.Errorf("input %q: got %d matches, want 1", input, len(matches))
		}
	}
}

func TestMixedCaseSignatureSet(t *testing.T) {
	set := buildSet(t, []signature.Input{
		{Pattern: []byte("GET"), NoCase: false},
		{Pattern: []byte("user"), NoCase: true},
	})
	matches := scanAll(t, New(), set, []byte("GET /x USER anonymous"))
	foundGET, foundUSER := false, false
	for _, m := range matches {
		if m.PatternID == 0 {
			foundGET = true
		}
		if m.PatternID == 1 {
			foundUSER = true
		}
	}
	if !foundGET {
		t.Error("case-sensitive pattern GET did not match")
	}
	if !foundUSER {
		t.Error("nocase pattern user did not match USER")
	}
	if matches2 := scanAll(t, New(), set, []byte("get /x")); len(matches2) != 0 {
		t.Errorf("lowercase get unexpectedly matched case-sensitive pattern: %v", matches2)
	}
}

func TestRawByteNonTextPattern(t *testing.T) {
	set := buildSet(t, []signature.Input{{Pattern: []byte{0x00, 0x01, 0x02}}})
	data := []byte{0xFF, 0x00, 0x01, 0x02, 0xFF}
	matches := scanAll(t, New(), set, data)
	if len(matches) != 1 || matches[0].Start != 1 {
		t.Errorf("raw byte pattern match = %v, want single match at start 1", matches)
	}
}

// TestSequentialPerPatternOrdering documents that bm reports all matches
// for one pattern before moving to the next, unlike the multi-pattern
// engines which report matches in left-to-right text order.
func TestSequentialPerPatternOrdering(t *testing.T) {
	set := buildSet(t, []signature.Input{
		{Pattern: []byte("bb")},
		{Pattern: []byte("aa")},
	})
	matches := scanAll(t, New(), set, []byte("aabb"))
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2: %v", len(matches), matches)
	}
	if matches[0].PatternID != 0 || matches[0].Start != 2 {
		t.Errorf("first reported match = %+v, want pattern 0 (bb) at start 2", matches[0])
	}
	if matches[1].PatternID != 1 || matches[1].Start != 0 {
		t.Errorf("second reported match = %+v, want pattern 1 (aa) at start 0", matches[1])
	}
}

func TestCooperativeCancellation(t *testing.T) {
	set := buildSet(t, []signature.Input{
		{Pattern: []byte("aa")},
		{Pattern: []byte("bb")},
	})
	e := New()
	tables, err := e.Preprocess(set)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	count := 0
	e.Scan(tables, []byte("aaaabbbb"), func(m engine.Match) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("callback invoked %d times after requesting cancellation, want 1", count)
	}
}

func TestEmptyInputNoMatches(t *testing.T) {
	set := buildSet(t, []signature.Input{{Pattern: []byte("x")}})
	matches := scanAll(t, New(), set, nil)
	if len(matches) != 0 {
		t.Errorf("got %d matches on empty input, want 0", len(matches))
	}
}

func TestEmptySetRejected(t *testing.T) {
	if _, err := New().Preprocess(&signature.Set{}); err != signature.ErrEmptySet {
		t.Fatalf("Preprocess on empty set error = %v, want ErrEmptySet", err)
	}
}

func TestDeterminism(t *testing.T) {
	set := buildSet(t, []signature.Input{
		{Pattern: []byte("/etc/passwd")},
		{Pattern: []byte("cmd.exe")},
	})
	data := []byte("GET /etc/passwd HTTP/1.0\r\nrun cmd.exe now")
	first := scanAll(t, New(), set, data)
	second := scanAll(t, New(), set, data)
	if len(first) != len(second) {
		t.Fatalf("non-deterministic match count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("non-deterministic match at %d: %v vs %v", i, first[i], second[i])
		}
	}
}
