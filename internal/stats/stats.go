// Package stats defines the per-scan instrumentation record every engine
// in internal/engine populates. Each scan returns its own Stats value;
// engines never hold process-wide counters.
package stats

// Stats holds the counters meaningful to at least one engine. Each engine
// populates only the subset marked beside each field below; the rest stay
// zero.
type Stats struct {
	Algorithm   string
	InputLength int

	Windows      uint64 // SH, WM: sliding windows examined
	SumShift     uint64 // WM, SH: sum of shift distances taken
	HashHits     uint64 // WM: times the shift table said "verify here"
	ChainSteps   uint64 // WM: hash-bucket chain links walked
	ExactMatches uint64 // WM, SH, BM: full memcmp verifications that succeeded
	BloomChecks  uint64 // WM-prob: bloom membership probes performed
	BloomPass    uint64 // WM-prob: bloom probes that returned "maybe present"
	Comparisons  uint64 // SH, BM: byte comparisons performed
	Transitions  uint64 // AC: state transitions taken (including self-loops)
	FailSteps    uint64 // AC: failure-link hops taken
	Shifts       uint64 // SH, BM: shift operations performed
	Matches      uint64 // all engines: matches emitted

	ElapsedSec float64
}

// New returns a zero-valued Stats for the named algorithm and input size.
func New(algorithm string, inputLength int) Stats {
	return Stats{Algorithm: algorithm, InputLength: inputLength}
}
