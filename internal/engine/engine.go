// Package engine declares the common contract every matcher
// implementation (internal/engine/ac, wm, sh, bm) satisfies, plus the
// shared Match record and FNV-1a hash used by several of them.
package engine

import (
	"errors"

	"github.com/swarmguard/sigscan/internal/signature"
	"github.com/swarmguard/sigscan/internal/stats"
)

// ErrAllocation is returned by a Preprocess implementation when its tables
// could not be allocated (e.g. a configuration explicitly gates a large
// Wu-Manber block size). It is fatal for that engine only.
var ErrAllocation = errors.New("engine: table allocation failed")

// ErrInvalidHandle indicates Scan was called on Tables that failed to
// build, or a zero Tables value. It is a defect, not a runtime condition,
// and call sites should treat it as panic-class.
var ErrInvalidHandle = errors.New("engine: invalid or uninitialized tables")

// Match is one (pattern id, start offset) hit. start+len(pattern) never
// exceeds the scanned buffer's length.
type Match struct {
	PatternID uint32
	Start     uint64
}

// Tables is the opaque, read-only-after-build preprocessing output of one
// engine for one signature.Set. Each engine's own package returns a
// concrete type satisfying this interface from Preprocess.
type Tables interface {
	// Algorithm names the matcher ("aho-corasick", "wu-manber-det", ...).
	Algorithm() string
}

// MatchFunc receives each match as it is found. Returning false requests
// cooperative cancellation: the engine stops at its next safe point and
// still returns a valid Stats record for the work done so far.
type MatchFunc func(Match) bool

// Engine is the uniform interface over the four matcher families.
type Engine interface {
	// Preprocess builds this engine's Tables from a signature set. It is
	// the only place build-time errors (signature.ErrEmptySet,
	// signature.ErrBadSignature, ErrAllocation) can surface.
	Preprocess(set *signature.Set) (Tables, error)

	// Scan runs one synchronous, single-threaded pass over data, invoking
	// fn for every match found, and returns the scan's Stats. Scan never
	// errors: malformed input simply yields no matches.
	Scan(tables Tables, data []byte, fn MatchFunc) stats.Stats
}

const (
	fnvOffsetBasis uint32 = 0x811C9DC5
	fnvPrime       uint32 = 0x01000193
)

// FNV1a computes the 32-bit FNV-1a hash with the spec's bit-exact
// constants and wraparound multiplication.
func FNV1a(data []byte) uint32 {
	h := fnvOffsetBasis
	for _, b := range data {
		h ^= uint32(b)
		h *= fnvPrime
	}
	return h
}
