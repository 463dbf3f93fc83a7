// Package signature defines the canonical container for the literal
// byte-string patterns every matcher engine is built from.
package signature

import "errors"

// Sentinel build-time errors. Scans never fail; only building tables does.
var (
	ErrEmptySet          = errors.New("signature: empty signature set")
	ErrBadSignature      = errors.New("signature: zero-length pattern")
	ErrTooManySignatures = errors.New("signature: too many signatures for this engine")
)

// Signature is an immutable record for one literal pattern.
type Signature struct {
	ID       uint32
	Pattern  []byte
	NoCase   bool
	Metadata any
}

// Set is an ordered, immutable collection of Signatures. ID equals position.
type Set struct {
	sigs      []Signature
	minLength int
	maxLength int
	avgLength float64
}

// Input is the raw (bytes, nocase, metadata) triple accepted by Build.
type Input struct {
	Pattern  []byte
	NoCase   bool
	Metadata any
}

// Build validates and assembles a Set from a list of pattern inputs.
// Pattern byte slices are copied so the caller may reuse its buffer.
func Build(inputs []Input) (*Set, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptySet
	}
	sigs := make([]Signature, 0, len(inputs))
	minLen := -1
	maxLen := 0
	total := 0
	for i, in := range inputs {
		if len(in.Pattern) == 0 {
			return nil, ErrBadSignature
		}
		p := make([]byte, len(in.Pattern))
		copy(p, in.Pattern)
		sigs = append(sigs, Signature{
			ID:       uint32(i),
			Pattern:  p,
			NoCase:   in.NoCase,
			Metadata: in.Metadata,
		})
		if minLen == -1 || len(p) < minLen {
			minLen = len(p)
		}
		if len(p) > maxLen {
			maxLen = len(p)
		}
		total += len(p)
	}
	return &Set{
		sigs:      sigs,
		minLength: minLen,
		maxLength: maxLen,
		avgLength: float64(total) / float64(len(sigs)),
	}, nil
}

// Len returns the number of signatures in the set.
func (s *Set) Len() int { return len(s.sigs) }

// All returns the signatures in id order. The slice must not be mutated.
func (s *Set) All() []Signature { return s.sigs }

// At returns the signature with the given id.
func (s *Set) At(id uint32) Signature { return s.sigs[id] }

// MinLength is the length of the shortest pattern in the set.
func (s *Set) MinLength() int { return s.minLength }

// MaxLength is the length of the longest pattern in the set.
func (s *Set) MaxLength() int { return s.maxLength }

// AvgLength is the mean pattern length across the set.
func (s *Set) AvgLength() float64 { return s.avgLength }

// Fold case-folds a single byte through the ASCII letter ranges only, per
// the spec's nocase semantics (non-ASCII bytes pass through unchanged).
func Fold(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// FoldBytes returns a lower-cased copy of p, folding only ASCII letters.
func FoldBytes(p []byte) []byte {
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = Fold(b)
	}
	return out
}

// EqualFold reports whether a and b are equal after ASCII case-folding both.
func EqualFold(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if Fold(a[i]) != Fold(b[i]) {
			return false
		}
	}
	return true
}
