// Package bloom implements the probabilistic prefix filter used by the
// Wu-Manber engine's WM-prob variant. It guarantees no false negatives:
// Add followed by MayContain on the same bytes always returns true.
package bloom

import "math"

const (
	h1Seed uint32 = 0x811C9DC5
	h2Seed uint32 = 0x01000193
	fnvPrime uint32 = 0x01000193
)

// Filter is a fixed-size bit array with k independent probe functions,
// sized per the spec's m_bits/k formulas (§3, §6).
type Filter struct {
	bits []uint64
	m    int // bit array size
	k    int // number of probe functions
}

// New sizes a Filter for n expected elements and a target false-positive
// rate p (e.g. 0.01), per:
//
//	m_bits = ceil(-n * ln(p) / (ln 2)^2)
//	k      = floor((m_bits / n) * ln 2)
func New(n int, p float64) *Filter {
	if n < 1 {
		n = 1
	}
	m := int(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	if m < 1 {
		m = 1
	}
	k := int(math.Floor(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return &Filter{
		bits: make([]uint64, (m+63)/64),
		m:    m,
		k:    k,
	}
}

// M returns the bit array size.
func (f *Filter) M() int { return f.m }

// K returns the number of probe functions.
func (f *Filter) K() int { return f.k }

// fnv1aSeeded runs FNV-1a starting from seed as the offset basis, per the
// spec's h1/h2 base hashes.
func fnv1aSeeded(seed uint32, data []byte) uint32 {
	h := seed
	for _, b := range data {
		h ^= uint32(b)
		h *= fnvPrime
	}
	return h
}

func (f *Filter) probes(data []byte) (h1, h2 uint32) {
	return fnv1aSeeded(h1Seed, data), fnv1aSeeded(h2Seed, data)
}

func (f *Filter) probeIndex(h1, h2 uint32, i int) int {
	return int((h1 + uint32(i)*h2) % uint32(f.m))
}

// Add inserts data's membership into the filter.
func (f *Filter) Add(data []byte) {
	h1, h2 := f.probes(data)
	for i := 0; i < f.k; i++ {
		idx := f.probeIndex(h1, h2, i)
		f.bits[idx/64] |= 1 << uint(idx%64)
	}
}

// MayContain reports whether data was possibly added: false means
// definitely not added (no false negatives); true may be a false
// positive.
func (f *Filter) MayContain(data []byte) bool {
	h1, h2 := f.probes(data)
	for i := 0; i < f.k; i++ {
		idx := f.probeIndex(h1, h2, i)
		if f.bits[idx/64]&(1<<uint(idx%64)) == 0 {
			return false
		}
	}
	return true
}
