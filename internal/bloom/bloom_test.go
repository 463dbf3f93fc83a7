package bloom

import "testing"

func TestNoFalseNegatives(t *testing.T) {
	f := New(100, 0.01)
	items := [][]byte{[]byte("abc"), []byte("def"), []byte("GET"), {0x00, 0x01, 0x02}}
	for _, it := range items {
		f.Add(it)
	}
	for _, it := range items {
		if !f.MayContain(it) {
			t.Errorf("MayContain(%v) = false after Add, want true (no false negatives allowed)", it)
		}
	}
}

func TestDefinitelyAbsent(t *testing.T) {
	f := New(10, 0.001)
	f.Add([]byte("needle"))
	if f.MayContain([]byte("something-else-entirely-unrelated")) {
		// Not a correctness bug on its own (false positives are allowed),
		// but with a low fp-rate and a tiny filter this specific pair
		// should not collide.
		t.Log("unexpected false positive for an unrelated key (rare but not impossible)")
	}
}

func TestLargerNIncreasesTableSize(t *testing.T) {
	small := New(10, 0.01)
	large := New(10000, 0.01)
	if large.M() <= small.M() {
		t.Errorf("M() did not grow with expected element count: small=%d large=%d", small.M(), large.M())
	}
}

func TestKIsAtLeastOne(t *testing.T) {
	f := New(1, 0.5)
	if f.K() < 1 {
		t.Errorf("K() = %d, want >= 1", f.K())
	}
}
