package tsdata

import "testing"

func roundTripBitset(t *testing.T, bits []bool) Bitset {
	t.Helper()
	buf := NewBitset(append([]bool(nil), bits...)).Encode(nil)
	got, n, err := DecodeBitset(buf, len(bits))
	if err != nil {
		t.Fatalf("DecodeBitset: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("DecodeBitset consumed %d bytes, want %d", n, len(buf))
	}
	if got.Len() != len(bits) {
		t.Fatalf("Len() = %d, want %d", got.Len(), len(bits))
	}
	for i, want := range bits {
		if got.Get(i) != want {
			t.Fatalf("bit %d = %v, want %v", i, got.Get(i), want)
		}
	}
	return got
}

func TestBitsetRoundTrip(t *testing.T) {
	cases := [][]bool{
		nil,
		{true},
		{false},
		{true, true, true, false, false, true},
		{false, false, false, true, true, true, true, false},
	}
	for _, bits := range cases {
		roundTripBitset(t, bits)
	}
}

func TestBitsetCountTrue(t *testing.T) {
	b := NewBitset([]bool{true, false, true, true, false})
	if n := b.CountTrue(); n != 3 {
		t.Fatalf("CountTrue() = %d, want 3", n)
	}
}

func TestBitsetLongRunSplitting(t *testing.T) {
	n := 2*maxRun + 100
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = true
	}
	roundTripBitset(t, bits)

	for i := maxRun; i < maxRun+10; i++ {
		bits[i] = false
	}
	roundTripBitset(t, bits)
}

func TestBitsetAlternatingRuns(t *testing.T) {
	bits := make([]bool, 40)
	for i := range bits {
		bits[i] = i%2 == 0
	}
	roundTripBitset(t, bits)
}
