package dict

import "testing"

func TestStrvalEncodeDecodeRoundTrip(t *testing.T) {
	d := NewStrvalDictionary()
	a := d.Encode("alpha")
	b := d.Encode("beta")
	a2 := d.Encode("alpha")

	if a != a2 {
		t.Fatalf("re-encoding an existing string returned a new index: %d != %d", a, a2)
	}
	if a == b {
		t.Fatalf("distinct strings collided on index %d", a)
	}

	if s, err := d.Decode(a); err != nil || s != "alpha" {
		t.Fatalf("Decode(%d) = %q, %v", a, s, err)
	}
	if s, err := d.Decode(b); err != nil || s != "beta" {
		t.Fatalf("Decode(%d) = %q, %v", b, s, err)
	}
}

func TestStrvalDecodeOutOfRange(t *testing.T) {
	d := NewStrvalDictionary()
	d.Encode("only")
	if _, err := d.Decode(5); err != ErrDictionaryLookup {
		t.Fatalf("err = %v, want ErrDictionaryLookup", err)
	}
}

func TestStrvalEncodeUpdateRoundTrip(t *testing.T) {
	src := NewStrvalDictionary()
	src.Encode("one")
	src.Encode("two")

	var buf []byte
	buf = src.EncodeUpdate(buf)
	if src.UpdatePending() {
		t.Fatal("UpdatePending should be false right after EncodeUpdate")
	}

	dst := NewStrvalDictionary()
	n, err := dst.DecodeUpdate(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", n, len(buf))
	}
	if s, _ := dst.Decode(0); s != "one" {
		t.Fatalf("dst[0] = %q", s)
	}
	if s, _ := dst.Decode(1); s != "two" {
		t.Fatalf("dst[1] = %q", s)
	}

	src.Encode("three")
	var buf2 []byte
	buf2 = src.EncodeUpdate(buf2)
	if _, err := dst.DecodeUpdate(buf2); err != nil {
		t.Fatal(err)
	}
	if s, _ := dst.Decode(2); s != "three" {
		t.Fatalf("dst[2] = %q", s)
	}
}

func TestStrvalDecodeUpdateRejectsNonContiguous(t *testing.T) {
	src := NewStrvalDictionary()
	src.Encode("a")
	src.Encode("b")
	var buf []byte
	buf = src.EncodeUpdate(buf)

	dst := NewStrvalDictionary()
	dst.Encode("unrelated") // dst now has len=1, but update claims offset=0

	before := dst.Len()
	if _, err := dst.DecodeUpdate(buf); err != ErrNonContiguousUpdate {
		t.Fatalf("err = %v, want ErrNonContiguousUpdate", err)
	}
	if dst.Len() != before {
		t.Fatalf("dictionary mutated on rejected update: len=%d, want %d", dst.Len(), before)
	}
}
