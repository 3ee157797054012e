package dict

import (
	"reflect"
	"testing"
)

func TestPathEncodeDecodeRoundTrip(t *testing.T) {
	strs := NewStrvalDictionary()
	d := NewPathDictionary(strs)

	a := d.Encode([]string{"host", "cpu", "usage"})
	b := d.Encode([]string{"host", "mem", "free"})
	a2 := d.Encode([]string{"host", "cpu", "usage"})

	if a != a2 {
		t.Fatalf("re-encoding an existing path returned a new index: %d != %d", a, a2)
	}
	if a == b {
		t.Fatal("distinct paths collided")
	}

	got, err := d.Decode(a)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"host", "cpu", "usage"}) {
		t.Fatalf("Decode(%d) = %v", a, got)
	}
}

func TestPathDecodeOutOfRange(t *testing.T) {
	strs := NewStrvalDictionary()
	d := NewPathDictionary(strs)
	d.Encode([]string{"x"})
	if _, err := d.Decode(9); err != ErrDictionaryLookup {
		t.Fatalf("err = %v, want ErrDictionaryLookup", err)
	}
}

func TestPathEncodeUpdateRoundTrip(t *testing.T) {
	srcStrs := NewStrvalDictionary()
	src := NewPathDictionary(srcStrs)
	src.Encode([]string{"a", "b"})
	src.Encode([]string{"a", "c"})

	var sbuf []byte
	sbuf = srcStrs.EncodeUpdate(sbuf)
	var pbuf []byte
	pbuf = src.EncodeUpdate(pbuf)

	dstStrs := NewStrvalDictionary()
	if _, err := dstStrs.DecodeUpdate(sbuf); err != nil {
		t.Fatal(err)
	}
	dst := NewPathDictionary(dstStrs)
	n, err := dst.DecodeUpdate(pbuf)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(pbuf) {
		t.Fatalf("consumed %d bytes, want %d", n, len(pbuf))
	}

	got, err := dst.Decode(1)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("dst[1] = %v", got)
	}
}

func TestPathDecodeUpdateRejectsNonContiguous(t *testing.T) {
	strs := NewStrvalDictionary()
	src := NewPathDictionary(strs)
	src.Encode([]string{"p"})
	var buf []byte
	buf = src.EncodeUpdate(buf)

	dst := NewPathDictionary(strs)
	dst.Encode([]string{"q"})

	if _, err := dst.DecodeUpdate(buf); err != ErrNonContiguousUpdate {
		t.Fatalf("err = %v, want ErrNonContiguousUpdate", err)
	}
}
