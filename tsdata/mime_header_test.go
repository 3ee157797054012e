package tsdata

import (
	"testing"

	"github.com/nahratzah/monsoon/fsptr"
)

func TestMimeHeaderRoundTrip(t *testing.T) {
	m := NewMimeHeader()
	buf := m.Encode(nil)
	if len(buf) != MimeHeaderSize {
		t.Fatalf("Encode produced %d bytes, want %d", len(buf), MimeHeaderSize)
	}

	got, n, err := DecodeMimeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeMimeHeader: %v", err)
	}
	if n != MimeHeaderSize || got != m {
		t.Fatalf("DecodeMimeHeader = %+v, %d, want %+v, %d", got, n, m, MimeHeaderSize)
	}
}

func TestMimeHeaderBadMagic(t *testing.T) {
	buf := NewMimeHeader().Encode(nil)
	buf[0] ^= 0xff
	if _, _, err := DecodeMimeHeader(buf); err != ErrBadMagic {
		t.Fatalf("err = %v, want ErrBadMagic", err)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		First:    1000,
		Last:     2000,
		Flags:    KindTables | CompressionSnappy | FlagSorted,
		Reserved: 0,
		FileSize: 4096,
		FDT:      fsptr.Pointer{Off: 128, Len: 64},
	}
	buf := h.Encode(nil)
	if len(buf) != HeaderSize {
		t.Fatalf("Encode produced %d bytes, want %d", len(buf), HeaderSize)
	}

	got, n, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if n != HeaderSize || got != h {
		t.Fatalf("DecodeHeader = %+v, %d, want %+v, %d", got, n, h, HeaderSize)
	}
}

func TestFlagsAccessors(t *testing.T) {
	f := KindTables | CompressionGzip | FlagSorted | FlagDistinct
	if f.Kind() != KindTables {
		t.Fatalf("Kind() = %v, want KindTables", f.Kind())
	}
	if f.Compression() != CompressionGzip {
		t.Fatalf("Compression() = %v, want CompressionGzip", f.Compression())
	}
	if !f.Sorted() || !f.Distinct() {
		t.Fatalf("Sorted/Distinct = %v/%v, want true/true", f.Sorted(), f.Distinct())
	}
	if s := f.String(); s != "tables/gzip/sorted/distinct" {
		t.Fatalf("String() = %q", s)
	}
}
