package tsdata

import (
	"github.com/nahratzah/monsoon/fsptr"
	"github.com/nahratzah/monsoon/internal/xdr"
)

// HeaderSize is the fixed on-disk size of Header: first(8) + last(8) +
// flags(4) + reserved(4) + file_size(8) + fdt{off(8),len(8)} = 48 bytes.
//
// spec.md's external-interfaces section states "= 40 bytes" for this same
// field list, but 8+8+4+4+8+16 sums to 48, matching the original source's
// own tsfile_header::XDR_SIZE constant; see DESIGN.md's Open Questions.
const HeaderSize = 8 + 8 + 4 + 4 + 8 + 16

// Header is the tsfile_header immediately following the mime header:
// the file's time range, its kind/compression/ordering flags, its logical
// size, and a pointer to the file's root structure (a file_data_tables
// collection for KindTables, the head list node for KindList).
type Header struct {
	First, Last int64 // milliseconds since epoch
	Flags       Flags
	Reserved    uint32
	FileSize    uint64
	FDT         fsptr.Pointer
}

// Encode appends the wire form of h to buf.
func (h Header) Encode(buf []byte) []byte {
	buf = xdr.PutInt64(buf, h.First)
	buf = xdr.PutInt64(buf, h.Last)
	buf = xdr.PutUint32(buf, uint32(h.Flags))
	buf = xdr.PutUint32(buf, h.Reserved)
	buf = xdr.PutUint64(buf, h.FileSize)
	buf = xdr.PutPointer(buf, h.FDT)
	return buf
}

// DecodeHeader parses a Header from the front of buf.
func DecodeHeader(buf []byte) (Header, int, error) {
	if len(buf) < HeaderSize {
		return Header{}, 0, xdr.ErrShortBuffer
	}
	var h Header
	off := 0
	var n int
	var err error

	h.First, n, err = xdr.GetInt64(buf[off:])
	off += n
	if err != nil {
		return Header{}, 0, err
	}
	h.Last, n, err = xdr.GetInt64(buf[off:])
	off += n
	if err != nil {
		return Header{}, 0, err
	}
	var flags uint32
	flags, n, err = xdr.GetUint32(buf[off:])
	off += n
	if err != nil {
		return Header{}, 0, err
	}
	h.Flags = Flags(flags)
	h.Reserved, n, err = xdr.GetUint32(buf[off:])
	off += n
	if err != nil {
		return Header{}, 0, err
	}
	h.FileSize, n, err = xdr.GetUint64(buf[off:])
	off += n
	if err != nil {
		return Header{}, 0, err
	}
	h.FDT, n, err = xdr.GetPointer(buf[off:])
	off += n
	if err != nil {
		return Header{}, 0, err
	}
	return h, off, nil
}
