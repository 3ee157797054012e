// Package xdr implements the append/consume primitives shared by every
// on-disk structure in the tsdata v2 format: fixed-width big-endian
// integers, an (offset, length) file-segment pointer, and the
// optional-value and collection framings the format builds on top of them.
package xdr

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/nahratzah/monsoon/fsptr"
)

// ErrShortBuffer is returned when a decode call runs out of input before
// consuming a complete value.
var ErrShortBuffer = errors.New("xdr: short buffer")

func PutUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func PutUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func PutUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func PutInt32(buf []byte, v int32) []byte { return PutUint32(buf, uint32(v)) }
func PutInt64(buf []byte, v int64) []byte { return PutUint64(buf, uint64(v)) }

func PutFloat64(buf []byte, v float64) []byte {
	return PutUint64(buf, math.Float64bits(v))
}

func GetUint16(buf []byte) (uint16, int, error) {
	if len(buf) < 2 {
		return 0, 0, ErrShortBuffer
	}
	return binary.BigEndian.Uint16(buf), 2, nil
}

func GetUint32(buf []byte) (uint32, int, error) {
	if len(buf) < 4 {
		return 0, 0, ErrShortBuffer
	}
	return binary.BigEndian.Uint32(buf), 4, nil
}

func GetUint64(buf []byte) (uint64, int, error) {
	if len(buf) < 8 {
		return 0, 0, ErrShortBuffer
	}
	return binary.BigEndian.Uint64(buf), 8, nil
}

func GetInt32(buf []byte) (int32, int, error) {
	v, n, err := GetUint32(buf)
	return int32(v), n, err
}

func GetInt64(buf []byte) (int64, int, error) {
	v, n, err := GetUint64(buf)
	return int64(v), n, err
}

func GetFloat64(buf []byte) (float64, int, error) {
	v, n, err := GetUint64(buf)
	return math.Float64frombits(v), n, err
}

// PutPointer appends a fsptr.Pointer as two big-endian u64 fields,
// matching file_segment_ptr's {off_, len_} layout.
func PutPointer(buf []byte, p fsptr.Pointer) []byte {
	buf = PutUint64(buf, uint64(p.Off))
	buf = PutUint64(buf, uint64(p.Len))
	return buf
}

func GetPointer(buf []byte) (fsptr.Pointer, int, error) {
	if len(buf) < 16 {
		return fsptr.Pointer{}, 0, ErrShortBuffer
	}
	off := binary.BigEndian.Uint64(buf[0:8])
	ln := binary.BigEndian.Uint64(buf[8:16])
	return fsptr.Pointer{Off: int64(off), Len: int64(ln)}, 16, nil
}

// PutOptionalPointer appends a u32 presence flag followed by the pointer
// fields when present, mirroring xdr_istream::get_optional /
// xdr_ostream::put_optional as used by tsdata_xdr's pred_/dict_ fields.
func PutOptionalPointer(buf []byte, p *fsptr.Pointer) []byte {
	if p == nil {
		return PutUint32(buf, 0)
	}
	buf = PutUint32(buf, 1)
	return PutPointer(buf, *p)
}

func GetOptionalPointer(buf []byte) (*fsptr.Pointer, int, error) {
	present, n, err := GetUint32(buf)
	if err != nil {
		return nil, 0, err
	}
	if present == 0 {
		return nil, n, nil
	}
	p, m, err := GetPointer(buf[n:])
	if err != nil {
		return nil, 0, err
	}
	return &p, n + m, nil
}

// PutCollectionLen appends the u32 element count that precedes every XDR
// collection.
func PutCollectionLen(buf []byte, n int) []byte { return PutUint32(buf, uint32(n)) }

func GetCollectionLen(buf []byte) (int, int, error) {
	n, m, err := GetUint32(buf)
	return int(n), m, err
}
