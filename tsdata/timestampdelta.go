package tsdata

import "github.com/nahratzah/monsoon/internal/xdr"

// TimestampDelta is the wire-efficient representation of a block's ordered
// timestamp vector: a base timestamp plus signed 32-bit deltas between
// consecutive timestamps.
type TimestampDelta struct {
	Base    int64
	Deltas  []int32
	present bool // distinguishes zero timestamps from one timestamp (empty Deltas either way)
}

// NewTimestampDelta builds a TimestampDelta from an ordered vector of
// millisecond timestamps, returning ErrEncodingRange if any consecutive gap
// doesn't fit in a signed 32-bit delta.
func NewTimestampDelta(times []int64) (TimestampDelta, error) {
	if len(times) == 0 {
		return TimestampDelta{}, nil
	}
	td := TimestampDelta{Base: times[0], Deltas: make([]int32, 0, len(times)-1), present: true}
	for i := 1; i < len(times); i++ {
		d := times[i] - times[i-1]
		if d > 0x7fffffff || d < -0x80000000 {
			return TimestampDelta{}, ErrEncodingRange
		}
		td.Deltas = append(td.Deltas, int32(d))
	}
	return td, nil
}

// Len returns the number of timestamps represented.
func (t TimestampDelta) Len() int {
	if !t.present {
		return 0
	}
	return len(t.Deltas) + 1
}

// Times materializes the full timestamp vector.
func (t TimestampDelta) Times() []int64 {
	if t.Len() == 0 {
		return nil
	}
	out := make([]int64, t.Len())
	out[0] = t.Base
	for i, d := range t.Deltas {
		out[i+1] = out[i] + int64(d)
	}
	return out
}

// Encode appends the wire form of t to buf: base i64 + u32-counted i32
// deltas.
func (t TimestampDelta) Encode(buf []byte) []byte {
	buf = xdr.PutInt64(buf, t.Base)
	buf = xdr.PutCollectionLen(buf, len(t.Deltas))
	for _, d := range t.Deltas {
		buf = xdr.PutInt32(buf, d)
	}
	return buf
}

// DecodeTimestampDelta parses a TimestampDelta from the front of buf.
func DecodeTimestampDelta(buf []byte) (TimestampDelta, int, error) {
	base, off, err := xdr.GetInt64(buf)
	if err != nil {
		return TimestampDelta{}, 0, err
	}
	n, m, err := xdr.GetCollectionLen(buf[off:])
	off += m
	if err != nil {
		return TimestampDelta{}, 0, err
	}
	deltas := make([]int32, n)
	for i := range deltas {
		d, m, err := xdr.GetInt32(buf[off:])
		off += m
		if err != nil {
			return TimestampDelta{}, 0, err
		}
		deltas[i] = d
	}
	return TimestampDelta{Base: base, Deltas: deltas, present: true}, off, nil
}
