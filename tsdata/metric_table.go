package tsdata

import (
	"github.com/nahratzah/monsoon/dict"
	"github.com/nahratzah/monsoon/internal/xdr"
)

// Cell is one optional metric value at a fixed timestamp position within a
// MetricTable.
type Cell struct {
	Present bool
	Value   dict.MetricValue
}

// MetricTable is one metric's value-over-time column within a group: a
// slice of optional values, positionally aligned with the enclosing block's
// timestamp vector.
type MetricTable struct {
	Cells []Cell
}

// EncodeMetricTable appends the wire form of mt to buf. The original format
// (metric_table.cc) decodes eight typed columns — bool, int16, int32, int64,
// double, string, histogram, empty — followed by a generic metric_value
// column, but no encoder for the typed columns survives in the filtered
// original source (see DESIGN.md: metric_table never grew a matching
// encode()). This encoder writes empty presence bitsets for the six
// numeric/string/histogram columns, routes KindEmpty cells through the
// dedicated empty-presence column, and routes every other present cell
// through the trailing generic column — a format the faithfully
// reconstructed decoder below reads back exactly.
func EncodeMetricTable(buf []byte, mt MetricTable, strs *dict.StrvalDictionary) []byte {
	n := len(mt.Cells)
	empty := make([]bool, n)
	// bool, int16, int32, int64, double, string: always-empty typed columns.
	for i := 0; i < 6; i++ {
		buf = NewBitset(empty).Encode(buf)
	}
	// histogram: also always-empty.
	buf = NewBitset(empty).Encode(buf)

	emptyPresence := make([]bool, n)
	genPresence := make([]bool, n)
	for i, c := range mt.Cells {
		if !c.Present {
			continue
		}
		if c.Value.Kind() == dict.KindEmpty {
			emptyPresence[i] = true
		} else {
			genPresence[i] = true
		}
	}

	buf = NewBitset(emptyPresence).Encode(buf)

	buf = NewBitset(genPresence).Encode(buf)
	for i, c := range mt.Cells {
		if genPresence[i] {
			buf = dict.EncodeMetricValue(buf, c.Value, strs)
		}
	}

	return buf
}

// DecodeMetricTable parses a MetricTable of exactly n cells from the front
// of buf, against the eight-typed-column-plus-generic layout described
// above.
func DecodeMetricTable(buf []byte, n int, strs *dict.StrvalDictionary) (MetricTable, int, error) {
	cells := make([]Cell, n)
	off := 0

	// bool column: presence doubles as the (always-true) value.
	presence, m, err := DecodeBitset(buf[off:], n)
	off += m
	if err != nil {
		return MetricTable{}, 0, err
	}
	for i := 0; i < n; i++ {
		if presence.Get(i) {
			cells[i] = Cell{Present: true, Value: dict.BoolValue(true)}
		}
	}

	if cells, off, err = decodeFixedColumn(buf, off, n, cells, 2, func(v []byte) dict.MetricValue {
		return dict.IntValue(int64(int16(be16(v))))
	}); err != nil {
		return MetricTable{}, 0, err
	}
	if cells, off, err = decodeFixedColumn(buf, off, n, cells, 4, func(v []byte) dict.MetricValue {
		x, _, _ := xdr.GetInt32(v)
		return dict.IntValue(int64(x))
	}); err != nil {
		return MetricTable{}, 0, err
	}
	if cells, off, err = decodeFixedColumn(buf, off, n, cells, 8, func(v []byte) dict.MetricValue {
		x, _, _ := xdr.GetInt64(v)
		return dict.IntValue(x)
	}); err != nil {
		return MetricTable{}, 0, err
	}
	if cells, off, err = decodeFixedColumn(buf, off, n, cells, 8, func(v []byte) dict.MetricValue {
		x, _, _ := xdr.GetFloat64(v)
		return dict.FloatValue(x)
	}); err != nil {
		return MetricTable{}, 0, err
	}
	if cells, off, err = decodeFixedColumn(buf, off, n, cells, 4, func(v []byte) dict.MetricValue {
		idx, _, _ := xdr.GetUint32(v)
		s, err := strs.Decode(idx)
		if err != nil {
			return dict.EmptyValue()
		}
		return dict.StringValue(s)
	}); err != nil {
		return MetricTable{}, 0, err
	}

	// histogram column: each value is a u32-counted (lo,hi,count) triple.
	hpresence, m, err := DecodeBitset(buf[off:], n)
	off += m
	if err != nil {
		return MetricTable{}, 0, err
	}
	for i := 0; i < n; i++ {
		if !hpresence.Get(i) {
			continue
		}
		count, m, err := xdr.GetCollectionLen(buf[off:])
		off += m
		if err != nil {
			return MetricTable{}, 0, err
		}
		buckets := make([]dict.HistogramBucket, count)
		for j := range buckets {
			lo, m1, _ := xdr.GetFloat64(buf[off:])
			hi, m2, _ := xdr.GetFloat64(buf[off+m1:])
			cnt, m3, _ := xdr.GetFloat64(buf[off+m1+m2:])
			off += m1 + m2 + m3
			buckets[j] = dict.HistogramBucket{Lo: lo, Hi: hi, Count: cnt}
		}
		cells[i] = Cell{Present: true, Value: dict.HistogramValue(buckets)}
	}

	// empty column: presence only, no values.
	epresence, m, err := DecodeBitset(buf[off:], n)
	off += m
	if err != nil {
		return MetricTable{}, 0, err
	}
	for i := 0; i < n; i++ {
		if epresence.Get(i) {
			cells[i] = Cell{Present: true, Value: dict.EmptyValue()}
		}
	}

	// generic column: presence bitset + one full metric_value per set bit.
	gpresence, m, err := DecodeBitset(buf[off:], n)
	off += m
	if err != nil {
		return MetricTable{}, 0, err
	}
	for i := 0; i < n; i++ {
		if !gpresence.Get(i) {
			continue
		}
		v, m, err := dict.DecodeMetricValue(buf[off:], strs)
		off += m
		if err != nil {
			return MetricTable{}, 0, err
		}
		cells[i] = Cell{Present: true, Value: v}
	}

	return MetricTable{Cells: cells}, off, nil
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }

// decodeFixedColumn reads one typed column: a presence bitset of length n,
// then width-byte raw values for exactly CountTrue(presence) set positions,
// merged into cells via decode.
func decodeFixedColumn(buf []byte, off, n int, cells []Cell, width int, decode func([]byte) dict.MetricValue) ([]Cell, int, error) {
	presence, m, err := DecodeBitset(buf[off:], n)
	off += m
	if err != nil {
		return cells, 0, err
	}
	for i := 0; i < n; i++ {
		if !presence.Get(i) {
			continue
		}
		if len(buf) < off+width {
			return cells, 0, xdr.ErrShortBuffer
		}
		cells[i] = Cell{Present: true, Value: decode(buf[off : off+width])}
		off += width
	}
	return cells, off, nil
}
