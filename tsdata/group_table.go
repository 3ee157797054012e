package tsdata

import (
	"sort"

	"github.com/nahratzah/monsoon/fsptr"
	"github.com/nahratzah/monsoon/internal/xdr"
)

// MetricRef indexes a metric name in the shared path dictionary.
type MetricRef = uint32

// MetricEntry is one metric column within a GroupTable: the metric's name
// (a path-dictionary index) and a pointer to its MetricTable extent.
type MetricEntry struct {
	MetricRef MetricRef
	Ptr       fsptr.Pointer
}

// GroupTable is one group's per-timestamp presence bitset plus its metric
// columns, grounded on group_table.cc/.h.
type GroupTable struct {
	Presence Bitset
	Metrics  []MetricEntry // sorted, unique by MetricRef
}

// Encode appends the wire form of g to buf: presence bitset, then a
// collection of (metric_ref, pointer) pairs sorted by metric_ref, matching
// group_table.cc's decode layout (no encode() survives in the original;
// this is the symmetric completion — see DESIGN.md).
func (g GroupTable) Encode(buf []byte) []byte {
	buf = g.Presence.Encode(buf)

	metrics := append([]MetricEntry(nil), g.Metrics...)
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].MetricRef < metrics[j].MetricRef })

	buf = xdr.PutCollectionLen(buf, len(metrics))
	for _, m := range metrics {
		buf = xdr.PutUint32(buf, m.MetricRef)
		buf = xdr.PutPointer(buf, m.Ptr)
	}
	return buf
}

// DecodeGroupTable parses a GroupTable whose presence bitset has n bits.
func DecodeGroupTable(buf []byte, n int) (GroupTable, int, error) {
	presence, off, err := DecodeBitset(buf, n)
	if err != nil {
		return GroupTable{}, 0, err
	}

	count, m, err := xdr.GetCollectionLen(buf[off:])
	off += m
	if err != nil {
		return GroupTable{}, 0, err
	}

	metrics := make([]MetricEntry, count)
	for i := range metrics {
		ref, m, err := xdr.GetUint32(buf[off:])
		off += m
		if err != nil {
			return GroupTable{}, 0, err
		}
		ptr, m, err := xdr.GetPointer(buf[off:])
		off += m
		if err != nil {
			return GroupTable{}, 0, err
		}
		metrics[i] = MetricEntry{MetricRef: ref, Ptr: ptr}
	}

	return GroupTable{Presence: presence, Metrics: metrics}, off, nil
}
