package tsdata

import (
	"sort"

	"github.com/nahratzah/monsoon/dict"
	"github.com/nahratzah/monsoon/internal/xdr"
)

// RecordMetricEntry is one metric_name → value pair within a single
// timestamp's record, grounded on record_metrics.cc/.h.
type RecordMetricEntry struct {
	MetricRef MetricRef
	Value     dict.MetricValue
}

// RecordMetrics holds every metric recorded for one group at one timestamp.
type RecordMetrics struct {
	Entries []RecordMetricEntry // sorted, unique by MetricRef
}

// Encode appends the wire form of r to buf: a collection of (metric_ref,
// metric_value) pairs sorted by metric_ref (no encode() survives in the
// original for this type; symmetric completion, see DESIGN.md).
func (r RecordMetrics) Encode(buf []byte, strs *dict.StrvalDictionary) []byte {
	entries := append([]RecordMetricEntry(nil), r.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].MetricRef < entries[j].MetricRef })

	buf = xdr.PutCollectionLen(buf, len(entries))
	for _, e := range entries {
		buf = xdr.PutUint32(buf, e.MetricRef)
		buf = dict.EncodeMetricValue(buf, e.Value, strs)
	}
	return buf
}

// DecodeRecordMetrics parses a RecordMetrics from the front of buf.
func DecodeRecordMetrics(buf []byte, strs *dict.StrvalDictionary) (RecordMetrics, int, error) {
	n, off, err := xdr.GetCollectionLen(buf)
	if err != nil {
		return RecordMetrics{}, 0, err
	}
	entries := make([]RecordMetricEntry, n)
	for i := range entries {
		ref, m, err := xdr.GetUint32(buf[off:])
		off += m
		if err != nil {
			return RecordMetrics{}, 0, err
		}
		v, m, err := dict.DecodeMetricValue(buf[off:], strs)
		off += m
		if err != nil {
			return RecordMetrics{}, 0, err
		}
		entries[i] = RecordMetricEntry{MetricRef: ref, Value: v}
	}
	return RecordMetrics{Entries: entries}, off, nil
}
