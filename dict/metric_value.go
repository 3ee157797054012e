// Package dict implements the append-only string/path/tag dictionary triple
// and the metric-value wire codec shared by every tsdata v2 column.
package dict

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrDictionaryLookup is returned by Decode when an index is out of range.
var ErrDictionaryLookup = errors.New("dict: index out of range")

// ErrNonContiguousUpdate is returned by DecodeUpdate when the incoming
// update's offset does not match the dictionary's current length.
var ErrNonContiguousUpdate = errors.New("dict: update is not contiguous")

// ErrEncodingRange is returned when a value cannot be represented on the
// wire, or when a decoded collection would overflow a uint32 length.
var ErrEncodingRange = errors.New("dict: value exceeds encoding range")

// MetricKind is the wire tag identifying a MetricValue's representation.
type MetricKind uint32

const (
	KindBool      MetricKind = 0
	KindInt       MetricKind = 1
	KindFloat     MetricKind = 2
	KindString    MetricKind = 3
	KindHistogram MetricKind = 4
	KindEmpty     MetricKind = 0x7fffffff
)

func (k MetricKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindHistogram:
		return "histogram"
	case KindEmpty:
		return "empty"
	default:
		return fmt.Sprintf("metrickind(%d)", uint32(k))
	}
}

// HistogramBucket is one (lo,hi] bucket with its accumulated count.
type HistogramBucket struct {
	Lo, Hi, Count float64
}

// MetricValue is the tagged union stored in a tag_dictionary entry and in
// every tsdata metric column: bool, signed int64, unsigned uint64, float64,
// an interned string, a histogram, or empty.
//
// Two numeric representations (Int and Uint) mirror the original's
// signed_type/unsigned_type split: Go has no single integer type that losslessly
// round-trips both, and encoding collapses them per EncodeMetricValue's rule.
type MetricValue struct {
	kind MetricKind
	b    bool
	i    int64
	u    uint64
	uSet bool
	f    float64
	s    string
	hist []HistogramBucket
}

func EmptyValue() MetricValue                 { return MetricValue{kind: KindEmpty} }
func BoolValue(v bool) MetricValue            { return MetricValue{kind: KindBool, b: v} }
func IntValue(v int64) MetricValue            { return MetricValue{kind: KindInt, i: v} }
func UintValue(v uint64) MetricValue          { return MetricValue{kind: KindInt, u: v, uSet: true} }
func FloatValue(v float64) MetricValue        { return MetricValue{kind: KindFloat, f: v} }
func StringValue(v string) MetricValue        { return MetricValue{kind: KindString, s: v} }
func HistogramValue(b []HistogramBucket) MetricValue {
	return MetricValue{kind: KindHistogram, hist: b}
}

func (v MetricValue) Kind() MetricKind { return v.kind }

func (v MetricValue) Bool() bool { return v.b }

// Int returns the value as an int64. If the value was constructed with
// UintValue and doesn't fit in an int64, the result is truncated.
func (v MetricValue) Int() int64 {
	if v.uSet {
		return int64(v.u)
	}
	return v.i
}

func (v MetricValue) Uint() uint64 {
	if v.uSet {
		return v.u
	}
	return uint64(v.i)
}

func (v MetricValue) Float() float64 { return v.f }

// Str returns the value's string payload. Named Str rather than String to
// avoid accidentally satisfying fmt.Stringer with a method that only makes
// sense for KindString values.
func (v MetricValue) Str() string                  { return v.s }
func (v MetricValue) Histogram() []HistogramBucket { return v.hist }

// stringTable is the subset of *StrvalDictionary that metric-value encoding
// needs: resolving a string to its wire index (inserting if absent) and
// looking an index back up.
type stringTable interface {
	Encode(s string) uint32
	Decode(idx uint32) (string, error)
}

// EncodeMetricValue appends the wire form of v to buf, resolving any string
// payload against strs (inserting it if not already present).
func EncodeMetricValue(buf []byte, v MetricValue, strs stringTable) []byte {
	switch v.kind {
	case KindEmpty:
		return putKind(buf, KindEmpty)

	case KindBool:
		buf = putKind(buf, KindBool)
		if v.b {
			return append(buf, 1)
		}
		return append(buf, 0)

	case KindInt:
		// unsigned_type that overflows int64 is written as FLOAT, matching
		// the original's lossy-but-graceful fallback for huge counters.
		if v.uSet && v.u > uint64(1<<63-1) {
			buf = putKind(buf, KindFloat)
			return putFloat64(buf, float64(v.u))
		}
		buf = putKind(buf, KindInt)
		return putInt64(buf, v.Int())

	case KindFloat:
		buf = putKind(buf, KindFloat)
		return putFloat64(buf, v.f)

	case KindString:
		buf = putKind(buf, KindString)
		idx := strs.Encode(v.s)
		return putUint32(buf, idx)

	case KindHistogram:
		buf = putKind(buf, KindHistogram)
		buf = putUint32(buf, uint32(len(v.hist)))
		for _, b := range v.hist {
			buf = putFloat64(buf, b.Lo)
			buf = putFloat64(buf, b.Hi)
			buf = putFloat64(buf, b.Count)
		}
		return buf

	default:
		panic(fmt.Sprintf("dict: encode: unknown metric kind %d", v.kind))
	}
}

// DecodeMetricValue parses a MetricValue from the front of buf, returning the
// value and the number of bytes consumed.
func DecodeMetricValue(buf []byte, strs stringTable) (MetricValue, int, error) {
	if len(buf) < 4 {
		return MetricValue{}, 0, fmt.Errorf("dict: decode metric value: %w", errShortBuf)
	}
	kind := MetricKind(binary.BigEndian.Uint32(buf))
	n := 4

	switch kind {
	case KindEmpty:
		return EmptyValue(), n, nil

	case KindBool:
		if len(buf) < n+1 {
			return MetricValue{}, 0, fmt.Errorf("dict: decode metric value: %w", errShortBuf)
		}
		return BoolValue(buf[n] != 0), n + 1, nil

	case KindInt:
		if len(buf) < n+8 {
			return MetricValue{}, 0, fmt.Errorf("dict: decode metric value: %w", errShortBuf)
		}
		return IntValue(int64(binary.BigEndian.Uint64(buf[n:]))), n + 8, nil

	case KindFloat:
		if len(buf) < n+8 {
			return MetricValue{}, 0, fmt.Errorf("dict: decode metric value: %w", errShortBuf)
		}
		return FloatValue(getFloat64(buf[n:])), n + 8, nil

	case KindString:
		if len(buf) < n+4 {
			return MetricValue{}, 0, fmt.Errorf("dict: decode metric value: %w", errShortBuf)
		}
		idx := binary.BigEndian.Uint32(buf[n:])
		n += 4
		s, err := strs.Decode(idx)
		if err != nil {
			return MetricValue{}, 0, err
		}
		return StringValue(s), n, nil

	case KindHistogram:
		if len(buf) < n+4 {
			return MetricValue{}, 0, fmt.Errorf("dict: decode metric value: %w", errShortBuf)
		}
		count := binary.BigEndian.Uint32(buf[n:])
		n += 4
		buckets := make([]HistogramBucket, count)
		for i := range buckets {
			if len(buf) < n+24 {
				return MetricValue{}, 0, fmt.Errorf("dict: decode metric value: %w", errShortBuf)
			}
			buckets[i] = HistogramBucket{
				Lo:    getFloat64(buf[n:]),
				Hi:    getFloat64(buf[n+8:]),
				Count: getFloat64(buf[n+16:]),
			}
			n += 24
		}
		return HistogramValue(buckets), n, nil

	default:
		return MetricValue{}, 0, fmt.Errorf("dict: decode metric value: unknown kind %d: %w", kind, ErrEncodingRange)
	}
}

var errShortBuf = errors.New("short buffer")

func putKind(buf []byte, k MetricKind) []byte { return putUint32(buf, uint32(k)) }
