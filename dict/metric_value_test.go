package dict

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, strs *StrvalDictionary, v MetricValue) MetricValue {
	t.Helper()
	buf := EncodeMetricValue(nil, v, strs)
	got, n, err := DecodeMetricValue(buf, strs)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", n, len(buf))
	}
	return got
}

func TestMetricValueRoundTripEmpty(t *testing.T) {
	strs := NewStrvalDictionary()
	got := roundTrip(t, strs, EmptyValue())
	if got.Kind() != KindEmpty {
		t.Fatalf("kind = %v, want empty", got.Kind())
	}
}

func TestMetricValueRoundTripBool(t *testing.T) {
	strs := NewStrvalDictionary()
	for _, b := range []bool{true, false} {
		got := roundTrip(t, strs, BoolValue(b))
		if got.Kind() != KindBool || got.Bool() != b {
			t.Fatalf("got %+v, want bool %v", got, b)
		}
	}
}

func TestMetricValueRoundTripInt(t *testing.T) {
	strs := NewStrvalDictionary()
	got := roundTrip(t, strs, IntValue(-12345))
	if got.Kind() != KindInt || got.Int() != -12345 {
		t.Fatalf("got %+v", got)
	}
}

func TestMetricValueRoundTripFloat(t *testing.T) {
	strs := NewStrvalDictionary()
	got := roundTrip(t, strs, FloatValue(3.5))
	if got.Kind() != KindFloat || got.Float() != 3.5 {
		t.Fatalf("got %+v", got)
	}
}

func TestMetricValueRoundTripString(t *testing.T) {
	strs := NewStrvalDictionary()
	got := roundTrip(t, strs, StringValue("hello"))
	if got.Kind() != KindString || got.Str() != "hello" {
		t.Fatalf("got %+v", got)
	}
	if strs.Len() != 1 {
		t.Fatalf("encoding a string metric value should intern it: strs.Len() = %d", strs.Len())
	}
}

func TestMetricValueStringIsInterned(t *testing.T) {
	strs := NewStrvalDictionary()
	strs.Encode("existing")
	buf := EncodeMetricValue(nil, StringValue("existing"), strs)
	if strs.Len() != 1 {
		t.Fatalf("encoding an already-interned string added a duplicate: len=%d", strs.Len())
	}
	got, _, err := DecodeMetricValue(buf, strs)
	if err != nil || got.Str() != "existing" {
		t.Fatalf("got %+v, %v", got, err)
	}
}

func TestMetricValueUnsignedOverflowFallsBackToFloat(t *testing.T) {
	strs := NewStrvalDictionary()
	huge := uint64(math.MaxInt64) + 1000
	buf := EncodeMetricValue(nil, UintValue(huge), strs)

	got, _, err := DecodeMetricValue(buf, strs)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind() != KindFloat {
		t.Fatalf("kind = %v, want float for an unsigned value overflowing int64", got.Kind())
	}
	if got.Float() != float64(huge) {
		t.Fatalf("got %v, want %v", got.Float(), float64(huge))
	}
}

func TestMetricValueUnsignedWithinRangeEncodesAsInt(t *testing.T) {
	strs := NewStrvalDictionary()
	v := UintValue(42)
	buf := EncodeMetricValue(nil, v, strs)
	got, _, err := DecodeMetricValue(buf, strs)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind() != KindInt || got.Int() != 42 {
		t.Fatalf("got %+v", got)
	}
}

func TestMetricValueRoundTripHistogram(t *testing.T) {
	strs := NewStrvalDictionary()
	buckets := []HistogramBucket{
		{Lo: 0, Hi: 1, Count: 5},
		{Lo: 1, Hi: 2, Count: 9},
	}
	got := roundTrip(t, strs, HistogramValue(buckets))
	if got.Kind() != KindHistogram {
		t.Fatalf("kind = %v", got.Kind())
	}
	if !reflect.DeepEqual(got.Histogram(), buckets) {
		t.Fatalf("got %+v, want %+v", got.Histogram(), buckets)
	}
}

func TestMetricValueDecodeUnknownKindIsEncodingRange(t *testing.T) {
	strs := NewStrvalDictionary()
	buf := putUint32(nil, 99)
	_, _, err := DecodeMetricValue(buf, strs)
	if !errors.Is(err, ErrEncodingRange) {
		t.Fatalf("err = %v, want ErrEncodingRange for an unknown metric kind", err)
	}
}
