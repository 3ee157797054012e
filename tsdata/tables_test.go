package tsdata

import (
	"testing"

	"github.com/nahratzah/monsoon/fsptr"
)

func TestTablesRoundTrip(t *testing.T) {
	tbl := Tables{Entries: []TablesEntry{
		{GroupRef: 2, TagRef: 5, Ptr: fsptr.Pointer{Off: 10, Len: 20}},
		{GroupRef: 1, TagRef: 9, Ptr: fsptr.Pointer{Off: 30, Len: 40}},
		{GroupRef: 1, TagRef: 3, Ptr: fsptr.Pointer{Off: 50, Len: 60}},
	}}

	buf := tbl.Encode(nil)
	got, n, err := DecodeTables(buf)
	if err != nil {
		t.Fatalf("DecodeTables: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", n, len(buf))
	}
	if len(got.Entries) != len(tbl.Entries) {
		t.Fatalf("Entries = %d, want %d", len(got.Entries), len(tbl.Entries))
	}

	seen := make(map[[2]uint32]fsptr.Pointer)
	for _, e := range got.Entries {
		seen[[2]uint32{e.GroupRef, e.TagRef}] = e.Ptr
	}
	for _, want := range tbl.Entries {
		got, ok := seen[[2]uint32{want.GroupRef, want.TagRef}]
		if !ok || got != want.Ptr {
			t.Fatalf("entry (%d,%d) = %+v, want %+v", want.GroupRef, want.TagRef, got, want.Ptr)
		}
	}
}

func TestGroupTableRoundTrip(t *testing.T) {
	gt := GroupTable{
		Presence: NewBitset([]bool{true, false, true, true}),
		Metrics: []MetricEntry{
			{MetricRef: 3, Ptr: fsptr.Pointer{Off: 1, Len: 2}},
			{MetricRef: 1, Ptr: fsptr.Pointer{Off: 3, Len: 4}},
		},
	}
	buf := gt.Encode(nil)
	got, n, err := DecodeGroupTable(buf, gt.Presence.Len())
	if err != nil {
		t.Fatalf("DecodeGroupTable: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", n, len(buf))
	}
	for i := 0; i < gt.Presence.Len(); i++ {
		if got.Presence.Get(i) != gt.Presence.Get(i) {
			t.Fatalf("presence[%d] mismatch", i)
		}
	}
	if len(got.Metrics) != len(gt.Metrics) {
		t.Fatalf("Metrics = %d, want %d", len(got.Metrics), len(gt.Metrics))
	}
}
