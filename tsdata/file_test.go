package tsdata

import (
	"testing"

	"github.com/nahratzah/monsoon/dict"
	"github.com/nahratzah/monsoon/wal"
)

func TestListFilePushBackAndReadAll(t *testing.T) {
	sf := wal.NewMemFile()
	f, err := NewListFile(sf, 1000)
	if err != nil {
		t.Fatalf("NewListFile: %v", err)
	}

	if f.Flags().Kind() != KindList {
		t.Fatalf("Kind() = %v, want KindList", f.Flags().Kind())
	}

	records := []struct {
		ts     int64
		groups []RecordGroup
	}{
		{ts: 1000, groups: []RecordGroup{
			{Path: []string{"host", "cpu"}, Tags: map[string]dict.MetricValue{"core": dict.IntValue(0)}, Metrics: map[string]dict.MetricValue{"usage": dict.FloatValue(0.5)}},
		}},
		{ts: 2000, groups: []RecordGroup{
			{Path: []string{"host", "cpu"}, Tags: map[string]dict.MetricValue{"core": dict.IntValue(0)}, Metrics: map[string]dict.MetricValue{"usage": dict.FloatValue(0.75)}},
			{Path: []string{"host", "mem"}, Tags: map[string]dict.MetricValue{}, Metrics: map[string]dict.MetricValue{"free": dict.IntValue(1024)}},
		}},
		{ts: 3000, groups: []RecordGroup{
			{Path: []string{"host", "cpu"}, Tags: map[string]dict.MetricValue{"core": dict.IntValue(1)}, Metrics: map[string]dict.MetricValue{"usage": dict.FloatValue(0.1)}},
		}},
	}

	for _, r := range records {
		if err := f.PushBack(r.ts, r.groups); err != nil {
			t.Fatalf("PushBack(%d): %v", r.ts, err)
		}
	}

	if f.Last() != 3000 || f.First() != 1000 {
		t.Fatalf("First/Last = %d/%d, want 1000/3000", f.First(), f.Last())
	}

	series, err := f.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(series) != len(records) {
		t.Fatalf("ReadAll returned %d time series, want %d", len(series), len(records))
	}
	for i, want := range records {
		if series[i].Timestamp != want.ts {
			t.Fatalf("series[%d].Timestamp = %d, want %d (order must be oldest-to-newest)", i, series[i].Timestamp, want.ts)
		}
		if len(series[i].Values) != len(want.groups) {
			t.Fatalf("series[%d] has %d groups, want %d", i, len(series[i].Values), len(want.groups))
		}
	}

	// The second record's cpu/core=0 usage must resolve through the shared
	// dictionary built up by the first push.
	second := series[1]
	found := false
	for _, v := range second.Values {
		if len(v.Group.Path) == 2 && v.Group.Path[0] == "host" && v.Group.Path[1] == "cpu" {
			found = true
			if got := v.Metrics["usage"]; got.Float() != 0.75 {
				t.Fatalf("usage = %v, want 0.75", got.Float())
			}
		}
	}
	if !found {
		t.Fatal("host/cpu group not found in second record")
	}

	// Reopening the same storage must reproduce the identical chain.
	reopened, err := Open(sf)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	reopenedSeries, err := reopened.ReadAll()
	if err != nil {
		t.Fatalf("reopened ReadAll: %v", err)
	}
	if len(reopenedSeries) != len(records) {
		t.Fatalf("reopened ReadAll returned %d time series, want %d", len(reopenedSeries), len(records))
	}
}

func TestTablesFileIsNotWritable(t *testing.T) {
	sf := wal.NewMemFile()
	header := Header{First: 1, Last: 1, Flags: KindTables | CompressionNone | FlagSorted | FlagDistinct, FileSize: uint64(MimeHeaderSize + HeaderSize)}
	buf := NewMimeHeader().Encode(nil)
	buf = header.Encode(buf)
	if _, err := sf.WriteAt(buf, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	f, err := Open(sf)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := f.PushBack(1, nil); err != ErrNotWritable {
		t.Fatalf("PushBack on tables file: err = %v, want ErrNotWritable", err)
	}

	series, err := f.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll on empty tables file: %v", err)
	}
	if len(series) != 0 {
		t.Fatalf("ReadAll = %v, want empty", series)
	}
}
