package tsdata

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nahratzah/monsoon/dict"
)

// GroupName is a group's identity: a path plus a tag set, the flattened
// form of a (GroupRef, TagRef) pair once both are resolved against the
// dictionary.
type GroupName struct {
	Path []string
	Tags map[string]dict.MetricValue
}

// key returns a stable string identifying this group, used to merge and
// sort TimeSeriesValues.
func (g GroupName) key() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(g.Path, "."))
	keys := make([]string, 0, len(g.Tags))
	for k := range g.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteByte('\x00')
		sb.WriteString(k)
		fmt.Fprintf(&sb, "=%v", g.Tags[k])
	}
	return sb.String()
}

// TimeSeriesValue is one group's metric values at a single timestamp,
// metric names joined by "." as the map key.
type TimeSeriesValue struct {
	Group   GroupName
	Metrics map[string]dict.MetricValue
}

// TimeSeries is every group's values recorded at a single timestamp.
type TimeSeries struct {
	Timestamp int64
	Values    []TimeSeriesValue
}

func metricKey(path []string) string { return strings.Join(path, ".") }

// PathMatcher reports whether a path (group or metric name) should be
// included.
type PathMatcher func(path []string) bool

// TagMatcher reports whether a tag set should be included.
type TagMatcher func(tags map[string]dict.MetricValue) bool

// MatchAllPaths is a PathMatcher accepting every path.
func MatchAllPaths(path []string) bool { return true }

// MatchAllTags is a TagMatcher accepting every tag set.
func MatchAllTags(tags map[string]dict.MetricValue) bool { return true }

// mergeByTimestamp groups per-block time series values by timestamp,
// merging values for identical groups and sorting the result by timestamp.
//
// The original splits this into a "linear" fast path (blocks already
// sorted and distinct) versus a lazy objpipe merge/merge-combine pipeline
// built from emit_type_less/emit_type_merge (tsdata_tables.cc). Go's
// slice-based model makes that split unnecessary: this single pass is
// correct whether or not the input is already sorted or distinct, and for
// sorted+distinct input degenerates to a no-op re-sort of already-ordered
// data. See DESIGN.md for this documented simplification.
func mergeByTimestamp(in []TimeSeries) []TimeSeries {
	byTS := make(map[int64]map[string]TimeSeriesValue)
	for _, ts := range in {
		bucket, ok := byTS[ts.Timestamp]
		if !ok {
			bucket = make(map[string]TimeSeriesValue)
			byTS[ts.Timestamp] = bucket
		}
		for _, v := range ts.Values {
			k := v.Group.key()
			existing, ok := bucket[k]
			if !ok {
				merged := make(map[string]dict.MetricValue, len(v.Metrics))
				for mk, mv := range v.Metrics {
					merged[mk] = mv
				}
				bucket[k] = TimeSeriesValue{Group: v.Group, Metrics: merged}
				continue
			}
			for mk, mv := range v.Metrics {
				existing.Metrics[mk] = mv
			}
		}
	}

	out := make([]TimeSeries, 0, len(byTS))
	for ts, bucket := range byTS {
		values := make([]TimeSeriesValue, 0, len(bucket))
		for _, v := range bucket {
			values = append(values, v)
		}
		sort.Slice(values, func(i, j int) bool { return values[i].Group.key() < values[j].Group.key() })
		out = append(out, TimeSeries{Timestamp: ts, Values: values})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
