package tsdata

import (
	"sort"

	"github.com/nahratzah/monsoon/fsptr"
	"github.com/nahratzah/monsoon/internal/xdr"
)

// RecordArrayEntry is one (group, tags) → RecordMetrics mapping within a
// single list-format record, grounded on record_array.cc/.h.
type RecordArrayEntry struct {
	GroupRef GroupRef
	TagRef   TagRef
	Ptr      fsptr.Pointer // -> RecordMetrics
}

// RecordArray is one timestamp's full set of recorded groups, the list
// format's analog of a tables-kind block's Tables.
type RecordArray struct {
	Entries []RecordArrayEntry // sorted, unique by (GroupRef, TagRef)
}

// Encode appends the wire form of r to buf: a collection of (grp_ref,
// collection of (tag_ref, pointer)), matching record_array.cc's decode
// layout (no encode() survives in the original; symmetric completion, see
// DESIGN.md).
func (r RecordArray) Encode(buf []byte) []byte {
	entries := append([]RecordArrayEntry(nil), r.Entries...)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].GroupRef != entries[j].GroupRef {
			return entries[i].GroupRef < entries[j].GroupRef
		}
		return entries[i].TagRef < entries[j].TagRef
	})

	groups := make([][]RecordArrayEntry, 0)
	for i := 0; i < len(entries); {
		j := i + 1
		for j < len(entries) && entries[j].GroupRef == entries[i].GroupRef {
			j++
		}
		groups = append(groups, entries[i:j])
		i = j
	}

	buf = xdr.PutCollectionLen(buf, len(groups))
	for _, grp := range groups {
		buf = xdr.PutUint32(buf, grp[0].GroupRef)
		buf = xdr.PutCollectionLen(buf, len(grp))
		for _, e := range grp {
			buf = xdr.PutUint32(buf, e.TagRef)
			buf = xdr.PutPointer(buf, e.Ptr)
		}
	}
	return buf
}

// DecodeRecordArray parses a RecordArray from the front of buf.
func DecodeRecordArray(buf []byte) (RecordArray, int, error) {
	off := 0
	ngroups, m, err := xdr.GetCollectionLen(buf[off:])
	off += m
	if err != nil {
		return RecordArray{}, 0, err
	}

	var entries []RecordArrayEntry
	for i := 0; i < ngroups; i++ {
		grpRef, m, err := xdr.GetUint32(buf[off:])
		off += m
		if err != nil {
			return RecordArray{}, 0, err
		}
		ntags, m, err := xdr.GetCollectionLen(buf[off:])
		off += m
		if err != nil {
			return RecordArray{}, 0, err
		}
		for j := 0; j < ntags; j++ {
			tagRef, m, err := xdr.GetUint32(buf[off:])
			off += m
			if err != nil {
				return RecordArray{}, 0, err
			}
			ptr, m, err := xdr.GetPointer(buf[off:])
			off += m
			if err != nil {
				return RecordArray{}, 0, err
			}
			entries = append(entries, RecordArrayEntry{GroupRef: grpRef, TagRef: tagRef, Ptr: ptr})
		}
	}

	return RecordArray{Entries: entries}, off, nil
}
