package tsdata

import (
	"sort"

	"github.com/nahratzah/monsoon/fsptr"
	"github.com/nahratzah/monsoon/internal/xdr"
)

// GroupRef indexes a group's path in the shared path dictionary; TagRef
// indexes its tag set in the shared tag dictionary. Together (GroupRef,
// TagRef) name one group_name: a path plus a tag set.
type GroupRef = uint32
type TagRef = uint32

// TablesEntry is one (group, tags) → GroupTable mapping within a block.
type TablesEntry struct {
	GroupRef GroupRef
	TagRef   TagRef
	Ptr      fsptr.Pointer
}

// Tables is a block's root map from (group path, tag set) to GroupTable,
// grounded on tables.cc/.h. The original nests tag entries under each
// group_ref on the wire; this type flattens that into one sorted slice for
// callers, re-nesting only at Encode time.
type Tables struct {
	Entries []TablesEntry // sorted, unique by (GroupRef, TagRef)
}

// Encode appends the wire form of t to buf: a collection of (grp_ref,
// collection of (tag_ref, pointer)), matching tables.cc's decode layout (no
// encode() survives in the original; symmetric completion, see DESIGN.md).
func (t Tables) Encode(buf []byte) []byte {
	entries := append([]TablesEntry(nil), t.Entries...)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].GroupRef != entries[j].GroupRef {
			return entries[i].GroupRef < entries[j].GroupRef
		}
		return entries[i].TagRef < entries[j].TagRef
	})

	groups := make([][]TablesEntry, 0)
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

// DecodeTables parses a Tables from the front of buf.
func DecodeTables(buf []byte) (Tables, int, error) {
	off := 0
	ngroups, m, err := xdr.GetCollectionLen(buf[off:])
	off += m
	if err != nil {
		return Tables{}, 0, err
	}

	var entries []TablesEntry
	for i := 0; i < ngroups; i++ {
		grpRef, m, err := xdr.GetUint32(buf[off:])
		off += m
		if err != nil {
			return Tables{}, 0, err
		}
		ntags, m, err := xdr.GetCollectionLen(buf[off:])
		off += m
		if err != nil {
			return Tables{}, 0, err
		}
		for j := 0; j < ntags; j++ {
			tagRef, m, err := xdr.GetUint32(buf[off:])
			off += m
			if err != nil {
				return Tables{}, 0, err
			}
			ptr, m, err := xdr.GetPointer(buf[off:])
			off += m
			if err != nil {
				return Tables{}, 0, err
			}
			entries = append(entries, TablesEntry{GroupRef: grpRef, TagRef: tagRef, Ptr: ptr})
		}
	}

	return Tables{Entries: entries}, off, nil
}
