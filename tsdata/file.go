package tsdata

import (
	"sync"
	"time"

	"github.com/nahratzah/monsoon/dict"
	"github.com/nahratzah/monsoon/fsptr"
	"github.com/nahratzah/monsoon/segment"
	"github.com/nahratzah/monsoon/wal"
)

// cacheBudget bounds the decode cache's resident bytes per open File,
// mirroring the page cache's per-tree budget set up in tree/tree.go.
const cacheBudget = 16 << 20

// cacheTTL expires an unused decode cache entry, mirroring tree/tree.go's
// access-expiring page cache.
const cacheTTL = 5 * time.Minute

// File is an open tsdata v2 file: a mime header, a tsfile header, and the
// storage it was opened from. A tables-kind File is read-only; a list-kind
// File additionally supports PushBack.
type File struct {
	sf     wal.File
	mime   MimeHeader
	header Header
	cache  *fsptr.Cache[File]

	mu sync.Mutex // serializes header rewrites and extent appends

	// listDict is the cumulative dictionary for a list-kind file's chain,
	// built lazily (replaying every node's delta oldest-to-newest) on first
	// PushBack. Each push interns against this shared dictionary and writes
	// only the resulting delta, matching tsdata_list.cc's incremental
	// dictionary scheme.
	listDict *dict.Dictionary
}

// Open parses the mime and tsfile headers from sf and returns a File ready
// for ReadAll/EmitFiltered (and PushBack, if the file is list-kind).
func Open(sf wal.File) (*File, error) {
	prefix := make([]byte, MimeHeaderSize+HeaderSize)
	if _, err := sf.ReadAt(prefix, 0); err != nil {
		return nil, err
	}

	mime, n, err := DecodeMimeHeader(prefix)
	if err != nil {
		return nil, err
	}
	if mime.Major != MajorVersion || mime.Minor > MaxMinorVersion {
		return nil, ErrBadMagic
	}

	header, _, err := DecodeHeader(prefix[n:])
	if err != nil {
		return nil, err
	}
	if header.Flags.Kind() != KindList && header.Flags.Kind() != KindTables {
		return nil, ErrUnknownKind
	}

	return &File{sf: sf, mime: mime, header: header, cache: fsptr.New[File](cacheBudget, cacheTTL)}, nil
}

// NewListFile formats sf as an empty, writable list-kind file with
// compression and ordering hints matching push_back's append-only,
// always-increasing-timestamp contract (sorted and distinct both hold
// trivially for a file with no records yet).
func NewListFile(sf wal.File, now int64) (*File, error) {
	header := Header{
		First:    now,
		Last:     now,
		Flags:    KindList | CompressionGzip | FlagSorted | FlagDistinct,
		FileSize: uint64(MimeHeaderSize + HeaderSize),
	}

	f := &File{sf: sf, mime: NewMimeHeader(), header: header, cache: fsptr.New[File](cacheBudget, cacheTTL), listDict: dict.NewDictionary()}
	if err := f.flushHeader(); err != nil {
		return nil, err
	}
	return f, nil
}

// loadChainOldestFirst walks a list-kind file's node chain from the head
// (newest) back through Pred pointers and returns it oldest-first, the
// traversal tsdata_list.cc's read_all performs with an explicit stack.
func (f *File) loadChainOldestFirst() ([]Node, error) {
	var chain []Node
	cur := f.header.FDT
	for cur != (fsptr.Pointer{}) {
		n, err := f.loadNode(cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, n)
		if n.Pred == nil {
			break
		}
		cur = *n.Pred
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// buildListDict reconstructs a list-kind file's cumulative dictionary by
// replaying every node's delta oldest-to-newest, the same traversal
// readAllList uses.
func (f *File) buildListDict() (*dict.Dictionary, error) {
	chain, err := f.loadChainOldestFirst()
	if err != nil {
		return nil, err
	}

	d := dict.NewDictionary()
	for _, n := range chain {
		if n.Dict == nil {
			continue
		}
		raw, err := f.readExtent(*n.Dict)
		if err != nil {
			return nil, err
		}
		if _, err := d.DecodeUpdate(raw); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Close releases the File's decode cache. It does not close the underlying
// storage.
func (f *File) Close() { f.cache.Close() }

// Flags returns the file's header flags.
func (f *File) Flags() Flags { return f.header.Flags }

// First returns the file's earliest recorded timestamp.
func (f *File) First() int64 { return f.header.First }

// Last returns the file's most recent recorded timestamp.
func (f *File) Last() int64 { return f.header.Last }

func (f *File) flushHeader() error {
	buf := f.mime.Encode(nil)
	buf = f.header.Encode(buf)
	if _, err := f.sf.WriteAt(buf, 0); err != nil {
		return err
	}
	return f.sf.Sync()
}

// readExtent resolves a file-segment pointer to its decompressed payload
// bytes: a segment.ReadAt (CRC-checked) followed by decompress per the
// file's compression flag. The zero Pointer denotes "absent" and reads back
// as a nil slice.
func (f *File) readExtent(ptr fsptr.Pointer) ([]byte, error) {
	if ptr == (fsptr.Pointer{}) {
		return nil, nil
	}
	raw, err := segment.ReadAt(f.sf, ptr.Off, int(ptr.Len))
	if err != nil {
		return nil, err
	}
	return decompress(f.header.Flags.Compression(), raw)
}

// appendExtent compresses payload per the file's compression flag and
// segment-wraps it at the current end of file, advancing FileSize. Callers
// hold f.mu.
func (f *File) appendExtent(payload []byte) (fsptr.Pointer, error) {
	compressed, err := compress(f.header.Flags.Compression(), payload)
	if err != nil {
		return fsptr.Pointer{}, err
	}
	off := int64(f.header.FileSize)
	storageLen, err := segment.WriteAt(f.sf, off, compressed)
	if err != nil {
		return fsptr.Pointer{}, err
	}
	f.header.FileSize += uint64(storageLen)
	return fsptr.Pointer{Off: off, Len: int64(len(compressed))}, nil
}

func (f *File) loadNode(ptr fsptr.Pointer) (Node, error) {
	v, err := f.cache.GetOrLoad(f, ptr, fsptr.TagTsdataXDR, func() (any, int64, error) {
		raw, err := f.readExtent(ptr)
		if err != nil {
			return nil, 0, err
		}
		n, _, err := DecodeNode(raw)
		if err != nil {
			return nil, 0, err
		}
		return n, int64(len(raw)), nil
	})
	if err != nil {
		return Node{}, err
	}
	return v.(Node), nil
}

func (f *File) loadRecordArray(ptr fsptr.Pointer) (RecordArray, error) {
	v, err := f.cache.GetOrLoad(f, ptr, fsptr.TagRecordArray, func() (any, int64, error) {
		raw, err := f.readExtent(ptr)
		if err != nil {
			return nil, 0, err
		}
		ra, _, err := DecodeRecordArray(raw)
		if err != nil {
			return nil, 0, err
		}
		return ra, int64(len(raw)), nil
	})
	if err != nil {
		return RecordArray{}, err
	}
	return v.(RecordArray), nil
}

func (f *File) loadRecordMetrics(ptr fsptr.Pointer, strs *dict.StrvalDictionary) (RecordMetrics, error) {
	v, err := f.cache.GetOrLoad(f, ptr, fsptr.TagRecordMetrics, func() (any, int64, error) {
		raw, err := f.readExtent(ptr)
		if err != nil {
			return nil, 0, err
		}
		rm, _, err := DecodeRecordMetrics(raw, strs)
		if err != nil {
			return nil, 0, err
		}
		return rm, int64(len(raw)), nil
	})
	if err != nil {
		return RecordMetrics{}, err
	}
	return v.(RecordMetrics), nil
}

func (f *File) loadTables(ptr fsptr.Pointer) (Tables, error) {
	v, err := f.cache.GetOrLoad(f, ptr, fsptr.TagTables, func() (any, int64, error) {
		raw, err := f.readExtent(ptr)
		if err != nil {
			return nil, 0, err
		}
		t, _, err := DecodeTables(raw)
		if err != nil {
			return nil, 0, err
		}
		return t, int64(len(raw)), nil
	})
	if err != nil {
		return Tables{}, err
	}
	return v.(Tables), nil
}

func (f *File) loadGroupTable(ptr fsptr.Pointer, n int) (GroupTable, error) {
	v, err := f.cache.GetOrLoad(f, ptr, fsptr.TagGroupTable, func() (any, int64, error) {
		raw, err := f.readExtent(ptr)
		if err != nil {
			return nil, 0, err
		}
		gt, _, err := DecodeGroupTable(raw, n)
		if err != nil {
			return nil, 0, err
		}
		return gt, int64(len(raw)), nil
	})
	if err != nil {
		return GroupTable{}, err
	}
	return v.(GroupTable), nil
}

func (f *File) loadMetricTable(ptr fsptr.Pointer, n int, strs *dict.StrvalDictionary) (MetricTable, error) {
	v, err := f.cache.GetOrLoad(f, ptr, fsptr.TagMetricTable, func() (any, int64, error) {
		raw, err := f.readExtent(ptr)
		if err != nil {
			return nil, 0, err
		}
		mt, _, err := DecodeMetricTable(raw, n, strs)
		if err != nil {
			return nil, 0, err
		}
		return mt, int64(len(raw)), nil
	})
	if err != nil {
		return MetricTable{}, err
	}
	return v.(MetricTable), nil
}

// ReadAll decodes every recorded time series value in the file, oldest to
// newest.
func (f *File) ReadAll() ([]TimeSeries, error) {
	switch f.header.Flags.Kind() {
	case KindTables:
		return f.readAllTables(MatchAllPaths, MatchAllTags, MatchAllPaths, nil, nil)
	case KindList:
		return f.readAllList()
	default:
		return nil, ErrUnknownKind
	}
}

// EmitFiltered decodes a tables-kind file's time series values restricted to
// [trBegin, trEnd) (either bound nil for unbounded) and to groups, tags, and
// metrics accepted by the given matchers. It is the tables-format analog of
// tables.cc's emit()/emit_time(); the original's lazy objpipe
// merge/merge-combine split between the sorted+distinct and general paths
// collapses here into the single mergeByTimestamp pass also used by
// ReadAll, since both paths produce the same result and Go gains nothing
// from re-deriving the fast path — see DESIGN.md.
func (f *File) EmitFiltered(trBegin, trEnd *int64, groupFilter PathMatcher, tagFilter TagMatcher, metricFilter PathMatcher) ([]TimeSeries, error) {
	if f.header.Flags.Kind() != KindTables {
		return nil, ErrUnknownKind
	}
	return f.readAllTables(groupFilter, tagFilter, metricFilter, trBegin, trEnd)
}

// metricColumn pairs a decoded metric's resolved path with its column of
// per-timestamp cells, used while assembling readAllTables' results.
type metricColumn struct {
	name []string
	mt   MetricTable
}

func inRange(ts int64, begin, end *int64) bool {
	if begin != nil && ts < *begin {
		return false
	}
	if end != nil && ts >= *end {
		return false
	}
	return true
}

func (f *File) readAllTables(groupFilter PathMatcher, tagFilter TagMatcher, metricFilter PathMatcher, trBegin, trEnd *int64) ([]TimeSeries, error) {
	if f.header.FDT == (fsptr.Pointer{}) {
		return nil, nil
	}
	raw, err := f.readExtent(f.header.FDT)
	if err != nil {
		return nil, err
	}
	fdt, _, err := DecodeFileDataTables(raw)
	if err != nil {
		return nil, err
	}

	var allSeries []TimeSeries
	for _, block := range fdt.Blocks {
		blockDict := dict.NewDictionary()
		deltaBytes, err := f.readExtent(block.Dict)
		if err != nil {
			return nil, err
		}
		if deltaBytes != nil {
			if _, err := blockDict.DecodeUpdate(deltaBytes); err != nil {
				return nil, err
			}
		}

		tbl, err := f.loadTables(block.Tables)
		if err != nil {
			return nil, err
		}

		times := block.Timestamps.Times()

		for _, te := range tbl.Entries {
			path, err := blockDict.Paths.Decode(te.GroupRef)
			if err != nil {
				return nil, err
			}
			if groupFilter != nil && !groupFilter(path) {
				continue
			}
			tags, err := blockDict.Tags.Decode(te.TagRef)
			if err != nil {
				return nil, err
			}
			if tagFilter != nil && !tagFilter(tags) {
				continue
			}

			gt, err := f.loadGroupTable(te.Ptr, len(times))
			if err != nil {
				return nil, err
			}

			cols := make([]metricColumn, 0, len(gt.Metrics))
			for _, me := range gt.Metrics {
				name, err := blockDict.Paths.Decode(me.MetricRef)
				if err != nil {
					return nil, err
				}
				if metricFilter != nil && !metricFilter(name) {
					continue
				}
				mt, err := f.loadMetricTable(me.Ptr, len(times), blockDict.Strs)
				if err != nil {
					return nil, err
				}
				cols = append(cols, metricColumn{name: name, mt: mt})
			}

			group := GroupName{Path: path, Tags: tags}
			for i, ts := range times {
				if !gt.Presence.Get(i) || !inRange(ts, trBegin, trEnd) {
					continue
				}
				metrics := make(map[string]dict.MetricValue)
				for _, c := range cols {
					cell := c.mt.Cells[i]
					if cell.Present {
						metrics[metricKey(c.name)] = cell.Value
					}
				}
				allSeries = append(allSeries, TimeSeries{Timestamp: ts, Values: []TimeSeriesValue{{Group: group, Metrics: metrics}}})
			}
		}
	}

	return mergeByTimestamp(allSeries), nil
}

func (f *File) readAllList() ([]TimeSeries, error) {
	chain, err := f.loadChainOldestFirst()
	if err != nil {
		return nil, err
	}

	d := dict.NewDictionary()
	result := make([]TimeSeries, 0, len(chain))
	for _, n := range chain {
		if n.Dict != nil {
			raw, err := f.readExtent(*n.Dict)
			if err != nil {
				return nil, err
			}
			if _, err := d.DecodeUpdate(raw); err != nil {
				return nil, err
			}
		}

		ra, err := f.loadRecordArray(n.Records)
		if err != nil {
			return nil, err
		}

		values := make([]TimeSeriesValue, 0, len(ra.Entries))
		for _, e := range ra.Entries {
			path, err := d.Paths.Decode(e.GroupRef)
			if err != nil {
				return nil, err
			}
			tags, err := d.Tags.Decode(e.TagRef)
			if err != nil {
				return nil, err
			}
			rm, err := f.loadRecordMetrics(e.Ptr, d.Strs)
			if err != nil {
				return nil, err
			}
			metrics := make(map[string]dict.MetricValue, len(rm.Entries))
			for _, me := range rm.Entries {
				name, err := d.Paths.Decode(me.MetricRef)
				if err != nil {
					return nil, err
				}
				metrics[metricKey(name)] = me.Value
			}
			values = append(values, TimeSeriesValue{Group: GroupName{Path: path, Tags: tags}, Metrics: metrics})
		}

		result = append(result, TimeSeries{Timestamp: n.Timestamp, Values: values})
	}

	return result, nil
}

// RecordGroup is one group's metrics for a single PushBack call. Metric
// names are interned as single-component paths; unlike group paths, a
// pushed record never needs hierarchical metric names, so the dictionary's
// multi-component path support goes unused on this write path (it still
// matters for reading tables-kind files written by other producers).
type RecordGroup struct {
	Path    []string
	Tags    map[string]dict.MetricValue
	Metrics map[string]dict.MetricValue
}

// PushBack appends one timestamped record to a list-kind file: new
// dictionary entries are interned and written as a delta extent (only if
// any were needed), the record's groups are written as RecordMetrics and a
// RecordArray, a new Node links them to the file's current head, and
// finally the header's first/last/fdt fields are rewritten and flushed —
// the header rewrite is the durable commit point, grounded on
// tsdata_list.cc's push_back (which has no inner WAL region of its own to
// nest a second commit inside; see DESIGN.md).
func (f *File) PushBack(ts int64, groups []RecordGroup) error {
	if f.header.Flags.Kind() != KindList {
		return ErrNotWritable
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listDict == nil {
		ld, err := f.buildListDict()
		if err != nil {
			return err
		}
		f.listDict = ld
	}
	d := f.listDict

	type pending struct {
		groupRef, tagRef GroupRef
		metrics          []RecordMetricEntry
	}
	pendings := make([]pending, 0, len(groups))
	for _, g := range groups {
		groupRef := d.Paths.Encode(g.Path)
		tagRef := d.Tags.Encode(g.Tags)

		entries := make([]RecordMetricEntry, 0, len(g.Metrics))
		for name, v := range g.Metrics {
			metricRef := d.Paths.Encode([]string{name})
			entries = append(entries, RecordMetricEntry{MetricRef: metricRef, Value: v})
		}
		pendings = append(pendings, pending{groupRef: groupRef, tagRef: tagRef, metrics: entries})
	}

	var dictPtr *fsptr.Pointer
	if d.UpdatePending() {
		ptr, err := f.appendExtent(d.EncodeUpdate(nil))
		if err != nil {
			return err
		}
		dictPtr = &ptr
	}

	var arrayEntries []RecordArrayEntry
	for _, p := range pendings {
		rm := RecordMetrics{Entries: p.metrics}
		ptr, err := f.appendExtent(rm.Encode(nil, d.Strs))
		if err != nil {
			return err
		}
		arrayEntries = append(arrayEntries, RecordArrayEntry{GroupRef: p.groupRef, TagRef: p.tagRef, Ptr: ptr})
	}

	ra := RecordArray{Entries: arrayEntries}
	recordsPtr, err := f.appendExtent(ra.Encode(nil))
	if err != nil {
		return err
	}

	var pred *fsptr.Pointer
	if f.header.FDT != (fsptr.Pointer{}) {
		p := f.header.FDT
		pred = &p
	}
	node := Node{Timestamp: ts, Pred: pred, Dict: dictPtr, Records: recordsPtr}
	nodePtr, err := f.appendExtent(node.Encode(nil))
	if err != nil {
		return err
	}

	if f.header.FDT == (fsptr.Pointer{}) {
		f.header.First = ts
	}
	f.header.Last = ts
	f.header.FDT = nodePtr

	return f.flushHeader()
}
