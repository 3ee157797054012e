// Package replmap implements an ordered, non-overlapping overlay of pending
// or overridden byte ranges keyed by file offset. It backs both WAL regions
// and transaction-local write buffers.
package replmap

import "sort"

// interval is a half-open byte range [Begin, End) with its associated data.
// len(Data) == End-Begin always holds.
type interval struct {
	Begin uint64
	Data  []byte
}

func (iv interval) end() uint64 { return iv.Begin + uint64(len(iv.Data)) }

// Map is a sorted set of non-overlapping half-open intervals. The zero value
// is an empty map ready to use. Not safe for concurrent use; callers
// synchronize externally (see wal.Region and txfile.Tx).
type Map struct {
	intervals []interval // sorted ascending by Begin, never overlapping
}

// New returns an empty replacement map.
func New() *Map {
	return &Map{}
}

// indexAtOrBefore returns the index of the last interval whose Begin <= off,
// or -1 if none.
func (m *Map) indexAtOrBefore(off uint64) int {
	i := sort.Search(len(m.intervals), func(i int) bool {
		return m.intervals[i].Begin > off
	})
	return i - 1
}

// ReadAt returns the bytes of the single interval covering off, up to
// len(buf) bytes, copied into buf. It returns 0 if off is not covered by any
// interval (a "gap").
func (m *Map) ReadAt(off uint64, buf []byte) int {
	i := m.indexAtOrBefore(off)
	if i < 0 {
		return 0
	}
	iv := m.intervals[i]
	if off >= iv.end() {
		return 0
	}
	skip := off - iv.Begin
	n := copy(buf, iv.Data[skip:])
	return n
}

// Contiguous returns the number of bytes, starting at off, that are covered
// by a single contiguous interval. It is 0 if off is a gap.
func (m *Map) Contiguous(off uint64) uint64 {
	i := m.indexAtOrBefore(off)
	if i < 0 {
		return 0
	}
	iv := m.intervals[i]
	if off >= iv.end() {
		return 0
	}
	return iv.end() - off
}

// WriteAt merges buf into the map at [off, off+len(buf)), clipping or
// splitting any overlapping intervals and coalescing with abutting ones.
func (m *Map) WriteAt(off uint64, buf []byte) {
	if len(buf) == 0 {
		return
	}
	data := make([]byte, len(buf))
	copy(data, buf)
	begin := off
	end := off + uint64(len(buf))

	// Find the range of existing intervals that overlap or abut [begin,end).
	lo := sort.Search(len(m.intervals), func(i int) bool {
		return m.intervals[i].end() >= begin
	})
	hi := sort.Search(len(m.intervals), func(i int) bool {
		return m.intervals[i].Begin > end
	})

	var newBegin, newEnd uint64 = begin, end
	var prefix, suffix []byte

	if lo < hi {
		first := m.intervals[lo]
		if first.Begin < newBegin {
			newBegin = first.Begin
			prefix = first.Data[:begin-first.Begin]
		}
		last := m.intervals[hi-1]
		if last.end() > newEnd {
			newEnd = last.end()
			suffix = last.Data[end-last.Begin:]
		}
	}

	merged := make([]byte, 0, newEnd-newBegin)
	merged = append(merged, prefix...)
	merged = append(merged, data...)
	merged = append(merged, suffix...)

	replacement := interval{Begin: newBegin, Data: merged}

	tail := append([]interval{}, m.intervals[hi:]...)
	m.intervals = append(m.intervals[:lo], replacement)
	m.intervals = append(m.intervals, tail...)
}

// Truncate deletes all data at or beyond n, clipping the interval crossing n
// if one exists.
func (m *Map) Truncate(n uint64) {
	i := sort.Search(len(m.intervals), func(i int) bool {
		return m.intervals[i].Begin >= n
	})
	if i > 0 {
		prev := &m.intervals[i-1]
		if prev.end() > n {
			prev.Data = prev.Data[:n-prev.Begin]
		}
	}
	m.intervals = m.intervals[:i]
}

// Clear empties the map.
func (m *Map) Clear() {
	m.intervals = nil
}

// Len returns the number of disjoint intervals currently stored.
func (m *Map) Len() int {
	return len(m.intervals)
}

// ForEach visits every interval in ascending offset order. fn must not
// mutate the map.
func (m *Map) ForEach(fn func(begin uint64, data []byte)) {
	for _, iv := range m.intervals {
		fn(iv.Begin, iv.Data)
	}
}

// Merge copies every interval of other into m, in the same way WriteAt
// would for each one. Used by WAL commit to fold a transaction's staged
// writes into the region-wide map.
func (m *Map) Merge(other *Map) {
	other.ForEach(func(begin uint64, data []byte) {
		m.WriteAt(begin, data)
	})
}

// End returns the offset one past the last byte covered by any interval, or
// 0 if the map is empty.
func (m *Map) End() uint64 {
	if len(m.intervals) == 0 {
		return 0
	}
	return m.intervals[len(m.intervals)-1].end()
}
