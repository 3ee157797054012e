// Package wal implements the double-buffered write-ahead log region
// described by the transactional file substrate: a fixed prefix of a file
// holding two ping-pong segments, transaction-id allocation, atomic commit
// via a "write trailing bytes then flip the marker" ordering rule, and
// compaction by replay into the data region that follows the WAL prefix.
package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/nahratzah/monsoon/replmap"
)

// ErrBadAlloc is returned when a commit cannot find room for its record run,
// or AllocateTxID cannot find a free transaction id, even after compaction.
var ErrBadAlloc = errors.New("wal: no room for record or transaction id")

// ErrReadOnly is returned by mutating operations on a region opened without
// write access.
var ErrReadOnly = errors.New("wal: region is read-only")

// ErrCorrupt names a segment whose record stream cannot be parsed at all
// (not even an empty, well-formed header). No function in this package
// returns it.
var ErrCorrupt = errors.New("wal: corrupt segment header")

const segmentHeaderLen = 4 + 8 // seq uint32, file_size uint64

type segmentHeader struct {
	seq      uint32
	fileSize uint64
}

func (h segmentHeader) encode() []byte {
	buf := make([]byte, segmentHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.seq)
	binary.BigEndian.PutUint64(buf[4:12], h.fileSize)
	return buf
}

func decodeSegmentHeader(buf []byte) segmentHeader {
	return segmentHeader{
		seq:      binary.BigEndian.Uint32(buf[0:4]),
		fileSize: binary.BigEndian.Uint64(buf[4:12]),
	}
}

// seqLess implements the modular 32-bit sliding-window ordering: a < b iff
// (b-a) mod 2^32 is in (0, 2^31].
func seqLess(a, b uint32) bool {
	d := b - a
	return d != 0 && d <= 0x80000000
}

// SeqLess exports the sliding-window comparison for reuse by other packages
// that allocate monotonic 32-bit sequence numbers over the WAL, notably
// txfile's commit manager.
func SeqLess(a, b uint32) bool { return seqLess(a, b) }

// Region is a WAL occupying [off, off+2*segLen) of f. Bytes at and beyond
// off+2*segLen are the "data region" that the region's replacement map
// overlays.
type Region struct {
	f        File
	off      int64
	segLen   int64
	writable bool

	logMu sync.Mutex

	dataMu  sync.RWMutex
	repl    *replmap.Map
	fdSize  uint64

	allocMu     sync.Mutex
	txStates    []bool
	txAvail     []TxID
	txCompleted int

	currentSlot int
	currentSeq  uint32
	slotOff     int64 // absolute file offset of the live end marker
}

func (r *Region) slotBeginOff(idx int) int64 { return r.off + int64(idx)*r.segLen }
func (r *Region) slotEndOff(idx int) int64   { return r.slotBeginOff(idx) + r.segLen }

// DataOff is the absolute file offset where the data region begins.
func (r *Region) DataOff() int64 { return r.off + 2*r.segLen }

// Size returns the logical size of the data region.
func (r *Region) Size() uint64 {
	r.dataMu.RLock()
	defer r.dataMu.RUnlock()
	return r.fdSize
}

// Create lays out a fresh, empty WAL region of length 2*segLen at off in f.
func Create(f File, off, segLen int64) (*Region, error) {
	h0 := segmentHeader{seq: 0, fileSize: 0}
	h1 := segmentHeader{seq: 0xffffffff, fileSize: 0}

	r := &Region{f: f, off: off, segLen: segLen, writable: true, repl: replmap.New()}

	if _, err := f.WriteAt(h0.encode(), r.slotBeginOff(0)); err != nil {
		return nil, fmt.Errorf("wal: create: write segment 0 header: %w", err)
	}
	if _, err := f.WriteAt(endMarker[:], r.slotBeginOff(0)+segmentHeaderLen); err != nil {
		return nil, fmt.Errorf("wal: create: write segment 0 end marker: %w", err)
	}
	if _, err := f.WriteAt(h1.encode(), r.slotBeginOff(1)); err != nil {
		return nil, fmt.Errorf("wal: create: write segment 1 header: %w", err)
	}
	if _, err := f.WriteAt(endMarker[:], r.slotBeginOff(1)+segmentHeaderLen); err != nil {
		return nil, fmt.Errorf("wal: create: write segment 1 end marker: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("wal: create: sync: %w", err)
	}

	r.currentSlot = 0
	r.currentSeq = 0
	r.slotOff = r.slotBeginOff(0) + segmentHeaderLen
	return r, nil
}

// Open recovers a WAL region previously laid out by Create, replaying the
// authoritative segment's committed transactions into the in-memory
// replacement map. If writable, the non-authoritative segment is recycled
// into a fresh, empty segment and the authoritative segment's committed data
// is flushed into the data region, mirroring what Compact does during
// normal operation.
func Open(f File, off, segLen int64, writable bool) (*Region, error) {
	hdrBuf := make([]byte, segmentHeaderLen)

	if _, err := f.ReadAt(hdrBuf, off); err != nil {
		return nil, fmt.Errorf("wal: open: read segment 0 header: %w", err)
	}
	h0 := decodeSegmentHeader(hdrBuf)

	if _, err := f.ReadAt(hdrBuf, off+segLen); err != nil {
		return nil, fmt.Errorf("wal: open: read segment 1 header: %w", err)
	}
	h1 := decodeSegmentHeader(hdrBuf)

	liveIdx := 1
	if seqLess(h1.seq, h0.seq) {
		liveIdx = 0
	}
	liveHeader := h0
	if liveIdx == 1 {
		liveHeader = h1
	}
	recycleIdx := 1 - liveIdx

	r := &Region{f: f, off: off, segLen: segLen, writable: writable, repl: replmap.New()}
	r.fdSize = liveHeader.fileSize

	records, liveOff, err := r.scanSegmentRaw(liveIdx)
	if err != nil {
		return nil, err
	}

	pending := make(map[TxID]*replmap.Map)
	pendingResize := make(map[TxID]*uint64)
	for _, rec := range records {
		switch rec.Kind {
		case KindWrite:
			m, ok := pending[rec.TxID]
			if !ok {
				m = replmap.New()
				pending[rec.TxID] = m
			}
			m.WriteAt(rec.Offset, rec.Data)
		case KindResize:
			sz := rec.NewSize
			pendingResize[rec.TxID] = &sz
		case KindCommit:
			if m, ok := pending[rec.TxID]; ok {
				r.repl.Merge(m)
				delete(pending, rec.TxID)
			}
			if sz, ok := pendingResize[rec.TxID]; ok {
				r.fdSize = *sz
				r.repl.Truncate(*sz)
				delete(pendingResize, rec.TxID)
			}
		}
	}

	r.currentSlot = recycleIdx
	r.currentSeq = liveHeader.seq + 1

	if !writable {
		r.slotOff = liveOff
		r.currentSlot = liveIdx
		r.currentSeq = liveHeader.seq
		return r, nil
	}

	var flushErr error
	r.repl.ForEach(func(begin uint64, data []byte) {
		if flushErr != nil {
			return
		}
		if _, err := f.WriteAt(data, r.DataOff()+int64(begin)); err != nil {
			flushErr = err
		}
	})
	if flushErr != nil {
		return nil, fmt.Errorf("wal: open: flush replacement map: %w", flushErr)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("wal: open: sync after flush: %w", err)
	}
	r.repl.Clear()

	newHeader := segmentHeader{seq: r.currentSeq, fileSize: r.fdSize}
	newStart := r.slotBeginOff(recycleIdx) + segmentHeaderLen
	if _, err := f.WriteAt(endMarker[:], newStart); err != nil {
		return nil, fmt.Errorf("wal: open: write fresh end marker: %w", err)
	}
	if _, err := f.WriteAt(newHeader.encode(), r.slotBeginOff(recycleIdx)); err != nil {
		return nil, fmt.Errorf("wal: open: activate fresh segment: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("wal: open: sync activation: %w", err)
	}

	r.slotOff = newStart
	return r, nil
}

// scanSegmentRaw decodes every record in slot idx from its first record up
// to (but not including) the terminating end marker, stopping early and
// silently on the first malformed record (a torn write from a crash).
// It returns the decoded records and the absolute offset of the live end
// marker.
func (r *Region) scanSegmentRaw(idx int) ([]Record, int64, error) {
	segBuf := make([]byte, r.segLen-segmentHeaderLen)
	if _, err := r.f.ReadAt(segBuf, r.slotBeginOff(idx)+segmentHeaderLen); err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, fmt.Errorf("wal: scan segment %d: %w", idx, err)
		}
	}

	var records []Record
	pos := 0
	for {
		rec, n, ok := decodeRecord(segBuf[pos:])
		if !ok || rec.Kind == KindEnd {
			break
		}
		records = append(records, rec)
		pos += n
	}
	return records, r.slotBeginOff(idx) + segmentHeaderLen + int64(pos), nil
}

// AllocateTxID reserves a transaction id, recycling a freed one if
// available, growing the state vector if there is room, or compacting to
// reclaim freed ids if the vector is already at its 2^24 cap.
func (r *Region) AllocateTxID() (TxID, error) {
	for {
		r.allocMu.Lock()
		if n := len(r.txAvail); n > 0 {
			id := r.txAvail[n-1]
			r.txAvail = r.txAvail[:n-1]
			r.txStates[id] = true
			r.allocMu.Unlock()
			return id, nil
		}
		if len(r.txStates) <= TxIDMask {
			id := TxID(len(r.txStates))
			r.txStates = append(r.txStates, true)
			r.allocMu.Unlock()
			return id, nil
		}
		completed := r.txCompleted
		r.allocMu.Unlock()

		if completed == 0 {
			return 0, ErrBadAlloc
		}
		if err := r.Compact(); err != nil {
			return 0, err
		}
	}
}

func (r *Region) free(id TxID) {
	r.allocMu.Lock()
	r.txStates[id] = false
	r.txCompleted++
	r.allocMu.Unlock()
}

// Rollback frees id without writing any durable record: an uncommitted
// transaction has no durable footprint to undo. Having no records in the
// log, the id goes straight back on the free stack for reuse.
func (r *Region) Rollback(id TxID) {
	r.free(id)
	r.allocMu.Lock()
	r.txAvail = append(r.txAvail, id)
	r.allocMu.Unlock()
}

// Commit durably applies writes (and, if newSize is non-nil, a file-size
// change) under tx id, and returns the prior image of every byte range in
// writes for use as an undo trail by higher layers.
func (r *Region) Commit(txID TxID, writes *replmap.Map, newSize *uint64) (*replmap.Map, error) {
	if !r.writable {
		return nil, ErrReadOnly
	}

	var records []Record
	writes.ForEach(func(begin uint64, data []byte) {
		records = append(records, Record{Kind: KindWrite, TxID: txID, Offset: begin, Data: data})
	})
	if newSize != nil {
		records = append(records, Record{Kind: KindResize, TxID: txID, NewSize: *newSize})
	}
	records = append(records, Record{Kind: KindCommit, TxID: txID})

	need := 4
	for _, rec := range records {
		need += rec.EncodedLen()
	}

	r.logMu.Lock()
	defer r.logMu.Unlock()

	if err := r.ensureRoomLocked(need); err != nil {
		return nil, err
	}

	r.dataMu.Lock()
	defer r.dataMu.Unlock()

	undo := replmap.New()
	var readErr error
	writes.ForEach(func(begin uint64, data []byte) {
		if readErr != nil {
			return
		}
		prior := make([]byte, len(data))
		if err := r.readAtNoLock(begin, prior); err != nil {
			readErr = err
			return
		}
		undo.WriteAt(begin, prior)
	})
	if readErr != nil {
		return nil, fmt.Errorf("wal: commit: prepare undo image: %w", readErr)
	}

	if err := r.logRunLocked(records); err != nil {
		return nil, err
	}

	r.repl.Merge(writes)
	r.free(txID)

	if newSize != nil {
		r.fdSize = *newSize
		r.repl.Truncate(*newSize)
	}

	return undo, nil
}

// ensureRoomLocked requires logMu held. It compacts once if the current
// segment lacks room for a run of need bytes (including the fresh end
// marker), returning ErrBadAlloc if that is not enough.
func (r *Region) ensureRoomLocked(need int) error {
	if int(r.slotEndOff(r.currentSlot)-r.slotOff) >= need {
		return nil
	}
	if err := r.compactLocked(); err != nil {
		return err
	}
	if int(r.slotEndOff(r.currentSlot)-r.slotOff) >= need {
		return nil
	}
	return ErrBadAlloc
}

// logRunLocked appends records as a single atomically-activated run,
// terminated by a fresh end marker. It requires logMu held and the caller to
// have already verified room. The write-trailing-then-flip-header ordering
// makes the whole run visible in one write: everything past the run's first
// four bytes is written and flushed first, then the first record's header
// overwrites the previous end marker, which is both that record's commit
// point and the point the entire run becomes decodable.
func (r *Region) logRunLocked(records []Record) error {
	var body []byte
	for _, rec := range records {
		body = rec.encode(body)
	}

	trailing := make([]byte, 0, len(body)-4+4)
	trailing = append(trailing, body[4:]...)
	trailing = append(trailing, endMarker[:]...)

	if _, err := r.f.WriteAt(trailing, r.slotOff+4); err != nil {
		return fmt.Errorf("wal: log run: write trailing bytes: %w", err)
	}
	if err := r.f.Sync(); err != nil {
		return fmt.Errorf("wal: log run: fsync: %w", err)
	}
	if _, err := r.f.WriteAt(body[0:4], r.slotOff); err != nil {
		return fmt.Errorf("wal: log run: flip marker: %w", err)
	}

	r.slotOff += int64(len(body))
	return nil
}

// Compact reclaims the inactive segment: it rewrites still-live transaction
// records into a fresh segment, flushes the accumulated replacement map into
// the data region, and activates the fresh segment in the now-vacated slot.
func (r *Region) Compact() error {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	return r.compactLocked()
}

func (r *Region) compactLocked() error {
	if !r.writable {
		return ErrReadOnly
	}

	r.dataMu.Lock()
	defer r.dataMu.Unlock()
	r.allocMu.Lock()
	defer r.allocMu.Unlock()

	if r.txCompleted == 0 {
		return nil
	}

	liveRecords, _, err := r.scanSegmentRaw(r.currentSlot)
	if err != nil {
		return err
	}

	newSlot := 1 - r.currentSlot
	newSeq := r.currentSeq + 1

	var body []byte
	for _, rec := range liveRecords {
		if rec.IsControl() {
			continue
		}
		if int(rec.TxID) < len(r.txStates) && r.txStates[rec.TxID] {
			body = rec.encode(body)
		}
	}
	body = append(body, endMarker[:]...)

	newStart := r.slotBeginOff(newSlot) + segmentHeaderLen
	if _, err := r.f.WriteAt(body, newStart); err != nil {
		return fmt.Errorf("wal: compact: write copied records: %w", err)
	}

	var flushErr error
	r.repl.ForEach(func(begin uint64, data []byte) {
		if flushErr != nil {
			return
		}
		if _, err := r.f.WriteAt(data, r.DataOff()+int64(begin)); err != nil {
			flushErr = err
		}
	})
	if flushErr != nil {
		return fmt.Errorf("wal: compact: flush replacement map: %w", flushErr)
	}
	if err := r.f.Sync(); err != nil {
		return fmt.Errorf("wal: compact: sync: %w", err)
	}
	r.repl.Clear()

	newHeader := segmentHeader{seq: newSeq, fileSize: r.fdSize}
	if _, err := r.f.WriteAt(newHeader.encode(), r.slotBeginOff(newSlot)); err != nil {
		return fmt.Errorf("wal: compact: activate segment: %w", err)
	}
	if err := r.f.Sync(); err != nil {
		return fmt.Errorf("wal: compact: sync activation: %w", err)
	}

	r.txAvail = r.txAvail[:0]
	for idx := range r.txStates {
		if !r.txStates[idx] {
			r.txAvail = append(r.txAvail, TxID(idx))
		}
	}
	r.txCompleted = 0

	r.currentSlot = newSlot
	r.currentSeq = newSeq
	r.slotOff = newStart + int64(len(body)) - 4

	return nil
}

// ReadAt fills buf with the logical content at off: the region's
// replacement map first, the underlying data region second, zero-fill for
// whatever lies beyond both.
func (r *Region) ReadAt(off uint64, buf []byte) error {
	r.dataMu.RLock()
	defer r.dataMu.RUnlock()
	return r.readAtNoLock(off, buf)
}

func (r *Region) readAtNoLock(off uint64, buf []byte) error {
	for n := 0; n < len(buf); {
		chunk := buf[n:]
		m, err := r.f.ReadAt(chunk, r.DataOff()+int64(off)+int64(n))
		n += m
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("wal: read at %d: %w", off, err)
			}
			for i := m; i < len(chunk); i++ {
				chunk[i] = 0
			}
			break
		}
	}
	end := off + uint64(len(buf))
	r.repl.ForEach(func(begin uint64, data []byte) {
		if dEnd := begin + uint64(len(data)); begin < end && dEnd > off {
			lo, hi := max(begin, off), min(dEnd, end)
			copy(buf[lo-off:hi-off], data[lo-begin:hi-begin])
		}
	})
	return nil
}
