// Package txfile layers read/write transactions over a wal.Region: a
// read-write transaction buffers its writes in a private replacement map and
// flushes through the WAL on commit; a read-only transaction is a cheap
// snapshot marker (a commit id) that reads straight through to the region.
package txfile

import (
	"errors"
	"fmt"

	"github.com/nahratzah/monsoon/replmap"
	"github.com/nahratzah/monsoon/wal"
)

// ErrReadOnly is returned by mutating calls on a read-only transaction.
var ErrReadOnly = errors.New("txfile: transaction is read-only")

// Txfile is a transactional file: a WAL region plus the commit-id sequence
// that gives its transactions snapshot semantics.
type Txfile struct {
	region *wal.Region
	cm     *CommitManager
}

// Create lays out a brand new txfile: a WAL region of 2*walSegLen bytes at
// walOff, followed immediately by the data region whose first 16 bytes are
// reserved for the commit manager record.
func Create(f wal.File, walOff, walSegLen int64) (*Txfile, error) {
	region, err := wal.Create(f, walOff, walSegLen)
	if err != nil {
		return nil, fmt.Errorf("txfile: create: %w", err)
	}

	tf := &Txfile{region: region}
	tf.cm = &CommitManager{tf: tf}

	txID, err := region.AllocateTxID()
	if err != nil {
		return nil, fmt.Errorf("txfile: create: %w", err)
	}
	writes := replmap.New()
	writes.WriteAt(commitManagerOffset, encodeCommitManagerRecord(commitManagerRecord{}))
	if _, err := region.Commit(txID, writes, nil); err != nil {
		return nil, fmt.Errorf("txfile: create: init commit manager: %w", err)
	}

	return tf, nil
}

// Open recovers a txfile previously laid out by Create.
func Open(f wal.File, walOff, walSegLen int64, writable bool) (*Txfile, error) {
	region, err := wal.Open(f, walOff, walSegLen, writable)
	if err != nil {
		return nil, fmt.Errorf("txfile: open: %w", err)
	}

	buf := make([]byte, commitManagerRecordLen)
	if err := region.ReadAt(commitManagerOffset, buf); err != nil {
		return nil, fmt.Errorf("txfile: open: read commit manager: %w", err)
	}
	rec, err := decodeCommitManagerRecord(buf)
	if err != nil {
		return nil, fmt.Errorf("txfile: open: %w", err)
	}

	tf := &Txfile{region: region}
	tf.cm = &CommitManager{tf: tf, txStart: rec.txStart, lastWrite: rec.lastWrite, completed: rec.completed}
	return tf, nil
}

// reservedLen is the prefix of the WAL region's data region set aside for
// the commit manager record; transaction offsets are relative to the byte
// right after it, so callers never need to know it exists.
const reservedLen = commitManagerRecordLen

// Size returns the logical size of the file's data region, excluding the
// commit manager's reserved prefix.
func (tf *Txfile) Size() uint64 {
	sz := tf.region.Size()
	if sz < reservedLen {
		return 0
	}
	return sz - reservedLen
}

// Tx is a single transaction against a Txfile.
type Tx struct {
	tf       *Txfile
	readOnly bool

	snapshot CommitID // read-only transactions

	txID    wal.TxID // read-write transactions
	writes  *replmap.Map
	newSize *uint64
	done    bool
}

// Begin starts a new transaction. A read-write transaction immediately
// reserves a WAL transaction id; a read-only transaction just pins the
// current commit id.
func (tf *Txfile) Begin(readOnly bool) (*Tx, error) {
	if readOnly {
		return &Tx{tf: tf, readOnly: true, snapshot: tf.cm.GetTxCommitID()}, nil
	}

	id, err := tf.region.AllocateTxID()
	if err != nil {
		return nil, fmt.Errorf("txfile: begin: %w", err)
	}
	return &Tx{tf: tf, txID: id, writes: replmap.New()}, nil
}

// CommitID returns the commit id a read-only transaction pinned at Begin.
func (t *Tx) CommitID() CommitID { return t.snapshot }

// ReadAt fills buf with the transaction's view of the file at off (relative
// to the start of the caller-visible data region): its own staged writes
// first (for a read-write transaction), then the region.
func (t *Tx) ReadAt(off uint64, buf []byte) error {
	if err := t.tf.region.ReadAt(reservedLen+off, buf); err != nil {
		return err
	}
	if t.readOnly || t.writes == nil {
		return nil
	}
	end := off + uint64(len(buf))
	t.writes.ForEach(func(begin uint64, data []byte) {
		if dEnd := begin + uint64(len(data)); begin < end && dEnd > off {
			lo, hi := max(begin, off), min(dEnd, end)
			copy(buf[lo-off:hi-off], data[lo-begin:hi-begin])
		}
	})
	return nil
}

// WriteAt stages a write into the transaction's private replacement map.
func (t *Tx) WriteAt(off uint64, data []byte) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.writes.WriteAt(off, data)
	return nil
}

// Resize stages a file-size change, applied atomically with the
// transaction's writes on commit.
func (t *Tx) Resize(newSize uint64) error {
	if t.readOnly {
		return ErrReadOnly
	}
	sz := newSize
	t.newSize = &sz
	return nil
}

// Commit durably applies the transaction's staged writes and resize, if any,
// and advances the file's commit-id high-water mark. undo, when non-nil,
// holds the prior image of every byte range the transaction wrote, for use
// as a rollback trail by a caller that composed several WAL-backed steps
// into one higher-level operation.
func (t *Tx) Commit() (undo *replmap.Map, err error) {
	if t.done {
		return nil, fmt.Errorf("txfile: commit: transaction already closed")
	}
	t.done = true
	if t.readOnly {
		return nil, nil
	}

	shifted := replmap.New()
	t.writes.ForEach(func(begin uint64, data []byte) {
		shifted.WriteAt(reservedLen+begin, data)
	})
	var absSize *uint64
	if t.newSize != nil {
		sz := reservedLen + *t.newSize
		absSize = &sz
	}

	wi := t.tf.cm.PrepareCommit()
	var absUndo *replmap.Map
	err = wi.Apply(
		func() error {
			var applyErr error
			absUndo, applyErr = t.tf.region.Commit(t.txID, shifted, absSize)
			return applyErr
		},
		func() {},
	)
	if absUndo != nil {
		undo = replmap.New()
		absUndo.ForEach(func(begin uint64, data []byte) {
			undo.WriteAt(begin-reservedLen, data)
		})
	}
	return undo, err
}

// Rollback discards the transaction's staged writes. A read-write
// transaction's WAL id is freed with no durable record; a read-only
// transaction has nothing to discard.
func (t *Tx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	if !t.readOnly {
		t.tf.region.Rollback(t.txID)
	}
}
