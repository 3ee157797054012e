package txfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/nahratzah/monsoon/replmap"
	"github.com/nahratzah/monsoon/wal"
)

// commitManagerMagic identifies the 16-byte commit manager record.
const commitManagerMagic = 0x697f6431

const commitManagerRecordLen = 16

// commitManagerOffset is the reserved offset of the commit manager's record
// within every txfile's data region.
const commitManagerOffset = 0

// ErrBadCommitManager is returned when a commit manager record's magic does
// not match, indicating the file was not created by this package or is
// corrupt.
var ErrBadCommitManager = errors.New("txfile: bad commit manager magic")

// CommitID is a point in the commit sequence: readers pin one at Begin and
// use it to decide element visibility in the tree layer; it is never
// observed to go backwards for new read transactions.
type CommitID struct {
	TxStart uint32
	Val     uint32
}

// Less orders two commit ids using the same 32-bit sliding window as the
// WAL's segment sequence numbers.
func (a CommitID) Less(b CommitID) bool { return wal.SeqLess(a.Val, b.Val) }

// CommitManager hands out monotonically increasing commit ids and persists
// the high-water mark so a reopened file resumes numbering correctly.
type CommitManager struct {
	tf *Txfile

	mu        sync.Mutex
	txStart   uint32
	lastWrite uint32
	completed uint32
}

type commitManagerRecord struct {
	txStart   uint32
	lastWrite uint32
	completed uint32
}

func encodeCommitManagerRecord(r commitManagerRecord) []byte {
	buf := make([]byte, commitManagerRecordLen)
	binary.BigEndian.PutUint32(buf[0:4], commitManagerMagic)
	binary.BigEndian.PutUint32(buf[4:8], r.txStart)
	binary.BigEndian.PutUint32(buf[8:12], r.lastWrite)
	binary.BigEndian.PutUint32(buf[12:16], r.completed)
	return buf
}

func decodeCommitManagerRecord(buf []byte) (commitManagerRecord, error) {
	if binary.BigEndian.Uint32(buf[0:4]) != commitManagerMagic {
		return commitManagerRecord{}, ErrBadCommitManager
	}
	return commitManagerRecord{
		txStart:   binary.BigEndian.Uint32(buf[4:8]),
		lastWrite: binary.BigEndian.Uint32(buf[8:12]),
		completed: binary.BigEndian.Uint32(buf[12:16]),
	}, nil
}

// persistLocked writes the current state as its own, independent WAL
// transaction. Called with cm.mu held.
func (cm *CommitManager) persistLocked() error {
	rec := commitManagerRecord{txStart: cm.txStart, lastWrite: cm.lastWrite, completed: cm.completed}
	writes := replmap.New()
	writes.WriteAt(commitManagerOffset, encodeCommitManagerRecord(rec))

	txID, err := cm.tf.region.AllocateTxID()
	if err != nil {
		return fmt.Errorf("txfile: commit manager: %w", err)
	}
	if _, err := cm.tf.region.Commit(txID, writes, nil); err != nil {
		return fmt.Errorf("txfile: commit manager: %w", err)
	}
	return nil
}

// GetTxCommitID returns the commit id a new read-only transaction should
// pin: the most recently completed commit, not the most recently allocated
// one.
func (cm *CommitManager) GetTxCommitID() CommitID {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return CommitID{TxStart: cm.txStart, Val: cm.completed}
}

// WriteID is a reserved, not-yet-visible commit id returned by
// PrepareCommit. Apply makes it durable and visible.
type WriteID struct {
	mgr *CommitManager
	seq CommitID
}

// Seq returns the reserved commit id.
func (w WriteID) Seq() CommitID { return w.seq }

// Apply runs validate (typically the underlying WAL commit of the caller's
// transaction); if it succeeds, the commit id becomes the new completed
// high-water mark, persisted before phase2 runs. phase2 never runs if
// validate fails.
func (w WriteID) Apply(validate func() error, phase2 func()) error {
	if err := validate(); err != nil {
		return err
	}

	w.mgr.mu.Lock()
	if wal.SeqLess(w.mgr.completed, w.seq.Val) {
		w.mgr.completed = w.seq.Val
	}
	err := w.mgr.persistLocked()
	w.mgr.mu.Unlock()

	phase2()
	return err
}

// PrepareCommit reserves the next commit id. It never hands out the same id
// twice, even across calls with no intervening Apply.
func (cm *CommitManager) PrepareCommit() WriteID {
	cm.mu.Lock()
	cm.lastWrite++
	seq := CommitID{TxStart: cm.txStart, Val: cm.lastWrite}
	cm.mu.Unlock()
	return WriteID{mgr: cm, seq: seq}
}
