package txfile

import (
	"errors"
	"testing"

	"github.com/nahratzah/monsoon/wal"
)

var errValidationFailed = errors.New("validation failed")

func newTestTxfile(t *testing.T) *Txfile {
	t.Helper()
	f := wal.NewMemFile()
	tf, err := Create(f, 0, 4096)
	if err != nil {
		t.Fatal(err)
	}
	return tf
}

func TestCommitManagerInitIsZero(t *testing.T) {
	tf := newTestTxfile(t)
	id := tf.cm.GetTxCommitID()
	if id.TxStart != 0 || id.Val != 0 {
		t.Fatalf("fresh commit manager id = %+v, want zero", id)
	}
}

func TestPrepareCommitNeverRepeats(t *testing.T) {
	tf := newTestTxfile(t)
	before := tf.cm.GetTxCommitID()

	wi1 := tf.cm.PrepareCommit()
	wi2 := tf.cm.PrepareCommit()

	if wi1.Seq() == wi2.Seq() {
		t.Fatal("PrepareCommit handed out the same id twice")
	}
	if tf.cm.GetTxCommitID() != before {
		t.Fatal("PrepareCommit must not change the visible commit id")
	}
}

func TestApplyOrdersValidateBeforePhase2(t *testing.T) {
	tf := newTestTxfile(t)
	wi := tf.cm.PrepareCommit()

	var validateCalled, phase2Called bool
	err := wi.Apply(
		func() error {
			if phase2Called {
				t.Fatal("phase2 ran before validate")
			}
			validateCalled = true
			return nil
		},
		func() {
			if !validateCalled {
				t.Fatal("phase2 ran before validate completed")
			}
			phase2Called = true
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	if !validateCalled || !phase2Called {
		t.Fatal("both validate and phase2 must run on success")
	}

	if got := tf.cm.GetTxCommitID(); got != wi.Seq() {
		t.Fatalf("GetTxCommitID() = %+v after apply, want %+v", got, wi.Seq())
	}
}

func TestApplyValidateFailureSkipsPhase2(t *testing.T) {
	tf := newTestTxfile(t)
	before := tf.cm.GetTxCommitID()
	wi := tf.cm.PrepareCommit()

	var phase2Called bool
	err := wi.Apply(
		func() error { return errValidationFailed },
		func() { phase2Called = true },
	)
	if err != errValidationFailed {
		t.Fatalf("err = %v, want %v", err, errValidationFailed)
	}
	if phase2Called {
		t.Fatal("phase2 must not run when validate fails")
	}
	if tf.cm.GetTxCommitID() != before {
		t.Fatal("a failed commit must not change the visible commit id")
	}
}

func TestCommitManagerSurvivesReopen(t *testing.T) {
	f := wal.NewMemFile()
	tf, err := Create(f, 0, 4096)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		wi := tf.cm.PrepareCommit()
		if err := wi.Apply(func() error { return nil }, func() {}); err != nil {
			t.Fatal(err)
		}
	}
	want := tf.cm.GetTxCommitID()

	tf2, err := Open(f, 0, 4096, true)
	if err != nil {
		t.Fatal(err)
	}
	if got := tf2.cm.GetTxCommitID(); got != want {
		t.Fatalf("reopened commit id = %+v, want %+v", got, want)
	}
}

