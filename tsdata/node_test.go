package tsdata

import (
	"testing"

	"github.com/nahratzah/monsoon/fsptr"
)

func TestNodeRoundTripWithPredAndDict(t *testing.T) {
	pred := fsptr.Pointer{Off: 1, Len: 2}
	d := fsptr.Pointer{Off: 3, Len: 4}
	n := Node{Timestamp: 123456, Pred: &pred, Dict: &d, Records: fsptr.Pointer{Off: 5, Len: 6}}

	buf := n.Encode(nil)
	got, adv, err := DecodeNode(buf)
	if err != nil {
		t.Fatalf("DecodeNode: %v", err)
	}
	if adv != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", adv, len(buf))
	}
	if got.Timestamp != n.Timestamp || got.Records != n.Records {
		t.Fatalf("got = %+v, want %+v", got, n)
	}
	if got.Pred == nil || *got.Pred != pred {
		t.Fatalf("Pred = %v, want %v", got.Pred, pred)
	}
	if got.Dict == nil || *got.Dict != d {
		t.Fatalf("Dict = %v, want %v", got.Dict, d)
	}
}

func TestNodeRoundTripHead(t *testing.T) {
	n := Node{Timestamp: 1, Records: fsptr.Pointer{Off: 7, Len: 8}}
	buf := n.Encode(nil)
	got, _, err := DecodeNode(buf)
	if err != nil {
		t.Fatalf("DecodeNode: %v", err)
	}
	if got.Pred != nil || got.Dict != nil {
		t.Fatalf("got Pred=%v Dict=%v, want both nil", got.Pred, got.Dict)
	}
	if got.Records != n.Records {
		t.Fatalf("Records = %+v, want %+v", got.Records, n.Records)
	}
}
