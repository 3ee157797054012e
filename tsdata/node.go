package tsdata

import (
	"github.com/nahratzah/monsoon/fsptr"
	"github.com/nahratzah/monsoon/internal/xdr"
)

// Node is one record of a list-kind file's backward-linked chain, grounded
// on tsdata_xdr.cc/.h: a timestamp, an optional pointer to the predecessor
// node, an optional pointer to this node's dictionary delta (present only
// when new dictionary entries were interned for this push), and a pointer
// to this timestamp's RecordArray.
type Node struct {
	Timestamp int64 // milliseconds since epoch
	Pred      *fsptr.Pointer
	Dict      *fsptr.Pointer
	Records   fsptr.Pointer
}

// Encode appends the wire form of n to buf: ts, optional(pred),
// optional(dict), records, reserved u32=0 — matching tsdata_xdr::decode's
// field order (push_back writes the symmetric encode, grounded on
// tsdata_list.cc).
func (n Node) Encode(buf []byte) []byte {
	buf = xdr.PutInt64(buf, n.Timestamp)
	buf = xdr.PutOptionalPointer(buf, n.Pred)
	buf = xdr.PutOptionalPointer(buf, n.Dict)
	buf = xdr.PutPointer(buf, n.Records)
	buf = xdr.PutUint32(buf, 0) // reserved
	return buf
}

// DecodeNode parses a Node from the front of buf.
func DecodeNode(buf []byte) (Node, int, error) {
	ts, off, err := xdr.GetInt64(buf)
	if err != nil {
		return Node{}, 0, err
	}
	pred, m, err := xdr.GetOptionalPointer(buf[off:])
	off += m
	if err != nil {
		return Node{}, 0, err
	}
	dictPtr, m, err := xdr.GetOptionalPointer(buf[off:])
	off += m
	if err != nil {
		return Node{}, 0, err
	}
	records, m, err := xdr.GetPointer(buf[off:])
	off += m
	if err != nil {
		return Node{}, 0, err
	}
	_, m, err = xdr.GetUint32(buf[off:]) // reserved
	off += m
	if err != nil {
		return Node{}, 0, err
	}
	return Node{Timestamp: ts, Pred: pred, Dict: dictPtr, Records: records}, off, nil
}
