package wal

import (
	"encoding/binary"
	"fmt"

	"github.com/nahratzah/monsoon/segment"
)

// Kind identifies the shape of a WAL record.
type Kind byte

const (
	KindEnd    Kind = 0  // control marker terminating a segment's record stream
	KindCommit Kind = 1  // marks a transaction durable
	KindWrite  Kind = 10 // a byte range written by a transaction
	KindResize Kind = 11 // a pending file-size change
)

func (k Kind) String() string {
	switch k {
	case KindEnd:
		return "end"
	case KindCommit:
		return "commit"
	case KindWrite:
		return "write"
	case KindResize:
		return "resize"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// TxIDMask bounds a transaction id to 24 bits; the low byte of the record
// header carries the kind.
const TxIDMask = 0x00FFFFFF

// MaxTxIDs is the number of distinct transaction ids a region can have live
// at once.
const MaxTxIDs = TxIDMask + 1

// TxID names a transaction within a WAL region.
type TxID uint32

// Record is one decoded WAL entry. Not every field is meaningful for every
// Kind: Offset and Data apply to KindWrite, NewSize to KindResize.
type Record struct {
	Kind    Kind
	TxID    TxID
	Offset  uint64
	NewSize uint64
	Data    []byte
}

// IsControl reports whether r terminates a segment's live record stream
// rather than describing a transaction's effect.
func (r Record) IsControl() bool {
	return r.Kind == KindEnd
}

func header(txID TxID, kind Kind) uint32 {
	return uint32(txID)<<8 | uint32(kind)
}

// encode appends the wire form of r to buf and returns the result. Unlike
// segment.Write, there is no CRC trailer: integrity of a WAL record is
// guaranteed by the ordering rule in (*Region).logWrite, not a checksum.
func (r Record) encode(buf []byte) []byte {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], header(r.TxID, r.Kind))
	buf = append(buf, hdr[:]...)

	switch r.Kind {
	case KindEnd, KindCommit:
		// header only

	case KindWrite:
		var lenOff [12]byte
		binary.BigEndian.PutUint64(lenOff[0:8], r.Offset)
		binary.BigEndian.PutUint32(lenOff[8:12], uint32(len(r.Data)))
		buf = append(buf, lenOff[:]...)
		buf = append(buf, r.Data...)
		if pad := segment.Pad(len(r.Data)); pad > 0 {
			var zeros [3]byte
			buf = append(buf, zeros[:pad]...)
		}

	case KindResize:
		var sz [8]byte
		binary.BigEndian.PutUint64(sz[:], r.NewSize)
		buf = append(buf, sz[:]...)

	default:
		panic(fmt.Sprintf("wal: encode: unknown kind %d", r.Kind))
	}
	return buf
}

// EncodedLen returns the number of bytes r.encode would append.
func (r Record) EncodedLen() int {
	switch r.Kind {
	case KindEnd, KindCommit:
		return 4
	case KindWrite:
		return 4 + 8 + 4 + len(r.Data) + segment.Pad(len(r.Data))
	case KindResize:
		return 4 + 8
	default:
		panic(fmt.Sprintf("wal: EncodedLen: unknown kind %d", r.Kind))
	}
}

// endMarker is the 4-byte control record written at the live end of every
// segment's record stream.
var endMarker = [4]byte{0, 0, 0, 0}

// decodeRecord parses one record starting at buf[0], returning it and the
// number of bytes consumed. It returns ok=false if buf does not begin with a
// complete, well-formed record (used to detect the end-of-stream marker and
// truncated/corrupt tails alike).
func decodeRecord(buf []byte) (rec Record, n int, ok bool) {
	if len(buf) < 4 {
		return Record{}, 0, false
	}
	hdr := binary.BigEndian.Uint32(buf[0:4])
	kind := Kind(hdr & 0xFF)
	txID := TxID(hdr >> 8)

	switch kind {
	case KindEnd:
		if txID != 0 {
			return Record{}, 0, false
		}
		return Record{Kind: KindEnd}, 4, true

	case KindCommit:
		return Record{Kind: KindCommit, TxID: txID}, 4, true

	case KindWrite:
		if len(buf) < 16 {
			return Record{}, 0, false
		}
		off := binary.BigEndian.Uint64(buf[4:12])
		ln := binary.BigEndian.Uint32(buf[12:16])
		pad := segment.Pad(int(ln))
		total := 16 + int(ln) + pad
		if len(buf) < total {
			return Record{}, 0, false
		}
		data := make([]byte, ln)
		copy(data, buf[16:16+ln])
		return Record{Kind: KindWrite, TxID: txID, Offset: off, Data: data}, total, true

	case KindResize:
		if len(buf) < 12 {
			return Record{}, 0, false
		}
		sz := binary.BigEndian.Uint64(buf[4:12])
		return Record{Kind: KindResize, TxID: txID, NewSize: sz}, 12, true

	default:
		return Record{}, 0, false
	}
}
