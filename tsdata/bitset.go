package tsdata

import "github.com/nahratzah/monsoon/internal/xdr"

// maxRun is the largest run length a single u16 counter can hold; longer
// runs are split, with a zero-length run of the opposite value inserted to
// keep the true/false alternation parity intact.
const maxRun = 0x7fff

// Bitset is a dense boolean vector, RLE-encoded on the wire as alternating
// run lengths starting with a true run.
type Bitset struct {
	bits []bool
}

// NewBitset wraps bits as a Bitset, taking ownership of the slice.
func NewBitset(bits []bool) Bitset { return Bitset{bits: bits} }

// Len returns the number of bits.
func (b Bitset) Len() int { return len(b.bits) }

// Get returns the bit at position i.
func (b Bitset) Get(i int) bool { return b.bits[i] }

// CountTrue returns the number of set bits.
func (b Bitset) CountTrue() int {
	n := 0
	for _, v := range b.bits {
		if v {
			n++
		}
	}
	return n
}

// Encode appends the RLE wire form of b to buf.
func (b Bitset) Encode(buf []byte) []byte {
	cur := true
	run := 0
	flush := func() {
		for run > maxRun {
			buf = xdr.PutUint16(buf, maxRun)
			buf = xdr.PutUint16(buf, 0)
			run -= maxRun
		}
		buf = xdr.PutUint16(buf, uint16(run))
	}

	for _, bit := range b.bits {
		if bit == cur {
			run++
			continue
		}
		flush()
		cur = bit
		run = 1
	}
	flush()
	return buf
}

// DecodeBitset parses a Bitset of exactly count bits from the front of buf;
// the bit count isn't self-describing on the wire, so the caller supplies it
// from context (a block's timestamp count, a group's presence length, ...).
func DecodeBitset(buf []byte, count int) (Bitset, int, error) {
	bits := make([]bool, 0, count)
	cur := true
	off := 0

	for len(bits) < count {
		run, n, err := xdr.GetUint16(buf[off:])
		if err != nil {
			return Bitset{}, 0, err
		}
		off += n
		for i := uint16(0); i < run; i++ {
			if len(bits) >= count {
				return Bitset{}, 0, ErrEncodingRange
			}
			bits = append(bits, cur)
		}
		cur = !cur
	}
	return Bitset{bits: bits}, off, nil
}
