package tsdata

import (
	"bytes"

	"github.com/nahratzah/monsoon/internal/xdr"
)

// Magic is the fixed 12-byte mime header preceding every tsdata v2 file.
var Magic = [12]byte{0x11, 0x13, 0x17, 0x1d, 'M', 'O', 'N', '-', 's', 'o', 'o', 'n'}

// MajorVersion is the only major version this package understands.
const MajorVersion = 2

// MaxMinorVersion is the highest minor version this package understands.
const MaxMinorVersion = 0

// MimeHeaderSize is the fixed on-disk size of MimeHeader.
const MimeHeaderSize = 12 + 2 + 2

// MimeHeader is the 16-byte prefix of every tsdata v2 file: fixed magic
// bytes followed by a major/minor version pair.
type MimeHeader struct {
	Major, Minor uint16
}

// NewMimeHeader returns the mime header this package writes: MAJOR/MAX_MINOR.
func NewMimeHeader() MimeHeader {
	return MimeHeader{Major: MajorVersion, Minor: MaxMinorVersion}
}

// Encode appends the wire form of m to buf.
func (m MimeHeader) Encode(buf []byte) []byte {
	buf = append(buf, Magic[:]...)
	buf = xdr.PutUint16(buf, m.Major)
	buf = xdr.PutUint16(buf, m.Minor)
	return buf
}

// DecodeMimeHeader parses a MimeHeader from the front of buf.
func DecodeMimeHeader(buf []byte) (MimeHeader, int, error) {
	if len(buf) < MimeHeaderSize {
		return MimeHeader{}, 0, xdr.ErrShortBuffer
	}
	if !bytes.Equal(buf[:12], Magic[:]) {
		return MimeHeader{}, 0, ErrBadMagic
	}
	major, _, _ := xdr.GetUint16(buf[12:])
	minor, _, _ := xdr.GetUint16(buf[14:])
	return MimeHeader{Major: major, Minor: minor}, MimeHeaderSize, nil
}
