// Package segment implements the fixed-frame extent codec shared by every
// on-disk structure in monsoon: a length-bounded payload, zero padding up to
// a 4-byte boundary, and a big-endian CRC32 trailer over payload+padding.
package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// ErrEndOfStream is returned when fewer than the declared number of payload
// bytes are available.
var ErrEndOfStream = errors.New("segment: end of stream")

// ErrBadPadding is returned when a padding byte is not zero.
var ErrBadPadding = errors.New("segment: bad padding")

// ErrCrcMismatch is returned when the trailing CRC32 does not match the
// computed checksum of payload+padding.
var ErrCrcMismatch = errors.New("segment: crc mismatch")

// Pad returns the number of zero bytes needed to round n up to a 4-byte
// boundary.
func Pad(n int) int {
	return (4 - n%4) % 4
}

// StorageLen returns the on-disk length of a segment-wrapped extent holding
// dataLen bytes of payload: dataLen + padding + 4 (CRC32 trailer).
func StorageLen(dataLen int) int {
	return dataLen + Pad(dataLen) + 4
}

// Write encodes payload as a segment-wrapped extent: payload, zero padding to
// a 4-byte boundary, then a big-endian CRC32 of payload+padding. It returns
// the data length and the total storage length written.
func Write(w io.Writer, payload []byte) (dataLen, storageLen int, err error) {
	crc := crc32.NewIEEE()
	mw := io.MultiWriter(w, crc)

	if _, err = mw.Write(payload); err != nil {
		return 0, 0, fmt.Errorf("segment: write payload: %w", err)
	}

	pad := Pad(len(payload))
	if pad > 0 {
		var zeros [3]byte
		if _, err = mw.Write(zeros[:pad]); err != nil {
			return 0, 0, fmt.Errorf("segment: write padding: %w", err)
		}
	}

	var trailer [4]byte
	binary.BigEndian.PutUint32(trailer[:], crc.Sum32())
	if _, err = w.Write(trailer[:]); err != nil {
		return 0, 0, fmt.Errorf("segment: write crc: %w", err)
	}

	return len(payload), len(payload) + pad + 4, nil
}

// Read decodes a segment-wrapped extent of dataLen payload bytes from r,
// validating padding and the CRC32 trailer.
func Read(r io.Reader, dataLen int) ([]byte, error) {
	crc := crc32.NewIEEE()

	payload := make([]byte, dataLen)
	if dataLen > 0 {
		if _, err := io.ReadFull(io.TeeReader(r, crc), payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrEndOfStream
			}
			return nil, fmt.Errorf("segment: read payload: %w", err)
		}
	}

	pad := Pad(dataLen)
	if pad > 0 {
		padBuf := make([]byte, pad)
		if _, err := io.ReadFull(io.TeeReader(r, crc), padBuf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrEndOfStream
			}
			return nil, fmt.Errorf("segment: read padding: %w", err)
		}
		for _, b := range padBuf {
			if b != 0 {
				return nil, ErrBadPadding
			}
		}
	}

	var trailer [4]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("segment: read crc: %w", err)
	}
	if binary.BigEndian.Uint32(trailer[:]) != crc.Sum32() {
		return nil, ErrCrcMismatch
	}

	return payload, nil
}

// ReadAt decodes a segment-wrapped extent of dataLen payload bytes located at
// off in ra, the same way Read does for a stream.
func ReadAt(ra io.ReaderAt, off int64, dataLen int) ([]byte, error) {
	total := StorageLen(dataLen)
	buf := make([]byte, total)
	if _, err := ra.ReadAt(buf, off); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("segment: read at %d: %w", off, err)
	}

	payload := buf[:dataLen]
	pad := buf[dataLen : total-4]
	for _, b := range pad {
		if b != 0 {
			return nil, ErrBadPadding
		}
	}

	crc := crc32.ChecksumIEEE(buf[:dataLen+len(pad)])
	if binary.BigEndian.Uint32(buf[total-4:]) != crc {
		return nil, ErrCrcMismatch
	}

	out := make([]byte, dataLen)
	copy(out, payload)
	return out, nil
}

// WriteAt encodes payload as a segment-wrapped extent at off in wa, returning
// the total storage length written.
func WriteAt(wa io.WriterAt, off int64, payload []byte) (storageLen int, err error) {
	pad := Pad(len(payload))
	total := len(payload) + pad + 4
	buf := make([]byte, total)
	copy(buf, payload)
	// buf[len(payload):len(payload)+pad] is already zero.
	crc := crc32.ChecksumIEEE(buf[:len(payload)+pad])
	binary.BigEndian.PutUint32(buf[len(payload)+pad:], crc)

	if _, err := wa.WriteAt(buf, off); err != nil {
		return 0, fmt.Errorf("segment: write at %d: %w", off, err)
	}
	return total, nil
}
