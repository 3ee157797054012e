package dict

import (
	"encoding/binary"
	"math"
)

func putUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func putInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}

func putFloat64(buf []byte, v float64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	return append(buf, tmp[:]...)
}

func getFloat64(buf []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(buf))
}

func getUint32(buf []byte) uint32 {
	return binary.BigEndian.Uint32(buf)
}

func putString(buf []byte, s string) []byte {
	buf = putUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func getString(buf []byte) (string, int, error) {
	if len(buf) < 4 {
		return "", 0, errShortBuf
	}
	n := getUint32(buf)
	if uint64(4)+uint64(n) > uint64(len(buf)) {
		return "", 0, errShortBuf
	}
	return string(buf[4 : 4+n]), 4 + int(n), nil
}
