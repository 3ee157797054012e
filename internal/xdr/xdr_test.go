package xdr

import (
	"testing"

	"github.com/nahratzah/monsoon/fsptr"
)

func TestUintRoundTrip(t *testing.T) {
	buf := PutUint16(PutUint32(PutUint64(nil, 0x0102030405060708), 0xaabbccdd), 0xbeef)

	u64, n, err := GetUint64(buf)
	if err != nil || u64 != 0x0102030405060708 {
		t.Fatalf("GetUint64 = %x, %d, %v", u64, n, err)
	}
	u32, n2, err := GetUint32(buf[n:])
	if err != nil || u32 != 0xaabbccdd {
		t.Fatalf("GetUint32 = %x, %d, %v", u32, n2, err)
	}
	u16, n3, err := GetUint16(buf[n+n2:])
	if err != nil || u16 != 0xbeef {
		t.Fatalf("GetUint16 = %x, %d, %v", u16, n3, err)
	}
}

func TestSignedAndFloatRoundTrip(t *testing.T) {
	buf := PutInt64(PutInt32(PutFloat64(nil, -3.5), -7), -12345)

	f, n, err := GetFloat64(buf)
	if err != nil || f != -3.5 {
		t.Fatalf("GetFloat64 = %v, %v", f, err)
	}
	i32, n2, err := GetInt32(buf[n:])
	if err != nil || i32 != -7 {
		t.Fatalf("GetInt32 = %v, %v", i32, err)
	}
	i64, _, err := GetInt64(buf[n+n2:])
	if err != nil || i64 != -12345 {
		t.Fatalf("GetInt64 = %v, %v", i64, err)
	}
}

func TestShortBuffer(t *testing.T) {
	if _, _, err := GetUint64([]byte{1, 2, 3}); err != ErrShortBuffer {
		t.Fatalf("err = %v, want ErrShortBuffer", err)
	}
	if _, _, err := GetPointer([]byte{1, 2, 3}); err != ErrShortBuffer {
		t.Fatalf("err = %v, want ErrShortBuffer", err)
	}
}

func TestPointerRoundTrip(t *testing.T) {
	p := fsptr.Pointer{Off: 123, Len: 456}
	buf := PutPointer(nil, p)
	got, n, err := GetPointer(buf)
	if err != nil || got != p || n != len(buf) {
		t.Fatalf("GetPointer = %+v, %d, %v", got, n, err)
	}
}

func TestOptionalPointerRoundTrip(t *testing.T) {
	buf := PutOptionalPointer(nil, nil)
	got, n, err := GetOptionalPointer(buf)
	if err != nil || got != nil || n != len(buf) {
		t.Fatalf("absent: GetOptionalPointer = %v, %d, %v", got, n, err)
	}

	p := fsptr.Pointer{Off: 1, Len: 2}
	buf = PutOptionalPointer(nil, &p)
	got, n, err = GetOptionalPointer(buf)
	if err != nil || got == nil || *got != p || n != len(buf) {
		t.Fatalf("present: GetOptionalPointer = %v, %d, %v", got, n, err)
	}
}

func TestCollectionLenRoundTrip(t *testing.T) {
	buf := PutCollectionLen(nil, 17)
	n, adv, err := GetCollectionLen(buf)
	if err != nil || n != 17 || adv != len(buf) {
		t.Fatalf("GetCollectionLen = %d, %d, %v", n, adv, err)
	}
}
