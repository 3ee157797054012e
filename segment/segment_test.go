package segment

import (
	"bytes"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("a"),
		[]byte("ab"),
		[]byte("abc"),
		[]byte("abcd"),
		bytes.Repeat([]byte("x"), 4097),
	}
	for _, payload := range cases {
		var buf bytes.Buffer
		dataLen, storageLen, err := Write(&buf, payload)
		if err != nil {
			t.Fatalf("write(%d): %v", len(payload), err)
		}
		if dataLen != len(payload) {
			t.Fatalf("dataLen = %d, want %d", dataLen, len(payload))
		}
		if storageLen != StorageLen(len(payload)) {
			t.Fatalf("storageLen = %d, want %d", storageLen, StorageLen(len(payload)))
		}
		if buf.Len() != storageLen {
			t.Fatalf("buffer has %d bytes, want %d", buf.Len(), storageLen)
		}

		got, err := Read(bytes.NewReader(buf.Bytes()), len(payload))
		if err != nil {
			t.Fatalf("read(%d): %v", len(payload), err)
		}
		if !bytes.Equal(got, payload) && !(len(got) == 0 && len(payload) == 0) {
			t.Fatalf("round trip mismatch: got %q want %q", got, payload)
		}
	}
}

func TestReadBadPadding(t *testing.T) {
	var buf bytes.Buffer
	Write(&buf, []byte("a"))
	raw := buf.Bytes()
	raw[1] = 1 // corrupt a padding byte
	if _, err := Read(bytes.NewReader(raw), 1); err != ErrBadPadding {
		t.Fatalf("err = %v, want ErrBadPadding", err)
	}
}

func TestReadCrcMismatch(t *testing.T) {
	var buf bytes.Buffer
	Write(&buf, []byte("abcd"))
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xff
	if _, err := Read(bytes.NewReader(raw), 4); err != ErrCrcMismatch {
		t.Fatalf("err = %v, want ErrCrcMismatch", err)
	}
}

func TestReadEndOfStream(t *testing.T) {
	var buf bytes.Buffer
	Write(&buf, []byte("abcdef"))
	raw := buf.Bytes()[:3]
	if _, err := Read(bytes.NewReader(raw), 6); err != ErrEndOfStream {
		t.Fatalf("err = %v, want ErrEndOfStream", err)
	}
}

func TestWriteAtReadAt(t *testing.T) {
	mem := make(memBuf, 0)
	n, err := WriteAt(&mem, 10, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if n != StorageLen(5) {
		t.Fatalf("n = %d, want %d", n, StorageLen(5))
	}
	got, err := ReadAt(&mem, 10, 5)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
}

// memBuf is a minimal growable ReaderAt/WriterAt for tests.
type memBuf []byte

func (m *memBuf) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(*m)) {
		grown := make([]byte, end)
		copy(grown, *m)
		*m = grown
	}
	copy((*m)[off:], p)
	return len(p), nil
}

func (m *memBuf) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(*m)) {
		return 0, bytes.ErrTooLarge
	}
	n := copy(p, (*m)[off:])
	if n < len(p) {
		return n, bytes.ErrTooLarge
	}
	return n, nil
}
