package txfile

import (
	"fmt"
	"os"
)

// OpenedFile is a Txfile backed by a real OS file, holding the advisory
// interprocess lock for as long as it stays open.
type OpenedFile struct {
	*Txfile
	f    *os.File
	lock *fileLock
}

// CreateFile lays out a brand new txfile at path, holding an exclusive
// advisory lock on it for the lifetime of the returned OpenedFile.
func CreateFile(path string, walSegLen int64) (*OpenedFile, error) {
	lock, err := lockFile(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		lock.unlock()
		return nil, fmt.Errorf("txfile: create %q: %w", path, err)
	}
	tf, err := Create(f, 0, walSegLen)
	if err != nil {
		f.Close()
		lock.unlock()
		return nil, err
	}
	return &OpenedFile{Txfile: tf, f: f, lock: lock}, nil
}

// OpenFile recovers a txfile previously laid out by CreateFile, holding an
// exclusive advisory lock on it for the lifetime of the returned
// OpenedFile when writable.
func OpenFile(path string, walSegLen int64, writable bool) (*OpenedFile, error) {
	var lock *fileLock
	if writable {
		l, err := lockFile(path)
		if err != nil {
			return nil, err
		}
		lock = l
	}

	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		if lock != nil {
			lock.unlock()
		}
		return nil, fmt.Errorf("txfile: open %q: %w", path, err)
	}

	tf, err := Open(f, 0, walSegLen, writable)
	if err != nil {
		f.Close()
		if lock != nil {
			lock.unlock()
		}
		return nil, err
	}
	return &OpenedFile{Txfile: tf, f: f, lock: lock}, nil
}

// Close closes the underlying file and releases the advisory lock.
func (of *OpenedFile) Close() error {
	err := of.f.Close()
	if of.lock != nil {
		if lerr := of.lock.unlock(); err == nil {
			err = lerr
		}
	}
	return err
}
