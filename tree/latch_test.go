package tree

import (
	"sync"
	"testing"
	"time"
)

func TestLatchExclusiveExcludesReaders(t *testing.T) {
	lm := NewLatchManager()
	lm.Lock(1)

	acquired := make(chan struct{})
	go func() {
		lm.RLock(1)
		close(acquired)
		lm.RUnlock(1)
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired latch while writer still held it")
	case <-time.After(50 * time.Millisecond):
	}

	lm.Unlock(1)
	<-acquired
}

func TestLatchSharedReadersConcurrent(t *testing.T) {
	lm := NewLatchManager()
	lm.RLock(1)
	lm.RLock(1)

	acquired := make(chan struct{})
	go func() {
		lm.RLock(1)
		close(acquired)
		lm.RUnlock(1)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second reader blocked by first reader")
	}

	lm.RUnlock(1)
	lm.RUnlock(1)
}

func TestLatchDifferentOffsetsNoContention(t *testing.T) {
	lm := NewLatchManager()
	lm.Lock(1)
	done := make(chan struct{})
	go func() {
		lm.Lock(2)
		lm.Unlock(2)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on offset 2 blocked by lock on offset 1")
	}
	lm.Unlock(1)
}

func TestLatchConcurrentWritersSerialize(t *testing.T) {
	lm := NewLatchManager()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				lm.Lock(7)
				counter++
				lm.Unlock(7)
			}
		}()
	}
	wg.Wait()
	if counter != 1000 {
		t.Fatalf("counter = %d, want 1000", counter)
	}
}
