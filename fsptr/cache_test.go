package fsptr

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type parentObj struct{ id int }

func TestGetOrLoadCachesAcrossCalls(t *testing.T) {
	c := New[parentObj](1<<20, time.Minute)
	defer c.Close()

	p := &parentObj{id: 1}
	var loads int32
	load := func() (any, int64, error) {
		atomic.AddInt32(&loads, 1)
		return "value", 4, nil
	}

	v1, err := c.GetOrLoad(p, Pointer{Off: 0, Len: 4}, TagDictionary, load)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := c.GetOrLoad(p, Pointer{Off: 0, Len: 4}, TagDictionary, load)
	if err != nil {
		t.Fatal(err)
	}
	if v1 != "value" || v2 != "value" {
		t.Fatalf("got %v, %v", v1, v2)
	}
	if loads != 1 {
		t.Fatalf("load called %d times, want 1", loads)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestDistinctTagsDoNotCollide(t *testing.T) {
	c := New[parentObj](1<<20, time.Minute)
	defer c.Close()
	p := &parentObj{id: 1}

	v1, _ := c.GetOrLoad(p, Pointer{Off: 0, Len: 4}, TagDictionary, func() (any, int64, error) { return "dict", 4, nil })
	v2, _ := c.GetOrLoad(p, Pointer{Off: 0, Len: 4}, TagTsdataXDR, func() (any, int64, error) { return "tsdata", 4, nil })
	if v1 == v2 {
		t.Fatalf("entries with distinct tags collided: %v == %v", v1, v2)
	}
}

func TestFailedDecodeIsNotCachedAndRetries(t *testing.T) {
	c := New[parentObj](1<<20, time.Minute)
	defer c.Close()
	p := &parentObj{id: 1}

	boom := errors.New("boom")
	var attempt int32
	load := func() (any, int64, error) {
		n := atomic.AddInt32(&attempt, 1)
		if n == 1 {
			return nil, 0, boom
		}
		return "recovered", 4, nil
	}

	_, err := c.GetOrLoad(p, Pointer{Off: 0, Len: 4}, TagDictionary, load)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	v, err := c.GetOrLoad(p, Pointer{Off: 0, Len: 4}, TagDictionary, load)
	if err != nil {
		t.Fatal(err)
	}
	if v != "recovered" {
		t.Fatalf("got %v", v)
	}
}

func TestConcurrentLoadsForSameKeyDecodeOnce(t *testing.T) {
	c := New[parentObj](1<<20, time.Minute)
	defer c.Close()
	p := &parentObj{id: 1}

	var loads int32
	start := make(chan struct{})
	load := func() (any, int64, error) {
		<-start
		atomic.AddInt32(&loads, 1)
		return "v", 1, nil
	}

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(p, Pointer{Off: 0, Len: 1}, TagDictionary, load)
			if err != nil {
				t.Error(err)
			}
			results[i] = v
		}(i)
	}
	close(start)
	wg.Wait()

	if loads != 1 {
		t.Fatalf("load called %d times, want 1", loads)
	}
	for _, v := range results {
		if v != "v" {
			t.Fatalf("got %v", v)
		}
	}
}

func TestEvictionRespectsByteBudget(t *testing.T) {
	c := New[parentObj](10, time.Minute)
	defer c.Close()
	p := &parentObj{id: 1}

	for i := 0; i < 5; i++ {
		ptr := Pointer{Off: int64(i), Len: 4}
		_, err := c.GetOrLoad(p, ptr, TagDictionary, func() (any, int64, error) { return i, 4, nil })
		if err != nil {
			t.Fatal(err)
		}
	}

	stats := c.Stats()
	if stats.UsedBytes > 10 {
		t.Fatalf("used bytes %d exceeds budget 10", stats.UsedBytes)
	}
	if stats.Evictions == 0 {
		t.Fatal("expected at least one eviction")
	}
}

func TestAccessExpiry(t *testing.T) {
	c := New[parentObj](1<<20, time.Millisecond)
	defer c.Close()
	p := &parentObj{id: 1}

	var loads int32
	load := func() (any, int64, error) {
		atomic.AddInt32(&loads, 1)
		return "v", 4, nil
	}

	if _, err := c.GetOrLoad(p, Pointer{Off: 0, Len: 4}, TagDictionary, load); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := c.GetOrLoad(p, Pointer{Off: 0, Len: 4}, TagDictionary, load); err != nil {
		t.Fatal(err)
	}
	if loads != 2 {
		t.Fatalf("load called %d times, want 2 after expiry", loads)
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := New[parentObj](1<<20, time.Minute)
	defer c.Close()
	p := &parentObj{id: 1}
	ptr := Pointer{Off: 0, Len: 4}

	c.GetOrLoad(p, ptr, TagDictionary, func() (any, int64, error) { return "v1", 4, nil })
	c.Invalidate(p, ptr, TagDictionary)

	var loads int32
	c.GetOrLoad(p, ptr, TagDictionary, func() (any, int64, error) {
		atomic.AddInt32(&loads, 1)
		return "v2", 4, nil
	})
	if loads != 1 {
		t.Fatal("expected a fresh decode after Invalidate")
	}
}

func TestInvalidateOffsetRemovesAllTags(t *testing.T) {
	c := New[parentObj](1<<20, time.Minute)
	defer c.Close()
	p := &parentObj{id: 1}

	c.GetOrLoad(p, Pointer{Off: 0, Len: 4}, TagDictionary, func() (any, int64, error) { return "a", 4, nil })
	c.GetOrLoad(p, Pointer{Off: 0, Len: 8}, TagTreeLeaf, func() (any, int64, error) { return "b", 8, nil })

	c.InvalidateOffset(p, 0)

	if c.Stats().Entries != 0 {
		t.Fatalf("entries = %d, want 0 after InvalidateOffset", c.Stats().Entries)
	}
}
