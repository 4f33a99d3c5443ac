package wal

import (
	"sync"
	"testing"
)

func TestGroupCommitSingleWriter(t *testing.T) {
	w, err := NewWAL(t.TempDir())
	if err != nil {
		t.Fatalf("NewWAL: %v", err)
	}
	defer w.Close()

	gc := NewGroupCommitter(w)
	defer gc.Stop()

	if err := w.Append(&Record{Serial: 1, Payload: []byte("one")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := gc.Commit(1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestGroupCommitConcurrentWriters(t *testing.T) {
	w, err := NewWAL(t.TempDir())
	if err != nil {
		t.Fatalf("NewWAL: %v", err)
	}
	defer w.Close()

	gc := NewGroupCommitter(w)
	defer gc.Stop()

	const n = 50
	serials := make(chan uint64, n)
	for s := uint64(1); s <= n; s++ {
		serials <- s
	}
	close(serials)

	var mu sync.Mutex
	var appendErr error
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range serials {
				// Serial assignment order is the channel's; appends race, so
				// regressions are possible and tolerated here. The point is
				// that every successful append gets a durable commit.
				mu.Lock()
				err := w.Append(&Record{Serial: s, Payload: []byte{byte(s)}})
				mu.Unlock()
				if err != nil {
					continue
				}
				if err := gc.Commit(s); err != nil {
					mu.Lock()
					appendErr = err
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if appendErr != nil {
		t.Fatalf("Commit: %v", appendErr)
	}
}

func TestGroupCommitAfterStop(t *testing.T) {
	w, err := NewWAL(t.TempDir())
	if err != nil {
		t.Fatalf("NewWAL: %v", err)
	}
	defer w.Close()

	gc := NewGroupCommitter(w)
	gc.Stop()
	gc.Stop() // idempotent

	if err := gc.Commit(1); err != ErrCommitterStopped {
		t.Fatalf("expected ErrCommitterStopped, got %v", err)
	}
}

func TestSharedFlusherFlushesMultipleLogs(t *testing.T) {
	a, err := NewWAL(t.TempDir())
	if err != nil {
		t.Fatalf("NewWAL a: %v", err)
	}
	defer a.Close()
	b, err := NewWAL(t.TempDir())
	if err != nil {
		t.Fatalf("NewWAL b: %v", err)
	}
	defer b.Close()

	sf := GetSharedFlusher()

	if err := a.Append(&Record{Serial: 1, Payload: []byte("a")}); err != nil {
		t.Fatalf("Append a: %v", err)
	}
	if err := b.Append(&Record{Serial: 1, Payload: []byte("b")}); err != nil {
		t.Fatalf("Append b: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, w := range []*WAL{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = sf.Flush(w)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Flush %d: %v", i, err)
		}
	}

	stats := sf.GetStats()
	if stats.IsStopped {
		t.Fatal("shared flusher unexpectedly stopped")
	}
}
