package tlslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/kartikbazzad/bunbase/searchcore/internal/wal"
)

// WALStore is the primary Store backend, adapting the engine's own
// segmented write-ahead log: each tlslog.Entry becomes one wal.Record keyed
// by its serial number, and durability goes through the log's group
// committer so concurrent appenders share fsyncs.
type WALStore struct {
	mu           sync.Mutex
	w            *wal.WAL
	gc           *wal.GroupCommitter
	prunedFile   string
	prunedSerial uint64
}

// OpenWALStore opens (creating if absent) a WAL-backed transaction log
// rooted at dir.
func OpenWALStore(dir string) (*WALStore, error) {
	w, err := wal.NewWAL(dir)
	if err != nil {
		return nil, fmt.Errorf("tlslog: open wal store: %w", err)
	}
	s := &WALStore{
		w:          w,
		gc:         wal.NewGroupCommitterWithFlusher(w, wal.GetSharedFlusher()),
		prunedFile: filepath.Join(dir, "pruned.serial"),
	}
	s.prunedSerial = s.readPrunedSerial()
	return s, nil
}

func (s *WALStore) readPrunedSerial() uint64 {
	data, err := os.ReadFile(s.prunedFile)
	if err != nil {
		return 0
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func (s *WALStore) Append(entry Entry) error {
	s.mu.Lock()
	rec := &wal.Record{
		Serial:    entry.Serial,
		Timestamp: time.Now().UnixNano(),
		Payload:   entry.Payload,
	}
	if err := s.w.Append(rec); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("tlslog: append: %w", err)
	}
	s.mu.Unlock()
	// Durability via group commit, outside the store lock so concurrent
	// appenders can land in the same fsync batch.
	if err := s.gc.Commit(entry.Serial); err != nil {
		return fmt.Errorf("tlslog: sync: %w", err)
	}
	return nil
}

func (s *WALStore) ReadAll() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := wal.NewRecovery(s.w).Recover()
	if err != nil {
		return nil, fmt.Errorf("tlslog: read all: %w", err)
	}
	out := make([]Entry, 0, len(records))
	for _, r := range records {
		if r.Serial <= s.prunedSerial {
			continue
		}
		out = append(out, Entry{Serial: r.Serial, Payload: r.Payload})
	}
	return out, nil
}

// Prune raises the prune watermark and asks the underlying log to reclaim
// fully-covered segments. ReadAll filters out anything at or below the
// watermark, so partially-covered segments are handled exactly even though
// segment reclamation is whole-file.
func (s *WALStore) Prune(uptoSerial uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if uptoSerial < s.prunedSerial {
		return fmt.Errorf("tlslog: prune watermark may not move backwards: have %d, got %d", s.prunedSerial, uptoSerial)
	}
	s.prunedSerial = uptoSerial
	if err := os.WriteFile(s.prunedFile, []byte(strconv.FormatUint(uptoSerial, 10)), 0644); err != nil {
		return fmt.Errorf("tlslog: persist prune watermark: %w", err)
	}
	if err := s.w.Prune(uptoSerial); err != nil {
		return fmt.Errorf("tlslog: prune segments: %w", err)
	}
	return nil
}

func (s *WALStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gc.Stop()
	return s.w.Close()
}
