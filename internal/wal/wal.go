// Package wal implements the durable append-only transaction log the feed
// path writes every mutating operation to before applying it (the TLS
// coupling: store, sync, prune, replay).
//
// Key Components:
//   - WAL: The main coordinator managing segments and log appends.
//   - Segment: A single log file (rotated when full).
//   - Record: A single log entry (header + payload), keyed by serial number.
//   - GroupCommitter: Optimizes throughput by batching synchronous disk flushes.
//   - Recovery: Replays surviving records in serial order after a restart.
package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kartikbazzad/bunbase/searchcore/internal/util"
)

// WAL is the transaction-log manager. It owns a sequence of segments and
// handles atomic appends of serial-stamped records. Serial numbers are
// assigned by the feed writer; the log rejects any append whose serial does
// not exceed the last one written (a regression is a fatal condition).
type WAL struct {
	dir            string
	currentSegment *Segment // The active segment being written to
	lastSerial     uint64   // highest serial appended so far
	nextSegmentID  SegmentID
	mu             sync.RWMutex
}

// NewWAL opens (creating if absent) a transaction log rooted at dir. Any
// existing segments are scanned so appends resume after the highest serial
// already on disk.
func NewWAL(dir string) (*WAL, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	ids, err := listSegmentIDs(dir)
	if err != nil {
		return nil, err
	}

	w := &WAL{dir: dir}

	if len(ids) == 0 {
		segment, err := NewSegment(dir, 0)
		if err != nil {
			return nil, err
		}
		w.currentSegment = segment
		w.nextSegmentID = 1
		return w, nil
	}

	// Reopen: the highest-numbered segment becomes current; its end serial
	// (or the end serial of the last non-empty segment) seeds lastSerial.
	for _, id := range ids {
		seg, err := OpenSegment(dir, id)
		if err != nil {
			return nil, err
		}
		_, end := seg.SerialRange()
		if end > w.lastSerial {
			w.lastSerial = end
		}
		if id == ids[len(ids)-1] {
			w.currentSegment = seg
		} else {
			seg.Close()
		}
	}
	w.nextSegmentID = ids[len(ids)-1] + 1
	return w, nil
}

// Append appends a record to the log. The record's serial must exceed every
// serial appended before it.
func (w *WAL) Append(record *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if record.Serial <= w.lastSerial {
		return fmt.Errorf("%w: have %d, got %d", util.ErrSerialRegression, w.lastSerial, record.Serial)
	}

	if w.currentSegment.IsFull() {
		if err := w.rotateSegment(); err != nil {
			return err
		}
	}

	if err := w.currentSegment.Write(record); err != nil {
		return err
	}
	w.lastSerial = record.Serial

	return nil
}

// AppendBatch appends multiple records under one lock acquisition. Records
// must already be in ascending serial order.
func (w *WAL) AppendBatch(records []*Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, record := range records {
		if record.Serial <= w.lastSerial {
			return fmt.Errorf("%w: have %d, got %d", util.ErrSerialRegression, w.lastSerial, record.Serial)
		}
		if w.currentSegment.IsFull() {
			if err := w.rotateSegment(); err != nil {
				return err
			}
		}
		if err := w.currentSegment.Write(record); err != nil {
			return err
		}
		w.lastSerial = record.Serial
	}

	return nil
}

// Sync forces a sync of the current segment to disk
func (w *WAL) Sync() error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.currentSegment.Sync()
}

// rotateSegment creates a new segment and closes the current one
func (w *WAL) rotateSegment() error {
	if err := w.currentSegment.Close(); err != nil {
		return err
	}

	newSegment, err := NewSegment(w.dir, w.nextSegmentID)
	if err != nil {
		return err
	}

	w.currentSegment = newSegment
	w.nextSegmentID++

	return nil
}

// LastSerial returns the highest serial appended (or recovered) so far.
func (w *WAL) LastSerial() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastSerial
}

// ReadAll reads every record from every segment, in ascending serial order.
func (w *WAL) ReadAll() ([]*Record, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ids, err := listSegmentIDs(w.dir)
	if err != nil {
		return nil, err
	}

	var allRecords []*Record
	for _, id := range ids {
		var records []*Record
		if w.currentSegment != nil && id == w.currentSegment.ID {
			records, err = w.currentSegment.ReadRecords()
		} else {
			var segment *Segment
			segment, err = OpenSegment(w.dir, id)
			if err != nil {
				return nil, err
			}
			records, err = segment.ReadRecords()
			segment.Close()
		}
		if err != nil {
			return nil, err
		}
		allRecords = append(allRecords, records...)
	}

	sort.Slice(allRecords, func(i, j int) bool { return allRecords[i].Serial < allRecords[j].Serial })
	return allRecords, nil
}

// Prune deletes every closed segment whose entire serial range falls at or
// below uptoSerial. The current segment is never deleted, so records above
// the watermark always survive; a caller needing exact filtering applies
// the watermark again on read.
func (w *WAL) Prune(uptoSerial uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ids, err := listSegmentIDs(w.dir)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if w.currentSegment != nil && id == w.currentSegment.ID {
			continue
		}
		segment, err := OpenSegment(w.dir, id)
		if err != nil {
			return fmt.Errorf("%w: open segment %d for prune: %v", util.ErrPruneRejected, id, err)
		}
		start, end := segment.SerialRange()
		segment.Close()
		if start == 0 && end == 0 {
			// Empty closed segment: nothing above the watermark can be in it.
			end = uptoSerial
		}
		if end > uptoSerial {
			continue
		}
		if err := os.Remove(segmentPath(w.dir, id)); err != nil {
			return fmt.Errorf("%w: remove segment %d: %v", util.ErrPruneRejected, id, err)
		}
	}

	return nil
}

// Close closes the WAL
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentSegment != nil {
		return w.currentSegment.Close()
	}
	return nil
}

// listSegmentIDs returns the ids of every segment file in dir, ascending.
func listSegmentIDs(dir string) ([]SegmentID, error) {
	files, err := filepath.Glob(filepath.Join(dir, "tls-*.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}

	ids := make([]SegmentID, 0, len(files))
	for _, file := range files {
		var segID uint64
		if _, err := fmt.Sscanf(filepath.Base(file), "tls-%016x.log", &segID); err != nil {
			continue // Skip invalid files
		}
		ids = append(ids, SegmentID(segID))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
