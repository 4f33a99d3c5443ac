package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kartikbazzad/bunbase/searchcore/internal/util"
)

// SegmentID uniquely identifies a transaction-log segment file
type SegmentID uint64

// DefaultSegmentSize is the default maximum size for a segment (64MB)
const DefaultSegmentSize = 64 * 1024 * 1024

// Segment represents a single transaction-log segment file. A segment
// covers the contiguous serial range [StartSerial, EndSerial] of the
// records written to it; Prune drops whole segments whose EndSerial falls
// at or below the prune watermark.
type Segment struct {
	ID          SegmentID
	file        *os.File
	size        int64
	maxSize     int64
	startSerial uint64 // 0 until the first record lands
	endSerial   uint64
	mu          sync.RWMutex
}

func segmentPath(dir string, id SegmentID) string {
	return filepath.Join(dir, fmt.Sprintf("tls-%016x.log", id))
}

// NewSegment creates a new transaction-log segment
func NewSegment(dir string, id SegmentID) (*Segment, error) {
	file, err := os.OpenFile(segmentPath(dir, id), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log segment: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log segment: %w", err)
	}

	return &Segment{
		ID:      id,
		file:    file,
		size:    info.Size(),
		maxSize: DefaultSegmentSize,
	}, nil
}

// OpenSegment opens an existing segment and scans it to recover its serial
// range.
func OpenSegment(dir string, id SegmentID) (*Segment, error) {
	file, err := os.OpenFile(segmentPath(dir, id), os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log segment: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log segment: %w", err)
	}

	s := &Segment{
		ID:      id,
		file:    file,
		size:    info.Size(),
		maxSize: DefaultSegmentSize,
	}

	records, err := s.ReadRecords()
	if err != nil {
		file.Close()
		return nil, err
	}
	if len(records) > 0 {
		s.startSerial = records[0].Serial
		s.endSerial = records[len(records)-1].Serial
	}
	return s, nil
}

// Write appends a record to the segment
func (s *Segment) Write(record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := record.Encode()

	// Length prefix (4 bytes) so records can be framed back on read
	lenBuf := []byte{
		byte(len(data)),
		byte(len(data) >> 8),
		byte(len(data) >> 16),
		byte(len(data) >> 24),
	}

	if _, err := s.file.Write(lenBuf); err != nil {
		return fmt.Errorf("%w: %v", util.ErrDiskWriteFailed, err)
	}
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("%w: %v", util.ErrDiskWriteFailed, err)
	}

	s.size += int64(4 + len(data))
	if s.startSerial == 0 {
		s.startSerial = record.Serial
	}
	s.endSerial = record.Serial

	return nil
}

// Sync flushes the segment to disk
func (s *Segment) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", util.ErrDiskWriteFailed, err)
	}
	return nil
}

// IsFull returns true if the segment has reached its maximum size
func (s *Segment) IsFull() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size >= s.maxSize
}

// Size returns the current size of the segment
func (s *Segment) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// SerialRange returns the [start, end] serial range of the records written
// to this segment. Both are 0 for an empty segment.
func (s *Segment) SerialRange() (uint64, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startSerial, s.endSerial
}

// Close syncs and closes the segment file
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		if err := s.file.Sync(); err != nil {
			return err
		}
		return s.file.Close()
	}
	return nil
}

// ReadRecords reads all records from the segment
func (s *Segment) ReadRecords() ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.file.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrDiskReadFailed, err)
	}

	var records []*Record
	lenBuf := make([]byte, 4)

	for {
		n, err := s.file.Read(lenBuf)
		if err != nil || n == 0 {
			break // EOF
		}
		if n != 4 {
			return nil, fmt.Errorf("%w: incomplete length header", util.ErrLogCorrupt)
		}

		recordLen := int(lenBuf[0]) | int(lenBuf[1])<<8 | int(lenBuf[2])<<16 | int(lenBuf[3])<<24
		if recordLen == 0 || recordLen > 10*1024*1024 { // Sanity check: max 10MB per record
			return nil, fmt.Errorf("%w: invalid record length %d", util.ErrLogCorrupt, recordLen)
		}

		data := make([]byte, recordLen)
		n, err = s.file.Read(data)
		if err != nil || n != recordLen {
			return nil, fmt.Errorf("%w: incomplete record data", util.ErrLogCorrupt)
		}

		record, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", util.ErrLogCorrupt, err)
		}

		records = append(records, record)
	}

	return records, nil
}

// GetPath returns the file path of the segment
func (s *Segment) GetPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.file != nil {
		return s.file.Name()
	}
	return ""
}
