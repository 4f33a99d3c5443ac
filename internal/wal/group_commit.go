package wal

import (
	"sync"
	"time"
)

// SyncRequest represents a request to make everything up to a serial durable
type SyncRequest struct {
	Serial   uint64
	Response chan error
}

// GroupCommitter reduces disk I/O overhead by batching multiple durability
// requests (fsync) into a single system call. The feed writer appends its
// record, then calls Commit(serial); concurrent writers waiting on the same
// sync share one fsync.
//
// How it works:
// 1. Writers request durability by sending a request to the channel.
// 2. The background goroutine collects requests into a batch.
// 3. The batch is flushed when:
//   - The batch size limit is reached.
//   - The timeout triggers (latency bound).
//   - The incoming channel is empty (immediate flush for low load).
//
// 4. A single WAL.Sync() is performed.
// 5. All waiting writers in the batch are notified.
type GroupCommitter struct {
	wal          *WAL
	flusher      *SharedFlusher // optional; nil syncs the WAL directly
	requests     chan *SyncRequest
	batchSize    int
	batchTimeout time.Duration
	mu           sync.Mutex
	stopped      bool
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

// NewGroupCommitter creates a group committer syncing wal directly.
func NewGroupCommitter(wal *WAL) *GroupCommitter {
	return newGroupCommitter(wal, nil)
}

// NewGroupCommitterWithFlusher creates a group committer that routes its
// fsyncs through the shared flusher, so multiple document databases in one
// process coalesce their disk syncs.
func NewGroupCommitterWithFlusher(wal *WAL, flusher *SharedFlusher) *GroupCommitter {
	return newGroupCommitter(wal, flusher)
}

func newGroupCommitter(wal *WAL, flusher *SharedFlusher) *GroupCommitter {
	gc := &GroupCommitter{
		wal:          wal,
		flusher:      flusher,
		requests:     make(chan *SyncRequest, 1000),
		batchSize:    100,                   // Max 100 commits per batch
		batchTimeout: time.Millisecond * 10, // Max 10ms wait
		stopChan:     make(chan struct{}),
	}

	gc.wg.Add(1)
	go gc.run()

	return gc
}

// Commit waits until everything appended up to serial has been fsynced.
func (gc *GroupCommitter) Commit(serial uint64) error {
	gc.mu.Lock()
	if gc.stopped {
		gc.mu.Unlock()
		return ErrCommitterStopped
	}
	gc.mu.Unlock()

	req := &SyncRequest{
		Serial:   serial,
		Response: make(chan error, 1),
	}

	select {
	case gc.requests <- req:
	case <-gc.stopChan:
		return ErrCommitterStopped
	}

	return <-req.Response
}

// run processes sync requests in batches
func (gc *GroupCommitter) run() {
	defer gc.wg.Done()

	var batch []*SyncRequest
	timer := time.NewTimer(gc.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case req := <-gc.requests:
			batch = append(batch, req)

			// If batch is full OR channel is empty (no immediate followers), flush immediately
			// This optimizes latency for serial/low-throughput workloads while maintaining
			// group commit for high-throughput bursts.
			if len(batch) >= gc.batchSize || len(gc.requests) == 0 {
				gc.flushBatch(batch)
				batch = nil
				timer.Reset(gc.batchTimeout)
			}

		case <-timer.C:
			// Timeout - flush whatever we have
			if len(batch) > 0 {
				gc.flushBatch(batch)
				batch = nil
			}
			timer.Reset(gc.batchTimeout)

		case <-gc.stopChan:
			// Flush remaining batch before stopping
			if len(batch) > 0 {
				gc.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch performs a single fsync for the entire batch
func (gc *GroupCommitter) flushBatch(batch []*SyncRequest) {
	var err error
	if gc.flusher != nil {
		err = gc.flusher.Flush(gc.wal)
	} else {
		err = gc.wal.Sync()
	}

	for _, req := range batch {
		req.Response <- err
	}
}

// Stop stops the group committer
func (gc *GroupCommitter) Stop() {
	gc.mu.Lock()
	if gc.stopped {
		gc.mu.Unlock()
		return
	}
	gc.stopped = true
	gc.mu.Unlock()

	close(gc.stopChan)
	gc.wg.Wait()
}

// ErrCommitterStopped is returned when the group committer is stopped
var ErrCommitterStopped = &CommitError{msg: "group committer stopped"}

// CommitError represents a commit error
type CommitError struct {
	msg string
}

func (e *CommitError) Error() string {
	return e.msg
}
