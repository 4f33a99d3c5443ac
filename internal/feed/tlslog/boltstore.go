package tlslog

import (
	"encoding/binary"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"
)

var entriesBucket = []byte("tlslog_entries")
var metaBucket = []byte("tlslog_meta")
var prunedKey = []byte("pruned_serial")

// BoltStore is the second TLS backend: entries keyed by big-endian serial
// in a single bbolt bucket, durable on every Append via bbolt's own fsync
// on commit.
type BoltStore struct {
	mu sync.Mutex
	db *bolt.DB
}

// OpenBoltStore opens (creating if absent) a bbolt-backed transaction log
// at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("tlslog: open bolt store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(entriesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("tlslog: init bolt buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		return b.Put(serialBytes(entry.Serial), entry.Payload)
	})
}

func (s *BoltStore) ReadAll() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		pruned := s.prunedSerialLocked(tx)
		b := tx.Bucket(entriesBucket)
		return b.ForEach(func(k, v []byte) error {
			serial := binary.BigEndian.Uint64(k)
			if serial <= pruned {
				return nil
			}
			payload := make([]byte, len(v))
			copy(payload, v)
			out = append(out, Entry{Serial: serial, Payload: payload})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("tlslog: bolt read all: %w", err)
	}
	return out, nil
}

func (s *BoltStore) Prune(uptoSerial uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		prior := s.prunedSerialLocked(tx)
		if uptoSerial < prior {
			return fmt.Errorf("tlslog: prune watermark may not move backwards: have %d, got %d", prior, uptoSerial)
		}
		meta := tx.Bucket(metaBucket)
		if err := meta.Put(prunedKey, serialBytes(uptoSerial)); err != nil {
			return err
		}

		b := tx.Bucket(entriesBucket)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if binary.BigEndian.Uint64(k) <= uptoSerial {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) prunedSerialLocked(tx *bolt.Tx) uint64 {
	meta := tx.Bucket(metaBucket)
	v := meta.Get(prunedKey)
	if v == nil {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func serialBytes(serial uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, serial)
	return buf
}
