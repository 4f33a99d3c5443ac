// Package tlslog defines the transaction-log abstraction the FeedHandler
// writes every mutating operation to before applying it to the FeedView.
// Two backends implement Store: one adapting the engine's own
// write-ahead log, one backed by bbolt.
package tlslog

// Entry is one logged operation: an opaque payload tagged with the serial
// number the FeedHandler assigned it.
type Entry struct {
	Serial  uint64
	Payload []byte
}

// Store is the durable append-only log FeedHandler writes to before
// applying a mutation, and replays from on startup.
type Store interface {
	// Append durably writes entry (fsync-equivalent) before returning: the
	// operation is in the log before it is applied.
	Append(entry Entry) error

	// ReadAll returns every logged entry in serial order, for replay.
	ReadAll() ([]Entry, error)

	// Prune removes every entry with Serial <= uptoSerial. Returns an error
	// if the backend refuses; a rejected prune is fatal to the caller.
	Prune(uptoSerial uint64) error

	Close() error
}
