// Package feed implements the FeedHandler: single-writer
// serialization of mutating operations, transaction-log durability ahead of
// application, and the Load -> ReplayTransactionLog -> Normal state machine.
package feed

import "github.com/kartikbazzad/bunbase/searchcore/internal/metastore"

// OpKind names a feed operation kind carried on the wire.
type OpKind int

const (
	OpPut OpKind = iota
	OpUpdate
	OpRemove
	OpRemoveLocation
	OpMove
	OpPruneRemovedDocuments
	OpWipeHistory
)

func (k OpKind) String() string {
	switch k {
	case OpPut:
		return "put"
	case OpUpdate:
		return "update"
	case OpRemove:
		return "remove"
	case OpRemoveLocation:
		return "remove_location"
	case OpMove:
		return "move"
	case OpPruneRemovedDocuments:
		return "prune_removed_documents"
	case OpWipeHistory:
		return "wipe_history"
	default:
		return "unknown"
	}
}

// ResultCode is the stable reply taxonomy
type ResultCode int

const (
	ResultNone ResultCode = iota
	ResultTransientError
	ResultPermanentError
	ResultResourceExhausted
	ResultStaleTimestamp
	ResultBusy
	ResultWrongDistribution
)

func (r ResultCode) String() string {
	switch r {
	case ResultNone:
		return "NONE"
	case ResultTransientError:
		return "TRANSIENT_ERROR"
	case ResultPermanentError:
		return "PERMANENT_ERROR"
	case ResultResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case ResultStaleTimestamp:
		return "STALE_TIMESTAMP"
	case ResultBusy:
		return "BUSY"
	case ResultWrongDistribution:
		return "WRONG_DISTRIBUTION"
	default:
		return "UNKNOWN"
	}
}

// Operation is one mutating request submitted to the FeedHandler.
type Operation struct {
	Kind                OpKind
	DocID               string
	Fields              map[string]any // full body (Put) or per-field deltas (Update)
	Selection           string         // RemoveLocation only: document-selection predicate
	Timestamp           int64
	PrevTimestamp       int64 // 0 means "no expectation"
	CreateIfNonExistent bool
}

// Reply is the outcome of one Operation.
type Reply struct {
	Result            ResultCode
	Serial            uint64
	ExistingTimestamp int64
}

// WriteFilter decides whether a mutating op may be admitted, modeling the
// resource-exhaustion check A nil filter admits everything.
type WriteFilter interface {
	Admit(op Operation) bool
}

// GID is re-exported for callers that construct Operations from document
// identities without importing metastore directly.
type GID = metastore.GID
