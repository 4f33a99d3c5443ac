package util

import "errors"

// Common errors used throughout the engine
var (
	// Disk errors
	ErrDiskReadFailed  = errors.New("disk read failed")
	ErrDiskWriteFailed = errors.New("disk write failed")

	// Transaction-log errors
	ErrLogCorrupt       = errors.New("transaction log is corrupt")
	ErrSerialRegression = errors.New("serial number regression")
	ErrPruneRejected    = errors.New("transaction log prune rejected")

	// Attribute errors
	ErrAttributeNotFound = errors.New("attribute not found")
	ErrAttributeCorrupt  = errors.New("attribute file is corrupt")

	// Document errors
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidSelection = errors.New("invalid document selection")

	// Query errors
	ErrInvalidQuery = errors.New("invalid query")

	// Engine errors
	ErrEngineClosed = errors.New("engine is closed")
)
