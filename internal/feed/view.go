package feed

import "github.com/kartikbazzad/bunbase/searchcore/internal/attribute"

// View is the FeedView contract: the FeedHandler's only way of
// touching document state. preparePut/prepareUpdate/prepareMove resolve a
// document's previous lid by consulting the meta store before the handle*
// methods apply the mutation.
type View interface {
	PreparePut(gid GID) (prevLID attribute.LID, existed bool)
	PrepareUpdate(gid GID) (prevLID attribute.LID, existed bool)
	PrepareMove(gid GID) (prevLID attribute.LID, existed bool)

	HandlePut(serial uint64, gid GID, fields map[string]any, timestamp int64) error
	HandleUpdate(serial uint64, gid GID, fields map[string]any, timestamp int64) error
	HandleRemove(serial uint64, gid GID) error
	// HandleRemoveLocation removes every document matching selection. now
	// is the op's timestamp (Unix seconds), available to time-relative
	// selections.
	HandleRemoveLocation(serial uint64, selection string, now int64) error
	HandleMove(serial uint64, gid GID) error
	HandlePruneRemovedDocuments(serial uint64, olderThanSeconds int64) error
	HandleWipeOldRemovedFields(serial uint64, cutoffSeconds int64) error

	HeartBeat(serial uint64) error

	// ExistingTimestamp reports the last-applied timestamp for gid, used to
	// detect outdated ops and to answer a partial-update-on-missing-doc
	// reply.
	ExistingTimestamp(gid GID) (int64, bool)
}
