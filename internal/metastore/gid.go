// Package metastore implements the DocumentMetaStore: the mapping
// from a document's global id to its local id, bucket and tombstone state.
package metastore

import "hash/fnv"

// GID is a content-hashed global document identity.
type GID uint64

// BucketID identifies the bucket a GID routes to; maintenance jobs group
// work by bucket and the bucket-freeze interlock is keyed by it.
type BucketID uint32

// numBucketBits is the width of the bucket id carved out of the top of a
// GID. 16 bits gives 65536 buckets, enough to shard a large corpus without
// making any single bucket's document set unmanageable for a move or prune.
const numBucketBits = 16

// ComputeGID hashes a document's external identity string into a GID. Two
// documents with the same identity string always hash to the same GID,
// which is what lets the feed path treat a Put of an existing id as an
// update rather than a fresh insert.
func ComputeGID(docID string) GID {
	h := fnv.New64a()
	_, _ = h.Write([]byte(docID))
	return GID(h.Sum64())
}

// Bucket returns the bucket id a GID routes to: the top numBucketBits bits
// of the GID.
func (g GID) Bucket() BucketID {
	return BucketID(uint64(g) >> (64 - numBucketBits))
}
