package domain

import "context"

// ─── Store Interfaces ───────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// KVEntry is one key/value pair returned from a prefix scan.
type KVEntry struct {
	Key     string
	Value   []byte
	Version int64
}

// KVStore abstracts the durable key-value namespace every record lives in.
// Keys are flat strings with a fixed namespace prefix ("bon:", "user:",
// "reset:"); a prefix scan enumerates one namespace. The store guarantees
// read-your-writes on a single node and nothing stronger.
type KVStore interface {
	// Get returns the value and current version for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, int64, error)

	// Put writes key unconditionally, last-writer-wins.
	Put(ctx context.Context, key string, value []byte) error

	// PutVersion writes key only if the stored version equals expect.
	// expect == 0 means the key must not exist yet.
	// Returns ErrVersionConflict when another writer got there first.
	PutVersion(ctx context.Context, key string, value []byte, expect int64) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all entries whose key starts with prefix, unordered.
	List(ctx context.Context, prefix string) ([]KVEntry, error)
}
