// Package store defines the key-value persistence port for the demo
// platform. Implementations include a JSON file (the default), PostgreSQL,
// Redis, and in-memory (for testing).
package store

import "context"

// Storage keys. The platform persists exactly two records: the accounts
// collection and the active session.
const (
	AccountsKey = "cryptonova_accounts"
	SessionKey  = "cryptonova_session"
)

// KV is the persistence interface. Values are opaque serialized records;
// a Set is a full overwrite of the value under that key.
type KV interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set overwrites the value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
