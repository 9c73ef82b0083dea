// Package kvstore is the persistence substrate of the pipeline: opaque records
// with a time-to-live plus sorted indexes scored by a number. Two backends are
// provided, Redis (production) and SQLite via GORM (single node, tests).
//
// Records and index entries are written independently; there are no
// multi-key transactions. Callers must tolerate an index entry whose record
// has expired or was never written.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is the contract shared by all backends. Implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the value under key. A ttl <= 0 stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// IndexAdd inserts or re-scores member in the sorted index.
	IndexAdd(ctx context.Context, index, member string, score float64) error
	// IndexRevRange returns members by descending score, ranks start..stop
	// inclusive. A negative stop means "to the end".
	IndexRevRange(ctx context.Context, index string, start, stop int64) ([]string, error)
	// IndexRevRangeByScore returns members with min <= score <= max by
	// descending score. Infinite bounds are allowed.
	IndexRevRangeByScore(ctx context.Context, index string, min, max float64) ([]string, error)
	// IndexCount returns the cardinality of the index.
	IndexCount(ctx context.Context, index string) (int64, error)
	// IndexRemove deletes members from the index and returns how many were
	// present.
	IndexRemove(ctx context.Context, index string, members ...string) (int64, error)

	// Ping checks backend availability.
	Ping(ctx context.Context) error
	Close() error
}

// opTimeout bounds a single backend round trip when the caller's context has
// no deadline of its own.
const opTimeout = 5 * time.Second

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, opTimeout)
}
