// Package store provides the shared state backend for the pipeline:
// trade dedup marks, block leg queues and small key/value caches such as
// open interest baselines and venue symbol lists.
package store

import (
	"context"
	"time"
)

// Store is the state backend contract. Implementations must make MarkSeen
// atomic so that concurrent callers racing on the same key observe exactly
// one first marking.
type Store interface {
	// MarkSeen records key as processed and reports whether this call was
	// the first to do so. Entries expire after ttl.
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Seen reports whether key has been marked and is still unexpired.
	Seen(ctx context.Context, key string) (bool, error)

	// PushQueue appends value to the named queue.
	PushQueue(ctx context.Context, queue string, value []byte) error

	// DrainQueue atomically returns and removes every element of the named
	// queue, in push order. An empty or missing queue yields a nil slice.
	DrainQueue(ctx context.Context, queue string) ([][]byte, error)

	// QueueLen reports the current length of the named queue.
	QueueLen(ctx context.Context, queue string) (int64, error)

	// Set stores a key/value pair. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	Close() error
}
