package store

import (
	"context"
	"time"

	"github.com/rowqueue/rowq/internal/queue"
)

// Store is the DB-agnostic interface the rest of the app uses. Implementations
// back every operation with the database directly; no message state is cached
// in process.
type Store interface {
	// CreateQueue inserts a queue row. It returns false (and no error) when a
	// queue with that name already exists.
	CreateQueue(ctx context.Context, name string, defaultLease time.Duration) (bool, error)

	// DeleteQueue removes the queue row. It returns false when the queue is
	// already absent. Messages are not cascaded; see PurgeQueue.
	DeleteQueue(ctx context.Context, name string) (bool, error)

	// QueueID resolves a queue name to its identifier. It is the sole
	// resolution primitive; it returns queue.ErrQueueNotFound when no row
	// matches.
	QueueID(ctx context.Context, name string) (int64, error)

	// Queues returns all queue names. Relative order follows store iteration
	// order and is not guaranteed stable.
	Queues(ctx context.Context) ([]string, error)

	// Send inserts one unleased message row and returns the producer's
	// receipt reflecting the inserted data.
	Send(ctx context.Context, queueName, body string) (*queue.Message, error)

	// Receive atomically leases up to opts.Max eligible messages from a
	// queue. Rows lost to a concurrent claimant are omitted, not errors.
	Receive(ctx context.Context, opts queue.ReceiveOptions) ([]*queue.Message, error)

	// DeleteMessage deletes the row holding the given lease handle; false
	// when no row matches (lease expired and reclaimed, or already deleted).
	DeleteMessage(ctx context.Context, handle string) (bool, error)

	// Count returns the number of message rows for the queue regardless of
	// lease state.
	Count(ctx context.Context, queueName string) (int64, error)

	// PurgeQueue deletes every message row for the queue and returns how many
	// rows went away.
	PurgeQueue(ctx context.Context, queueName string) (int64, error)

	// Close releases the underlying database resources.
	Close() error
}
