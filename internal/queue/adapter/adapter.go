// Package adapter exposes the queue operation surface consumers program
// against. It resolves defaults, records metrics, and otherwise delegates to
// the configured store; it holds no queue state of its own.
package adapter

import (
	"context"
	"time"

	"github.com/rowqueue/rowq/internal/metrics"
	"github.com/rowqueue/rowq/internal/queue"
	"github.com/rowqueue/rowq/internal/queue/store"
)

// DefaultLease applies when neither the caller nor the queue supplies one.
const DefaultLease = 30 * time.Second

// DefaultMax is the receive batch size when the caller passes none.
const DefaultMax = 1

// Adapter composes the registry and message operations of a store into the
// capability contract. Every operation takes the queue name explicitly; there
// is no implicit current queue.
type Adapter struct {
	store        store.Store
	defaultLease time.Duration
}

func New(s store.Store, defaultLease time.Duration) *Adapter {
	if defaultLease <= 0 {
		defaultLease = DefaultLease
	}
	return &Adapter{store: s, defaultLease: defaultLease}
}

// Capabilities returns the static descriptor of supported operations.
func (a *Adapter) Capabilities() queue.Capabilities {
	return queue.Capabilities{
		Create:        true,
		Delete:        true,
		Send:          true,
		Receive:       true,
		DeleteMessage: true,
		GetQueues:     true,
		Count:         true,
		IsExists:      true,
	}
}

// Create registers a queue; false when the name is already taken. A
// non-positive lease falls back to the adapter default.
func (a *Adapter) Create(ctx context.Context, name string, defaultLease time.Duration) (bool, error) {
	if defaultLease <= 0 {
		defaultLease = a.defaultLease
	}
	created, err := a.store.CreateQueue(ctx, name, defaultLease)
	if err != nil {
		return false, err
	}
	if created {
		metrics.QueuesCreated.Inc()
	}
	return created, nil
}

// Delete removes a queue; false when it is already absent.
func (a *Adapter) Delete(ctx context.Context, name string) (bool, error) {
	return a.store.DeleteQueue(ctx, name)
}

// IsExists reports whether the queue name resolves. Resolution failures of
// any kind count as "does not exist" and are never propagated.
func (a *Adapter) IsExists(ctx context.Context, name string) bool {
	_, err := a.store.QueueID(ctx, name)
	return err == nil
}

// GetQueues lists all queue names.
func (a *Adapter) GetQueues(ctx context.Context) ([]string, error) {
	return a.store.Queues(ctx)
}

// Count returns the number of messages in the queue, leased or not.
func (a *Adapter) Count(ctx context.Context, name string) (int64, error) {
	return a.store.Count(ctx, name)
}

// Send enqueues one message and returns the producer's receipt. The receipt
// carries no lease.
func (a *Adapter) Send(ctx context.Context, name, body string) (*queue.Message, error) {
	m, err := a.store.Send(ctx, name, body)
	if err != nil {
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues(name).Inc()
	return m, nil
}

// Receive leases up to max messages. max <= 0 falls back to a batch of one;
// lease <= 0 falls back to the queue's default.
func (a *Adapter) Receive(ctx context.Context, name string, max int, lease time.Duration) ([]*queue.Message, error) {
	if max <= 0 {
		max = DefaultMax
	}
	batch, err := a.store.Receive(ctx, queue.ReceiveOptions{
		Queue: name,
		Max:   max,
		Lease: lease,
	})
	if err != nil {
		return nil, err
	}
	if len(batch) > 0 {
		metrics.MessagesReceived.WithLabelValues(name).Add(float64(len(batch)))
	}
	metrics.ReceiveBatchSize.Observe(float64(len(batch)))
	return batch, nil
}

// DeleteMessage acknowledges a leased record by its handle; false when the
// handle matches nothing (lease expired and reclaimed, or already deleted).
func (a *Adapter) DeleteMessage(ctx context.Context, m *queue.Message) (bool, error) {
	if m == nil || m.Handle == nil {
		return false, nil
	}
	ok, err := a.store.DeleteMessage(ctx, *m.Handle)
	if err != nil {
		return false, err
	}
	if ok {
		metrics.MessagesDeleted.Inc()
	}
	return ok, nil
}

// Purge drops every message in the queue and returns how many were removed.
// Deleting a queue never cascades to its messages; this is the explicit
// cleanup path.
func (a *Adapter) Purge(ctx context.Context, name string) (int64, error) {
	return a.store.PurgeQueue(ctx, name)
}
