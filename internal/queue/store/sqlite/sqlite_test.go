package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowqueue/rowq/internal/queue"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")

	s, err := Open(path)
	require.NoError(t, err)

	_, err = s.db.Exec("UPDATE schema_version SET version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestCreateQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, created)

	// duplicate create is a soft failure, not an error
	created, err = s.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.QueueID(ctx, "jobs")
	assert.NoError(t, err)
}

func TestDeleteQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.DeleteQueue(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)

	ok, err = s.DeleteQueue(ctx, "jobs")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.QueueID(ctx, "jobs")
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)
}

func TestDeleteQueueDoesNotCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)
	_, err = s.Send(ctx, "jobs", "leftover")
	require.NoError(t, err)

	ok, err := s.DeleteQueue(ctx, "jobs")
	require.NoError(t, err)
	require.True(t, ok)

	var orphans int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(1) FROM queue_messages").Scan(&orphans))
	assert.Equal(t, 1, orphans)
}

func TestQueues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	names, err := s.Queues(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, name := range []string{"alpha", "beta", "gamma"} {
		_, err := s.CreateQueue(ctx, name, 30*time.Second)
		require.NoError(t, err)
	}

	names, err = s.Queues(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta", "gamma"}, names)
}

func TestSend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Send(ctx, "missing", "body")
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)

	_, err = s.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)

	m, err := s.Send(ctx, "jobs", "  payload  ")
	require.NoError(t, err)

	// textual payloads are trimmed at write time
	assert.Equal(t, "payload", m.Body)
	assert.Equal(t, queue.BodyDigest("payload"), m.BodyMD5)
	assert.Equal(t, "jobs", m.Queue)
	assert.NotZero(t, m.ID)
	assert.False(t, m.Leased())
	assert.Nil(t, m.LeaseExpiresAt)
}

func TestCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Count(ctx, "missing")
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)

	_, err = s.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := s.Send(ctx, "jobs", "payload")
		require.NoError(t, err)
	}

	n, err := s.Count(ctx, "jobs")
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	// leased messages still count
	_, err = s.Receive(ctx, queue.ReceiveOptions{Queue: "jobs", Max: 3, Lease: time.Minute})
	require.NoError(t, err)

	n, err = s.Count(ctx, "jobs")
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
}

func TestReceiveBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := s.Send(ctx, "jobs", "payload")
		require.NoError(t, err)
	}

	batch, err := s.Receive(ctx, queue.ReceiveOptions{Queue: "jobs", Max: 3, Lease: time.Minute})
	require.NoError(t, err)
	require.Len(t, batch, 3)

	seen := make(map[string]bool)
	for _, m := range batch {
		require.NotNil(t, m.Handle)
		require.NotNil(t, m.LeaseExpiresAt)
		assert.False(t, seen[*m.Handle], "handles must be unique")
		seen[*m.Handle] = true
	}

	// the remaining two are still available
	rest, err := s.Receive(ctx, queue.ReceiveOptions{Queue: "jobs", Max: 10, Lease: time.Minute})
	require.NoError(t, err)
	assert.Len(t, rest, 2)

	// now everything is leased
	empty, err := s.Receive(ctx, queue.ReceiveOptions{Queue: "jobs", Max: 10, Lease: time.Minute})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReceiveEdgeCases(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// non-positive max short-circuits without touching the database
	batch, err := s.Receive(ctx, queue.ReceiveOptions{Queue: "missing", Max: 0, Lease: time.Minute})
	require.NoError(t, err)
	assert.Empty(t, batch)

	_, err = s.Receive(ctx, queue.ReceiveOptions{Queue: "missing", Max: 1, Lease: time.Minute})
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)

	_, err = s.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)

	// empty queue yields an empty batch, not an error
	batch, err = s.Receive(ctx, queue.ReceiveOptions{Queue: "jobs", Max: 1, Lease: time.Minute})
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestReceiveUsesQueueDefaultLease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateQueue(ctx, "jobs", 1*time.Second)
	require.NoError(t, err)
	_, err = s.Send(ctx, "jobs", "payload")
	require.NoError(t, err)

	before := time.Now()
	batch, err := s.Receive(ctx, queue.ReceiveOptions{Queue: "jobs", Max: 1})
	require.NoError(t, err)
	require.Len(t, batch, 1)

	expiry := *batch[0].LeaseExpiresAt
	assert.WithinDuration(t, before.Add(1*time.Second), expiry, 500*time.Millisecond)
}

func TestLeaseExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)
	_, err = s.Send(ctx, "jobs", "payload")
	require.NoError(t, err)

	batch, err := s.Receive(ctx, queue.ReceiveOptions{Queue: "jobs", Max: 1, Lease: 500 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	first := *batch[0].Handle

	// strictly before expiry the message is hidden
	hidden, err := s.Receive(ctx, queue.ReceiveOptions{Queue: "jobs", Max: 1, Lease: time.Minute})
	require.NoError(t, err)
	assert.Empty(t, hidden)

	time.Sleep(700 * time.Millisecond)

	// after expiry it is redelivered under a fresh handle
	again, err := s.Receive(ctx, queue.ReceiveOptions{Queue: "jobs", Max: 1, Lease: time.Minute})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.NotEqual(t, first, *again[0].Handle)
}

func TestDeleteMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.DeleteMessage(ctx, "no-such-handle")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)
	_, err = s.Send(ctx, "jobs", "payload")
	require.NoError(t, err)

	batch, err := s.Receive(ctx, queue.ReceiveOptions{Queue: "jobs", Max: 1, Lease: time.Minute})
	require.NoError(t, err)
	require.Len(t, batch, 1)

	ok, err = s.DeleteMessage(ctx, *batch[0].Handle)
	require.NoError(t, err)
	assert.True(t, ok)

	// second delete of the same handle matches nothing
	ok, err = s.DeleteMessage(ctx, *batch[0].Handle)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Count(ctx, "jobs")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStaleHandleDoesNotDeleteReclaimedRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)
	_, err = s.Send(ctx, "jobs", "payload")
	require.NoError(t, err)

	batch, err := s.Receive(ctx, queue.ReceiveOptions{Queue: "jobs", Max: 1, Lease: 300 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	stale := *batch[0].Handle

	time.Sleep(500 * time.Millisecond)

	reclaimed, err := s.Receive(ctx, queue.ReceiveOptions{Queue: "jobs", Max: 1, Lease: time.Minute})
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)

	// the stale handle matches nothing and the reclaimed row survives
	ok, err := s.DeleteMessage(ctx, stale)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Count(ctx, "jobs")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	ok, err = s.DeleteMessage(ctx, *reclaimed[0].Handle)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentReceiveSingleMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)
	_, err = s.Send(ctx, "jobs", "payload")
	require.NoError(t, err)

	const receivers = 8
	results := make([][]*queue.Message, receivers)
	errs := make([]error, receivers)

	var wg sync.WaitGroup
	for i := 0; i < receivers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Receive(ctx, queue.ReceiveOptions{
				Queue: "jobs",
				Max:   1,
				Lease: time.Minute,
			})
		}(i)
	}
	wg.Wait()

	claimed := 0
	for i := 0; i < receivers; i++ {
		require.NoError(t, errs[i])
		claimed += len(results[i])
	}
	assert.Equal(t, 1, claimed, "exactly one receiver may claim the message")
}

func TestMessagesNeverCrossQueues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		_, err := s.CreateQueue(ctx, name, 30*time.Second)
		require.NoError(t, err)
	}
	_, err := s.Send(ctx, "a", "for-a")
	require.NoError(t, err)

	batch, err := s.Receive(ctx, queue.ReceiveOptions{Queue: "b", Max: 10, Lease: time.Minute})
	require.NoError(t, err)
	assert.Empty(t, batch)

	batch, err = s.Receive(ctx, queue.ReceiveOptions{Queue: "a", Max: 10, Lease: time.Minute})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "for-a", batch[0].Body)
}

func TestPurgeQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.PurgeQueue(ctx, "missing")
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)

	_, err = s.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := s.Send(ctx, "jobs", "payload")
		require.NoError(t, err)
	}

	n, err := s.PurgeQueue(ctx, "jobs")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	count, err := s.Count(ctx, "jobs")
	require.NoError(t, err)
	assert.Zero(t, count)
}

// The worked end-to-end sequence: create, send two, count, lease both, count
// unchanged, delete one, count down to one.
func TestLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateQueue(ctx, "jobs", 30*time.Second)
	require.NoError(t, err)
	require.True(t, created)

	_, err = s.Send(ctx, "jobs", "payload-A")
	require.NoError(t, err)
	_, err = s.Send(ctx, "jobs", "payload-B")
	require.NoError(t, err)

	n, err := s.Count(ctx, "jobs")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	batch, err := s.Receive(ctx, queue.ReceiveOptions{Queue: "jobs", Max: 2, Lease: 30 * time.Second})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "payload-A", batch[0].Body)
	assert.Equal(t, "payload-B", batch[1].Body)

	n, err = s.Count(ctx, "jobs")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	ok, err := s.DeleteMessage(ctx, *batch[0].Handle)
	require.NoError(t, err)
	require.True(t, ok)

	n, err = s.Count(ctx, "jobs")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
