// Package postgres backs the queue store with PostgreSQL via pgx. The receive
// path uses FOR UPDATE SKIP LOCKED so concurrent receivers contend on row
// locks instead of selecting the same candidates.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rowqueue/rowq/internal/queue"
	"github.com/rowqueue/rowq/internal/queue/store"
)

//go:embed schema.sql
var schemaSQL string

// Ensure *Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the queue tables when they do not exist yet.
func (p *Store) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Store) Close() error {
	p.pool.Close()
	return nil
}

// helper: convert a Go duration to a Postgres interval literal like "12.500000s".
func toInterval(d time.Duration) string {
	return fmt.Sprintf("%fs", d.Seconds())
}

const (
	sqlCreateQueue = `
INSERT INTO queues (queue_name, default_lease_seconds)
VALUES ($1, $2)
ON CONFLICT (queue_name) DO NOTHING;`

	sqlResolveQueue = `
SELECT queue_id, default_lease_seconds FROM queues WHERE queue_name = $1;`

	sqlSend = `
INSERT INTO queue_messages (queue_id, body, body_md5, handle, lease_expires_at)
VALUES ($1, $2, $3, NULL, NULL)
RETURNING message_id, created_at;`

	// Locking read: candidates stay locked until the claim updates commit.
	sqlSelectEligible = `
SELECT message_id, created_at, body, body_md5
FROM queue_messages
WHERE queue_id = $1
  AND (handle IS NULL OR lease_expires_at <= now())
ORDER BY message_id
FOR UPDATE SKIP LOCKED
LIMIT $2;`

	// The WHERE re-check is the authoritative claim test; a row that no
	// longer qualifies affects nothing and is dropped from the batch.
	sqlClaim = `
UPDATE queue_messages
SET handle = $1, lease_expires_at = now() + $2::interval
WHERE message_id = $3
  AND (handle IS NULL OR lease_expires_at <= now())
RETURNING lease_expires_at;`
)

// CreateQueue inserts a queue row; false when the name is already taken.
func (p *Store) CreateQueue(ctx context.Context, name string, defaultLease time.Duration) (bool, error) {
	ct, err := p.pool.Exec(ctx, sqlCreateQueue, name, int64(defaultLease.Seconds()))
	if err != nil {
		return false, fmt.Errorf("insert queue %q: %w", name, err)
	}
	return ct.RowsAffected() > 0, nil
}

// DeleteQueue removes the queue row; false when it is already absent.
func (p *Store) DeleteQueue(ctx context.Context, name string) (bool, error) {
	id, err := p.QueueID(ctx, name)
	if errors.Is(err, queue.ErrQueueNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ct, err := p.pool.Exec(ctx, "DELETE FROM queues WHERE queue_id = $1", id)
	if err != nil {
		return false, fmt.Errorf("delete queue %q: %w", name, err)
	}
	return ct.RowsAffected() > 0, nil
}

// QueueID resolves a queue name to its identifier.
func (p *Store) QueueID(ctx context.Context, name string) (int64, error) {
	var (
		id           int64
		defaultLease int64
	)
	err := p.pool.QueryRow(ctx, sqlResolveQueue, name).Scan(&id, &defaultLease)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("resolve queue %q: %w", name, queue.ErrQueueNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve queue %q: %w", name, err)
	}
	return id, nil
}

// Queues returns all queue names in store iteration order.
func (p *Store) Queues(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, "SELECT queue_name FROM queues")
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan queue name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Send inserts one unleased message row and returns the producer's receipt.
func (p *Store) Send(ctx context.Context, queueName, body string) (*queue.Message, error) {
	qid, err := p.QueueID(ctx, queueName)
	if err != nil {
		return nil, err
	}

	body = queue.NormalizeBody(body)
	digest := queue.BodyDigest(body)

	m := &queue.Message{
		QueueID: qid,
		Queue:   queueName,
		Body:    body,
		BodyMD5: digest,
	}
	err = p.pool.QueryRow(ctx, sqlSend, qid, body, digest).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// Receive leases up to opts.Max eligible messages in one transaction. On any
// failure the transaction rolls back entirely; no partial leasing survives.
func (p *Store) Receive(ctx context.Context, opts queue.ReceiveOptions) ([]*queue.Message, error) {
	if opts.Max <= 0 {
		return nil, nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin receive: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		qid          int64
		defaultLease int64
	)
	err = tx.QueryRow(ctx, sqlResolveQueue, opts.Queue).Scan(&qid, &defaultLease)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("resolve queue %q: %w", opts.Queue, queue.ErrQueueNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve queue %q: %w", opts.Queue, err)
	}
	if opts.Lease <= 0 {
		opts.Lease = time.Duration(defaultLease) * time.Second
	}

	rows, err := tx.Query(ctx, sqlSelectEligible, qid, opts.Max)
	if err != nil {
		return nil, fmt.Errorf("select eligible: %w", err)
	}

	var candidates []*queue.Message
	for rows.Next() {
		m := &queue.Message{QueueID: qid, Queue: opts.Queue}
		if err := rows.Scan(&m.ID, &m.CreatedAt, &m.Body, &m.BodyMD5); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select eligible: %w", err)
	}

	interval := toInterval(opts.Lease)
	var out []*queue.Message
	for _, m := range candidates {
		handle := uuid.NewString()
		var expiry time.Time
		err := tx.QueryRow(ctx, sqlClaim, handle, interval, m.ID).Scan(&expiry)
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race or the row no longer qualifies.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("claim message %d: %w", m.ID, err)
		}
		h := handle
		e := expiry
		m.Handle = &h
		m.LeaseExpiresAt = &e
		out = append(out, m)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit receive: %w", err)
	}
	return out, nil
}

// DeleteMessage deletes the row holding the lease handle; false when the
// handle matches nothing.
func (p *Store) DeleteMessage(ctx context.Context, handle string) (bool, error) {
	ct, err := p.pool.Exec(ctx, "DELETE FROM queue_messages WHERE handle = $1", handle)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// Count returns the number of message rows for the queue regardless of lease
// state.
func (p *Store) Count(ctx context.Context, queueName string) (int64, error) {
	qid, err := p.QueueID(ctx, queueName)
	if err != nil {
		return 0, err
	}
	var n int64
	err = p.pool.QueryRow(ctx, "SELECT COUNT(1) FROM queue_messages WHERE queue_id = $1", qid).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// PurgeQueue deletes every message row for the queue.
func (p *Store) PurgeQueue(ctx context.Context, queueName string) (int64, error) {
	qid, err := p.QueueID(ctx, queueName)
	if err != nil {
		return 0, err
	}
	ct, err := p.pool.Exec(ctx, "DELETE FROM queue_messages WHERE queue_id = $1", qid)
	if err != nil {
		return 0, fmt.Errorf("purge queue %q: %w", queueName, err)
	}
	return ct.RowsAffected(), nil
}
