// Package sqlite backs the queue store with an embedded SQLite database.
// SQLite has no row-level locks, so the receive transaction opens with
// BEGIN IMMEDIATE (via the _txlock DSN parameter) to take the write lock up
// front; the conditional update remains the authoritative claim test.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rowqueue/rowq/internal/queue"
	"github.com/rowqueue/rowq/internal/queue/store"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; existing databases with another version are rejected at open.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Ensure *Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the queue database at path and applies the
// schema when the database is new.
func Open(path string) (*Store, error) {
	// Pragmas go in the DSN so every pooled connection gets them, not just
	// the one that happens to run an Exec.
	dsn := fmt.Sprintf(
		"file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// CreateQueue inserts a queue row; false when the name is already taken.
func (s *Store) CreateQueue(ctx context.Context, name string, defaultLease time.Duration) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin create queue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM queues WHERE queue_name = ?", name).Scan(&existing)
	if err != nil {
		return false, fmt.Errorf("check queue %q: %w", name, err)
	}
	if existing > 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO queues (queue_name, default_lease_seconds) VALUES (?, ?)",
		name, int64(defaultLease.Seconds()),
	)
	if err != nil {
		return false, fmt.Errorf("insert queue %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit create queue: %w", err)
	}
	return true, nil
}

// DeleteQueue removes the queue row; false when it is already absent.
// Messages are left behind on purpose; PurgeQueue is the explicit cleanup.
func (s *Store) DeleteQueue(ctx context.Context, name string) (bool, error) {
	id, err := s.QueueID(ctx, name)
	if errors.Is(err, queue.ErrQueueNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM queues WHERE queue_id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete queue %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete queue %q: %w", name, err)
	}
	return n > 0, nil
}

// QueueID resolves a queue name to its identifier.
func (s *Store) QueueID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT queue_id FROM queues WHERE queue_name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("resolve queue %q: %w", name, queue.ErrQueueNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve queue %q: %w", name, err)
	}
	return id, nil
}

// Queues returns all queue names in store iteration order.
func (s *Store) Queues(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT queue_name FROM queues")
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
func (s *Store) Send(ctx context.Context, queueName, body string) (*queue.Message, error) {
	qid, err := s.QueueID(ctx, queueName)
	if err != nil {
		return nil, err
	}

	body = queue.NormalizeBody(body)
	digest := queue.BodyDigest(body)
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_messages (queue_id, created_at, body, body_md5, handle, lease_expires_at)
		 VALUES (?, ?, ?, ?, NULL, NULL)`,
		qid, now.UnixNano(), body, digest,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return &queue.Message{
		ID:        id,
		QueueID:   qid,
		Queue:     queueName,
		Body:      body,
		BodyMD5:   digest,
		CreatedAt: now,
	}, nil
}

// Receive leases up to opts.Max eligible messages inside one immediate
// transaction. A row is eligible when it is unleased or its lease has
// expired; each selected row is claimed with a fresh handle through a
// conditional update, and rows whose update affected no row are dropped.
func (s *Store) Receive(ctx context.Context, opts queue.ReceiveOptions) ([]*queue.Message, error) {
	if opts.Max <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin receive: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		qid          int64
		defaultLease int64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT queue_id, default_lease_seconds FROM queues WHERE queue_name = ?", opts.Queue,
	).Scan(&qid, &defaultLease)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resolve queue %q: %w", opts.Queue, queue.ErrQueueNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve queue %q: %w", opts.Queue, err)
	}
	if opts.Lease <= 0 {
		opts.Lease = time.Duration(defaultLease) * time.Second
	}

	now := time.Now().UTC()
	rows, err := tx.QueryContext(ctx,
		`SELECT message_id, created_at, body, body_md5
		 FROM queue_messages
		 WHERE queue_id = ? AND (handle IS NULL OR lease_expires_at <= ?)
		 ORDER BY message_id
		 LIMIT ?`,
		qid, now.UnixNano(), opts.Max,
	)
	if err != nil {
		return nil, fmt.Errorf("select eligible: %w", err)
	}

	var candidates []*queue.Message
	for rows.Next() {
		m := &queue.Message{QueueID: qid, Queue: opts.Queue}
		var createdNanos int64
		if err := rows.Scan(&m.ID, &createdNanos, &m.Body, &m.BodyMD5); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		m.CreatedAt = time.Unix(0, createdNanos).UTC()
		candidates = append(candidates, m)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close candidates: %w", err)
	}

	expiry := now.Add(opts.Lease)
	var out []*queue.Message
	for _, m := range candidates {
		handle := uuid.NewString()
		res, err := tx.ExecContext(ctx,
			`UPDATE queue_messages
			 SET handle = ?, lease_expires_at = ?
			 WHERE message_id = ? AND (handle IS NULL OR lease_expires_at <= ?)`,
			handle, expiry.UnixNano(), m.ID, now.UnixNano(),
		)
		if err != nil {
			return nil, fmt.Errorf("claim message %d: %w", m.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim message %d: %w", m.ID, err)
		}
		if n != 1 {
			// Lost the race or the row no longer qualifies.
			continue
		}
		h := handle
		e := expiry
		m.Handle = &h
		m.LeaseExpiresAt = &e
		out = append(out, m)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit receive: %w", err)
	}
	return out, nil
}

// DeleteMessage deletes the row holding the lease handle; false when the
// handle matches nothing.
func (s *Store) DeleteMessage(ctx context.Context, handle string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM queue_messages WHERE handle = ?", handle)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of message rows for the queue regardless of lease
// state.
func (s *Store) Count(ctx context.Context, queueName string) (int64, error) {
	qid, err := s.QueueID(ctx, queueName)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM queue_messages WHERE queue_id = ?", qid).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// PurgeQueue deletes every message row for the queue.
func (s *Store) PurgeQueue(ctx context.Context, queueName string) (int64, error) {
	qid, err := s.QueueID(ctx, queueName)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM queue_messages WHERE queue_id = ?", qid)
	if err != nil {
		return 0, fmt.Errorf("purge queue %q: %w", queueName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge queue %q: %w", queueName, err)
	}
	return n, nil
}
