// Package relay moves committed outbox rows to Kafka. It is the only
// component that marks outbox entries published; the write path only ever
// appends.
package relay

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 100
)

// Producer is the slice of the Kafka client the relay needs.
type Producer interface {
	EnsureTopic(ctx context.Context, topic string) error
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Relay polls the outbox and publishes unclaimed rows. Claims use FOR UPDATE
// SKIP LOCKED so multiple instances drain the same table without stepping on
// each other; delivery is at-least-once (a crash between produce and commit
// re-publishes the batch).
type Relay struct {
	db       *sql.DB
	producer Producer
	topic    string
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithInterval(interval time.Duration) Option {
	return func(r *Relay) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

func WithBatchSize(size int) Option {
	return func(r *Relay) {
		if size > 0 {
			r.batch = size
		}
	}
}

func New(db *sql.DB, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		db:       db,
		producer: producer,
		topic:    topic,
		interval: defaultInterval,
		batch:    defaultBatchSize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the outbox on an interval until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.producer.EnsureTopic(ctx, r.topic); err != nil {
		return fmt.Errorf("ensure audit topic: %w", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				r.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

func (r *Relay) drain(ctx context.Context) error {
	for {
		published, err := r.publishBatch(ctx)
		if err != nil {
			return err
		}
		if published == 0 {
			return nil
		}
	}
}

type outboxEntry struct {
	id          string
	aggregateID string
	payload     []byte
}

func (r *Relay) publishBatch(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox claim: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batch)
	if err != nil {
		return 0, fmt.Errorf("claim outbox batch: %w", err)
	}

	var entries []outboxEntry
	for rows.Next() {
		var e outboxEntry
		if err := rows.Scan(&e.id, &e.aggregateID, &e.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("claim outbox batch: %w", err)
	}
	rows.Close()

	if len(entries) == 0 {
		return 0, nil
	}

	// Key by aggregate so Kafka preserves per-correction and per-system order.
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := r.producer.Produce(ctx, r.topic, []byte(e.aggregateID), e.payload); err != nil {
			return 0, fmt.Errorf("publish outbox entry %s: %w", e.id, err)
		}
		ids = append(ids, e.id)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE outbox SET published_at = $1 WHERE id = ANY($2::uuid[])
	`, time.Now().UTC(), pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("mark outbox published: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox claim: %w", err)
	}

	r.logger.DebugContext(ctx, "outbox batch published", "count", len(entries))
	return len(entries), nil
}
