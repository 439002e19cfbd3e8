// Package idempotency persists the key-to-correction mapping that makes
// ledger create retries safe.
package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/keithrawlingsbrown/stet/internal/ledger/models"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	"github.com/keithrawlingsbrown/stet/pkg/platform/sentinel"
	txcontext "github.com/keithrawlingsbrown/stet/pkg/platform/tx"
)

// PostgresStore persists idempotency records. Inserts join the transaction
// carried in context so the record commits atomically with its correction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) runner(ctx context.Context) dbRunner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Find returns the record for (tenant, key), or sentinel.ErrNotFound.
func (s *PostgresStore) Find(ctx context.Context, tenantID id.TenantID, key string) (*models.IdempotencyRecord, error) {
	query := `
		SELECT tenant_id, key, correction_id, payload_hash, created_at
		FROM idempotency
		WHERE tenant_id = $1 AND key = $2
	`
	var (
		rec        models.IdempotencyRecord
		tenant     uuid.UUID
		correction uuid.UUID
	)
	err := s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID), key).
		Scan(&tenant, &rec.Key, &correction, &rec.PayloadHash, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find idempotency record: %w", err)
	}
	rec.TenantID = id.TenantID(tenant)
	rec.CorrectionID = id.CorrectionID(correction)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

// Insert writes the record. A primary-key violation means a concurrent
// request claimed the key after our lookup; the create loop retries from the
// lookup and resolves it as replay or conflict there.
func (s *PostgresStore) Insert(ctx context.Context, rec *models.IdempotencyRecord) error {
	query := `
		INSERT INTO idempotency (tenant_id, key, correction_id, payload_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(rec.TenantID),
		rec.Key,
		uuid.UUID(rec.CorrectionID),
		rec.PayloadHash,
		rec.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("insert idempotency record: %w", sentinel.ErrUniqueViolation)
		}
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}
