// Package correction persists the correction ledger. The postgres store is
// the system of record; the in-memory store mirrors its contract for unit
// tests and dev mode.
//
// Both implementations evaluate permission filters inside the query itself.
// No unfiltered row ever crosses the store boundary, so callers cannot
// reintroduce over-disclosure by forgetting a filter step.
package correction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/keithrawlingsbrown/stet/internal/ledger/models"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	"github.com/keithrawlingsbrown/stet/pkg/platform/sentinel"
	txcontext "github.com/keithrawlingsbrown/stet/pkg/platform/tx"
)

// PostgresStore implements the correction ledger over PostgreSQL. Write
// methods join the transaction carried in context when one is present.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) runner(ctx context.Context) dbRunner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const correctionColumns = `correction_id, tenant_id, subject_type, subject_id, field_key,
	value, class, status, supersedes, permissions, actor_type, actor_id,
	idempotency_key, origin, created_at`

// Insert writes a fresh row. A unique violation means a concurrent
// transaction claimed the ACTIVE slot for this field between discovery and
// commit; it surfaces as sentinel.ErrUniqueViolation for the retry loop.
func (s *PostgresStore) Insert(ctx context.Context, c *models.Correction) error {
	permissions, err := json.Marshal(c.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	origin, err := json.Marshal(c.Origin)
	if err != nil {
		return fmt.Errorf("marshal origin: %w", err)
	}

	var supersedes uuid.NullUUID
	if c.Supersedes != nil {
		supersedes = uuid.NullUUID{UUID: uuid.UUID(*c.Supersedes), Valid: true}
	}

	query := `
		INSERT INTO corrections (` + correctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		uuid.UUID(c.TenantID),
		c.Subject.Type,
		c.Subject.ID,
		c.FieldKey,
		[]byte(c.Value),
		string(c.Class),
		string(c.Status),
		supersedes,
		permissions,
		c.Actor.Type,
		c.Actor.ID,
		c.IdempotencyKey,
		origin,
		c.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("insert correction: %w", sentinel.ErrUniqueViolation)
		}
		return fmt.Errorf("insert correction: %w", err)
	}
	return nil
}

// FindByID loads one row scoped to the tenant.
func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID, correctionID id.CorrectionID) (*models.Correction, error) {
	query := `
		SELECT ` + correctionColumns + `
		FROM corrections
		WHERE tenant_id = $1 AND correction_id = $2
	`
	row := s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(correctionID))
	c, err := scanCorrection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find correction: %w", err)
	}
	return c, nil
}

// FindActive returns the current ACTIVE row for a field, or
// sentinel.ErrNotFound when the field has never been asserted. At most one
// row can match thanks to the partial unique index.
func (s *PostgresStore) FindActive(ctx context.Context, tenantID id.TenantID, subject models.Subject, fieldKey string) (*models.Correction, error) {
	query := `
		SELECT ` + correctionColumns + `
		FROM corrections
		WHERE tenant_id = $1 AND subject_type = $2 AND subject_id = $3
		  AND field_key = $4 AND status = 'ACTIVE'
	`
	row := s.runner(ctx).QueryRowContext(ctx, query,
		uuid.UUID(tenantID), subject.Type, subject.ID, fieldKey)
	c, err := scanCorrection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find active correction: %w", err)
	}
	return c, nil
}

// MarkSuperseded demotes one ACTIVE row. Zero affected rows means a
// concurrent transaction already displaced it; that surfaces as
// sentinel.ErrConflict so the write loop can retry from discovery.
func (s *PostgresStore) MarkSuperseded(ctx context.Context, tenantID id.TenantID, correctionID id.CorrectionID) error {
	query := `
		UPDATE corrections SET status = 'SUPERSEDED'
		WHERE tenant_id = $1 AND correction_id = $2 AND status = 'ACTIVE'
	`
	res, err := s.runner(ctx).ExecContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(correctionID))
	if err != nil {
		return fmt.Errorf("mark superseded: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark superseded: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("mark superseded: row no longer ACTIVE: %w", sentinel.ErrConflict)
	}
	return nil
}

// MarkRevoked transitions a row to REVOKED. Returns false without error when
// the row was already REVOKED by the time the update ran, which keeps
// concurrent revokes idempotent.
func (s *PostgresStore) MarkRevoked(ctx context.Context, tenantID id.TenantID, correctionID id.CorrectionID) (bool, error) {
	query := `
		UPDATE corrections SET status = 'REVOKED'
		WHERE tenant_id = $1 AND correction_id = $2
		  AND status IN ('ACTIVE', 'SUPERSEDED')
	`
	res, err := s.runner(ctx).ExecContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(correctionID))
	if err != nil {
		return false, fmt.Errorf("mark revoked: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark revoked: %w", err)
	}
	return affected == 1, nil
}

// FactsFor returns the requester-visible ACTIVE facts for a subject, oldest
// first. Permission evaluation is part of the WHERE clause: deny list first,
// then reader membership, then scope overlap. The COALESCE wrappers matter;
// a permissions document without the key would otherwise yield SQL NULL and
// silently drop the deny check.
func (s *PostgresStore) FactsFor(ctx context.Context, q models.FactsQuery) ([]*models.Correction, error) {
	query := `
		SELECT ` + correctionColumns + `
		FROM corrections
		WHERE tenant_id = $1 AND subject_type = $2 AND subject_id = $3
		  AND status = 'ACTIVE' AND class = 'FACT'
		  AND NOT COALESCE(permissions->'deny_list' ? $4, FALSE)
		  AND (COALESCE(permissions->'readers' ? $4, FALSE)
		       OR COALESCE(permissions->'scopes' ?| $5, FALSE))
	`
	args := []any{
		uuid.UUID(q.TenantID), q.Subject.Type, q.Subject.ID,
		q.RequesterID, pq.Array(scopesOrEmpty(q.RequesterScopes)),
	}
	if len(q.FieldKeys) > 0 {
		query += ` AND field_key = ANY($6)`
		args = append(args, pq.Array(q.FieldKeys))
	}
	query += ` ORDER BY created_at ASC, correction_id ASC`

	return s.queryCorrections(ctx, query, args...)
}

// HistoryFor returns the requester-visible correction history for a subject,
// oldest first. Same permission clause as FactsFor; REVOKED rows appear only
// on request.
func (s *PostgresStore) HistoryFor(ctx context.Context, q models.HistoryQuery) ([]*models.Correction, error) {
	query := `
		SELECT ` + correctionColumns + `
		FROM corrections
		WHERE tenant_id = $1 AND subject_type = $2 AND subject_id = $3
		  AND NOT COALESCE(permissions->'deny_list' ? $4, FALSE)
		  AND (COALESCE(permissions->'readers' ? $4, FALSE)
		       OR COALESCE(permissions->'scopes' ?| $5, FALSE))
	`
	args := []any{
		uuid.UUID(q.TenantID), q.Subject.Type, q.Subject.ID,
		q.RequesterID, pq.Array(scopesOrEmpty(q.RequesterScopes)),
	}
	if !q.IncludeRevoked {
		query += ` AND status != 'REVOKED'`
	}
	if q.FieldKey != "" {
		query += fmt.Sprintf(` AND field_key = $%d`, len(args)+1)
		args = append(args, q.FieldKey)
	}
	query += ` ORDER BY created_at ASC, correction_id ASC`

	return s.queryCorrections(ctx, query, args...)
}

func (s *PostgresStore) queryCorrections(ctx context.Context, query string, args ...any) ([]*models.Correction, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query corrections: %w", err)
	}
	defer rows.Close()

	var out []*models.Correction
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan correction: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query corrections: %w", err)
	}
	return out, nil
}

// scopesOrEmpty keeps the ?| operand a real text[] even for scopeless
// requesters; NULL would poison the expression.
func scopesOrEmpty(scopes []string) []string {
	if scopes == nil {
		return []string{}
	}
	return scopes
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCorrection(row rowScanner) (*models.Correction, error) {
	var (
		c           models.Correction
		correction  uuid.UUID
		tenant      uuid.UUID
		supersedes  uuid.NullUUID
		value       []byte
		class       string
		status      string
		permissions []byte
		origin      []byte
	)
	err := row.Scan(
		&correction,
		&tenant,
		&c.Subject.Type,
		&c.Subject.ID,
		&c.FieldKey,
		&value,
		&class,
		&status,
		&supersedes,
		&permissions,
		&c.Actor.Type,
		&c.Actor.ID,
		&c.IdempotencyKey,
		&origin,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.ID = id.CorrectionID(correction)
	c.TenantID = id.TenantID(tenant)
	c.Value = json.RawMessage(value)
	c.Class = models.CorrectionClass(class)
	c.Status = models.CorrectionStatus(status)
	if supersedes.Valid {
		sup := id.CorrectionID(supersedes.UUID)
		c.Supersedes = &sup
	}
	if err := json.Unmarshal(permissions, &c.Permissions); err != nil {
		return nil, fmt.Errorf("unmarshal permissions: %w", err)
	}
	if err := json.Unmarshal(origin, &c.Origin); err != nil {
		return nil, fmt.Errorf("unmarshal origin: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}
