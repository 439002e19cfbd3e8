// Package heartbeat persists enforcement heartbeats. Rows are append-only;
// the monitor only ever asks for the latest report per system, which the
// (tenant_id, system_id, reported_at DESC) index serves directly.
package heartbeat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/keithrawlingsbrown/stet/internal/enforcement/models"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	"github.com/keithrawlingsbrown/stet/pkg/platform/sentinel"
	txcontext "github.com/keithrawlingsbrown/stet/pkg/platform/tx"
)

// PostgresStore implements heartbeat persistence over PostgreSQL.
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

const heartbeatColumns = `heartbeat_id, tenant_id, system_id,
	enforced_correction_version, origin, reported_at`

// Insert appends one heartbeat row.
func (s *PostgresStore) Insert(ctx context.Context, hb *models.Heartbeat) error {
	origin, err := json.Marshal(hb.Origin)
	if err != nil {
		return fmt.Errorf("marshal origin: %w", err)
	}

	query := `
		INSERT INTO enforcement_heartbeats (` + heartbeatColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(hb.ID),
		uuid.UUID(hb.TenantID),
		hb.SystemID,
		hb.EnforcedCorrectionVersion,
		origin,
		hb.ReportedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("insert heartbeat: %w", sentinel.ErrUniqueViolation)
		}
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	return nil
}

// LatestPerSystem returns the newest heartbeat for every system that has
// ever reported for the tenant, ordered by system id for deterministic
// responses.
func (s *PostgresStore) LatestPerSystem(ctx context.Context, tenantID id.TenantID) ([]*models.Heartbeat, error) {
	query := `
		SELECT DISTINCT ON (system_id) ` + heartbeatColumns + `
		FROM enforcement_heartbeats
		WHERE tenant_id = $1
		ORDER BY system_id, reported_at DESC
	`
	rows, err := s.runner(ctx).QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query latest heartbeats: %w", err)
	}
	defer rows.Close()

	var out []*models.Heartbeat
	for rows.Next() {
		hb, err := scanHeartbeat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan heartbeat: %w", err)
		}
		out = append(out, hb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query latest heartbeats: %w", err)
	}
	return out, nil
}

// LatestForSystem returns the newest heartbeat for one system, or
// sentinel.ErrNotFound when the system never reported.
func (s *PostgresStore) LatestForSystem(ctx context.Context, tenantID id.TenantID, systemID string) (*models.Heartbeat, error) {
	query := `
		SELECT ` + heartbeatColumns + `
		FROM enforcement_heartbeats
		WHERE tenant_id = $1 AND system_id = $2
		ORDER BY reported_at DESC
		LIMIT 1
	`
	row := s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID), systemID)
	hb, err := scanHeartbeat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find latest heartbeat: %w", err)
	}
	return hb, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHeartbeat(row rowScanner) (*models.Heartbeat, error) {
	var (
		hb        models.Heartbeat
		heartbeat uuid.UUID
		tenant    uuid.UUID
		origin    []byte
	)
	err := row.Scan(
		&heartbeat,
		&tenant,
		&hb.SystemID,
		&hb.EnforcedCorrectionVersion,
		&origin,
		&hb.ReportedAt,
	)
	if err != nil {
		return nil, err
	}

	hb.ID = id.HeartbeatID(heartbeat)
	hb.TenantID = id.TenantID(tenant)
	if err := json.Unmarshal(origin, &hb.Origin); err != nil {
		return nil, fmt.Errorf("unmarshal origin: %w", err)
	}
	hb.EnforcedCorrectionVersion = hb.EnforcedCorrectionVersion.UTC()
	hb.ReportedAt = hb.ReportedAt.UTC()
	return &hb, nil
}
