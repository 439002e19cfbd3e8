// Package postgres implements the audit store using the transactional
// outbox pattern. Events are written to the outbox table and published to
// Kafka by the outbox relay; for ledger mutations the insert joins the write
// transaction, so audit and state commit or roll back together.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keithrawlingsbrown/stet/internal/audit"
	txcontext "github.com/keithrawlingsbrown/stet/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID           string `json:"id"`
	Category     string `json:"category"`
	Timestamp    string `json:"timestamp"`
	TenantID     string `json:"tenant_id"`
	Action       string `json:"action"`
	CorrectionID string `json:"correction_id,omitempty"`
	FieldKey     string `json:"field_key,omitempty"`
	Supersedes   string `json:"supersedes,omitempty"`
	SupersededBy string `json:"superseded_by,omitempty"`
	PriorStatus  string `json:"prior_status,omitempty"`
	SystemID     string `json:"system_id,omitempty"`
	Level        string `json:"level,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
}

// Append writes an audit event to the outbox table for later publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	payload := outboxPayload{
		ID:           eventID.String(),
		Category:     string(event.Category),
		Timestamp:    event.Timestamp.UTC().Format(time.RFC3339Nano),
		TenantID:     event.TenantID.String(),
		Action:       event.Action,
		CorrectionID: event.CorrectionID,
		FieldKey:     event.FieldKey,
		Supersedes:   event.Supersedes,
		SupersededBy: event.SupersededBy,
		PriorStatus:  event.PriorStatus,
		SystemID:     event.SystemID,
		Level:        event.Level,
		RequestID:    event.RequestID,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "enforcement"
	aggregateID := event.SystemID
	if event.CorrectionID != "" {
		aggregateType = "correction"
		aggregateID = event.CorrectionID
	}
	if aggregateID == "" {
		aggregateID = event.TenantID.String()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		eventID,
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}
