// Package service serves the recall views: the current facts for a subject
// and the correction history behind them. Permission filtering is part of the
// store query itself, so a row the requester may not see never leaves the
// database.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/keithrawlingsbrown/stet/internal/ledger/models"
	recallmetrics "github.com/keithrawlingsbrown/stet/internal/recall/metrics"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
	strutil "github.com/keithrawlingsbrown/stet/pkg/platform/strings"
)

var tracer = otel.Tracer("github.com/keithrawlingsbrown/stet/internal/recall")

// CorrectionReader is the slice of the correction store the recall engine
// needs. Both methods apply the requester's permissions inside the query.
type CorrectionReader interface {
	FactsFor(ctx context.Context, q models.FactsQuery) ([]*models.Correction, error)
	HistoryFor(ctx context.Context, q models.HistoryQuery) ([]*models.Correction, error)
}

// Fact is one current corrected value as the requester is allowed to see it.
// Only ACTIVE rows of class FACT project into facts.
type Fact struct {
	FieldKey     string
	Value        json.RawMessage
	CorrectedAt  time.Time
	CorrectionID id.CorrectionID
	Actor        models.Actor
}

// HistoryEntry is one correction in a subject's trail, oldest first.
// SupersededBy names the visible row that replaced this one; it stays nil for
// ACTIVE rows and when the replacement is outside the requester's view.
type HistoryEntry struct {
	CorrectionID id.CorrectionID
	FieldKey     string
	Value        json.RawMessage
	Class        models.CorrectionClass
	Status       models.CorrectionStatus
	Supersedes   *id.CorrectionID
	SupersededBy *id.CorrectionID
	CreatedAt    time.Time
	Actor        models.Actor
}

type serviceConfig struct {
	logger  *slog.Logger
	metrics *recallmetrics.Metrics
}

type Option func(cfg *serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serviceConfig) {
		cfg.logger = logger
	}
}

func WithMetrics(m *recallmetrics.Metrics) Option {
	return func(cfg *serviceConfig) {
		cfg.metrics = m
	}
}

// Service answers recall reads. It never writes.
type Service struct {
	corrections CorrectionReader
	logger      *slog.Logger
	metrics     *recallmetrics.Metrics
}

func New(corrections CorrectionReader, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		corrections: corrections,
		logger:      logger,
		metrics:     cfg.metrics,
	}
}

// Facts returns the current facts for a subject under the requester's
// permissions. A subject with no visible ACTIVE facts yields an empty slice,
// not an error.
func (s *Service) Facts(ctx context.Context, q models.FactsQuery) ([]Fact, error) {
	ctx, span := tracer.Start(ctx, "recall.facts")
	defer span.End()

	start := time.Now()
	if err := validateRead(q.TenantID, q.Subject, q.RequesterID); err != nil {
		return nil, err
	}
	q.RequesterID = strings.TrimSpace(q.RequesterID)
	q.RequesterScopes = strutil.DedupeAndTrim(q.RequesterScopes)
	q.FieldKeys = strutil.DedupeAndTrim(q.FieldKeys)

	rows, err := s.corrections.FactsFor(ctx, q)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load facts")
	}

	facts := make([]Fact, 0, len(rows))
	for _, row := range rows {
		facts = append(facts, Fact{
			FieldKey:     row.FieldKey,
			Value:        row.Value,
			CorrectedAt:  row.CreatedAt,
			CorrectionID: row.ID,
			Actor:        row.Actor,
		})
	}

	s.metrics.IncrementRead("facts")
	s.metrics.ObserveReadLatency("facts", start)
	return facts, nil
}

// History returns the correction trail for a subject under the requester's
// permissions, oldest first. REVOKED rows appear only when the query asks for
// them.
func (s *Service) History(ctx context.Context, q models.HistoryQuery) ([]HistoryEntry, error) {
	ctx, span := tracer.Start(ctx, "recall.history")
	defer span.End()

	start := time.Now()
	if err := validateRead(q.TenantID, q.Subject, q.RequesterID); err != nil {
		return nil, err
	}
	q.RequesterID = strings.TrimSpace(q.RequesterID)
	q.RequesterScopes = strutil.DedupeAndTrim(q.RequesterScopes)
	q.FieldKey = strings.TrimSpace(q.FieldKey)

	rows, err := s.corrections.HistoryFor(ctx, q)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load history")
	}

	// supersededBy is derived from the visible rows only: if the replacement
	// was filtered out by permissions, the superseded row reports nil rather
	// than leaking the hidden row's id.
	supersededBy := make(map[id.CorrectionID]id.CorrectionID, len(rows))
	for _, row := range rows {
		if row.Supersedes != nil {
			supersededBy[*row.Supersedes] = row.ID
		}
	}

	entries := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry := HistoryEntry{
			CorrectionID: row.ID,
			FieldKey:     row.FieldKey,
			Value:        row.Value,
			Class:        row.Class,
			Status:       row.Status,
			Supersedes:   row.Supersedes,
			CreatedAt:    row.CreatedAt,
			Actor:        row.Actor,
		}
		if replacement, ok := supersededBy[row.ID]; ok {
			r := replacement
			entry.SupersededBy = &r
		}
		entries = append(entries, entry)
	}

	s.metrics.IncrementRead("history")
	s.metrics.ObserveReadLatency("history", start)
	return entries, nil
}

func validateRead(tenantID id.TenantID, subject models.Subject, requesterID string) error {
	if tenantID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "tenant id is required")
	}
	if err := subject.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(requesterID) == "" {
		return dErrors.New(dErrors.CodeValidation, "requester_id is required")
	}
	return nil
}
