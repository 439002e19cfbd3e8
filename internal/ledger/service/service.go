// Package service orchestrates correction ledger writes: idempotent-retry
// detection, atomic superseding, and the bounded optimistic retry around the
// single-ACTIVE-row arbiter.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/keithrawlingsbrown/stet/internal/audit"
	ledgermetrics "github.com/keithrawlingsbrown/stet/internal/ledger/metrics"
	"github.com/keithrawlingsbrown/stet/internal/ledger/models"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
	"github.com/keithrawlingsbrown/stet/pkg/platform/retry"
	"github.com/keithrawlingsbrown/stet/pkg/platform/sentinel"
	"github.com/keithrawlingsbrown/stet/pkg/requestcontext"
)

var tracer = otel.Tracer("github.com/keithrawlingsbrown/stet/internal/ledger")

type CorrectionStore interface {
	Insert(ctx context.Context, c *models.Correction) error
	FindByID(ctx context.Context, tenantID id.TenantID, correctionID id.CorrectionID) (*models.Correction, error)
	FindActive(ctx context.Context, tenantID id.TenantID, subject models.Subject, fieldKey string) (*models.Correction, error)
	MarkSuperseded(ctx context.Context, tenantID id.TenantID, correctionID id.CorrectionID) error
	MarkRevoked(ctx context.Context, tenantID id.TenantID, correctionID id.CorrectionID) (bool, error)
}

type IdempotencyStore interface {
	Find(ctx context.Context, tenantID id.TenantID, key string) (*models.IdempotencyRecord, error)
	Insert(ctx context.Context, rec *models.IdempotencyRecord) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type serviceConfig struct {
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *ledgermetrics.Metrics
	tx             StoreTx
	attempts       int
}

type Option func(cfg *serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serviceConfig) {
		cfg.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(cfg *serviceConfig) {
		cfg.auditPublisher = publisher
	}
}

func WithMetrics(m *ledgermetrics.Metrics) Option {
	return func(cfg *serviceConfig) {
		cfg.metrics = m
	}
}

func WithTx(tx StoreTx) Option {
	return func(cfg *serviceConfig) {
		cfg.tx = tx
	}
}

// WithRetryAttempts bounds the optimistic retry on conflicting writes.
func WithRetryAttempts(attempts int) Option {
	return func(cfg *serviceConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// Service owns correction creation and revocation. Reads live in the recall
// engine; this service never serves them.
type Service struct {
	corrections  CorrectionStore
	idempotency  IdempotencyStore
	auditEmitter *auditEmitter
	metrics      *ledgermetrics.Metrics
	tx           StoreTx
	attempts     int
}

func New(corrections CorrectionStore, idempotency IdempotencyStore, opts ...Option) *Service {
	cfg := &serviceConfig{attempts: retry.DefaultAttempts}
	for _, opt := range opts {
		opt(cfg)
	}
	tx := cfg.tx
	if tx == nil {
		tx = newInMemoryStoreTx()
	}
	return &Service{
		corrections:  corrections,
		idempotency:  idempotency,
		auditEmitter: newAuditEmitter(cfg.logger, cfg.auditPublisher),
		metrics:      cfg.metrics,
		tx:           tx,
		attempts:     cfg.attempts,
	}
}

// isWriteConflict is the single well-defined conflict signal the retry loop
// reacts to: losing the ACTIVE-slot arbiter or an idempotency-key race.
func isWriteConflict(err error) bool {
	return errors.Is(err, sentinel.ErrUniqueViolation) || errors.Is(err, sentinel.ErrConflict)
}

// Create records a correction. The returned bool reports an idempotent
// replay: true means the key had already produced this correction and
// nothing new was persisted.
//
// The whole transaction re-runs from the idempotency lookup on each retry,
// so a concurrent identical request that lost the first race resolves as a
// clean replay on the next attempt.
func (s *Service) Create(ctx context.Context, in models.CreateInput) (*models.Correction, bool, error) {
	ctx, span := tracer.Start(ctx, "ledger.create")
	defer span.End()

	start := time.Now()

	in.Normalize()
	if err := in.Validate(); err != nil {
		s.metrics.IncrementCreate("validation_error")
		return nil, false, err
	}

	hash, err := in.ContentHash()
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash correction payload")
	}

	var (
		created  *models.Correction
		replayed bool
	)
	err = retry.Do(ctx, s.attempts, isWriteConflict, func(ctx context.Context) error {
		attemptErr := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			created, replayed = nil, false

			rec, err := s.idempotency.Find(txCtx, in.TenantID, in.IdempotencyKey)
			switch {
			case err == nil:
				if rec.PayloadHash != hash {
					return dErrors.New(dErrors.CodeIdempotencyConflict, "idempotency key already used with a different payload")
				}
				existing, err := s.corrections.FindByID(txCtx, in.TenantID, rec.CorrectionID)
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load replayed correction")
				}
				created, replayed = existing, true
				return nil
			case errors.Is(err, sentinel.ErrNotFound):
				// First time this key is seen; fall through to the write.
			default:
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check idempotency key")
			}

			prior, err := s.resolveSupersedes(txCtx, in)
			if err != nil {
				return err
			}

			var supersedes *id.CorrectionID
			if prior != nil {
				if err := s.corrections.MarkSuperseded(txCtx, in.TenantID, prior.ID); err != nil {
					return err
				}
				supersedes = &prior.ID
			}

			correction := models.NewCorrection(id.CorrectionID(uuid.New()), in, supersedes, requestcontext.Now(txCtx))
			if err := s.corrections.Insert(txCtx, correction); err != nil {
				return err
			}

			if err := s.idempotency.Insert(txCtx, &models.IdempotencyRecord{
				TenantID:     in.TenantID,
				Key:          in.IdempotencyKey,
				CorrectionID: correction.ID,
				PayloadHash:  hash,
				CreatedAt:    correction.CreatedAt,
			}); err != nil {
				return err
			}

			if err := s.auditEmitter.emitCorrectionRecorded(txCtx, models.CorrectionRecorded{
				CorrectionID: correction.ID,
				TenantID:     correction.TenantID,
				Subject:      correction.Subject,
				FieldKey:     correction.FieldKey,
				Class:        correction.Class,
				Supersedes:   supersedes,
			}); err != nil {
				return err
			}
			if prior != nil {
				if err := s.auditEmitter.emitCorrectionSuperseded(txCtx, models.CorrectionSuperseded{
					CorrectionID: prior.ID,
					TenantID:     correction.TenantID,
					SupersededBy: correction.ID,
				}); err != nil {
					return err
				}
			}

			created = correction
			return nil
		})
		if attemptErr != nil && isWriteConflict(attemptErr) {
			s.metrics.IncrementWriteRetry()
		}
		return attemptErr
	})
	if err != nil {
		return nil, false, s.mapCreateErr(err)
	}

	if replayed {
		s.metrics.IncrementCreate("replayed")
	} else {
		s.metrics.IncrementCreate("created")
	}
	s.metrics.ObserveCreateLatency(start)
	return created, replayed, nil
}

// resolveSupersedes picks the row the new correction replaces: the named
// target when the caller supplied one, otherwise whatever is currently
// ACTIVE for the field. A nil result means this is the first assertion.
func (s *Service) resolveSupersedes(ctx context.Context, in models.CreateInput) (*models.Correction, error) {
	if in.Supersedes != nil {
		target, err := s.corrections.FindByID(ctx, in.TenantID, *in.Supersedes)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeValidation, "invalid supersedes target")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load supersedes target")
		}
		if !target.IsActive() {
			return nil, dErrors.New(dErrors.CodeValidation, "invalid supersedes target")
		}
		if target.Subject != in.Subject || target.FieldKey != in.FieldKey {
			return nil, dErrors.New(dErrors.CodeValidation, "supersedes target addresses a different field")
		}
		return target, nil
	}

	prior, err := s.corrections.FindActive(ctx, in.TenantID, in.Subject, in.FieldKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to find active correction")
	}
	return prior, nil
}

func (s *Service) mapCreateErr(err error) error {
	switch {
	case errors.Is(err, retry.ErrExhausted):
		s.metrics.IncrementCreate("write_conflict")
		return dErrors.Wrap(err, dErrors.CodeWriteConflict, "concurrent write violation")
	case dErrors.HasCode(err, dErrors.CodeIdempotencyConflict):
		s.metrics.IncrementCreate("idempotency_conflict")
		return err
	case dErrors.HasCode(err, dErrors.CodeValidation):
		s.metrics.IncrementCreate("validation_error")
		return err
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record correction")
}

// Revoke transitions a correction to REVOKED. Idempotent: revoking an
// already-REVOKED row returns it unchanged, emits nothing, and is not an
// error. The freed ACTIVE slot (if the row was ACTIVE) lets a later create
// start a fresh supersede chain.
func (s *Service) Revoke(ctx context.Context, tenantID id.TenantID, correctionID id.CorrectionID) (*models.Correction, error) {
	ctx, span := tracer.Start(ctx, "ledger.revoke")
	defer span.End()

	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant id is required")
	}
	if correctionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "correction id is required")
	}

	var revoked *models.Correction
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := s.corrections.FindByID(txCtx, tenantID, correctionID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "correction not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load correction")
		}

		if c.Status == models.StatusRevoked {
			s.metrics.IncrementRevoke("noop")
			revoked = c
			return nil
		}

		changed, err := s.corrections.MarkRevoked(txCtx, tenantID, correctionID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke correction")
		}
		if !changed {
			// A concurrent revoke won; reload and report the settled state.
			settled, err := s.corrections.FindByID(txCtx, tenantID, correctionID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload correction")
			}
			s.metrics.IncrementRevoke("noop")
			revoked = settled
			return nil
		}

		prior := c.Status
		c.ApplyRevocation()
		if err := s.auditEmitter.emitCorrectionRevoked(txCtx, models.CorrectionRevoked{
			CorrectionID: c.ID,
			TenantID:     c.TenantID,
			PriorStatus:  prior,
		}); err != nil {
			return err
		}
		s.metrics.IncrementRevoke("revoked")
		revoked = c
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.metrics.IncrementRevoke("not_found")
		}
		return nil, err
	}
	return revoked, nil
}
