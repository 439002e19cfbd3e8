package service

import (
	"context"
	"log/slog"

	"github.com/keithrawlingsbrown/stet/internal/audit"
	"github.com/keithrawlingsbrown/stet/internal/ledger/models"
)

// auditEmitter pairs the structured log line with the durable audit event so
// call sites stay single-line. Emitting inside the write transaction is
// deliberate: a failed outbox append aborts the whole create.
type auditEmitter struct {
	logger    *slog.Logger
	publisher AuditPublisher
}

func newAuditEmitter(logger *slog.Logger, publisher AuditPublisher) *auditEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &auditEmitter{logger: logger, publisher: publisher}
}

func (e *auditEmitter) emitCorrectionRecorded(ctx context.Context, ev models.CorrectionRecorded) error {
	supersedes := ""
	if ev.Supersedes != nil {
		supersedes = ev.Supersedes.String()
	}
	e.logger.InfoContext(ctx, "correction recorded",
		"tenant_id", ev.TenantID.String(),
		"correction_id", ev.CorrectionID.String(),
		"field_key", ev.FieldKey,
		"supersedes", supersedes,
	)
	if e.publisher == nil {
		return nil
	}
	return e.publisher.Emit(ctx, audit.Event{
		Action:       string(audit.EventCorrectionRecorded),
		TenantID:     ev.TenantID,
		CorrectionID: ev.CorrectionID.String(),
		FieldKey:     ev.FieldKey,
		Supersedes:   supersedes,
	})
}

func (e *auditEmitter) emitCorrectionSuperseded(ctx context.Context, ev models.CorrectionSuperseded) error {
	e.logger.InfoContext(ctx, "correction superseded",
		"tenant_id", ev.TenantID.String(),
		"correction_id", ev.CorrectionID.String(),
		"superseded_by", ev.SupersededBy.String(),
	)
	if e.publisher == nil {
		return nil
	}
	return e.publisher.Emit(ctx, audit.Event{
		Action:       string(audit.EventCorrectionSuperseded),
		TenantID:     ev.TenantID,
		CorrectionID: ev.CorrectionID.String(),
		SupersededBy: ev.SupersededBy.String(),
	})
}

func (e *auditEmitter) emitCorrectionRevoked(ctx context.Context, ev models.CorrectionRevoked) error {
	e.logger.InfoContext(ctx, "correction revoked",
		"tenant_id", ev.TenantID.String(),
		"correction_id", ev.CorrectionID.String(),
		"prior_status", string(ev.PriorStatus),
	)
	if e.publisher == nil {
		return nil
	}
	return e.publisher.Emit(ctx, audit.Event{
		Action:       string(audit.EventCorrectionRevoked),
		TenantID:     ev.TenantID,
		CorrectionID: ev.CorrectionID.String(),
		PriorStatus:  string(ev.PriorStatus),
	})
}
