// Package service implements the enforcement trust monitor: append-only
// heartbeat intake and the derived staleness and escalation views. Status
// and escalation are recomputed from stored heartbeats and the request
// clock on every call; there is no cached trust state to go stale.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/keithrawlingsbrown/stet/internal/audit"
	enforcementmetrics "github.com/keithrawlingsbrown/stet/internal/enforcement/metrics"
	"github.com/keithrawlingsbrown/stet/internal/enforcement/models"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
	"github.com/keithrawlingsbrown/stet/pkg/platform/sentinel"
	"github.com/keithrawlingsbrown/stet/pkg/requestcontext"
)

var tracer = otel.Tracer("github.com/keithrawlingsbrown/stet/internal/enforcement")

type HeartbeatStore interface {
	Insert(ctx context.Context, hb *models.Heartbeat) error
	LatestPerSystem(ctx context.Context, tenantID id.TenantID) ([]*models.Heartbeat, error)
	LatestForSystem(ctx context.Context, tenantID id.TenantID, systemID string) (*models.Heartbeat, error)
}

// AlertSink dedupes escalation alerts across instances. Claim reports
// whether the caller is the first to see this (tenant, level) in the time
// bucket containing at.
type AlertSink interface {
	Claim(ctx context.Context, tenantID id.TenantID, level models.EscalationLevel, at time.Time) (bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type serviceConfig struct {
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *enforcementmetrics.Metrics
	alerts         AlertSink
	origin         id.Origin
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

func WithMetrics(m *enforcementmetrics.Metrics) Option {
	return func(cfg *serviceConfig) {
		cfg.metrics = m
	}
}

func WithAlertSink(sink AlertSink) Option {
	return func(cfg *serviceConfig) {
		cfg.alerts = sink
	}
}

// WithServerOrigin sets the identity recorded on heartbeats whose reporter
// attests no origin of its own.
func WithServerOrigin(origin id.Origin) Option {
	return func(cfg *serviceConfig) {
		cfg.origin = origin
	}
}

// Service owns heartbeat intake and trust derivation for one deployment's
// staleness thresholds.
type Service struct {
	heartbeats HeartbeatStore
	thresholds models.Thresholds
	origin     id.Origin
	alerts     AlertSink
	publisher  AuditPublisher
	logger     *slog.Logger
	metrics    *enforcementmetrics.Metrics
}

func New(heartbeats HeartbeatStore, thresholds models.Thresholds, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		heartbeats: heartbeats,
		thresholds: thresholds,
		origin:     cfg.origin,
		alerts:     cfg.alerts,
		publisher:  cfg.auditPublisher,
		logger:     logger,
		metrics:    cfg.metrics,
	}
}

// RecordHeartbeat appends one report. The receipt time comes from the
// request clock; the reporter's own clock only appears in the enforced
// version watermark it attests.
func (s *Service) RecordHeartbeat(ctx context.Context, in models.HeartbeatInput) (*models.Heartbeat, error) {
	in.Normalize()
	in.Origin = in.Origin.WithFallback(s.origin)
	if err := in.Validate(); err != nil {
		s.metrics.IncrementHeartbeat("validation_error")
		return nil, err
	}

	hb := models.NewHeartbeat(id.HeartbeatID(uuid.New()), in, requestcontext.Now(ctx))
	if err := s.heartbeats.Insert(ctx, hb); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record heartbeat")
	}

	s.logger.InfoContext(ctx, "heartbeat recorded",
		"tenant_id", hb.TenantID.String(),
		"system_id", hb.SystemID,
		"enforced_version", hb.EnforcedCorrectionVersion,
	)
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventHeartbeatRecorded),
		TenantID: hb.TenantID,
		SystemID: hb.SystemID,
	})
	s.metrics.IncrementHeartbeat("recorded")
	return hb, nil
}

// Status derives per-system trust state at the request clock. Probing a
// single system reports exactly that system, MISSING when it never
// reported; without a probe, every system known to the tenant is reported.
func (s *Service) Status(ctx context.Context, tenantID id.TenantID, probeSystemID string) ([]models.SystemReport, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant id is required")
	}
	now := requestcontext.Now(ctx)

	if probe := strings.TrimSpace(probeSystemID); probe != "" {
		latest, err := s.heartbeats.LatestForSystem(ctx, tenantID, probe)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load heartbeats")
		}
		return []models.SystemReport{s.reportFor(probe, latest, now)}, nil
	}

	rows, err := s.heartbeats.LatestPerSystem(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load heartbeats")
	}
	reports := make([]models.SystemReport, 0, len(rows))
	for _, hb := range rows {
		reports = append(reports, s.reportFor(hb.SystemID, hb, now))
	}
	return reports, nil
}

// Escalation aggregates every known system's status with precedence
// CRITICAL > WARN > NONE. A probed system that never reported joins the
// evaluation as MISSING. WARN and CRITICAL results consult the alert sink;
// the first caller in a dedup bucket emits the alert trail.
func (s *Service) Escalation(ctx context.Context, tenantID id.TenantID, probeSystemID string) (*models.EscalationReport, error) {
	ctx, span := tracer.Start(ctx, "enforcement.escalation")
	defer span.End()

	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant id is required")
	}
	now := requestcontext.Now(ctx)

	rows, err := s.heartbeats.LatestPerSystem(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load heartbeats")
	}

	probe := strings.TrimSpace(probeSystemID)
	probeKnown := false
	reports := make([]models.SystemReport, 0, len(rows)+1)
	for _, hb := range rows {
		if hb.SystemID == probe {
			probeKnown = true
		}
		reports = append(reports, s.reportFor(hb.SystemID, hb, now))
	}
	if probe != "" && !probeKnown {
		reports = append(reports, s.reportFor(probe, nil, now))
		sort.Slice(reports, func(i, j int) bool {
			return reports[i].SystemID < reports[j].SystemID
		})
	}

	report := aggregate(tenantID, reports, now)
	s.metrics.IncrementEvaluation(string(report.Level))
	if report.Level != models.EscalationNone {
		s.notify(ctx, report)
	}
	return report, nil
}

func (s *Service) reportFor(systemID string, latest *models.Heartbeat, now time.Time) models.SystemReport {
	report := models.SystemReport{
		SystemID: systemID,
		Status:   s.thresholds.StatusOf(latest, now),
	}
	if latest != nil {
		at := latest.ReportedAt
		report.LastReportedAt = &at
	}
	return report
}

func aggregate(tenantID id.TenantID, systems []models.SystemReport, now time.Time) *models.EscalationReport {
	summary := models.EscalationSummary{TotalSystems: len(systems)}
	affected := make([]models.AffectedSystem, 0)
	for _, sys := range systems {
		switch sys.Status {
		case models.StatusOK:
			summary.OK++
		case models.StatusStale:
			summary.Stale++
			affected = append(affected, models.AffectedSystem{SystemID: sys.SystemID, Status: sys.Status})
		case models.StatusMissing:
			summary.Missing++
			affected = append(affected, models.AffectedSystem{SystemID: sys.SystemID, Status: sys.Status})
		}
	}

	level := models.EscalationNone
	switch {
	case summary.Missing > 0:
		level = models.EscalationCritical
	case summary.Stale > 0:
		level = models.EscalationWarn
	}

	return &models.EscalationReport{
		TenantID:        tenantID,
		Level:           level,
		EvaluatedAt:     now.UTC(),
		Summary:         summary,
		AffectedSystems: affected,
	}
}

// notify runs the alert dedup protocol. Sink failures degrade to a warning;
// the escalation report itself is already derived and must not fail because
// alerting infrastructure is down.
func (s *Service) notify(ctx context.Context, report *models.EscalationReport) {
	if s.alerts == nil {
		return
	}
	claimed, err := s.alerts.Claim(ctx, report.TenantID, report.Level, report.EvaluatedAt)
	if err != nil {
		s.logger.WarnContext(ctx, "escalation alert claim failed",
			"tenant_id", report.TenantID.String(),
			"level", string(report.Level),
			"error", err,
		)
		return
	}
	if !claimed {
		return
	}

	s.metrics.IncrementAlertClaimed()
	s.logger.WarnContext(ctx, "escalation alert",
		"tenant_id", report.TenantID.String(),
		"level", string(report.Level),
		"stale", report.Summary.Stale,
		"missing", report.Summary.Missing,
	)
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventEscalationAlerted),
		TenantID: report.TenantID,
		Level:    string(report.Level),
	})
}

// emit appends to the audit trail best-effort. Enforcement telemetry is
// operations-category; losing an event must not fail the request that
// produced it.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action", event.Action,
			"tenant_id", event.TenantID.String(),
			"error", err,
		)
	}
}
