// Package handler wires the enforcement trust monitor's endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithrawlingsbrown/stet/internal/enforcement/models"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
	"github.com/keithrawlingsbrown/stet/pkg/platform/httputil"
	"github.com/keithrawlingsbrown/stet/pkg/requestcontext"
)

// Service defines the interface for enforcement monitor operations.
type Service interface {
	RecordHeartbeat(ctx context.Context, in models.HeartbeatInput) (*models.Heartbeat, error)
	Status(ctx context.Context, tenantID id.TenantID, probeSystemID string) ([]models.SystemReport, error)
	Escalation(ctx context.Context, tenantID id.TenantID, probeSystemID string) (*models.EscalationReport, error)
}

// Handler wires enforcement endpoints to the monitor service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an enforcement handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts enforcement endpoints on the router. The tenant resolver
// middleware must run before these routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/enforcement/heartbeat", h.HandleHeartbeat)
	r.Get("/enforcement/status", h.HandleStatus)
	r.Get("/enforcement/escalation", h.HandleEscalation)
}

// HandleHeartbeat handles POST /v1/enforcement/heartbeat requests.
func (h *Handler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		h.logger.ErrorContext(ctx, "tenant missing from context despite resolver middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "tenant context error"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[HeartbeatRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	hb, err := h.service.RecordHeartbeat(ctx, req.ToInput(tenantID))
	if err != nil {
		h.logger.ErrorContext(ctx, "heartbeat record failed",
			"request_id", requestID,
			"tenant_id", tenantID,
			"system_id", req.SystemID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "heartbeat handled",
		"request_id", requestID,
		"tenant_id", tenantID,
		"system_id", hb.SystemID,
		"heartbeat_id", hb.ID,
	)

	httputil.WriteJSON(w, http.StatusCreated, FromHeartbeat(hb))
}

// HandleStatus handles GET /v1/enforcement/status requests.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		h.logger.ErrorContext(ctx, "tenant missing from context despite resolver middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "tenant context error"))
		return
	}

	probe := strings.TrimSpace(r.URL.Query().Get("system_id"))
	reports, err := h.service.Status(ctx, tenantID, probe)
	if err != nil {
		h.logger.ErrorContext(ctx, "status read failed",
			"request_id", requestID,
			"tenant_id", tenantID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "status read handled",
		"request_id", requestID,
		"tenant_id", tenantID,
		"systems", len(reports),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, NewStatusResponse(reports))
}

// HandleEscalation handles GET /v1/enforcement/escalation requests.
func (h *Handler) HandleEscalation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		h.logger.ErrorContext(ctx, "tenant missing from context despite resolver middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "tenant context error"))
		return
	}

	probe := strings.TrimSpace(r.URL.Query().Get("system_id"))
	report, err := h.service.Escalation(ctx, tenantID, probe)
	if err != nil {
		h.logger.ErrorContext(ctx, "escalation read failed",
			"request_id", requestID,
			"tenant_id", tenantID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "escalation read handled",
		"request_id", requestID,
		"tenant_id", tenantID,
		"escalation", string(report.Level),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromEscalationReport(report))
}
