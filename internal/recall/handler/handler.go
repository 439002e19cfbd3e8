// Package handler wires the recall engine's read endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithrawlingsbrown/stet/internal/ledger/models"
	"github.com/keithrawlingsbrown/stet/internal/recall/service"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
	"github.com/keithrawlingsbrown/stet/pkg/platform/httputil"
	"github.com/keithrawlingsbrown/stet/pkg/requestcontext"
)

// Service defines the interface for recall read operations.
type Service interface {
	Facts(ctx context.Context, q models.FactsQuery) ([]service.Fact, error)
	History(ctx context.Context, q models.HistoryQuery) ([]service.HistoryEntry, error)
}

// Handler wires recall endpoints to the recall service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a recall handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts recall endpoints on the router. The tenant resolver
// middleware must run before these routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/facts", h.HandleFacts)
	r.Get("/history", h.HandleHistory)
}

// HandleFacts handles GET /v1/facts requests.
func (h *Handler) HandleFacts(w http.ResponseWriter, r *http.Request) {
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

	q, err := factsQueryFrom(r, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	facts, err := h.service.Facts(ctx, q)
	if err != nil {
		h.logger.ErrorContext(ctx, "facts read failed",
			"request_id", requestID,
			"tenant_id", tenantID,
			"subject_type", q.Subject.Type,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "facts read handled",
		"request_id", requestID,
		"tenant_id", tenantID,
		"subject_type", q.Subject.Type,
		"facts", len(facts),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, NewFactsResponse(q.Subject, facts))
}

// HandleHistory handles GET /v1/history requests.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
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

	q, err := historyQueryFrom(r, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.service.History(ctx, q)
	if err != nil {
		h.logger.ErrorContext(ctx, "history read failed",
			"request_id", requestID,
			"tenant_id", tenantID,
			"subject_type", q.Subject.Type,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "history read handled",
		"request_id", requestID,
		"tenant_id", tenantID,
		"subject_type", q.Subject.Type,
		"entries", len(entries),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, NewHistoryResponse(q.Subject, entries))
}
