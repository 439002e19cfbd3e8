// Package handler wires the correction ledger's write endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithrawlingsbrown/stet/internal/ledger/models"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
	"github.com/keithrawlingsbrown/stet/pkg/platform/httputil"
	"github.com/keithrawlingsbrown/stet/pkg/requestcontext"
)

// Service defines the interface for ledger write operations.
type Service interface {
	Create(ctx context.Context, in models.CreateInput) (*models.Correction, bool, error)
	Revoke(ctx context.Context, tenantID id.TenantID, correctionID id.CorrectionID) (*models.Correction, error)
}

// Handler wires ledger endpoints to the ledger service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a ledger handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts ledger endpoints on the router. The tenant resolver
// middleware must run before these routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/corrections", h.HandleCreate)
	r.Post("/corrections/{correction_id}/revoke", h.HandleRevoke)
}

// HandleCreate handles POST /v1/corrections requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		// The tenant resolver rejects these before routing; reaching here
		// means the middleware chain is miswired.
		h.logger.ErrorContext(ctx, "tenant missing from context despite resolver middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "tenant context error"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateCorrectionRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	correction, replayed, err := h.service.Create(ctx, req.ToInput(tenantID))
	if err != nil {
		h.logger.ErrorContext(ctx, "correction create failed",
			"request_id", requestID,
			"tenant_id", tenantID,
			"field_key", req.FieldKey,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}

	h.logger.InfoContext(ctx, "correction create handled",
		"request_id", requestID,
		"tenant_id", tenantID,
		"correction_id", correction.ID,
		"field_key", correction.FieldKey,
		"replayed", replayed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, status, FromCorrection(correction))
}

// HandleRevoke handles POST /v1/corrections/{correction_id}/revoke requests.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
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

	correctionID, err := id.ParseCorrectionID(chi.URLParam(r, "correction_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "correction_id must be a valid UUID"))
		return
	}

	correction, err := h.service.Revoke(ctx, tenantID, correctionID)
	if err != nil {
		h.logger.ErrorContext(ctx, "correction revoke failed",
			"request_id", requestID,
			"tenant_id", tenantID,
			"correction_id", correctionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "correction revoke handled",
		"request_id", requestID,
		"tenant_id", tenantID,
		"correction_id", correctionID,
		"status", correction.Status,
	)

	httputil.WriteJSON(w, http.StatusOK, FromCorrection(correction))
}
