package handler

import (
	"time"

	"github.com/keithrawlingsbrown/stet/internal/enforcement/models"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
)

// HeartbeatRequest is the wire shape for a heartbeat report. Origin is
// optional; unattested fields fall back to the server identity. Field
// validation lives on models.HeartbeatInput so every caller of the service
// shares it.
type HeartbeatRequest struct {
	SystemID                  string    `json:"system_id"`
	EnforcedCorrectionVersion time.Time `json:"enforced_correction_version"`
	Origin                    id.Origin `json:"origin,omitempty"`
}

func (r *HeartbeatRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// ToInput converts the request to the service input for a tenant.
func (r *HeartbeatRequest) ToInput(tenantID id.TenantID) models.HeartbeatInput {
	return models.HeartbeatInput{
		TenantID:                  tenantID,
		SystemID:                  r.SystemID,
		EnforcedCorrectionVersion: r.EnforcedCorrectionVersion,
		Origin:                    r.Origin,
	}
}
