package handler

import (
	"time"

	"github.com/keithrawlingsbrown/stet/internal/ledger/models"
)

// CorrectionResponse is the wire shape for a recorded correction. Supersedes
// is an explicit null when the correction started a fresh chain.
type CorrectionResponse struct {
	CorrectionID string    `json:"correction_id"`
	Status       string    `json:"status"`
	Supersedes   *string   `json:"supersedes"`
	CreatedAt    time.Time `json:"created_at"`
}

// FromCorrection maps a domain correction to its response shape.
func FromCorrection(c *models.Correction) CorrectionResponse {
	resp := CorrectionResponse{
		CorrectionID: c.ID.String(),
		Status:       string(c.Status),
		CreatedAt:    c.CreatedAt,
	}
	if c.Supersedes != nil {
		s := c.Supersedes.String()
		resp.Supersedes = &s
	}
	return resp
}
