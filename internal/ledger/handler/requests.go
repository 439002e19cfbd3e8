package handler

import (
	"encoding/json"

	"github.com/keithrawlingsbrown/stet/internal/ledger/models"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
)

// CreateCorrectionRequest is the HTTP request body for POST /v1/corrections.
//
// Field-level validation lives on models.CreateInput so the rules stay in one
// place; this type only parses wire-level shapes the domain layer should not
// see (the supersedes UUID string).
type CreateCorrectionRequest struct {
	Subject        models.Subject     `json:"subject"`
	FieldKey       string             `json:"field_key"`
	Value          json.RawMessage    `json:"value"`
	Class          string             `json:"class"`
	Permissions    models.Permissions `json:"permissions"`
	Actor          models.Actor       `json:"actor"`
	Origin         id.Origin          `json:"origin"`
	IdempotencyKey string             `json:"idempotency_key"`
	Supersedes     string             `json:"supersedes,omitempty"`

	// Parsed values (populated by Validate)
	parsedSupersedes *id.CorrectionID
}

// Validate parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateCorrectionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	if r.Supersedes != "" {
		correctionID, err := id.ParseCorrectionID(r.Supersedes)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "supersedes must be a valid UUID")
		}
		r.parsedSupersedes = &correctionID
	}

	return nil
}

// ToInput builds the domain create input for the resolved tenant.
func (r *CreateCorrectionRequest) ToInput(tenantID id.TenantID) models.CreateInput {
	return models.CreateInput{
		TenantID:       tenantID,
		Subject:        r.Subject,
		FieldKey:       r.FieldKey,
		Value:          r.Value,
		Class:          models.CorrectionClass(r.Class),
		Permissions:    r.Permissions,
		Actor:          r.Actor,
		Origin:         r.Origin,
		IdempotencyKey: r.IdempotencyKey,
		Supersedes:     r.parsedSupersedes,
	}
}
