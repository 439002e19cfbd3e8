// Package models holds the correction aggregate and its value objects.
package models

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
)

// CorrectionClass is the permanence class of a correction.
type CorrectionClass string

const (
	// ClassFact is retained indefinitely and served by fact recall.
	ClassFact CorrectionClass = "FACT"
	// ClassDiscardable stays in history but is never served as a current
	// fact, which makes it safe to prune later.
	ClassDiscardable CorrectionClass = "DISCARDABLE"
)

func (c CorrectionClass) IsValid() bool {
	return c == ClassFact || c == ClassDiscardable
}

// CorrectionStatus is the lifecycle state of a correction row.
type CorrectionStatus string

const (
	StatusActive     CorrectionStatus = "ACTIVE"
	StatusSuperseded CorrectionStatus = "SUPERSEDED"
	StatusRevoked    CorrectionStatus = "REVOKED"
)

func (s CorrectionStatus) IsValid() bool {
	return s == StatusActive || s == StatusSuperseded || s == StatusRevoked
}

// CanTransitionTo reports whether the status change is allowed. Rows only
// move forward: ACTIVE → SUPERSEDED, ACTIVE or SUPERSEDED → REVOKED.
// REVOKED is terminal.
func (s CorrectionStatus) CanTransitionTo(next CorrectionStatus) bool {
	switch next {
	case StatusSuperseded:
		return s == StatusActive
	case StatusRevoked:
		return s == StatusActive || s == StatusSuperseded
	default:
		return false
	}
}

// Subject identifies what a correction is about.
type Subject struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (s Subject) Validate() error {
	if strings.TrimSpace(s.Type) == "" {
		return dErrors.New(dErrors.CodeValidation, "subject.type cannot be empty")
	}
	if strings.TrimSpace(s.ID) == "" {
		return dErrors.New(dErrors.CodeValidation, "subject.id cannot be empty")
	}
	return nil
}

// Actor records who asserted a correction.
type Actor struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (a Actor) Validate() error {
	if strings.TrimSpace(a.Type) == "" {
		return dErrors.New(dErrors.CodeValidation, "actor.type cannot be empty")
	}
	if strings.TrimSpace(a.ID) == "" {
		return dErrors.New(dErrors.CodeValidation, "actor.id cannot be empty")
	}
	return nil
}

// Permissions is the capability set controlling who may read a correction
// back. It is persisted with the row and evaluated inside the store query,
// never on an already-loaded result set.
type Permissions struct {
	Readers  []string `json:"readers,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
	DenyList []string `json:"deny_list,omitempty"`
}

// Validate requires at least one reader or scope. A correction nobody could
// ever read back is a write-only secret and almost certainly a caller bug.
func (p Permissions) Validate() error {
	if len(p.Readers) == 0 && len(p.Scopes) == 0 {
		return dErrors.New(dErrors.CodeValidation, "permissions must include at least one reader or scope")
	}
	return nil
}

// Allows is the membership test the store queries must agree with. Deny wins
// over everything; otherwise a requester is admitted by direct reader
// membership or by holding any of the granted scopes.
func (p Permissions) Allows(requesterID string, requesterScopes []string) bool {
	if slices.Contains(p.DenyList, requesterID) {
		return false
	}
	if slices.Contains(p.Readers, requesterID) {
		return true
	}
	for _, scope := range requesterScopes {
		if slices.Contains(p.Scopes, scope) {
			return true
		}
	}
	return false
}

// Correction is one immutable assertion about one field of one subject.
//
// Invariants:
//   - At most one ACTIVE row exists per (tenant, subject type, subject id,
//     field key); the store's partial unique index is the arbiter.
//   - Every field except Status is frozen once persisted; CreatedAt never
//     changes.
//   - Supersedes forms a backward chain that never cycles and terminates at
//     a row with Supersedes == nil.
type Correction struct {
	ID             id.CorrectionID
	TenantID       id.TenantID
	Subject        Subject
	FieldKey       string
	Value          json.RawMessage
	Class          CorrectionClass
	Status         CorrectionStatus
	Supersedes     *id.CorrectionID
	Permissions    Permissions
	Actor          Actor
	Origin         id.Origin
	IdempotencyKey string
	CreatedAt      time.Time
}

func (c *Correction) IsActive() bool {
	return c.Status == StatusActive
}

// CanRevoke checks whether the row may transition to REVOKED. An already
// REVOKED row is not an error at the service layer (revoke is idempotent);
// this guard exists for the transitions that would rewind history.
func (c *Correction) CanRevoke() error {
	if c.Status == StatusRevoked {
		return nil
	}
	if !c.Status.CanTransitionTo(StatusRevoked) {
		return dErrors.Newf(dErrors.CodeConflict, "correction in status %s cannot be revoked", c.Status)
	}
	return nil
}

// ApplyRevocation transitions the row to REVOKED. Call CanRevoke first.
func (c *Correction) ApplyRevocation() {
	c.Status = StatusRevoked
}

// NewCorrection assembles a fresh ACTIVE row from validated input. The
// supersedes pointer is whatever the ledger discovered (or the caller named)
// inside the write transaction; the constructor does not re-check it.
func NewCorrection(correctionID id.CorrectionID, in CreateInput, supersedes *id.CorrectionID, now time.Time) *Correction {
	return &Correction{
		ID:             correctionID,
		TenantID:       in.TenantID,
		Subject:        in.Subject,
		FieldKey:       in.FieldKey,
		Value:          in.Value,
		Class:          in.Class,
		Status:         StatusActive,
		Supersedes:     supersedes,
		Permissions:    in.Permissions,
		Actor:          in.Actor,
		Origin:         in.Origin,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now.UTC(),
	}
}
