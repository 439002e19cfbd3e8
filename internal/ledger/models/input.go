package models

import (
	"encoding/json"
	"strings"

	"github.com/keithrawlingsbrown/stet/pkg/canonhash"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
	platformstrings "github.com/keithrawlingsbrown/stet/pkg/platform/strings"
)

// CreateInput is the validated service-level input for recording a
// correction. Transport concerns (header tenant, JSON decoding) are resolved
// before this struct exists.
type CreateInput struct {
	TenantID       id.TenantID
	Subject        Subject
	FieldKey       string
	Value          json.RawMessage
	Class          CorrectionClass
	Permissions    Permissions
	Actor          Actor
	Origin         id.Origin
	IdempotencyKey string

	// Supersedes names an explicit target to replace. When nil the ledger
	// discovers the current ACTIVE row for the field on its own.
	Supersedes *id.CorrectionID
}

// Normalize trims identifier-like fields and dedupes the permission lists.
// Value is left untouched: it is caller data, not an identifier.
func (in *CreateInput) Normalize() {
	in.Subject.Type = strings.TrimSpace(in.Subject.Type)
	in.Subject.ID = strings.TrimSpace(in.Subject.ID)
	in.FieldKey = strings.TrimSpace(in.FieldKey)
	in.Actor.Type = strings.TrimSpace(in.Actor.Type)
	in.Actor.ID = strings.TrimSpace(in.Actor.ID)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	in.Permissions.Readers = platformstrings.DedupeAndTrim(in.Permissions.Readers)
	in.Permissions.Scopes = platformstrings.DedupeAndTrim(in.Permissions.Scopes)
	in.Permissions.DenyList = platformstrings.DedupeAndTrim(in.Permissions.DenyList)
}

// Validate rejects malformed input before any transaction begins.
func (in *CreateInput) Validate() error {
	if in.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "tenant id is required")
	}
	if err := in.Subject.Validate(); err != nil {
		return err
	}
	if in.FieldKey == "" {
		return dErrors.New(dErrors.CodeValidation, "field_key cannot be empty")
	}
	if len(in.Value) == 0 {
		return dErrors.New(dErrors.CodeValidation, "value is required")
	}
	if !in.Class.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "class must be %s or %s", ClassFact, ClassDiscardable)
	}
	if err := in.Permissions.Validate(); err != nil {
		return err
	}
	if err := in.Actor.Validate(); err != nil {
		return err
	}
	if in.IdempotencyKey == "" {
		return dErrors.New(dErrors.CodeValidation, "idempotency_key cannot be empty")
	}
	return nil
}

// hashEnvelope fixes the set of fields the content hash covers. The
// idempotency key is deliberately absent: the hash identifies the logical
// write, the key identifies the retry lineage, and conflating them would make
// every key reuse look like a legitimate replay.
type hashEnvelope struct {
	Subject     Subject          `json:"subject"`
	FieldKey    string           `json:"field_key"`
	Value       json.RawMessage  `json:"value"`
	Class       CorrectionClass  `json:"class"`
	Permissions Permissions      `json:"permissions"`
	Actor       Actor            `json:"actor"`
	Supersedes  *id.CorrectionID `json:"supersedes,omitempty"`
}

// ContentHash returns the canonical hash of the semantically significant
// request fields. Two requests that differ only in JSON key order or
// whitespace hash identically.
func (in *CreateInput) ContentHash() (string, error) {
	return canonhash.Sum256(hashEnvelope{
		Subject:     in.Subject,
		FieldKey:    in.FieldKey,
		Value:       in.Value,
		Class:       in.Class,
		Permissions: in.Permissions,
		Actor:       in.Actor,
		Supersedes:  in.Supersedes,
	})
}
