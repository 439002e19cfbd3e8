// Package domain defines typed identifiers shared across features.
//
// IDs are distinct types over uuid.UUID so the compiler rejects cross-type
// assignment (a CorrectionID can never be passed where a TenantID is
// expected). Construct via ParseXxxID at trust boundaries to enforce the
// non-empty, non-nil invariant; direct casting bypasses validation and is
// reserved for generation (`TenantID(uuid.New())`) and tests.
package domain

import (
	"github.com/google/uuid"

	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
)

// TenantID identifies the tenant that owns a ledger partition.
type TenantID uuid.UUID

// CorrectionID identifies a single immutable correction row.
type CorrectionID uuid.UUID

// HeartbeatID identifies a recorded enforcement heartbeat.
type HeartbeatID uuid.UUID

func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be the nil UUID")
	}
	return u, nil
}

// ParseTenantID constructs a TenantID from external input.
func ParseTenantID(raw string) (TenantID, error) {
	u, err := parseUUID(raw, "tenant id")
	if err != nil {
		return TenantID{}, err
	}
	return TenantID(u), nil
}

// ParseCorrectionID constructs a CorrectionID from external input.
func ParseCorrectionID(raw string) (CorrectionID, error) {
	u, err := parseUUID(raw, "correction id")
	if err != nil {
		return CorrectionID{}, err
	}
	return CorrectionID(u), nil
}

// ParseHeartbeatID constructs a HeartbeatID from external input.
func ParseHeartbeatID(raw string) (HeartbeatID, error) {
	u, err := parseUUID(raw, "heartbeat id")
	if err != nil {
		return HeartbeatID{}, err
	}
	return HeartbeatID(u), nil
}

func (id TenantID) String() string     { return uuid.UUID(id).String() }
func (id CorrectionID) String() string { return uuid.UUID(id).String() }
func (id HeartbeatID) String() string  { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id CorrectionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id HeartbeatID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders the ID as its canonical UUID string in JSON and text
// encodings. Without these the defined types would marshal as byte arrays.
func (id TenantID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id CorrectionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id HeartbeatID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }

// UnmarshalText accepts any well-formed UUID, including nil. Strictness
// (rejecting nil) belongs to the Parse functions at trust boundaries; wire
// decoding must round-trip whatever was written.
func (id *TenantID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = TenantID(u)
	return nil
}

func (id *CorrectionID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = CorrectionID(u)
	return nil
}

func (id *HeartbeatID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = HeartbeatID(u)
	return nil
}
