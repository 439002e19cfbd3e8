// Package models defines the enforcement trust monitor's domain types:
// heartbeats as reported by downstream systems, and the derived staleness
// and escalation views.
package models

import (
	"strings"
	"time"

	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
)

// Heartbeat is one append-only report from an enforcing system. ReportedAt
// is assigned at receipt; a reporter cannot spoof its own freshness.
type Heartbeat struct {
	ID       id.HeartbeatID
	TenantID id.TenantID
	SystemID string

	// EnforcedCorrectionVersion is the ledger watermark the system claims
	// to have applied, as a timestamp.
	EnforcedCorrectionVersion time.Time

	Origin     id.Origin
	ReportedAt time.Time
}

// HeartbeatInput carries a validated heartbeat report into the monitor.
type HeartbeatInput struct {
	TenantID                  id.TenantID
	SystemID                  string
	EnforcedCorrectionVersion time.Time
	Origin                    id.Origin
}

// Normalize trims caller-controlled text fields in place.
func (in *HeartbeatInput) Normalize() {
	in.SystemID = strings.TrimSpace(in.SystemID)
	in.Origin.Service = strings.TrimSpace(in.Origin.Service)
	in.Origin.Version = strings.TrimSpace(in.Origin.Version)
	in.Origin.Environment = strings.TrimSpace(in.Origin.Environment)
}

// Validate checks the input after origin fallback has been applied.
func (in HeartbeatInput) Validate() error {
	if in.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "tenant id is required")
	}
	if in.SystemID == "" {
		return dErrors.New(dErrors.CodeValidation, "system_id cannot be empty")
	}
	if in.EnforcedCorrectionVersion.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "enforced_correction_version must be a non-zero RFC3339 timestamp")
	}
	return in.Origin.Validate()
}

// NewHeartbeat builds the persisted row from validated input. The receipt
// time comes from the monitor's clock, never the reporter's.
func NewHeartbeat(heartbeatID id.HeartbeatID, in HeartbeatInput, now time.Time) *Heartbeat {
	return &Heartbeat{
		ID:                        heartbeatID,
		TenantID:                  in.TenantID,
		SystemID:                  in.SystemID,
		EnforcedCorrectionVersion: in.EnforcedCorrectionVersion.UTC(),
		Origin:                    in.Origin,
		ReportedAt:                now.UTC(),
	}
}
