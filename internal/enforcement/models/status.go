package models

import (
	"time"

	id "github.com/keithrawlingsbrown/stet/pkg/domain"
)

// SystemStatus is the derived trust state of one enforcing system.
type SystemStatus string

const (
	StatusOK      SystemStatus = "OK"
	StatusStale   SystemStatus = "STALE"
	StatusMissing SystemStatus = "MISSING"
)

// EscalationLevel aggregates system statuses for a tenant with precedence
// CRITICAL > WARN > NONE.
type EscalationLevel string

const (
	EscalationNone     EscalationLevel = "NONE"
	EscalationWarn     EscalationLevel = "WARN"
	EscalationCritical EscalationLevel = "CRITICAL"
)

// Thresholds derives staleness. A system is STALE when its latest heartbeat
// is strictly older than interval times multiplier; exactly at the boundary
// is still OK.
type Thresholds struct {
	HeartbeatInterval time.Duration
	GraceMultiplier   int
}

func (t Thresholds) Window() time.Duration {
	return t.HeartbeatInterval * time.Duration(t.GraceMultiplier)
}

// StatusOf is the pure staleness function: latest heartbeat plus the
// caller's clock, no cached state. A nil latest means the system never
// reported.
func (t Thresholds) StatusOf(latest *Heartbeat, now time.Time) SystemStatus {
	if latest == nil {
		return StatusMissing
	}
	if now.Sub(latest.ReportedAt) > t.Window() {
		return StatusStale
	}
	return StatusOK
}

// SystemReport is one system's derived status. LastReportedAt is nil when
// the system never reported.
type SystemReport struct {
	SystemID       string
	Status         SystemStatus
	LastReportedAt *time.Time
}

// EscalationSummary counts systems by derived status.
type EscalationSummary struct {
	TotalSystems int
	OK           int
	Stale        int
	Missing      int
}

// AffectedSystem names one non-OK system in an escalation report.
type AffectedSystem struct {
	SystemID string
	Status   SystemStatus
}

// EscalationReport is the tenant-wide aggregation at one evaluation instant.
// Deriving it never mutates state; it is safe to recompute on every poll.
type EscalationReport struct {
	TenantID        id.TenantID
	Level           EscalationLevel
	EvaluatedAt     time.Time
	Summary         EscalationSummary
	AffectedSystems []AffectedSystem
}
