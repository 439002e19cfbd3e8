// Package audit captures the append-only trail of ledger and enforcement
// activity. Events are written through the transactional outbox so they
// commit or roll back together with the state change they describe.
package audit

import (
	"time"

	id "github.com/keithrawlingsbrown/stet/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose, which
// drives retention and routing downstream.
type EventCategory string

const (
	// CategoryCompliance covers ledger mutations. Corrections are the
	// system's promises; their audit trail needs long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers enforcement telemetry: heartbeats and
	// escalation alerts. Useful for debugging, safe to sample.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	// Ledger events
	EventCorrectionRecorded   AuditEvent = "correction_recorded"
	EventCorrectionSuperseded AuditEvent = "correction_superseded"
	EventCorrectionRevoked    AuditEvent = "correction_revoked"

	// Enforcement events
	EventHeartbeatRecorded AuditEvent = "heartbeat_recorded"
	EventEscalationAlerted AuditEvent = "escalation_alerted"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCorrectionRecorded:   CategoryCompliance,
	EventCorrectionSuperseded: CategoryCompliance,
	EventCorrectionRevoked:    CategoryCompliance,

	EventHeartbeatRecorded: CategoryOperations,
	EventEscalationAlerted: CategoryOperations,
}

// Category returns the event's category, defaulting to operations for
// unknown actions so nothing is ever dropped on the floor.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out. Fields beyond Action
// and TenantID are populated per event kind.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	TenantID  id.TenantID
	Action    string

	// Ledger events
	CorrectionID string
	FieldKey     string
	Supersedes   string
	SupersededBy string
	PriorStatus  string

	// Enforcement events
	SystemID string
	Level    string

	// RequestID correlates the event with the HTTP request that caused it.
	RequestID string
}
