package models

import (
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
)

// CorrectionRecorded is emitted inside the create transaction once the new
// ACTIVE row is in place.
type CorrectionRecorded struct {
	CorrectionID id.CorrectionID
	TenantID     id.TenantID
	Subject      Subject
	FieldKey     string
	Class        CorrectionClass
	Supersedes   *id.CorrectionID
}

// CorrectionSuperseded is emitted alongside CorrectionRecorded when the
// create displaced a prior ACTIVE row.
type CorrectionSuperseded struct {
	CorrectionID id.CorrectionID
	TenantID     id.TenantID
	SupersededBy id.CorrectionID
}

// CorrectionRevoked is emitted when a revoke actually changes status. The
// idempotent no-op path (already REVOKED) emits nothing.
type CorrectionRevoked struct {
	CorrectionID id.CorrectionID
	TenantID     id.TenantID
	PriorStatus  CorrectionStatus
}
