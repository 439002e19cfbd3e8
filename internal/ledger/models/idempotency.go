package models

import (
	"time"

	id "github.com/keithrawlingsbrown/stet/pkg/domain"
)

// IdempotencyRecord pins an idempotency key to the correction it produced
// and the hash of the payload that produced it. Created atomically with the
// correction, never updated.
type IdempotencyRecord struct {
	TenantID     id.TenantID
	Key          string
	CorrectionID id.CorrectionID
	PayloadHash  string
	CreatedAt    time.Time
}
