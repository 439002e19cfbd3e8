package models

import (
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
)

// FactsQuery selects the current facts for one subject as one requester.
// The requester fields feed the permission filter inside the store query;
// they are not advisory.
type FactsQuery struct {
	TenantID        id.TenantID
	Subject         Subject
	RequesterID     string
	RequesterScopes []string

	// FieldKeys narrows the view to the named fields. Empty means all.
	FieldKeys []string
}

// HistoryQuery selects the correction history for one subject as one
// requester. REVOKED rows appear only when IncludeRevoked is set.
type HistoryQuery struct {
	TenantID        id.TenantID
	Subject         Subject
	RequesterID     string
	RequesterScopes []string

	// FieldKey narrows the view to one field. Empty means all.
	FieldKey       string
	IncludeRevoked bool
}
