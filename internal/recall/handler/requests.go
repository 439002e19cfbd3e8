package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/keithrawlingsbrown/stet/internal/ledger/models"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
	strutil "github.com/keithrawlingsbrown/stet/pkg/platform/strings"
)

// Recall reads take their parameters from the query string: identity fields
// as plain values, scope and field lists as CSV.

type readParams struct {
	subject     models.Subject
	requesterID string
	scopes      []string
}

func parseReadParams(r *http.Request) (readParams, error) {
	q := r.URL.Query()
	p := readParams{
		subject: models.Subject{
			Type: strings.TrimSpace(q.Get("subject_type")),
			ID:   strings.TrimSpace(q.Get("subject_id")),
		},
		requesterID: strings.TrimSpace(q.Get("requester_id")),
		scopes:      strutil.SplitCSV(q.Get("requester_scopes")),
	}
	if p.subject.Type == "" {
		return p, dErrors.New(dErrors.CodeValidation, "subject_type is required")
	}
	if p.subject.ID == "" {
		return p, dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	if p.requesterID == "" {
		return p, dErrors.New(dErrors.CodeValidation, "requester_id is required")
	}
	return p, nil
}

func factsQueryFrom(r *http.Request, tenantID id.TenantID) (models.FactsQuery, error) {
	p, err := parseReadParams(r)
	if err != nil {
		return models.FactsQuery{}, err
	}
	return models.FactsQuery{
		TenantID:        tenantID,
		Subject:         p.subject,
		RequesterID:     p.requesterID,
		RequesterScopes: p.scopes,
		FieldKeys:       strutil.SplitCSV(r.URL.Query().Get("field_keys")),
	}, nil
}

func historyQueryFrom(r *http.Request, tenantID id.TenantID) (models.HistoryQuery, error) {
	p, err := parseReadParams(r)
	if err != nil {
		return models.HistoryQuery{}, err
	}
	q := r.URL.Query()

	includeRevoked := false
	if raw := strings.TrimSpace(q.Get("include_revoked")); raw != "" {
		includeRevoked, err = strconv.ParseBool(raw)
		if err != nil {
			return models.HistoryQuery{}, dErrors.New(dErrors.CodeValidation, "include_revoked must be a boolean")
		}
	}

	return models.HistoryQuery{
		TenantID:        tenantID,
		Subject:         p.subject,
		RequesterID:     p.requesterID,
		RequesterScopes: p.scopes,
		FieldKey:        strings.TrimSpace(q.Get("field_key")),
		IncludeRevoked:  includeRevoked,
	}, nil
}
