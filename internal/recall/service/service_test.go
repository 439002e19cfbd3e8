package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/keithrawlingsbrown/stet/internal/ledger/models"
	ledgerservice "github.com/keithrawlingsbrown/stet/internal/ledger/service"
	correctionStore "github.com/keithrawlingsbrown/stet/internal/ledger/store/correction"
	idempotencyStore "github.com/keithrawlingsbrown/stet/internal/ledger/store/idempotency"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
	"github.com/keithrawlingsbrown/stet/pkg/requestcontext"
)

// =============================================================================
// Recall Service Test Suite
// =============================================================================
// Justification for unit tests: the recall views are where the permission
// model actually bites. These tests pin the membership rules (deny beats
// readers beats scopes), the facts/history projections, and the rule that
// superseded_by never names a row the requester cannot see.

type RecallServiceSuite struct {
	suite.Suite
	corrections *correctionStore.InMemory
	ledger      *ledgerservice.Service
	service     *Service

	ctx      context.Context
	tenantID id.TenantID
	subject  models.Subject
}

func TestRecallServiceSuite(t *testing.T) {
	suite.Run(t, new(RecallServiceSuite))
}

func (s *RecallServiceSuite) SetupTest() {
	s.corrections = correctionStore.NewInMemory()
	s.ledger = ledgerservice.New(s.corrections, idempotencyStore.NewInMemory())
	s.service = New(s.corrections)
	s.ctx = context.Background()
	s.tenantID = id.TenantID(uuid.New())
	s.subject = models.Subject{Type: "user", ID: "user-42"}
}

// record writes a correction through the ledger service at a fixed instant so
// ordering in the views is deterministic.
func (s *RecallServiceSuite) record(at time.Time, in models.CreateInput) *models.Correction {
	created, _, err := s.ledger.Create(requestcontext.WithTime(s.ctx, at), in)
	s.Require().NoError(err)
	return created
}

func (s *RecallServiceSuite) input(fieldKey, key string, perms models.Permissions) models.CreateInput {
	return models.CreateInput{
		TenantID:       s.tenantID,
		Subject:        s.subject,
		FieldKey:       fieldKey,
		Value:          json.RawMessage(`{"v":"` + key + `"}`),
		Class:          models.ClassFact,
		Permissions:    perms,
		Actor:          models.Actor{Type: "agent", ID: "agent-7"},
		Origin:         id.Origin{Service: "crm-sync", Version: "2.3.1"},
		IdempotencyKey: key,
	}
}

func (s *RecallServiceSuite) facts(requesterID string, scopes ...string) []Fact {
	facts, err := s.service.Facts(s.ctx, models.FactsQuery{
		TenantID:        s.tenantID,
		Subject:         s.subject,
		RequesterID:     requesterID,
		RequesterScopes: scopes,
	})
	s.Require().NoError(err)
	return facts
}

func (s *RecallServiceSuite) history(requesterID string, includeRevoked bool) []HistoryEntry {
	entries, err := s.service.History(s.ctx, models.HistoryQuery{
		TenantID:       s.tenantID,
		Subject:        s.subject,
		RequesterID:    requesterID,
		IncludeRevoked: includeRevoked,
	})
	s.Require().NoError(err)
	return entries
}

// =============================================================================
// Validation Tests
// =============================================================================

func (s *RecallServiceSuite) TestValidation() {
	s.Run("facts requires a requester", func() {
		_, err := s.service.Facts(s.ctx, models.FactsQuery{
			TenantID: s.tenantID,
			Subject:  s.subject,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "requester_id is required")
	})

	s.Run("history requires a subject", func() {
		_, err := s.service.History(s.ctx, models.HistoryQuery{
			TenantID:    s.tenantID,
			Subject:     models.Subject{Type: "user"},
			RequesterID: "crm",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("tenant is required", func() {
		_, err := s.service.Facts(s.ctx, models.FactsQuery{
			Subject:     s.subject,
			RequesterID: "crm",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Facts Tests
// =============================================================================

func (s *RecallServiceSuite) TestFactsPermissions() {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s.record(base, s.input("shipping_address", "key-addr", models.Permissions{
		Readers: []string{"crm"},
	}))
	s.record(base.Add(time.Minute), s.input("phone_number", "key-phone", models.Permissions{
		Scopes: []string{"support"},
	}))
	s.record(base.Add(2*time.Minute), s.input("email", "key-email", models.Permissions{
		Readers:  []string{"crm", "billing"},
		DenyList: []string{"crm"},
	}))
	s.record(base.Add(3*time.Minute), s.input("loyalty_tier", "key-tier", models.Permissions{
		Scopes:   []string{"support"},
		DenyList: []string{"stranger"},
	}))

	fields := func(requester string, scopes ...string) []string {
		out := make([]string, 0)
		for _, f := range s.facts(requester, scopes...) {
			out = append(out, f.FieldKey)
		}
		return out
	}

	s.Run("reader membership grants exactly the listed fields", func() {
		s.Equal([]string{"shipping_address"}, fields("crm"))
	})

	s.Run("scope overlap grants access without reader membership", func() {
		s.Equal([]string{"phone_number", "loyalty_tier"}, fields("someone", "support", "audit"))
	})

	s.Run("deny wins over reader membership", func() {
		s.Contains(fields("billing"), "email")
		s.NotContains(fields("crm"), "email")
	})

	s.Run("deny wins over scope overlap", func() {
		seen := fields("stranger", "support")
		s.Contains(seen, "phone_number")
		s.NotContains(seen, "loyalty_tier")
	})

	s.Run("no membership yields an empty view, not an error", func() {
		s.Empty(s.facts("nobody"))
	})
}

func (s *RecallServiceSuite) TestFactsProjection() {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	first := s.record(base, s.input("shipping_address", "key-1", models.Permissions{
		Readers: []string{"crm"},
	}))
	second := s.record(base.Add(time.Hour), s.input("shipping_address", "key-2", models.Permissions{
		Readers: []string{"crm"},
	}))

	s.Run("only the newest active row projects into facts", func() {
		facts := s.facts("crm")
		s.Require().Len(facts, 1)
		s.Equal(second.ID, facts[0].CorrectionID)
		s.JSONEq(`{"v":"key-2"}`, string(facts[0].Value))
		s.True(facts[0].CorrectedAt.Equal(second.CreatedAt))
		s.Equal(models.Actor{Type: "agent", ID: "agent-7"}, facts[0].Actor)
	})

	s.Run("superseded rows stay out of facts", func() {
		for _, f := range s.facts("crm") {
			s.NotEqual(first.ID, f.CorrectionID)
		}
	})

	s.Run("discardable corrections never surface as facts", func() {
		in := s.input("session_note", "key-note", models.Permissions{Readers: []string{"crm"}})
		in.Class = models.ClassDiscardable
		s.record(base.Add(2*time.Hour), in)

		for _, f := range s.facts("crm") {
			s.NotEqual("session_note", f.FieldKey)
		}
	})

	s.Run("field_keys narrows the view", func() {
		s.record(base.Add(3*time.Hour), s.input("phone_number", "key-3", models.Permissions{
			Readers: []string{"crm"},
		}))
		facts, err := s.service.Facts(s.ctx, models.FactsQuery{
			TenantID:    s.tenantID,
			Subject:     s.subject,
			RequesterID: "crm",
			FieldKeys:   []string{" phone_number ", "phone_number"},
		})
		s.Require().NoError(err)
		s.Require().Len(facts, 1)
		s.Equal("phone_number", facts[0].FieldKey)
	})
}

// =============================================================================
// History Tests
// =============================================================================

func (s *RecallServiceSuite) TestHistoryChain() {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	shared := models.Permissions{Readers: []string{"crm", "billing"}}
	first := s.record(base, s.input("shipping_address", "key-1", shared))
	second := s.record(base.Add(time.Minute), s.input("shipping_address", "key-2", shared))
	third := s.record(base.Add(2*time.Minute), s.input("shipping_address", "key-3", shared))

	entries := s.history("crm", false)
	s.Require().Len(entries, 3)

	s.Run("entries come back oldest first", func() {
		s.Equal(first.ID, entries[0].CorrectionID)
		s.Equal(second.ID, entries[1].CorrectionID)
		s.Equal(third.ID, entries[2].CorrectionID)
	})

	s.Run("supersedes and superseded_by mirror each other", func() {
		s.Nil(entries[0].Supersedes)
		s.Require().NotNil(entries[0].SupersededBy)
		s.Equal(second.ID, *entries[0].SupersededBy)

		s.Require().NotNil(entries[1].Supersedes)
		s.Equal(first.ID, *entries[1].Supersedes)
		s.Require().NotNil(entries[1].SupersededBy)
		s.Equal(third.ID, *entries[1].SupersededBy)

		s.Require().NotNil(entries[2].Supersedes)
		s.Equal(second.ID, *entries[2].Supersedes)
		s.Nil(entries[2].SupersededBy)
	})

	s.Run("statuses track the chain", func() {
		s.Equal(models.StatusSuperseded, entries[0].Status)
		s.Equal(models.StatusSuperseded, entries[1].Status)
		s.Equal(models.StatusActive, entries[2].Status)
	})
}

func (s *RecallServiceSuite) TestHistoryRevokedVisibility() {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	perms := models.Permissions{Readers: []string{"crm"}}
	revoked := s.record(base, s.input("phone_number", "key-phone", perms))
	s.record(base.Add(time.Minute), s.input("shipping_address", "key-addr", perms))
	_, err := s.ledger.Revoke(s.ctx, s.tenantID, revoked.ID)
	s.Require().NoError(err)

	s.Run("revoked rows are hidden by default", func() {
		entries := s.history("crm", false)
		s.Require().Len(entries, 1)
		s.Equal("shipping_address", entries[0].FieldKey)
	})

	s.Run("include_revoked restores them", func() {
		entries := s.history("crm", true)
		s.Require().Len(entries, 2)
		s.Equal(models.StatusRevoked, entries[0].Status)
	})
}

func (s *RecallServiceSuite) TestHistoryHiddenReplacement() {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	first := s.record(base, s.input("shipping_address", "key-1", models.Permissions{
		Readers: []string{"alice", "bob"},
	}))
	second := s.record(base.Add(time.Minute), s.input("shipping_address", "key-2", models.Permissions{
		Readers: []string{"bob"},
	}))

	s.Run("a visible replacement is reported", func() {
		entries := s.history("bob", false)
		s.Require().Len(entries, 2)
		s.Require().NotNil(entries[0].SupersededBy)
		s.Equal(second.ID, *entries[0].SupersededBy)
	})

	s.Run("an invisible replacement leaves superseded_by nil", func() {
		entries := s.history("alice", false)
		s.Require().Len(entries, 1)
		s.Equal(first.ID, entries[0].CorrectionID)
		s.Equal(models.StatusSuperseded, entries[0].Status)
		s.Nil(entries[0].SupersededBy)
	})
}

func (s *RecallServiceSuite) TestHistoryFieldFilter() {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	perms := models.Permissions{Readers: []string{"crm"}}
	s.record(base, s.input("shipping_address", "key-1", perms))
	s.record(base.Add(time.Minute), s.input("phone_number", "key-2", perms))

	entries, err := s.service.History(s.ctx, models.HistoryQuery{
		TenantID:    s.tenantID,
		Subject:     s.subject,
		RequesterID: "crm",
		FieldKey:    " phone_number ",
	})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("phone_number", entries[0].FieldKey)
}
