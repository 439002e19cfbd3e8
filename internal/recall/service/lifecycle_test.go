package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/keithrawlingsbrown/stet/internal/ledger/models"
	ledgerservice "github.com/keithrawlingsbrown/stet/internal/ledger/service"
	correctionStore "github.com/keithrawlingsbrown/stet/internal/ledger/store/correction"
	idempotencyStore "github.com/keithrawlingsbrown/stet/internal/ledger/store/idempotency"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	"github.com/keithrawlingsbrown/stet/pkg/requestcontext"
	"github.com/keithrawlingsbrown/stet/pkg/testutil"
)

// TestCorrectionLifecycle drives one field through record, replace, and
// revoke via the ledger service and checks what recall serves at each step.
func TestCorrectionLifecycle(t *testing.T) {
	corrections := correctionStore.NewInMemory()
	ledger := ledgerservice.New(corrections, idempotencyStore.NewInMemory())
	recall := New(corrections)

	ctx := context.Background()
	tenantID := id.TenantID(uuid.New())
	subject := models.Subject{Type: "user", ID: "user-42"}
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	record := func(t *testing.T, at time.Time, key string, value json.RawMessage) *models.Correction {
		t.Helper()
		created, _, err := ledger.Create(requestcontext.WithTime(ctx, at), models.CreateInput{
			TenantID:       tenantID,
			Subject:        subject,
			FieldKey:       "shipping_address",
			Value:          value,
			Class:          models.ClassFact,
			Permissions:    models.Permissions{Readers: []string{"crm"}},
			Actor:          models.Actor{Type: "agent", ID: "agent-7"},
			Origin:         id.Origin{Service: "crm-sync", Version: "2.3.1"},
			IdempotencyKey: key,
		})
		if err != nil {
			t.Fatalf("create correction: %v", err)
		}
		return created
	}

	facts := func(t *testing.T) []Fact {
		t.Helper()
		out, err := recall.Facts(ctx, models.FactsQuery{
			TenantID:    tenantID,
			Subject:     subject,
			RequesterID: "crm",
		})
		if err != nil {
			t.Fatalf("read facts: %v", err)
		}
		return out
	}

	history := func(t *testing.T, includeRevoked bool) []HistoryEntry {
		t.Helper()
		out, err := recall.History(ctx, models.HistoryQuery{
			TenantID:       tenantID,
			Subject:        subject,
			RequesterID:    "crm",
			IncludeRevoked: includeRevoked,
		})
		if err != nil {
			t.Fatalf("read history: %v", err)
		}
		return out
	}

	var first, second *models.Correction

	testutil.Given(t, "a recorded correction for a subject field", func(t *testing.T) {
		first = record(t, base, "key-1", json.RawMessage(`{"city":"Lyon"}`))

		testutil.When(t, "a second correction replaces it", func(t *testing.T) {
			second = record(t, base.Add(time.Minute), "key-2", json.RawMessage(`{"city":"Annecy"}`))

			testutil.Then(t, "facts serve only the replacement", func(t *testing.T) {
				got := facts(t)
				if len(got) != 1 {
					t.Fatalf("expected 1 fact, got %d", len(got))
				}
				if got[0].CorrectionID != second.ID {
					t.Fatalf("expected fact %s, got %s", second.ID, got[0].CorrectionID)
				}
			})

			testutil.Then(t, "history keeps the full chain oldest first", func(t *testing.T) {
				got := history(t, false)
				if len(got) != 2 {
					t.Fatalf("expected 2 history entries, got %d", len(got))
				}
				if got[0].CorrectionID != first.ID || got[0].Status != models.StatusSuperseded {
					t.Fatalf("expected %s SUPERSEDED first, got %s %s", first.ID, got[0].CorrectionID, got[0].Status)
				}
				if got[0].SupersededBy == nil || *got[0].SupersededBy != second.ID {
					t.Fatalf("expected superseded_by %s, got %v", second.ID, got[0].SupersededBy)
				}
				if got[1].Supersedes == nil || *got[1].Supersedes != first.ID {
					t.Fatalf("expected supersedes %s, got %v", first.ID, got[1].Supersedes)
				}
			})
		})

		testutil.When(t, "the replacement is revoked", func(t *testing.T) {
			revoked, err := ledger.Revoke(requestcontext.WithTime(ctx, base.Add(2*time.Minute)), tenantID, second.ID)
			if err != nil {
				t.Fatalf("revoke correction: %v", err)
			}
			if revoked.Status != models.StatusRevoked {
				t.Fatalf("expected REVOKED, got %s", revoked.Status)
			}

			testutil.Then(t, "the field no longer has a current fact", func(t *testing.T) {
				if got := facts(t); len(got) != 0 {
					t.Fatalf("expected no facts, got %d", len(got))
				}
			})

			testutil.Then(t, "revoked rows stay hidden until asked for", func(t *testing.T) {
				got := history(t, false)
				if len(got) != 1 {
					t.Fatalf("expected 1 history entry, got %d", len(got))
				}
				if got[0].SupersededBy != nil {
					t.Fatalf("expected no superseded_by for a hidden replacement, got %v", got[0].SupersededBy)
				}

				withRevoked := history(t, true)
				if len(withRevoked) != 2 {
					t.Fatalf("expected 2 history entries with revoked, got %d", len(withRevoked))
				}
				if withRevoked[1].Status != models.StatusRevoked {
					t.Fatalf("expected REVOKED last, got %s", withRevoked[1].Status)
				}
			})
		})
	})
}
