package correction

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/keithrawlingsbrown/stet/internal/ledger/models"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	"github.com/keithrawlingsbrown/stet/pkg/platform/sentinel"
)

// InMemory mirrors the postgres store contract, including the single-ACTIVE
// arbiter and in-store permission filtering. Rows are copied on the way in
// and out so callers cannot mutate stored state.
type InMemory struct {
	mu   sync.RWMutex
	rows map[id.CorrectionID]*models.Correction
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[id.CorrectionID]*models.Correction)}
}

func (s *InMemory) Insert(_ context.Context, c *models.Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[c.ID]; exists {
		return fmt.Errorf("insert correction: %w", sentinel.ErrUniqueViolation)
	}
	if c.Status == models.StatusActive {
		for _, row := range s.rows {
			if row.Status == models.StatusActive &&
				row.TenantID == c.TenantID &&
				row.Subject == c.Subject &&
				row.FieldKey == c.FieldKey {
				return fmt.Errorf("insert correction: %w", sentinel.ErrUniqueViolation)
			}
		}
	}
	s.rows[c.ID] = clone(c)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID, correctionID id.CorrectionID) (*models.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[correctionID]
	if !ok || row.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return clone(row), nil
}

func (s *InMemory) FindActive(_ context.Context, tenantID id.TenantID, subject models.Subject, fieldKey string) (*models.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, row := range s.rows {
		if row.Status == models.StatusActive &&
			row.TenantID == tenantID &&
			row.Subject == subject &&
			row.FieldKey == fieldKey {
			return clone(row), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) MarkSuperseded(_ context.Context, tenantID id.TenantID, correctionID id.CorrectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[correctionID]
	if !ok || row.TenantID != tenantID || row.Status != models.StatusActive {
		return fmt.Errorf("mark superseded: row no longer ACTIVE: %w", sentinel.ErrConflict)
	}
	row.Status = models.StatusSuperseded
	return nil
}

func (s *InMemory) MarkRevoked(_ context.Context, tenantID id.TenantID, correctionID id.CorrectionID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[correctionID]
	if !ok || row.TenantID != tenantID {
		return false, nil
	}
	if row.Status != models.StatusActive && row.Status != models.StatusSuperseded {
		return false, nil
	}
	row.Status = models.StatusRevoked
	return true, nil
}

func (s *InMemory) FactsFor(_ context.Context, q models.FactsQuery) ([]*models.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fieldSet := make(map[string]struct{}, len(q.FieldKeys))
	for _, k := range q.FieldKeys {
		fieldSet[k] = struct{}{}
	}

	var out []*models.Correction
	for _, row := range s.rows {
		if row.TenantID != q.TenantID || row.Subject != q.Subject {
			continue
		}
		if row.Status != models.StatusActive || row.Class != models.ClassFact {
			continue
		}
		if len(fieldSet) > 0 {
			if _, ok := fieldSet[row.FieldKey]; !ok {
				continue
			}
		}
		if !row.Permissions.Allows(q.RequesterID, q.RequesterScopes) {
			continue
		}
		out = append(out, clone(row))
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *InMemory) HistoryFor(_ context.Context, q models.HistoryQuery) ([]*models.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Correction
	for _, row := range s.rows {
		if row.TenantID != q.TenantID || row.Subject != q.Subject {
			continue
		}
		if row.Status == models.StatusRevoked && !q.IncludeRevoked {
			continue
		}
		if q.FieldKey != "" && row.FieldKey != q.FieldKey {
			continue
		}
		if !row.Permissions.Allows(q.RequesterID, q.RequesterScopes) {
			continue
		}
		out = append(out, clone(row))
	}
	sortOldestFirst(out)
	return out, nil
}

func sortOldestFirst(rows []*models.Correction) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID.String() < rows[j].ID.String()
	})
}

func clone(c *models.Correction) *models.Correction {
	out := *c
	if c.Supersedes != nil {
		sup := *c.Supersedes
		out.Supersedes = &sup
	}
	out.Value = append([]byte(nil), c.Value...)
	out.Permissions = models.Permissions{
		Readers:  append([]string(nil), c.Permissions.Readers...),
		Scopes:   append([]string(nil), c.Permissions.Scopes...),
		DenyList: append([]string(nil), c.Permissions.DenyList...),
	}
	return &out
}
