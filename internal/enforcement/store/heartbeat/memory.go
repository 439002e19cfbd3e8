package heartbeat

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/keithrawlingsbrown/stet/internal/enforcement/models"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	"github.com/keithrawlingsbrown/stet/pkg/platform/sentinel"
)

// InMemory mirrors the postgres store contract for unit tests and dev mode.
// Rows are copied on the way in and out.
type InMemory struct {
	mu   sync.RWMutex
	rows []*models.Heartbeat
	seen map[id.HeartbeatID]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{seen: make(map[id.HeartbeatID]struct{})}
}

func (s *InMemory) Insert(_ context.Context, hb *models.Heartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[hb.ID]; exists {
		return fmt.Errorf("insert heartbeat: %w", sentinel.ErrUniqueViolation)
	}
	s.seen[hb.ID] = struct{}{}
	c := *hb
	s.rows = append(s.rows, &c)
	return nil
}

func (s *InMemory) LatestPerSystem(_ context.Context, tenantID id.TenantID) ([]*models.Heartbeat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]*models.Heartbeat)
	for _, row := range s.rows {
		if row.TenantID != tenantID {
			continue
		}
		cur, ok := latest[row.SystemID]
		if !ok || row.ReportedAt.After(cur.ReportedAt) {
			latest[row.SystemID] = row
		}
	}

	out := make([]*models.Heartbeat, 0, len(latest))
	for _, row := range latest {
		c := *row
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SystemID < out[j].SystemID
	})
	return out, nil
}

func (s *InMemory) LatestForSystem(_ context.Context, tenantID id.TenantID, systemID string) (*models.Heartbeat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Heartbeat
	for _, row := range s.rows {
		if row.TenantID != tenantID || row.SystemID != systemID {
			continue
		}
		if found == nil || row.ReportedAt.After(found.ReportedAt) {
			found = row
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	c := *found
	return &c, nil
}
