package idempotency

import (
	"context"
	"fmt"
	"sync"

	"github.com/keithrawlingsbrown/stet/internal/ledger/models"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	"github.com/keithrawlingsbrown/stet/pkg/platform/sentinel"
)

type memoryKey struct {
	tenantID id.TenantID
	key      string
}

// InMemory mirrors the postgres store contract for unit tests and dev mode.
type InMemory struct {
	mu   sync.RWMutex
	recs map[memoryKey]models.IdempotencyRecord
}

func NewInMemory() *InMemory {
	return &InMemory{recs: make(map[memoryKey]models.IdempotencyRecord)}
}

func (s *InMemory) Find(_ context.Context, tenantID id.TenantID, key string) (*models.IdempotencyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recs[memoryKey{tenantID: tenantID, key: key}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &rec, nil
}

func (s *InMemory) Insert(_ context.Context, rec *models.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey{tenantID: rec.TenantID, key: rec.Key}
	if _, exists := s.recs[k]; exists {
		return fmt.Errorf("insert idempotency record: %w", sentinel.ErrUniqueViolation)
	}
	s.recs[k] = *rec
	return nil
}
