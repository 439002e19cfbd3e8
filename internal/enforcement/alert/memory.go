package alert

import (
	"context"
	"sync"
	"time"

	"github.com/keithrawlingsbrown/stet/internal/enforcement/models"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
)

// InMemorySink mirrors the Redis sink for tests and single-instance dev
// mode. Expired claims are pruned lazily on the next Claim.
type InMemorySink struct {
	mu     sync.Mutex
	bucket time.Duration
	claims map[string]time.Time
}

func NewInMemorySink(bucket time.Duration) *InMemorySink {
	return &InMemorySink{
		bucket: bucket,
		claims: make(map[string]time.Time),
	}
}

func (s *InMemorySink) Claim(_ context.Context, tenantID id.TenantID, level models.EscalationLevel, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, expiry := range s.claims {
		if !at.Before(expiry) {
			delete(s.claims, key)
		}
	}

	key := claimKey(tenantID, level, at, s.bucket)
	if _, taken := s.claims[key]; taken {
		return false, nil
	}
	s.claims[key] = at.UTC().Truncate(s.bucket).Add(s.bucket)
	return true, nil
}
