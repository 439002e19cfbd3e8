// Package alert dedupes escalation alerts. The sink answers one question:
// is this caller the first to see (tenant, level) inside the current time
// bucket? Multiple service instances sharing one Redis therefore alert once
// per bucket; actual delivery stays outside this service.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keithrawlingsbrown/stet/internal/enforcement/models"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
)

const escalationKeyPrefix = "stet:escalation:"

// RedisSink claims alert buckets with SET NX EX. The key expires with the
// bucket, so Redis holds at most one live key per (tenant, level).
type RedisSink struct {
	client *redis.Client
	bucket time.Duration
}

func NewRedisSink(client *redis.Client, bucket time.Duration) *RedisSink {
	return &RedisSink{client: client, bucket: bucket}
}

// Claim returns true when this caller owns the alert for the bucket
// containing at.
func (s *RedisSink) Claim(ctx context.Context, tenantID id.TenantID, level models.EscalationLevel, at time.Time) (bool, error) {
	key := claimKey(tenantID, level, at, s.bucket)
	claimed, err := s.client.SetNX(ctx, key, "1", s.bucket).Result()
	if err != nil {
		return false, fmt.Errorf("claim escalation alert: %w", err)
	}
	return claimed, nil
}

func claimKey(tenantID id.TenantID, level models.EscalationLevel, at time.Time, bucket time.Duration) string {
	return fmt.Sprintf("%s%s:%s:%d",
		escalationKeyPrefix, tenantID.String(), level, at.UTC().Truncate(bucket).Unix())
}
