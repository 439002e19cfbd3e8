//go:build integration

package heartbeat_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/keithrawlingsbrown/stet/internal/enforcement/models"
	"github.com/keithrawlingsbrown/stet/internal/enforcement/store/heartbeat"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	"github.com/keithrawlingsbrown/stet/pkg/platform/sentinel"
	"github.com/keithrawlingsbrown/stet/pkg/testutil/containers"
)

type PostgresHeartbeatSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *heartbeat.PostgresStore
}

func TestPostgresHeartbeatSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresHeartbeatSuite))
}

func (s *PostgresHeartbeatSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = heartbeat.NewPostgres(s.postgres.DB)
}

func (s *PostgresHeartbeatSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "enforcement_heartbeats")
	s.Require().NoError(err)
}

func newTestHeartbeat(tenantID id.TenantID, systemID string, reportedAt time.Time) *models.Heartbeat {
	return &models.Heartbeat{
		ID:                        id.HeartbeatID(uuid.New()),
		TenantID:                  tenantID,
		SystemID:                  systemID,
		EnforcedCorrectionVersion: reportedAt.Add(-time.Second).Truncate(time.Microsecond),
		Origin:                    id.Origin{Service: "edge-gateway", Version: "4.1.0", Environment: "staging"},
		ReportedAt:                reportedAt.Truncate(time.Microsecond),
	}
}

func (s *PostgresHeartbeatSuite) TestLatestSelection() {
	ctx := context.Background()
	tenantID := id.TenantID(uuid.New())
	base := time.Now().UTC().Truncate(time.Microsecond).Add(-time.Hour)

	s.Require().NoError(s.store.Insert(ctx, newTestHeartbeat(tenantID, "alpha", base)))
	second := newTestHeartbeat(tenantID, "alpha", base.Add(time.Minute))
	s.Require().NoError(s.store.Insert(ctx, second))
	s.Require().NoError(s.store.Insert(ctx, newTestHeartbeat(tenantID, "beta", base.Add(30*time.Second))))
	s.Require().NoError(s.store.Insert(ctx, newTestHeartbeat(id.TenantID(uuid.New()), "alpha", base)))

	rows, err := s.store.LatestPerSystem(ctx, tenantID)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)

	s.Equal("alpha", rows[0].SystemID)
	s.Equal(second.ID, rows[0].ID)
	s.True(rows[0].ReportedAt.Equal(base.Add(time.Minute)))
	s.Equal("beta", rows[1].SystemID)

	latest, err := s.store.LatestForSystem(ctx, tenantID, "alpha")
	s.Require().NoError(err)
	s.Equal(second.ID, latest.ID)

	_, err = s.store.LatestForSystem(ctx, tenantID, "ghost")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresHeartbeatSuite) TestRoundTripFidelity() {
	ctx := context.Background()
	tenantID := id.TenantID(uuid.New())
	hb := newTestHeartbeat(tenantID, "edge-gateway", time.Now().UTC())

	s.Require().NoError(s.store.Insert(ctx, hb))

	got, err := s.store.LatestForSystem(ctx, tenantID, "edge-gateway")
	s.Require().NoError(err)
	s.Equal(hb.ID, got.ID)
	s.Equal(hb.TenantID, got.TenantID)
	s.Equal(hb.SystemID, got.SystemID)
	s.Equal(hb.Origin, got.Origin)
	s.WithinDuration(hb.EnforcedCorrectionVersion, got.EnforcedCorrectionVersion, time.Millisecond)
	s.WithinDuration(hb.ReportedAt, got.ReportedAt, time.Millisecond)
	s.Equal(time.UTC, got.ReportedAt.Location())
}

func (s *PostgresHeartbeatSuite) TestDuplicateIDRejected() {
	ctx := context.Background()
	hb := newTestHeartbeat(id.TenantID(uuid.New()), "alpha", time.Now().UTC())

	s.Require().NoError(s.store.Insert(ctx, hb))
	err := s.store.Insert(ctx, hb)
	s.Require().ErrorIs(err, sentinel.ErrUniqueViolation)
}
