package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/keithrawlingsbrown/stet/internal/enforcement/models"
	"github.com/keithrawlingsbrown/stet/internal/enforcement/service"
	heartbeatStore "github.com/keithrawlingsbrown/stet/internal/enforcement/store/heartbeat"
	"github.com/keithrawlingsbrown/stet/internal/platform/middleware"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	"github.com/keithrawlingsbrown/stet/pkg/requestcontext"
	"github.com/keithrawlingsbrown/stet/pkg/testutil"
)

// =============================================================================
// Enforcement Handler Test Suite
// =============================================================================
// Justification for unit tests: the enforcement wire contract (systems array,
// explicit null last_reported_at, escalation envelope with counts) is what
// monitoring clients integrate against, so it is pinned over a real service
// and store. Staleness is made deterministic by seeding heartbeats at fixed
// offsets from the wall clock rather than sleeping.

type EnforcementHandlerSuite struct {
	suite.Suite
	router  *chi.Mux
	service *service.Service

	tenantID id.TenantID
}

func TestEnforcementHandlerSuite(t *testing.T) {
	suite.Run(t, new(EnforcementHandlerSuite))
}

func (s *EnforcementHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = service.New(heartbeatStore.NewInMemory(),
		models.Thresholds{HeartbeatInterval: time.Minute, GraceMultiplier: 2},
		service.WithLogger(logger),
		service.WithServerOrigin(id.Origin{Service: "stet-api", Version: "dev"}),
	)

	s.router = chi.NewRouter()
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RequestTime)
	s.router.Use(middleware.TenantResolver)
	New(s.service, logger).Register(s.router)

	s.tenantID = id.TenantID(uuid.New())
}

// seed records a heartbeat directly through the service at a fixed instant,
// bypassing HTTP so tests can place reports in the past.
func (s *EnforcementHandlerSuite) seed(systemID string, at time.Time) *models.Heartbeat {
	hb, err := s.service.RecordHeartbeat(requestcontext.WithTime(context.Background(), at), models.HeartbeatInput{
		TenantID:                  s.tenantID,
		SystemID:                  systemID,
		EnforcedCorrectionVersion: at,
	})
	s.Require().NoError(err)
	return hb
}

func (s *EnforcementHandlerSuite) get(path string, params url.Values) *httptest.ResponseRecorder {
	target := path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req := testutil.NewRequest(s.T(), http.MethodGet, target)
	req.Header.Set(middleware.TenantHeader, s.tenantID.String())
	return testutil.DoRequest(s.router, req)
}

// =============================================================================
// Heartbeat Endpoint Tests
// =============================================================================

func (s *EnforcementHandlerSuite) TestHandleHeartbeat() {
	s.Run("records a report with 201", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/enforcement/heartbeat", map[string]any{
			"system_id":                   "edge-gateway",
			"enforced_correction_version": "2026-03-14T09:00:00Z",
		})
		req.Header.Set(middleware.TenantHeader, s.tenantID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)

		resp := testutil.UnmarshalResponse[HeartbeatResponse](s.T(), rr)
		s.NotEmpty(resp.HeartbeatID)
		s.False(resp.RecordedAt.IsZero())
	})

	s.Run("a reporter may attest its own origin", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/enforcement/heartbeat", map[string]any{
			"system_id":                   "crm-worker",
			"enforced_correction_version": "2026-03-14T09:00:00Z",
			"origin":                      map[string]string{"service": "crm-worker", "version": "4.1.0"},
		})
		req.Header.Set(middleware.TenantHeader, s.tenantID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	})

	s.Run("missing system_id is a validation error", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/enforcement/heartbeat", map[string]any{
			"enforced_correction_version": "2026-03-14T09:00:00Z",
		})
		req.Header.Set(middleware.TenantHeader, s.tenantID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("missing enforced version is a validation error", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/enforcement/heartbeat", map[string]any{
			"system_id": "edge-gateway",
		})
		req.Header.Set(middleware.TenantHeader, s.tenantID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
		s.Contains(rr.Body.String(), "enforced_correction_version")
	})

	s.Run("a non-RFC3339 version is rejected at decode", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/enforcement/heartbeat", map[string]any{
			"system_id":                   "edge-gateway",
			"enforced_correction_version": "last tuesday",
		})
		req.Header.Set(middleware.TenantHeader, s.tenantID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("unknown fields are rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/enforcement/heartbeat", map[string]any{
			"system_id":                   "edge-gateway",
			"enforced_correction_version": "2026-03-14T09:00:00Z",
			"reported_at":                 "2026-03-14T09:00:00Z",
		})
		req.Header.Set(middleware.TenantHeader, s.tenantID.String())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("missing tenant header is rejected before routing", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/enforcement/heartbeat", map[string]any{
			"system_id":                   "edge-gateway",
			"enforced_correction_version": "2026-03-14T09:00:00Z",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

// =============================================================================
// Status Endpoint Tests
// =============================================================================

func (s *EnforcementHandlerSuite) TestHandleStatus() {
	now := time.Now().UTC()
	s.seed("alpha", now)
	s.seed("beta", now.Add(-10*time.Minute))

	s.Run("reports every known system", func() {
		rr := s.get("/enforcement/status", nil)
		testutil.AssertStatusOK(s.T(), rr)

		resp := testutil.UnmarshalResponse[StatusResponse](s.T(), rr)
		s.Require().Len(resp.Systems, 2)

		s.Equal("alpha", resp.Systems[0].SystemID)
		s.Equal("OK", resp.Systems[0].Status)
		s.Require().NotNil(resp.Systems[0].LastReportedAt)

		s.Equal("beta", resp.Systems[1].SystemID)
		s.Equal("STALE", resp.Systems[1].Status)
	})

	s.Run("probing an unreported system yields MISSING with a null timestamp", func() {
		rr := s.get("/enforcement/status", url.Values{"system_id": {"ghost"}})
		testutil.AssertStatusOK(s.T(), rr)

		resp := testutil.UnmarshalResponse[StatusResponse](s.T(), rr)
		s.Require().Len(resp.Systems, 1)
		s.Equal("ghost", resp.Systems[0].SystemID)
		s.Equal("MISSING", resp.Systems[0].Status)
		s.Nil(resp.Systems[0].LastReportedAt)
		s.Contains(rr.Body.String(), `"last_reported_at":null`)
	})

	s.Run("probing a reported system narrows to it", func() {
		rr := s.get("/enforcement/status", url.Values{"system_id": {"alpha"}})
		testutil.AssertStatusOK(s.T(), rr)

		resp := testutil.UnmarshalResponse[StatusResponse](s.T(), rr)
		s.Require().Len(resp.Systems, 1)
		s.Equal("alpha", resp.Systems[0].SystemID)
	})

	s.Run("a tenant with no heartbeats gets an empty array", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/enforcement/status")
		req.Header.Set(middleware.TenantHeader, uuid.NewString())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		s.Contains(rr.Body.String(), `"systems":[]`)
	})
}

// =============================================================================
// Escalation Endpoint Tests
// =============================================================================

func (s *EnforcementHandlerSuite) TestHandleEscalation() {
	now := time.Now().UTC()
	s.seed("alpha", now)
	s.seed("beta", now.Add(-10*time.Minute))

	s.Run("aggregates with the tenant echo and counts", func() {
		rr := s.get("/enforcement/escalation", nil)
		testutil.AssertStatusOK(s.T(), rr)

		resp := testutil.UnmarshalResponse[EscalationResponse](s.T(), rr)
		s.Equal(s.tenantID.String(), resp.TenantID)
		s.Equal("WARN", resp.Escalation)
		s.False(resp.EvaluatedAt.IsZero())
		s.Equal(EscalationSummary{TotalSystems: 2, OK: 1, Stale: 1}, resp.Summary)
		s.Equal([]AffectedSystem{{SystemID: "beta", Status: "STALE"}}, resp.AffectedSystems)
	})

	s.Run("a probed unreported system drives CRITICAL", func() {
		rr := s.get("/enforcement/escalation", url.Values{"system_id": {"ghost"}})
		testutil.AssertStatusOK(s.T(), rr)

		resp := testutil.UnmarshalResponse[EscalationResponse](s.T(), rr)
		s.Equal("CRITICAL", resp.Escalation)
		s.Equal(1, resp.Summary.Missing)
		s.Contains(resp.AffectedSystems, AffectedSystem{SystemID: "ghost", Status: "MISSING"})
	})

	s.Run("a quiet tenant is NONE with empty affected systems", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/enforcement/escalation")
		req.Header.Set(middleware.TenantHeader, uuid.NewString())
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)

		resp := testutil.UnmarshalResponse[EscalationResponse](s.T(), rr)
		s.Equal("NONE", resp.Escalation)
		s.Equal(EscalationSummary{}, resp.Summary)
		s.Contains(rr.Body.String(), `"affected_systems":[]`)
	})
}
