package handler

import (
	"time"

	"github.com/keithrawlingsbrown/stet/internal/enforcement/models"
)

// HeartbeatResponse acknowledges one recorded report.
type HeartbeatResponse struct {
	HeartbeatID string    `json:"heartbeat_id"`
	RecordedAt  time.Time `json:"recorded_at"`
}

func FromHeartbeat(hb *models.Heartbeat) HeartbeatResponse {
	return HeartbeatResponse{
		HeartbeatID: hb.ID.String(),
		RecordedAt:  hb.ReportedAt,
	}
}

// SystemStatusItem is one system's derived state. LastReportedAt is an
// explicit null for systems that never reported.
type SystemStatusItem struct {
	SystemID       string     `json:"system_id"`
	Status         string     `json:"status"`
	LastReportedAt *time.Time `json:"last_reported_at"`
}

// StatusResponse lists derived statuses, one item per system.
type StatusResponse struct {
	Systems []SystemStatusItem `json:"systems"`
}

func NewStatusResponse(reports []models.SystemReport) StatusResponse {
	systems := make([]SystemStatusItem, 0, len(reports))
	for _, r := range reports {
		systems = append(systems, SystemStatusItem{
			SystemID:       r.SystemID,
			Status:         string(r.Status),
			LastReportedAt: r.LastReportedAt,
		})
	}
	return StatusResponse{Systems: systems}
}

// EscalationSummary counts systems by derived status.
type EscalationSummary struct {
	TotalSystems int `json:"total_systems"`
	OK           int `json:"ok"`
	Stale        int `json:"stale"`
	Missing      int `json:"missing"`
}

// AffectedSystem names one non-OK system.
type AffectedSystem struct {
	SystemID string `json:"system_id"`
	Status   string `json:"status"`
}

// EscalationResponse is the tenant-wide escalation report.
type EscalationResponse struct {
	TenantID        string            `json:"tenant_id"`
	Escalation      string            `json:"escalation"`
	EvaluatedAt     time.Time         `json:"evaluated_at"`
	Summary         EscalationSummary `json:"summary"`
	AffectedSystems []AffectedSystem  `json:"affected_systems"`
}

func FromEscalationReport(report *models.EscalationReport) EscalationResponse {
	affected := make([]AffectedSystem, 0, len(report.AffectedSystems))
	for _, sys := range report.AffectedSystems {
		affected = append(affected, AffectedSystem{
			SystemID: sys.SystemID,
			Status:   string(sys.Status),
		})
	}
	return EscalationResponse{
		TenantID:    report.TenantID.String(),
		Escalation:  string(report.Level),
		EvaluatedAt: report.EvaluatedAt,
		Summary: EscalationSummary{
			TotalSystems: report.Summary.TotalSystems,
			OK:           report.Summary.OK,
			Stale:        report.Summary.Stale,
			Missing:      report.Summary.Missing,
		},
		AffectedSystems: affected,
	}
}
