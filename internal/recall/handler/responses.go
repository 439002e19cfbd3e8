package handler

import (
	"encoding/json"
	"time"

	"github.com/keithrawlingsbrown/stet/internal/ledger/models"
	"github.com/keithrawlingsbrown/stet/internal/recall/service"
	id "github.com/keithrawlingsbrown/stet/pkg/domain"
)

// FactItem is one current fact in the facts envelope.
type FactItem struct {
	FieldKey     string          `json:"field_key"`
	Value        json.RawMessage `json:"value"`
	CorrectedAt  time.Time       `json:"corrected_at"`
	CorrectionID string          `json:"correction_id"`
	Actor        models.Actor    `json:"actor"`
}

// FactsResponse echoes the subject so the payload is self-describing.
type FactsResponse struct {
	Subject models.Subject `json:"subject"`
	Facts   []FactItem     `json:"facts"`
}

// NewFactsResponse maps the service projection to its wire shape.
func NewFactsResponse(subject models.Subject, facts []service.Fact) FactsResponse {
	items := make([]FactItem, 0, len(facts))
	for _, f := range facts {
		items = append(items, FactItem{
			FieldKey:     f.FieldKey,
			Value:        f.Value,
			CorrectedAt:  f.CorrectedAt,
			CorrectionID: f.CorrectionID.String(),
			Actor:        f.Actor,
		})
	}
	return FactsResponse{Subject: subject, Facts: items}
}

// HistoryItem is one correction in the history envelope. Supersedes and
// SupersededBy are explicit nulls at the chain's ends.
type HistoryItem struct {
	CorrectionID string          `json:"correction_id"`
	FieldKey     string          `json:"field_key"`
	Value        json.RawMessage `json:"value"`
	Class        string          `json:"class"`
	Status       string          `json:"status"`
	Supersedes   *string         `json:"supersedes"`
	SupersededBy *string         `json:"superseded_by"`
	CreatedAt    time.Time       `json:"created_at"`
	Actor        models.Actor    `json:"actor"`
}

// HistoryResponse echoes the subject above the oldest-first trail.
type HistoryResponse struct {
	Subject models.Subject `json:"subject"`
	History []HistoryItem  `json:"history"`
}

// NewHistoryResponse maps the service projection to its wire shape.
func NewHistoryResponse(subject models.Subject, entries []service.HistoryEntry) HistoryResponse {
	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, HistoryItem{
			CorrectionID: e.CorrectionID.String(),
			FieldKey:     e.FieldKey,
			Value:        e.Value,
			Class:        string(e.Class),
			Status:       string(e.Status),
			Supersedes:   correctionIDString(e.Supersedes),
			SupersededBy: correctionIDString(e.SupersededBy),
			CreatedAt:    e.CreatedAt,
			Actor:        e.Actor,
		})
	}
	return HistoryResponse{Subject: subject, History: items}
}

func correctionIDString(cid *id.CorrectionID) *string {
	if cid == nil {
		return nil
	}
	s := cid.String()
	return &s
}
