package model

import "time"

// Outcome classifies what happened to one imported row.
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeUpdated       Outcome = "updated"
	OutcomeRejected      Outcome = "rejected"
	OutcomePartialEnrich Outcome = "enrichment_failed_partial"
	OutcomeFailed        Outcome = "failed"  // persistence error on this row
	OutcomeSkipped       Outcome = "skipped" // batch cancelled before the row started
)

// RowResult is the report line for one input row.
type RowResult struct {
	Index     int           `json:"index"`
	Email     string        `json:"email,omitempty"`
	Outcome   Outcome       `json:"outcome"`
	Reason    string        `json:"reason,omitempty"`
	LeadID    string        `json:"lead_id,omitempty"`
	CompanyID string        `json:"company_id,omitempty"`
	Score     int           `json:"lead_score"`
	Stage     Stage         `json:"lead_stage,omitempty"`
	Steps     []StepOutcome `json:"steps,omitempty"`
}

// BatchReport summarizes an import. Rows are in input order.
type BatchReport struct {
	Rows       []RowResult `json:"rows"`
	Warnings   []string    `json:"warnings,omitempty"`
	Cancelled  bool        `json:"cancelled"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Counts tallies rows by outcome.
func (r *BatchReport) Counts() map[Outcome]int {
	out := make(map[Outcome]int)
	for _, row := range r.Rows {
		out[row.Outcome]++
	}
	return out
}

// AddWarning appends w unless it is already present.
func (r *BatchReport) AddWarning(w string) {
	for _, existing := range r.Warnings {
		if existing == w {
			return
		}
	}
	r.Warnings = append(r.Warnings, w)
}
