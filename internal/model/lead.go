// Package model defines the lead, company, note and tag records shared by the
// enrichment, scoring and import packages.
package model

import (
	"strings"
	"time"
)

// Stage is the derived quality bucket of a lead. It is never set by callers;
// the scoring package recomputes it from the score on every save.
type Stage string

const (
	StageLow        Stage = "low"
	StageMedium     Stage = "medium"
	StageHigh       Stage = "high"
	StageVeryHigh   Stage = "very_high"
	StageEnterprise Stage = "enterprise"
)

// Stages lists every stage in ascending order.
var Stages = []Stage{StageLow, StageMedium, StageHigh, StageVeryHigh, StageEnterprise}

// Rank returns the position of s in the stage order, or -1 for an unknown stage.
func (s Stage) Rank() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool { return s.Rank() >= 0 }

// HierarchicalLevel is the seniority bucket derived from a job title.
type HierarchicalLevel string

const (
	LevelUnknown    HierarchicalLevel = ""
	LevelIndividual HierarchicalLevel = "ic"
	LevelManager    HierarchicalLevel = "manager"
	LevelDirector   HierarchicalLevel = "director"
	LevelVP         HierarchicalLevel = "vp"
	LevelCLevel     HierarchicalLevel = "c_level"
)

// Confidence marks how an enrichment result was obtained.
type Confidence string

const (
	ConfidenceNone        Confidence = "none"
	ConfidenceSearchOnly  Confidence = "search_only"
	ConfidenceAIConfirmed Confidence = "ai_confirmed"
)

// Rank orders confidences; unset and unknown values rank with none.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceAIConfirmed:
		return 2
	case ConfidenceSearchOnly:
		return 1
	default:
		return 0
	}
}

// Lead is a person record keyed by normalized email.
type Lead struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CompanyID string `json:"company_id,omitempty"`

	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	JobTitle    string `json:"job_title,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`

	HierarchicalLevel HierarchicalLevel `json:"hierarchical_level,omitempty"`
	SessionCount      int               `json:"session_count"`

	Score int   `json:"lead_score"`
	Stage Stage `json:"lead_stage"`

	EnrichmentSource     string     `json:"enrichment_source,omitempty"`
	EnrichmentConfidence Confidence `json:"enrichment_confidence,omitempty"`
	EnrichedAt           *time.Time `json:"enriched_at,omitempty"`

	Tags []string `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Domain returns the domain part of the lead's email.
func (l *Lead) Domain() string {
	d, _ := DomainFromEmail(l.Email)
	return d
}

// FullName joins first and last name.
func (l *Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// MissingPersonFields reports whether any enrichable person attribute is empty.
func (l *Lead) MissingPersonFields() bool {
	return l.FirstName == "" || l.LastName == "" || l.JobTitle == "" || l.LinkedInURL == ""
}

// HasTag reports whether the lead carries the tag, compared case-insensitively.
func (l *Lead) HasTag(name string) bool {
	n := NormalizeTag(name)
	for _, t := range l.Tags {
		if NormalizeTag(t) == n {
			return true
		}
	}
	return false
}
