package model

import "time"

// StepName identifies one stage of lead enrichment.
type StepName string

const (
	StepSearch  StepName = "search"
	StepSelect  StepName = "select"
	StepExtract StepName = "extract"
	StepCompany StepName = "company"
)

// StepStatus is the outcome of a single enrichment step.
type StepStatus string

const (
	StepOK       StepStatus = "ok"
	StepEmpty    StepStatus = "empty"    // ran, found nothing
	StepFailed   StepStatus = "failed"   // every provider errored or timed out
	StepSkipped  StepStatus = "skipped"  // an earlier step produced nothing to work on
	StepDisabled StepStatus = "disabled" // missing credentials
)

// StepOutcome records how one step went.
type StepOutcome struct {
	Step     StepName      `json:"step"`
	Status   StepStatus    `json:"status"`
	Provider string        `json:"provider,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// PersonAttributes are the person fields enrichment may discover.
type PersonAttributes struct {
	FullName    string `json:"full_name,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	JobTitle    string `json:"job_title,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
}

// Empty reports whether no attribute was found.
func (p PersonAttributes) Empty() bool {
	return p.FullName == "" && p.FirstName == "" && p.LastName == "" &&
		p.JobTitle == "" && p.LinkedInURL == ""
}

// EnrichmentResult is what the engine learned about one email. Every field is
// optional; Steps explains what ran.
type EnrichmentResult struct {
	Email  string `json:"email"`
	Domain string `json:"domain"`

	CompanyName    string `json:"company_name,omitempty"`
	CompanyWebsite string `json:"company_website,omitempty"`
	SelectedURL    string `json:"selected_url,omitempty"`

	Person     PersonAttributes `json:"person"`
	Confidence Confidence       `json:"confidence"`
	Provider   string           `json:"provider,omitempty"`

	Steps []StepOutcome `json:"steps"`
}

// Record appends a step outcome.
func (r *EnrichmentResult) Record(o StepOutcome) {
	r.Steps = append(r.Steps, o)
}

// Step returns the outcome of the named step, if it was recorded.
func (r *EnrichmentResult) Step(name StepName) (StepOutcome, bool) {
	for _, s := range r.Steps {
		if s.Step == name {
			return s, true
		}
	}
	return StepOutcome{}, false
}

// Failed reports whether any step failed outright.
func (r *EnrichmentResult) Failed() bool {
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			return true
		}
	}
	return false
}

// Disabled returns the steps that could not run for lack of configuration.
func (r *EnrichmentResult) Disabled() []StepName {
	var out []StepName
	for _, s := range r.Steps {
		if s.Status == StepDisabled {
			out = append(out, s.Step)
		}
	}
	return out
}
