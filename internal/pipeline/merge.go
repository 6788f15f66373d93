package pipeline

import (
	"strings"
	"time"

	"github.com/sells-group/leads-cli/internal/enrich"
	"github.com/sells-group/leads-cli/internal/model"
)

// setField writes v into dst when v is non-empty and dst is empty, or when
// overwrite is set. Empty values never replace populated ones.
func setField(dst *string, v string, overwrite bool) bool {
	v = strings.TrimSpace(v)
	if v == "" || *dst == v {
		return false
	}
	if *dst != "" && !overwrite {
		return false
	}
	*dst = v
	return true
}

// applyRow merges imported row data into lead. Row values only fill gaps;
// session counts never go down and tags accumulate.
func applyRow(lead *model.Lead, row Row) bool {
	changed := setField(&lead.FirstName, row.FirstName, false)
	changed = setField(&lead.LastName, row.LastName, false) || changed
	changed = setField(&lead.JobTitle, row.JobTitle, false) || changed
	changed = setField(&lead.LinkedInURL, row.LinkedInURL, false) || changed

	if row.Sessions > lead.SessionCount {
		lead.SessionCount = row.Sessions
		changed = true
	}
	for _, t := range row.Tags {
		n := model.NormalizeTag(t)
		if n != "" && !lead.HasTag(n) {
			lead.Tags = append(lead.Tags, n)
			changed = true
		}
	}
	return changed
}

// applyEnrichment merges enriched person attributes into lead and stamps the
// enrichment source when anything was written.
func applyEnrichment(lead *model.Lead, res *model.EnrichmentResult, overwrite bool) bool {
	if res == nil || res.Confidence == model.ConfidenceNone || res.Person.Empty() {
		return false
	}
	// A weaker result may fill gaps but never replaces stronger data.
	stronger := res.Confidence.Rank() >= lead.EnrichmentConfidence.Rank()
	overwrite = overwrite && stronger

	p := res.Person
	changed := setField(&lead.FirstName, p.FirstName, overwrite)
	changed = setField(&lead.LastName, p.LastName, overwrite) || changed
	changed = setField(&lead.JobTitle, p.JobTitle, overwrite) || changed
	changed = setField(&lead.LinkedInURL, p.LinkedInURL, overwrite) || changed
	if !changed {
		return false
	}

	now := time.Now().UTC()
	lead.EnrichedAt = &now
	if stronger {
		lead.EnrichmentSource = res.Provider
		lead.EnrichmentConfidence = res.Confidence
	}
	return true
}

// applyProfile merges a scraped company profile into company and marks it
// enriched. It reports whether any attribute value changed.
func applyProfile(company *model.Company, p *enrich.CompanyProfile, overwrite bool) bool {
	changed := setField(&company.Name, p.Name, overwrite)
	changed = setField(&company.Industry, p.Industry, overwrite) || changed
	if company.Attributes == nil {
		company.Attributes = model.Attributes{}
	}
	if len(company.Attributes.Fill(p.Attributes, overwrite)) > 0 {
		changed = true
	}

	now := time.Now().UTC()
	company.EnrichedAt = &now
	return changed
}
