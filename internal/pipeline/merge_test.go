package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leads-cli/internal/enrich"
	"github.com/sells-group/leads-cli/internal/model"
)

func TestApplyRow(t *testing.T) {
	lead := &model.Lead{JobTitle: "VP Sales", SessionCount: 7, Tags: []string{"vip"}}
	changed := applyRow(lead, Row{FirstName: " Vic ", JobTitle: "Intern", Sessions: 3, Tags: []string{"VIP", "Webinar"}})

	assert.True(t, changed)
	assert.Equal(t, "Vic", lead.FirstName)
	assert.Equal(t, "VP Sales", lead.JobTitle)
	assert.Equal(t, 7, lead.SessionCount, "session counts never decrease")
	assert.Equal(t, []string{"vip", "webinar"}, lead.Tags)

	assert.False(t, applyRow(lead, Row{FirstName: "Vic", Sessions: 7, Tags: []string{"webinar"}}))
}

func TestApplyEnrichment(t *testing.T) {
	lead := &model.Lead{JobTitle: "VP Sales"}
	res := confirmed("vp@acme.com", model.PersonAttributes{FirstName: "Vic", JobTitle: "Sales"})

	assert.True(t, applyEnrichment(lead, res, false))
	assert.Equal(t, "Vic", lead.FirstName)
	assert.Equal(t, "VP Sales", lead.JobTitle)
	assert.Equal(t, "anthropic", lead.EnrichmentSource)
	assert.NotNil(t, lead.EnrichedAt)

	assert.True(t, applyEnrichment(lead, res, true))
	assert.Equal(t, "Sales", lead.JobTitle)

	none := &model.EnrichmentResult{Confidence: model.ConfidenceNone, Person: model.PersonAttributes{FirstName: "X"}}
	assert.False(t, applyEnrichment(lead, none, true))
	assert.False(t, applyEnrichment(lead, nil, true))
}

func TestApplyEnrichment_WeakerResultOnlyFillsGaps(t *testing.T) {
	lead := &model.Lead{}
	require.True(t, applyEnrichment(lead, confirmed("cfo@acme.com", model.PersonAttributes{FirstName: "Cara", JobTitle: "CFO"}), true))

	titleOnly := &model.EnrichmentResult{
		Confidence: model.ConfidenceSearchOnly,
		Provider:   "linkedin-title",
		Person:     model.PersonAttributes{FirstName: "Carla", JobTitle: "Finance", LinkedInURL: "https://www.linkedin.com/in/cara"},
	}
	assert.True(t, applyEnrichment(lead, titleOnly, true))
	assert.Equal(t, "Cara", lead.FirstName)
	assert.Equal(t, "CFO", lead.JobTitle)
	assert.Equal(t, "https://www.linkedin.com/in/cara", lead.LinkedInURL)
	assert.Equal(t, model.ConfidenceAIConfirmed, lead.EnrichmentConfidence)
	assert.Equal(t, "anthropic", lead.EnrichmentSource)
}

func TestApplyProfile(t *testing.T) {
	c := &model.Company{Name: "Acme", Attributes: model.Attributes{model.AttrPhone: "+1 555"}}
	p := &enrich.CompanyProfile{
		Name:       "Acme Robotics, Inc.",
		Industry:   "Robotics",
		Attributes: model.Attributes{model.AttrPhone: "+1 999", model.AttrCity: "Austin"},
	}

	assert.True(t, applyProfile(c, p, false))
	assert.Equal(t, "Acme", c.Name)
	assert.Equal(t, "Robotics", c.Industry)
	assert.Equal(t, "+1 555", c.Attributes.Get(model.AttrPhone))
	assert.Equal(t, "Austin", c.Attributes.Get(model.AttrCity))
	assert.NotNil(t, c.EnrichedAt)

	assert.False(t, applyProfile(c, p, false))
	assert.True(t, applyProfile(c, p, true))
	assert.Equal(t, "Acme Robotics, Inc.", c.Name)
}
