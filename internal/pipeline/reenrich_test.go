package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leads-cli/internal/enrich"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/scoring"
	"github.com/sells-group/leads-cli/internal/store"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeEmpty, m)

	m, err = ParseMode("all")
	require.NoError(t, err)
	assert.Equal(t, ModeAll, m)

	_, err = ParseMode("some")
	assert.True(t, model.IsInvalidInput(err))
}

func TestReenrich_EmptyModeSkipsCompleteLeads(t *testing.T) {
	st := newTestStore(t)
	seedLeads(t, st,
		Row{Email: "done@acme.com", FirstName: "Dana", LastName: "Ng", JobTitle: "CTO", LinkedInURL: "https://www.linkedin.com/in/dana"},
		Row{Email: "gap@acme.com", FirstName: "Gil"},
	)
	enricher := newFakeEnricher()
	enricher.results["gap@acme.com"] = confirmed("gap@acme.com", model.PersonAttributes{
		FirstName: "Gilbert", LastName: "Ray", JobTitle: "VP Finance",
	})
	imp := New(st, scoring.Default(), Options{}, WithLeadEnricher(enricher))

	report, err := imp.Reenrich(context.Background(), Selection{Domain: "acme.com"}, ModeEmpty)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, model.OutcomeUpdated, report.Rows[0].Outcome)
	assert.Zero(t, enricher.callsFor("done@acme.com"))

	gap := leadByEmail(t, st, "gap@acme.com")
	assert.Equal(t, "Gil", gap.FirstName, "empty mode keeps existing values")
	assert.Equal(t, "Ray", gap.LastName)
	assert.Equal(t, "VP Finance", gap.JobTitle)
	assert.Equal(t, model.LevelVP, gap.HierarchicalLevel)
}

func TestReenrich_AllModeOverwritesWithNonEmpty(t *testing.T) {
	st := newTestStore(t)
	seedLeads(t, st, Row{Email: "ana@acme.com", FirstName: "Ann", JobTitle: "Manager"})
	enricher := newFakeEnricher()
	enricher.results["ana@acme.com"] = confirmed("ana@acme.com", model.PersonAttributes{FirstName: "Ana", JobTitle: ""})
	imp := New(st, scoring.Default(), Options{}, WithLeadEnricher(enricher))

	_, err := imp.Reenrich(context.Background(), Selection{All: true}, ModeAll)
	require.NoError(t, err)

	lead := leadByEmail(t, st, "ana@acme.com")
	assert.Equal(t, "Ana", lead.FirstName)
	assert.Equal(t, "Manager", lead.JobTitle, "empty values never overwrite")
	assert.Equal(t, model.ConfidenceAIConfirmed, lead.EnrichmentConfidence)
}

func TestReenrich_AllModeKeepsConfirmedData(t *testing.T) {
	st := newTestStore(t)
	seedLeads(t, st, Row{Email: "cara@acme.com"})
	enricher := newFakeEnricher()
	enricher.results["cara@acme.com"] = confirmed("cara@acme.com", model.PersonAttributes{FirstName: "Cara", JobTitle: "CFO"})
	imp := New(st, scoring.Default(), Options{}, WithLeadEnricher(enricher))

	_, err := imp.Reenrich(context.Background(), Selection{All: true}, ModeAll)
	require.NoError(t, err)

	enricher.results["cara@acme.com"] = &model.EnrichmentResult{
		Email:      "cara@acme.com",
		Confidence: model.ConfidenceSearchOnly,
		Person:     model.PersonAttributes{FirstName: "Carla", JobTitle: "Analyst"},
		Steps:      []model.StepOutcome{{Step: model.StepSearch, Status: model.StepOK}},
	}
	_, err = imp.Reenrich(context.Background(), Selection{All: true}, ModeAll)
	require.NoError(t, err)

	lead := leadByEmail(t, st, "cara@acme.com")
	assert.Equal(t, "Cara", lead.FirstName)
	assert.Equal(t, "CFO", lead.JobTitle)
	assert.Equal(t, model.ConfidenceAIConfirmed, lead.EnrichmentConfidence)
}

func TestReenrich_RequiresEnricher(t *testing.T) {
	imp := New(newTestStore(t), scoring.Default(), Options{})
	_, err := imp.Reenrich(context.Background(), Selection{All: true}, ModeEmpty)
	assert.True(t, model.IsConfiguration(err))
}

func TestEnrichCompanies(t *testing.T) {
	st := newTestStore(t)
	seedLeads(t, st, Row{Email: "a@bigcorp.com"}, Row{Email: "b@small.io"})
	companies := &fakeCompanies{profiles: map[string]*enrich.CompanyProfile{
		"bigcorp.com": {Domain: "bigcorp.com", Name: "BigCorp", Attributes: model.Attributes{model.AttrSize: "10001+"}, Provider: "anthropic"},
	}}
	imp := New(st, scoring.Default(), Options{}, WithCompanyEnricher(companies))

	report, err := imp.EnrichCompanies(context.Background(), store.CompanyFilter{}, ModeEmpty)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Counts()[model.OutcomeUpdated])

	c, err := st.GetCompanyByDomain(context.Background(), "bigcorp.com")
	require.NoError(t, err)
	assert.Equal(t, "BigCorp", c.Name)
	assert.NotNil(t, c.EnrichedAt)
	assert.Equal(t, 25, leadByEmail(t, st, "a@bigcorp.com").Score)

	again, err := imp.EnrichCompanies(context.Background(), store.CompanyFilter{}, ModeEmpty)
	require.NoError(t, err)
	assert.Empty(t, again.Rows, "enriched companies are skipped in empty mode")
}

func TestEnrichCompanies_SkipsFreeMailDomains(t *testing.T) {
	st := newTestStore(t)
	seedLeads(t, st, Row{Email: "someone@gmail.com"})
	companies := &fakeCompanies{}
	imp := New(st, scoring.Default(), Options{}, WithCompanyEnricher(companies))

	report, err := imp.EnrichCompanies(context.Background(), store.CompanyFilter{}, ModeAll)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, model.OutcomeSkipped, report.Rows[0].Outcome)
	assert.Zero(t, companies.calls["gmail.com"])

	c, err := st.GetCompanyByDomain(context.Background(), "gmail.com")
	require.NoError(t, err)
	assert.Nil(t, c.EnrichedAt)
}

func TestEnrichCompanies_Failure(t *testing.T) {
	st := newTestStore(t)
	seedLeads(t, st, Row{Email: "a@down.com"})
	imp := New(st, scoring.Default(), Options{}, WithCompanyEnricher(&fakeCompanies{err: errors.New("timeout")}))

	report, err := imp.EnrichCompanies(context.Background(), store.CompanyFilter{}, ModeAll)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, model.OutcomePartialEnrich, report.Rows[0].Outcome)
	assert.Contains(t, report.Rows[0].Reason, "timeout")
}
