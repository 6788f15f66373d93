package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leads-cli/internal/enrich"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/resilience"
	"github.com/sells-group/leads-cli/internal/scoring"
	"github.com/sells-group/leads-cli/internal/store"
)

func testEngineOptions(timeout time.Duration) enrich.Options {
	return enrich.Options{
		SearchTimeout: timeout,
		AITimeout:     timeout,
		ReaderTimeout: timeout,
		MaxCandidates: 5,
		Retry: resilience.RetryPolicy{
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			Multiplier:     1,
		},
	}
}

func TestImportBatch_CEOScenario(t *testing.T) {
	st := newTestStore(t)
	engine := enrich.NewEngine(testEngineOptions(time.Second),
		[]enrich.Searcher{&scriptedSearcher{hits: []enrich.Candidate{{
			URL:   "https://www.linkedin.com/in/janedoe",
			Title: "Jane Doe - CEO - BigCorp | LinkedIn",
		}}}},
		[]enrich.Completer{&scriptedCompleter{replies: []string{
			"1",
			`{"found": true, "full_name": "Jane Doe", "job_title": "CEO"}`,
		}}},
	)
	imp := New(st, scoring.Default(), Options{}, WithLeadEnricher(engine))

	report := imp.ImportBatch(context.Background(), []Row{{Email: "CEO@BigCorp.com"}})
	require.Len(t, report.Rows, 1)
	row := report.Rows[0]
	assert.Equal(t, model.OutcomeCreated, row.Outcome, row.Reason)
	assert.Equal(t, "ceo@bigcorp.com", row.Email)

	lead := leadByEmail(t, st, "ceo@bigcorp.com")
	assert.Equal(t, "Jane", lead.FirstName)
	assert.Equal(t, "Doe", lead.LastName)
	assert.Equal(t, "CEO", lead.JobTitle)
	assert.Equal(t, "https://www.linkedin.com/in/janedoe", lead.LinkedInURL)
	assert.Equal(t, model.LevelCLevel, lead.HierarchicalLevel)
	assert.Equal(t, model.ConfidenceAIConfirmed, lead.EnrichmentConfidence)
	assert.Equal(t, "anthropic", lead.EnrichmentSource)
	assert.NotNil(t, lead.EnrichedAt)
	assert.GreaterOrEqual(t, lead.Stage.Rank(), model.StageHigh.Rank())
	assert.Equal(t, lead.Score, row.Score)
	assert.Equal(t, lead.Stage, row.Stage)
}

func TestImportBatch_FreeEmailScoresLow(t *testing.T) {
	st := newTestStore(t)
	imp := New(st, scoring.Default(), Options{}, WithLeadEnricher(newFakeEnricher()))

	report := imp.ImportBatch(context.Background(), []Row{{Email: "x@gmail.com"}})
	require.Equal(t, model.OutcomeCreated, report.Rows[0].Outcome)

	lead := leadByEmail(t, st, "x@gmail.com")
	assert.Negative(t, lead.Score)
	assert.Equal(t, model.StageLow, lead.Stage)
}

func TestImportBatch_AllTimeoutsIsPartial(t *testing.T) {
	st := newTestStore(t)
	engine := enrich.NewEngine(testEngineOptions(5*time.Millisecond),
		[]enrich.Searcher{&scriptedSearcher{err: errors.New("hang")}},
		[]enrich.Completer{&scriptedCompleter{block: true}},
	)
	imp := New(st, scoring.Default(), Options{}, WithLeadEnricher(engine))

	report := imp.ImportBatch(context.Background(), []Row{{Email: "sam@slowco.com"}})
	row := report.Rows[0]
	assert.Equal(t, model.OutcomePartialEnrich, row.Outcome)
	assert.Contains(t, row.Reason, "search failed")
	assert.NotEmpty(t, row.LeadID)

	lead := leadByEmail(t, st, "sam@slowco.com")
	assert.Empty(t, lead.FirstName)
	assert.Empty(t, lead.JobTitle)
	assert.Empty(t, lead.EnrichmentSource)
	assert.Nil(t, lead.EnrichedAt)

	c, err := st.GetCompanyByDomain(context.Background(), "slowco.com")
	require.NoError(t, err)
	assert.Equal(t, c.ID, lead.CompanyID)
}

func TestImportBatch_FiveLeadsOneDomain(t *testing.T) {
	st := newTestStore(t)
	imp := New(st, scoring.Default(), Options{Workers: 4})

	var rows []Row
	for i := range 5 {
		rows = append(rows, Row{Email: fmt.Sprintf("user%d@newco.io", i)})
	}
	report := imp.ImportBatch(context.Background(), rows)
	assert.Equal(t, 5, report.Counts()[model.OutcomeCreated])
	assert.Contains(t, report.Warnings, "enrichment disabled: no enricher configured")

	companies, err := st.ListCompanies(context.Background(), store.CompanyFilter{})
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "newco.io", companies[0].Domain)
	assert.Equal(t, 5, companies[0].LeadCount)

	leads, err := st.ListLeads(context.Background(), store.LeadFilter{Domain: "newco.io"})
	require.NoError(t, err)
	require.Len(t, leads, 5)
	for _, l := range leads {
		assert.Equal(t, 15, l.Score, "every lead carries the team bonus once the company has five")
	}
	assert.Equal(t, 0, imp.locks.size())
}

func TestImportBatch_DomainUniquenessUnderConcurrency(t *testing.T) {
	st := newTestStore(t)
	imp := New(st, scoring.Default(), Options{Workers: 8})

	var rows []Row
	for i := range 40 {
		rows = append(rows, Row{Email: fmt.Sprintf("p%d@%s", i, []string{"acme.com", "globex.com"}[i%2])})
	}
	report := imp.ImportBatch(context.Background(), rows)
	assert.Equal(t, 40, report.Counts()[model.OutcomeCreated])

	companies, err := st.ListCompanies(context.Background(), store.CompanyFilter{})
	require.NoError(t, err)
	assert.Len(t, companies, 2)
}

func TestImportBatch_ReimportIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	enricher := newFakeEnricher()
	enricher.results["ana@acme.com"] = confirmed("ana@acme.com", model.PersonAttributes{
		FirstName: "Ana", LastName: "Lopez", JobTitle: "Director of Sales",
		LinkedInURL: "https://www.linkedin.com/in/analopez",
	})
	imp := New(st, scoring.Default(), Options{}, WithLeadEnricher(enricher))
	rows := []Row{{Email: "ana@acme.com", CompanyName: "Acme", Sessions: 3, Tags: []string{"Webinar"}}}

	first := imp.ImportBatch(context.Background(), rows)
	require.Equal(t, model.OutcomeCreated, first.Rows[0].Outcome)
	before := leadByEmail(t, st, "ana@acme.com")

	second := imp.ImportBatch(context.Background(), rows)
	require.Equal(t, model.OutcomeUpdated, second.Rows[0].Outcome)
	after := leadByEmail(t, st, "ana@acme.com")

	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.Score, after.Score)
	assert.Equal(t, before.Stage, after.Stage)
	assert.Equal(t, []string{"webinar"}, after.Tags)
	assert.Equal(t, 3, after.SessionCount)
	assert.Equal(t, 1, enricher.callsFor("ana@acme.com"), "complete leads are not enriched again")

	leads, err := st.ListLeads(context.Background(), store.LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, leads, 1)
	companies, err := st.ListCompanies(context.Background(), store.CompanyFilter{})
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "Acme", companies[0].Name)
}

func TestImportBatch_EnrichmentNeverOverwrites(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	c, err := st.CreateCompany(ctx, "acme.com", "")
	require.NoError(t, err)
	require.NoError(t, st.CreateLead(ctx, &model.Lead{Email: "vp@acme.com", CompanyID: c.ID, JobTitle: "VP Sales", Stage: model.StageLow}))

	enricher := newFakeEnricher()
	enricher.results["vp@acme.com"] = confirmed("vp@acme.com", model.PersonAttributes{FirstName: "Vic", LastName: "Park"})
	imp := New(st, scoring.Default(), Options{}, WithLeadEnricher(enricher))

	report := imp.ImportBatch(ctx, []Row{{Email: "vp@acme.com", JobTitle: "Intern"}})
	assert.Equal(t, model.OutcomeUpdated, report.Rows[0].Outcome)

	lead := leadByEmail(t, st, "vp@acme.com")
	assert.Equal(t, "VP Sales", lead.JobTitle)
	assert.Equal(t, "Vic", lead.FirstName)
	assert.Equal(t, "Park", lead.LastName)
	assert.Equal(t, model.LevelVP, lead.HierarchicalLevel)
}

func TestImportBatch_RejectsBadRows(t *testing.T) {
	st := newTestStore(t)
	imp := New(st, scoring.Default(), Options{})

	report := imp.ImportBatch(context.Background(), []Row{
		{Email: ""},
		{Email: "not-an-email"},
		{Email: "ok@acme.com"},
		{Email: "bad@acme.com", Invalid: `invalid sessions value "lots"`},
	})
	require.Len(t, report.Rows, 4)
	assert.Equal(t, model.OutcomeRejected, report.Rows[0].Outcome)
	assert.NotEmpty(t, report.Rows[0].Reason)
	assert.Equal(t, model.OutcomeRejected, report.Rows[1].Outcome)
	assert.Equal(t, model.OutcomeCreated, report.Rows[2].Outcome)
	assert.Equal(t, model.OutcomeRejected, report.Rows[3].Outcome)
	assert.Contains(t, report.Rows[3].Reason, "sessions")
	for i, r := range report.Rows {
		assert.Equal(t, i, r.Index)
	}
}

func TestImportBatch_CancelledBeforeStart(t *testing.T) {
	st := newTestStore(t)
	imp := New(st, scoring.Default(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := imp.ImportBatch(ctx, []Row{{Email: "a@acme.com"}, {Email: "b@acme.com"}})
	assert.True(t, report.Cancelled)
	assert.Equal(t, 2, report.Counts()[model.OutcomeSkipped])

	leads, err := st.ListLeads(context.Background(), store.LeadFilter{})
	require.NoError(t, err)
	assert.Empty(t, leads)
}

// cancellingEnricher cancels the batch from inside the first enrichment and
// waits for the cancellation to land before answering.
type cancellingEnricher struct {
	cancel context.CancelFunc
}

func (e *cancellingEnricher) Enrich(ctx context.Context, email, _ string) (*model.EnrichmentResult, error) {
	e.cancel()
	<-ctx.Done()
	return &model.EnrichmentResult{
		Email:      email,
		Confidence: model.ConfidenceNone,
		Steps:      []model.StepOutcome{{Step: model.StepSearch, Status: model.StepFailed, Error: ctx.Err().Error()}},
	}, nil
}

func (e *cancellingEnricher) Warnings() []string { return nil }

func TestImportBatch_CancelledMidBatch(t *testing.T) {
	st := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	imp := New(st, scoring.Default(), Options{Workers: 1}, WithLeadEnricher(&cancellingEnricher{cancel: cancel}))

	report := imp.ImportBatch(ctx, []Row{
		{Email: "first@acme.com", FirstName: "Fay"},
		{Email: "second@acme.com"},
		{Email: "third@acme.com"},
	})
	require.Len(t, report.Rows, 3)
	assert.True(t, report.Cancelled)

	assert.Contains(t, []model.Outcome{model.OutcomePartialEnrich, model.OutcomeCreated}, report.Rows[0].Outcome)
	assert.Equal(t, model.OutcomeSkipped, report.Rows[1].Outcome)
	assert.Equal(t, model.OutcomeSkipped, report.Rows[2].Outcome)

	first := leadByEmail(t, st, "first@acme.com")
	assert.Equal(t, "Fay", first.FirstName)
	assert.Equal(t, scoring.Default().StageFor(first.Score), first.Stage)

	leads, err := st.ListLeads(context.Background(), store.LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, leads, 1)
}

func TestImportBatch_WarningsFromEnricher(t *testing.T) {
	enricher := newFakeEnricher()
	enricher.warnings = []string{"search disabled: search_api_key not set"}
	imp := New(newTestStore(t), scoring.Default(), Options{}, WithLeadEnricher(enricher))

	report := imp.ImportBatch(context.Background(), []Row{{Email: "a@acme.com"}})
	assert.Equal(t, []string{"search disabled: search_api_key not set"}, report.Warnings)
}

func TestImportBatch_CompanyEnrichedOncePerBatch(t *testing.T) {
	st := newTestStore(t)
	companies := &fakeCompanies{profiles: map[string]*enrich.CompanyProfile{
		"bigcorp.com": {
			Domain: "bigcorp.com", Name: "BigCorp", Industry: "Manufacturing", Provider: "openai",
			Attributes: model.Attributes{model.AttrSize: "5000+"},
		},
	}}
	imp := New(st, scoring.Default(), Options{Workers: 3, EnrichCompanies: true}, WithCompanyEnricher(companies))

	report := imp.ImportBatch(context.Background(), []Row{
		{Email: "a@bigcorp.com"}, {Email: "b@bigcorp.com"}, {Email: "c@bigcorp.com"}, {Email: "d@gmail.com"},
	})
	assert.Equal(t, 4, report.Counts()[model.OutcomeCreated])
	assert.Equal(t, 1, companies.calls["bigcorp.com"])
	assert.Zero(t, companies.calls["gmail.com"], "free mail domains are not scraped")

	c, err := st.GetCompanyByDomain(context.Background(), "bigcorp.com")
	require.NoError(t, err)
	assert.Equal(t, "BigCorp", c.Name)
	assert.Equal(t, "Manufacturing", c.Industry)
	assert.NotNil(t, c.EnrichedAt)

	lead := leadByEmail(t, st, "a@bigcorp.com")
	assert.Equal(t, 25, lead.Score, "company size counts as an enterprise signal")
}

func TestImportBatch_CompanyEnrichmentFailureIsPartial(t *testing.T) {
	st := newTestStore(t)
	companies := &fakeCompanies{err: errors.New("homepage unreachable")}
	imp := New(st, scoring.Default(), Options{EnrichCompanies: true}, WithCompanyEnricher(companies))

	report := imp.ImportBatch(context.Background(), []Row{{Email: "a@down.com"}})
	row := report.Rows[0]
	assert.Equal(t, model.OutcomePartialEnrich, row.Outcome)
	assert.Contains(t, row.Reason, "company failed: homepage unreachable")
	assert.NotEmpty(t, row.LeadID)
}

func TestImportBatch_StageMatchesScore(t *testing.T) {
	st := newTestStore(t)
	enricher := newFakeEnricher()
	titles := []string{"CEO", "VP Marketing", "Head of Ops", "Engineer", ""}
	var rows []Row
	for i, title := range titles {
		email := fmt.Sprintf("p%d@stage.io", i)
		enricher.results[email] = confirmed(email, model.PersonAttributes{FirstName: "P", LastName: "Q", JobTitle: title})
		rows = append(rows, Row{Email: email, Sessions: i * 4})
	}
	scorer := scoring.Default()
	imp := New(st, scorer, Options{}, WithLeadEnricher(enricher))
	imp.ImportBatch(context.Background(), rows)

	leads, err := st.ListLeads(context.Background(), store.LeadFilter{})
	require.NoError(t, err)
	require.Len(t, leads, len(titles))
	for _, l := range leads {
		assert.Equal(t, scorer.StageFor(l.Score), l.Stage, l.Email)
	}
}
