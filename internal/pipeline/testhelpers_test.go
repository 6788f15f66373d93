package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/leads-cli/internal/enrich"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fakeEnricher returns canned results keyed by email.
type fakeEnricher struct {
	mu       sync.Mutex
	results  map[string]*model.EnrichmentResult
	calls    map[string]int
	warnings []string
}

func newFakeEnricher() *fakeEnricher {
	return &fakeEnricher{results: map[string]*model.EnrichmentResult{}, calls: map[string]int{}}
}

func (f *fakeEnricher) Enrich(_ context.Context, email, _ string) (*model.EnrichmentResult, error) {
	norm, err := model.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[norm]++
	if r, ok := f.results[norm]; ok {
		cp := *r
		return &cp, nil
	}
	return &model.EnrichmentResult{
		Email:      norm,
		Confidence: model.ConfidenceNone,
		Steps:      []model.StepOutcome{{Step: model.StepSearch, Status: model.StepEmpty}},
	}, nil
}

func (f *fakeEnricher) Warnings() []string { return f.warnings }

func (f *fakeEnricher) callsFor(email string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[email]
}

func confirmed(email string, p model.PersonAttributes) *model.EnrichmentResult {
	return &model.EnrichmentResult{
		Email:      email,
		Person:     p,
		Confidence: model.ConfidenceAIConfirmed,
		Provider:   "anthropic",
		Steps: []model.StepOutcome{
			{Step: model.StepSearch, Status: model.StepOK, Provider: "jina"},
			{Step: model.StepSelect, Status: model.StepOK, Provider: "anthropic"},
			{Step: model.StepExtract, Status: model.StepOK, Provider: "anthropic"},
		},
	}
}

// fakeCompanies returns a fixed profile per domain.
type fakeCompanies struct {
	mu       sync.Mutex
	profiles map[string]*enrich.CompanyProfile
	err      error
	calls    map[string]int
}

func (f *fakeCompanies) Enrich(_ context.Context, domain string) (*enrich.CompanyProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[domain]++
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.profiles[domain]; ok {
		cp := *p
		return &cp, nil
	}
	return &enrich.CompanyProfile{Domain: domain, Provider: "homepage"}, nil
}

// scriptedSearcher and scriptedCompleter drive a real enrich.Engine.
type scriptedSearcher struct {
	hits []enrich.Candidate
	err  error
}

func (s *scriptedSearcher) Name() string { return "jina" }

func (s *scriptedSearcher) Search(ctx context.Context, _ enrich.Query) ([]enrich.Candidate, error) {
	if s.err != nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.hits, nil
}

type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	block   bool
}

func (c *scriptedCompleter) Name() string { return "anthropic" }

func (c *scriptedCompleter) Complete(ctx context.Context, _ string) (string, error) {
	if c.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return "", nil
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r, nil
}

func leadByEmail(t *testing.T, st store.Store, email string) *model.Lead {
	t.Helper()
	l, err := st.GetLeadByEmail(context.Background(), email)
	require.NoError(t, err)
	return l
}
