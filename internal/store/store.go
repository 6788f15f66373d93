package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leads-cli/internal/model"
)

// ErrNotFound is wrapped by lookups that match no row.
var ErrNotFound = eris.New("store: not found")

// Lead sort keys. Text keys sort ascending, score and stage descending.
const (
	SortName     = "name"
	SortJobTitle = "job_title"
	SortEmail    = "email"
	SortCompany  = "company"
	SortScore    = "score"
	SortStage    = "stage"
)

// LeadFilter selects leads. Empty fields do not constrain the query.
type LeadFilter struct {
	IDs       []string `json:"ids,omitempty"`
	Emails    []string `json:"emails,omitempty"`
	CompanyID string   `json:"company_id,omitempty"`
	Domain    string   `json:"domain,omitempty"`
	Tag       string   `json:"tag,omitempty"`
	// Search matches first/last name, email, company name, domain or tag.
	Search string `json:"search,omitempty"`
	// MissingPerson keeps leads lacking a name, title or LinkedIn URL.
	MissingPerson bool   `json:"missing_person,omitempty"`
	Sort          string `json:"sort,omitempty"`
	// Limit <= 0 returns every match.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// LeadStats aggregates a filtered lead set.
type LeadStats struct {
	Count        int     `json:"count"`
	AverageScore float64 `json:"average_score"`
}

// CompanySummary is a company with its lead count.
type CompanySummary struct {
	model.Company
	LeadCount int `json:"lead_count"`
}

// CompanyFilter selects companies.
type CompanyFilter struct {
	Search string `json:"search,omitempty"`
	// Unenriched keeps companies that were never enriched.
	Unenriched bool `json:"unenriched,omitempty"`
	Limit      int  `json:"limit,omitempty"`
	Offset     int  `json:"offset,omitempty"`
}

// Store defines the persistence interface for leads, companies, tags, notes
// and the enrichment cache.
type Store interface {
	// Companies
	CreateCompany(ctx context.Context, domain, name string) (*model.Company, error)
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	GetCompanyByDomain(ctx context.Context, domain string) (*model.Company, error)
	UpdateCompany(ctx context.Context, c *model.Company) error
	DeleteCompany(ctx context.Context, id string) error
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]CompanySummary, error)

	// Leads
	CreateLead(ctx context.Context, lead *model.Lead) error
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error)
	SaveLead(ctx context.Context, lead *model.Lead) error
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	LeadStats(ctx context.Context, filter LeadFilter) (*LeadStats, error)
	CountLeadsByCompany(ctx context.Context, companyID string) (int, error)

	// Tags
	TagLeads(ctx context.Context, leadIDs []string, name string) (int, error)
	ListTags(ctx context.Context) ([]model.Tag, error)

	// Notes
	AddNote(ctx context.Context, companyID, body string) (*model.CompanyNote, error)
	UpdateNote(ctx context.Context, id, body string) error
	DeleteNote(ctx context.Context, id string) error
	ListNotes(ctx context.Context, companyID string) ([]model.CompanyNote, error)

	// Enrichment cache
	GetCachedEnrichment(ctx context.Context, email string) ([]byte, error)
	SetCachedEnrichment(ctx context.Context, email string, data []byte, ttl time.Duration) error
	DeleteExpiredEnrichments(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// GetOrCreateCompany returns the company for domain, creating it when absent.
// A concurrent insert of the same domain is resolved by re-reading.
func GetOrCreateCompany(ctx context.Context, s Store, domain, name string) (*model.Company, bool, error) {
	c, err := s.GetCompanyByDomain(ctx, domain)
	if err == nil {
		return c, false, nil
	}
	if !eris.Is(err, ErrNotFound) {
		return nil, false, err
	}

	c, err = s.CreateCompany(ctx, domain, name)
	if err == nil {
		return c, true, nil
	}
	if !model.IsConflict(err) {
		return nil, false, err
	}
	c, err = s.GetCompanyByDomain(ctx, domain)
	if err != nil {
		return nil, false, eris.Wrapf(err, "store: re-read company %s after conflict", domain)
	}
	return c, false, nil
}

// GetOrCreateLead returns the lead for lead.Email, inserting lead when absent.
func GetOrCreateLead(ctx context.Context, s Store, lead *model.Lead) (*model.Lead, bool, error) {
	existing, err := s.GetLeadByEmail(ctx, lead.Email)
	if err == nil {
		return existing, false, nil
	}
	if !eris.Is(err, ErrNotFound) {
		return nil, false, err
	}

	err = s.CreateLead(ctx, lead)
	if err == nil {
		return lead, true, nil
	}
	if !model.IsConflict(err) {
		return nil, false, err
	}
	existing, err = s.GetLeadByEmail(ctx, lead.Email)
	if err != nil {
		return nil, false, eris.Wrapf(err, "store: re-read lead %s after conflict", lead.Email)
	}
	return existing, false, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := model.NormalizeTag(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
