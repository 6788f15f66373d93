// Package pipeline drives import batches through enrichment and scoring, and
// runs bulk rescore, re-enrichment and tagging over stored leads.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leads-cli/internal/config"
	"github.com/sells-group/leads-cli/internal/enrich"
	"github.com/sells-group/leads-cli/internal/metrics"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/scoring"
	"github.com/sells-group/leads-cli/internal/store"
)

// DefaultWorkers is the import worker pool size when none is configured.
const DefaultWorkers = 4

// LeadEnricher discovers person attributes for an email.
type LeadEnricher interface {
	Enrich(ctx context.Context, email, companyHint string) (*model.EnrichmentResult, error)
	// Warnings lists capabilities disabled by missing configuration.
	Warnings() []string
}

// CompanyEnricher discovers company attributes for a domain.
type CompanyEnricher interface {
	Enrich(ctx context.Context, domain string) (*enrich.CompanyProfile, error)
}

// Options tunes the importer.
type Options struct {
	Workers int
	// RescoreSiblingsMax caps how many co-workers are rescored when a new
	// lead joins a company. Zero rescores all of them.
	RescoreSiblingsMax int
	// EnrichCompanies scrapes each new company's homepage during import.
	EnrichCompanies bool
}

// OptionsFromConfig maps pipeline configuration onto Options.
func OptionsFromConfig(c config.PipelineConfig) Options {
	return Options{
		Workers:            c.Workers,
		RescoreSiblingsMax: c.RescoreSiblingsMax,
		EnrichCompanies:    c.EnrichCompanies,
	}
}

// Option configures an Importer.
type Option func(*Importer)

// WithLeadEnricher sets the person enricher. Without one, rows are stored
// and scored with the data they carry.
func WithLeadEnricher(e LeadEnricher) Option {
	return func(imp *Importer) { imp.leads = e }
}

// WithCompanyEnricher sets the company enricher used when
// Options.EnrichCompanies is on and by EnrichCompanies.
func WithCompanyEnricher(c CompanyEnricher) Option {
	return func(imp *Importer) { imp.companies = c }
}

// Importer turns raw rows into scored, enriched leads.
type Importer struct {
	store     store.Store
	scorer    *scoring.Scorer
	leads     LeadEnricher
	companies CompanyEnricher
	opts      Options
	locks     *keyLock
}

// New creates an Importer.
func New(st store.Store, scorer *scoring.Scorer, opts Options, options ...Option) *Importer {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if scorer == nil {
		scorer = scoring.Default()
	}
	imp := &Importer{
		store:  st,
		scorer: scorer,
		opts:   opts,
		locks:  newKeyLock(),
	}
	for _, o := range options {
		o(imp)
	}
	return imp
}

// Warnings lists batch-level problems known before any row runs.
func (imp *Importer) Warnings() []string {
	if imp.leads == nil {
		return []string{"enrichment disabled: no enricher configured"}
	}
	return imp.leads.Warnings()
}

// batch holds per-call state shared by the rows of one ImportBatch.
type batch struct {
	imp *Importer
	// claimed records companies whose enrichment a row of this batch owns.
	claimed sync.Map
}

// ImportBatch imports rows with a bounded worker pool. Rows run in parallel
// but share a per-domain lock around identity resolution and the final save.
// Once ctx is done no further rows start; rows already running finish and
// are persisted. The report is always returned, in input order.
func (imp *Importer) ImportBatch(ctx context.Context, rows []Row) *model.BatchReport {
	report := &model.BatchReport{
		Rows:      make([]model.RowResult, len(rows)),
		StartedAt: time.Now().UTC(),
	}
	for _, w := range imp.Warnings() {
		report.AddWarning(w)
	}

	log := zap.L().With(zap.Int("rows", len(rows)), zap.Int("workers", imp.opts.Workers))
	log.Info("import: starting batch")

	b := &batch{imp: imp}
	g := new(errgroup.Group)
	g.SetLimit(imp.opts.Workers)
	for i, row := range rows {
		if ctx.Err() != nil {
			report.Rows[i] = skippedRow(i, row)
			continue
		}
		g.Go(func() error {
			report.Rows[i] = b.importRow(ctx, i, row)
			return nil // row failures live in the report
		})
	}
	_ = g.Wait()

	report.Cancelled = ctx.Err() != nil
	report.FinishedAt = time.Now().UTC()

	for _, r := range report.Rows {
		metrics.ImportRows.WithLabelValues(string(r.Outcome)).Inc()
	}
	metrics.ImportBatchDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	counts := report.Counts()
	log.Info("import: batch complete",
		zap.Int("created", counts[model.OutcomeCreated]),
		zap.Int("updated", counts[model.OutcomeUpdated]),
		zap.Int("partial", counts[model.OutcomePartialEnrich]),
		zap.Int("rejected", counts[model.OutcomeRejected]),
		zap.Int("failed", counts[model.OutcomeFailed]),
		zap.Int("skipped", counts[model.OutcomeSkipped]),
		zap.Bool("cancelled", report.Cancelled),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report
}

func skippedRow(i int, row Row) model.RowResult {
	return model.RowResult{
		Index:   i,
		Email:   strings.TrimSpace(row.Email),
		Outcome: model.OutcomeSkipped,
		Reason:  "batch cancelled before row started",
	}
}

func (b *batch) importRow(ctx context.Context, i int, row Row) model.RowResult {
	imp := b.imp
	res := model.RowResult{Index: i, Email: strings.TrimSpace(row.Email)}
	if ctx.Err() != nil {
		return skippedRow(i, row)
	}
	if row.Invalid != "" {
		res.Outcome, res.Reason = model.OutcomeRejected, row.Invalid
		return res
	}

	email, err := model.NormalizeEmail(row.Email)
	if err != nil {
		res.Outcome, res.Reason = model.OutcomeRejected, err.Error()
		return res
	}
	domain, err := model.DomainFromEmail(email)
	if err != nil {
		res.Outcome, res.Reason = model.OutcomeRejected, err.Error()
		return res
	}
	res.Email = email
	log := zap.L().With(zap.String("email", email), zap.String("domain", domain))

	// A started row is persisted even if the batch is cancelled meanwhile.
	pctx := context.WithoutCancel(ctx)

	lead, company, created, err := imp.resolve(pctx, email, domain, row)
	if err != nil {
		return failedRow(res, err, log)
	}
	res.LeadID, res.CompanyID = lead.ID, company.ID

	var enrichment *model.EnrichmentResult
	if imp.leads != nil && lead.MissingPersonFields() {
		hint := company.Name
		if hint == "" {
			hint = row.CompanyName
		}
		enrichment, err = imp.leads.Enrich(ctx, email, hint)
		if err != nil {
			log.Warn("import: enrichment rejected email", zap.Error(err))
			enrichment = nil
		}
	}
	if enrichment != nil {
		res.Steps = append(res.Steps, enrichment.Steps...)
	}

	profile, step := b.enrichCompany(ctx, company, log)
	if step != nil {
		res.Steps = append(res.Steps, *step)
	}

	unlock := imp.locks.Lock(domain)
	saved, err := imp.commit(pctx, lead.ID, company.ID, func(l *model.Lead, c *model.Company) bool {
		applyRow(l, row)
		applyEnrichment(l, enrichment, false)
		companyChanged := false
		if c != nil {
			companyChanged = setField(&c.Name, row.CompanyName, false)
			if profile != nil {
				applyProfile(c, profile, false)
				companyChanged = true
			}
		}
		return companyChanged
	})
	if err == nil && created {
		err = imp.rescoreSiblings(pctx, company.ID, lead.ID)
	}
	unlock()
	if err != nil {
		return failedRow(res, err, log)
	}

	res.Score, res.Stage = saved.Score, saved.Stage
	res.Outcome = model.OutcomeUpdated
	if created {
		res.Outcome = model.OutcomeCreated
	}
	if reason := failedSteps(res.Steps); reason != "" {
		res.Outcome, res.Reason = model.OutcomePartialEnrich, reason
	}

	log.Debug("import: row done",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("score", res.Score),
		zap.String("stage", string(res.Stage)),
	)
	return res
}

// resolve finds or creates the company and lead under the domain lock.
func (imp *Importer) resolve(ctx context.Context, email, domain string, row Row) (*model.Lead, *model.Company, bool, error) {
	unlock := imp.locks.Lock(domain)
	defer unlock()

	company, _, err := store.GetOrCreateCompany(ctx, imp.store, domain, strings.TrimSpace(row.CompanyName))
	if err != nil {
		return nil, nil, false, eris.Wrapf(err, "import: resolve company %s", domain)
	}

	candidate := &model.Lead{Email: email, CompanyID: company.ID}
	applyRow(candidate, row)
	imp.scorer.Apply(candidate, company, 0)

	lead, created, err := store.GetOrCreateLead(ctx, imp.store, candidate)
	if err != nil {
		return nil, nil, false, eris.Wrapf(err, "import: resolve lead %s", email)
	}
	return lead, company, created, nil
}

// commit re-reads the lead and its company, applies fn, recomputes the score
// and saves. fn reports whether the company needs saving too. Callers hold
// the lead's domain lock.
func (imp *Importer) commit(ctx context.Context, leadID, companyID string, fn func(*model.Lead, *model.Company) bool) (*model.Lead, error) {
	lead, err := imp.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.CompanyID == "" {
		lead.CompanyID = companyID
	}

	var company *model.Company
	if lead.CompanyID != "" {
		company, err = imp.store.GetCompany(ctx, lead.CompanyID)
		if err != nil {
			return nil, err
		}
	}

	if fn(lead, company) && company != nil {
		if err := imp.store.UpdateCompany(ctx, company); err != nil {
			return nil, err
		}
	}

	siblings, err := imp.siblings(ctx, lead.CompanyID)
	if err != nil {
		return nil, err
	}
	imp.scorer.Apply(lead, company, siblings)
	if err := imp.store.SaveLead(ctx, lead); err != nil {
		return nil, err
	}
	return lead, nil
}

// siblings counts the other leads at a company.
func (imp *Importer) siblings(ctx context.Context, companyID string) (int, error) {
	if companyID == "" {
		return 0, nil
	}
	n, err := imp.store.CountLeadsByCompany(ctx, companyID)
	if err != nil {
		return 0, err
	}
	return max(n-1, 0), nil
}

// rescoreSiblings refreshes the team-adoption signal of a company's other
// leads after one joined. Callers hold the domain lock.
func (imp *Importer) rescoreSiblings(ctx context.Context, companyID, exclude string) error {
	leads, err := imp.store.ListLeads(ctx, store.LeadFilter{CompanyID: companyID, Limit: imp.opts.RescoreSiblingsMax})
	if err != nil {
		return eris.Wrap(err, "import: list siblings")
	}
	company, err := imp.store.GetCompany(ctx, companyID)
	if err != nil {
		return err
	}
	siblings, err := imp.siblings(ctx, companyID)
	if err != nil {
		return err
	}
	for i := range leads {
		l := &leads[i]
		if l.ID == exclude || !imp.scorer.Apply(l, company, siblings) {
			continue
		}
		if err := imp.store.SaveLead(ctx, l); err != nil {
			return eris.Wrapf(err, "import: rescore sibling %s", l.Email)
		}
		metrics.LeadsRescored.Inc()
	}
	return nil
}

// enrichCompany scrapes a company at most once per batch. It returns nil
// when enrichment is off, already done, or owned by another row.
func (b *batch) enrichCompany(ctx context.Context, company *model.Company, log *zap.Logger) (*enrich.CompanyProfile, *model.StepOutcome) {
	imp := b.imp
	if imp.companies == nil || !imp.opts.EnrichCompanies || company.EnrichedAt != nil {
		return nil, nil
	}
	if imp.scorer.IsFreeEmail(company.Domain) {
		return nil, nil
	}
	if _, loaded := b.claimed.LoadOrStore(company.ID, struct{}{}); loaded {
		return nil, nil
	}
	return imp.enrichCompany(ctx, company.Domain, log)
}

func (imp *Importer) enrichCompany(ctx context.Context, domain string, log *zap.Logger) (*enrich.CompanyProfile, *model.StepOutcome) {
	start := time.Now()
	profile, err := imp.companies.Enrich(ctx, domain)
	step := &model.StepOutcome{Step: model.StepCompany, Duration: time.Since(start)}
	switch {
	case err != nil:
		step.Status, step.Error = model.StepFailed, err.Error()
		log.Warn("import: company enrichment failed", zap.Error(err))
		profile = nil
	default:
		step.Status, step.Provider = model.StepOK, profile.Provider
	}
	metrics.EnrichSteps.WithLabelValues(string(step.Step), string(step.Status)).Inc()
	metrics.EnrichStepDuration.WithLabelValues(string(step.Step)).Observe(step.Duration.Seconds())
	return profile, step
}

func failedRow(res model.RowResult, err error, log *zap.Logger) model.RowResult {
	log.Error("import: row failed", zap.Error(err))
	res.Outcome = model.OutcomeFailed
	res.Reason = err.Error()
	return res
}

// failedSteps describes the failed steps, or returns "" when none failed.
func failedSteps(steps []model.StepOutcome) string {
	var parts []string
	for _, s := range steps {
		if s.Status != model.StepFailed {
			continue
		}
		msg := string(s.Step) + " failed"
		if s.Error != "" {
			msg += ": " + s.Error
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}
