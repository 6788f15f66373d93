package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/store"
)

// Mode selects which stored records a re-enrichment touches.
type Mode string

const (
	// ModeEmpty enriches only records with missing attributes and fills gaps.
	ModeEmpty Mode = "empty"
	// ModeAll enriches every selected record and lets non-empty enrichment
	// values replace stored ones.
	ModeAll Mode = "all"
)

// ParseMode validates a mode name. Empty means ModeEmpty.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeEmpty:
		return ModeEmpty, nil
	case ModeAll:
		return ModeAll, nil
	default:
		return "", &model.InvalidInputError{Field: "mode", Value: s, Reason: "must be empty or all"}
	}
}

// Reenrich runs person enrichment again for stored leads. Rows of the
// returned report follow the store's listing order.
func (imp *Importer) Reenrich(ctx context.Context, sel Selection, mode Mode) (*model.BatchReport, error) {
	if imp.leads == nil {
		return nil, &model.ConfigurationError{Capability: "enrichment", Setting: "search_api_key"}
	}
	filter, err := sel.Filter()
	if err != nil {
		return nil, err
	}
	filter.MissingPerson = mode != ModeAll
	leads, err := imp.store.ListLeads(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "reenrich: list leads")
	}

	report := &model.BatchReport{Rows: make([]model.RowResult, len(leads)), StartedAt: time.Now().UTC()}
	for _, w := range imp.Warnings() {
		report.AddWarning(w)
	}

	g := new(errgroup.Group)
	g.SetLimit(imp.opts.Workers)
	for i, lead := range leads {
		if ctx.Err() != nil {
			report.Rows[i] = model.RowResult{Index: i, Email: lead.Email, LeadID: lead.ID, Outcome: model.OutcomeSkipped, Reason: "cancelled"}
			continue
		}
		g.Go(func() error {
			report.Rows[i] = imp.reenrichLead(ctx, i, lead, mode)
			return nil
		})
	}
	_ = g.Wait()

	report.Cancelled = ctx.Err() != nil
	report.FinishedAt = time.Now().UTC()
	zap.L().Info("reenrich: complete",
		zap.String("mode", string(mode)),
		zap.Int("leads", len(leads)),
		zap.Bool("cancelled", report.Cancelled),
	)
	return report, nil
}

func (imp *Importer) reenrichLead(ctx context.Context, i int, lead model.Lead, mode Mode) model.RowResult {
	res := model.RowResult{Index: i, Email: lead.Email, LeadID: lead.ID, CompanyID: lead.CompanyID}
	log := zap.L().With(zap.String("email", lead.Email), zap.String("mode", string(mode)))

	hint := ""
	if lead.CompanyID != "" {
		if c, err := imp.store.GetCompany(ctx, lead.CompanyID); err == nil {
			hint = c.Name
		}
	}
	enrichment, err := imp.leads.Enrich(ctx, lead.Email, hint)
	if err != nil {
		res.Outcome, res.Reason = model.OutcomeRejected, err.Error()
		return res
	}
	res.Steps = enrichment.Steps

	pctx := context.WithoutCancel(ctx)
	unlock := imp.locks.Lock(lead.Domain())
	saved, err := imp.commit(pctx, lead.ID, lead.CompanyID, func(l *model.Lead, _ *model.Company) bool {
		applyEnrichment(l, enrichment, mode == ModeAll)
		return false
	})
	unlock()
	if err != nil {
		return failedRow(res, err, log)
	}

	res.Outcome, res.Score, res.Stage = model.OutcomeUpdated, saved.Score, saved.Stage
	if reason := failedSteps(res.Steps); reason != "" {
		res.Outcome, res.Reason = model.OutcomePartialEnrich, reason
	}
	return res
}

// EnrichCompanies scrapes and extracts attributes for stored companies, then
// rescores their leads since company size feeds the enterprise signal.
// ModeEmpty only visits companies never enriched before.
func (imp *Importer) EnrichCompanies(ctx context.Context, filter store.CompanyFilter, mode Mode) (*model.BatchReport, error) {
	if imp.companies == nil {
		return nil, &model.ConfigurationError{Capability: "company enrichment", Setting: "ai_primary_key"}
	}
	filter.Unenriched = mode != ModeAll
	companies, err := imp.store.ListCompanies(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "enrich companies: list")
	}

	report := &model.BatchReport{Rows: make([]model.RowResult, len(companies)), StartedAt: time.Now().UTC()}
	g := new(errgroup.Group)
	g.SetLimit(imp.opts.Workers)
	for i, c := range companies {
		if ctx.Err() != nil {
			report.Rows[i] = model.RowResult{Index: i, CompanyID: c.ID, Outcome: model.OutcomeSkipped, Reason: "cancelled"}
			continue
		}
		if imp.scorer.IsFreeEmail(c.Domain) {
			report.Rows[i] = model.RowResult{Index: i, CompanyID: c.ID, Outcome: model.OutcomeSkipped, Reason: "free mail domain"}
			continue
		}
		g.Go(func() error {
			report.Rows[i] = imp.enrichStoredCompany(ctx, i, c.Company, mode)
			return nil
		})
	}
	_ = g.Wait()

	report.Cancelled = ctx.Err() != nil
	report.FinishedAt = time.Now().UTC()
	zap.L().Info("enrich companies: complete",
		zap.String("mode", string(mode)),
		zap.Int("companies", len(companies)),
		zap.Bool("cancelled", report.Cancelled),
	)
	return report, nil
}

func (imp *Importer) enrichStoredCompany(ctx context.Context, i int, c model.Company, mode Mode) model.RowResult {
	res := model.RowResult{Index: i, CompanyID: c.ID}
	log := zap.L().With(zap.String("domain", c.Domain), zap.String("mode", string(mode)))

	profile, step := imp.enrichCompany(ctx, c.Domain, log)
	res.Steps = []model.StepOutcome{*step}
	if profile == nil {
		res.Outcome, res.Reason = model.OutcomePartialEnrich, fmt.Sprintf("%s failed: %s", step.Step, step.Error)
		return res
	}

	pctx := context.WithoutCancel(ctx)
	unlock := imp.locks.Lock(c.Domain)
	defer unlock()

	company, err := imp.store.GetCompany(pctx, c.ID)
	if err != nil {
		return failedRow(res, err, log)
	}
	applyProfile(company, profile, mode == ModeAll)
	if err := imp.store.UpdateCompany(pctx, company); err != nil {
		return failedRow(res, err, log)
	}

	leads, err := imp.store.ListLeads(pctx, store.LeadFilter{CompanyID: c.ID})
	if err != nil {
		return failedRow(res, err, log)
	}
	siblings := max(len(leads)-1, 0)
	for j := range leads {
		if imp.scorer.Apply(&leads[j], company, siblings) {
			if err := imp.store.SaveLead(pctx, &leads[j]); err != nil {
				return failedRow(res, err, log)
			}
		}
	}
	res.Outcome = model.OutcomeUpdated
	return res
}
