package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/metrics"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/store"
)

// Selection picks stored leads for bulk operations. Set fields combine with
// AND. All must be set explicitly to select every lead.
type Selection struct {
	IDs    []string `json:"ids,omitempty"`
	Emails []string `json:"emails,omitempty"`
	Tag    string   `json:"tag,omitempty"`
	Domain string   `json:"domain,omitempty"`
	All    bool     `json:"all,omitempty"`
}

// Filter converts the selection into a store query.
func (s Selection) Filter() (store.LeadFilter, error) {
	var f store.LeadFilter
	for _, id := range s.IDs {
		if id = strings.TrimSpace(id); id != "" {
			f.IDs = append(f.IDs, id)
		}
	}
	for _, e := range s.Emails {
		norm, err := model.NormalizeEmail(e)
		if err != nil {
			return f, err
		}
		f.Emails = append(f.Emails, norm)
	}
	f.Tag = model.NormalizeTag(s.Tag)
	f.Domain = model.NormalizeDomain(s.Domain)
	if strings.TrimSpace(s.Domain) != "" && f.Domain == "" {
		return f, &model.InvalidInputError{Field: "domain", Value: s.Domain, Reason: "not a domain"}
	}

	if !s.All && len(f.IDs) == 0 && len(f.Emails) == 0 && f.Tag == "" && f.Domain == "" {
		return f, &model.InvalidInputError{Field: "selection", Reason: "select leads by id, email, tag or domain, or select all"}
	}
	return f, nil
}

// RescoreReport summarizes a rescore run.
type RescoreReport struct {
	Matched int                 `json:"matched"`
	Changed int                 `json:"changed"`
	Stages  map[model.Stage]int `json:"stages"`
}

// Rescore recomputes score, stage and level for the selected leads from
// their stored data. It never calls enrichment and running it twice changes
// nothing the second time.
func (imp *Importer) Rescore(ctx context.Context, sel Selection) (*RescoreReport, error) {
	filter, err := sel.Filter()
	if err != nil {
		return nil, err
	}
	leads, err := imp.store.ListLeads(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "rescore: list leads")
	}

	report := &RescoreReport{Matched: len(leads), Stages: make(map[model.Stage]int)}
	companies := make(map[string]*model.Company)
	for i := range leads {
		if ctx.Err() != nil {
			return report, eris.Wrap(ctx.Err(), "rescore: cancelled")
		}
		changed, stage, err := imp.rescoreLead(ctx, leads[i].ID, leads[i].Domain(), companies)
		if err != nil {
			return report, eris.Wrapf(err, "rescore: lead %s", leads[i].Email)
		}
		report.Stages[stage]++
		if changed {
			report.Changed++
			metrics.LeadsRescored.Inc()
		}
	}

	zap.L().Info("rescore: complete",
		zap.Int("matched", report.Matched),
		zap.Int("changed", report.Changed),
	)
	return report, nil
}

// rescoreLead re-reads the lead under its domain lock so a concurrent import
// or edit is not overwritten with stale fields.
func (imp *Importer) rescoreLead(ctx context.Context, id, domain string, companies map[string]*model.Company) (bool, model.Stage, error) {
	unlock := imp.locks.Lock(domain)
	defer unlock()

	lead, err := imp.store.GetLead(ctx, id)
	if err != nil {
		return false, "", err
	}

	var company *model.Company
	if lead.CompanyID != "" {
		company = companies[lead.CompanyID]
		if company == nil {
			company, err = imp.store.GetCompany(ctx, lead.CompanyID)
			if err != nil {
				return false, "", err
			}
			companies[lead.CompanyID] = company
		}
	}

	siblings, err := imp.siblings(ctx, lead.CompanyID)
	if err != nil {
		return false, "", err
	}
	if !imp.scorer.Apply(lead, company, siblings) {
		return false, lead.Stage, nil
	}
	if err := imp.store.SaveLead(ctx, lead); err != nil {
		return false, "", err
	}
	return true, lead.Stage, nil
}

// ApplyTag adds a tag to every selected lead and returns how many leads
// gained it.
func (imp *Importer) ApplyTag(ctx context.Context, sel Selection, name string) (int, error) {
	tag := model.NormalizeTag(name)
	if tag == "" {
		return 0, &model.InvalidInputError{Field: "tag", Value: name, Reason: "empty tag name"}
	}
	filter, err := sel.Filter()
	if err != nil {
		return 0, err
	}
	leads, err := imp.store.ListLeads(ctx, filter)
	if err != nil {
		return 0, eris.Wrap(err, "tag: list leads")
	}

	ids := make([]string, 0, len(leads))
	for _, l := range leads {
		if !l.HasTag(tag) {
			ids = append(ids, l.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := imp.store.TagLeads(ctx, ids, tag)
	if err != nil {
		return 0, eris.Wrapf(err, "tag: apply %q", tag)
	}
	zap.L().Info("tag: applied", zap.String("tag", tag), zap.Int("leads", n))
	return n, nil
}
