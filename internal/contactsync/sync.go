// Package contactsync prepares stored leads for external contact lists and
// pushes them to the configured targets.
package contactsync

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/metrics"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/store"
)

// Member is the normalized payload a contact target receives for one lead.
type Member struct {
	Email     string      `json:"email"`
	FirstName string      `json:"first_name,omitempty"`
	LastName  string      `json:"last_name,omitempty"`
	JobTitle  string      `json:"job_title,omitempty"`
	Company   string      `json:"company,omitempty"`
	Domain    string      `json:"domain,omitempty"`
	Tags      []string    `json:"tags"`
	Stage     model.Stage `json:"stage"`
	Score     int         `json:"score"`
}

// Result statuses reported by targets.
const (
	StatusCreated = "created"
	StatusUpdated = "updated"
	StatusError   = "error"
)

// Result is the outcome of pushing one member.
type Result struct {
	Email  string `json:"email"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Target receives prepared members. Push must be idempotent per email.
type Target interface {
	Name() string
	Push(ctx context.Context, members []Member) ([]Result, error)
}

// Prepare converts leads into members. companies is keyed by company ID and
// may be nil. When tag is set every member carries exactly that tag,
// otherwise the lead's full tag list.
func Prepare(leads []model.Lead, companies map[string]*model.Company, tag string) []Member {
	tag = model.NormalizeTag(tag)
	out := make([]Member, 0, len(leads))
	seen := make(map[string]bool, len(leads))
	for _, l := range leads {
		email := strings.ToLower(strings.TrimSpace(l.Email))
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true

		m := Member{
			Email:     email,
			FirstName: l.FirstName,
			LastName:  l.LastName,
			JobTitle:  l.JobTitle,
			Domain:    l.Domain(),
			Stage:     l.Stage,
			Score:     l.Score,
		}
		if c := companies[l.CompanyID]; c != nil {
			m.Company = c.Name
		}
		switch {
		case tag != "":
			m.Tags = []string{tag}
		case len(l.Tags) > 0:
			m.Tags = append([]string(nil), l.Tags...)
		default:
			m.Tags = []string{}
		}
		out = append(out, m)
	}
	return out
}

// Options controls a sync run.
type Options struct {
	// Tag replaces each member's tag list with this single tag.
	Tag string
	// DryRun prepares members without pushing them.
	DryRun bool
}

// TargetReport is the outcome for one target.
type TargetReport struct {
	Target  string   `json:"target"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Errors  []Result `json:"errors,omitempty"`
	Err     string   `json:"error,omitempty"`
}

// Report summarizes a sync run.
type Report struct {
	Members  []Member       `json:"members,omitempty"`
	Prepared int            `json:"prepared"`
	Targets  []TargetReport `json:"targets"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Syncer selects leads from the store and pushes them to targets.
type Syncer struct {
	store    store.Store
	targets  []Target
	warnings []string
}

// NewSyncer creates a syncer. warnings are reported on every run, typically
// for targets that were disabled by missing configuration.
func NewSyncer(st store.Store, targets []Target, warnings ...string) *Syncer {
	return &Syncer{store: st, targets: targets, warnings: warnings}
}

// Sync pushes the leads matching filter. A target failure is recorded in the
// report and does not stop other targets. With no targets configured the
// run returns a ConfigurationError after preparing members.
func (s *Syncer) Sync(ctx context.Context, filter store.LeadFilter, opts Options) (*Report, error) {
	if opts.Tag != "" && filter.Tag == "" {
		filter.Tag = model.NormalizeTag(opts.Tag)
	}
	leads, err := s.store.ListLeads(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "sync: list leads")
	}
	companies, err := s.companiesFor(ctx, leads)
	if err != nil {
		return nil, err
	}

	members := Prepare(leads, companies, opts.Tag)
	report := &Report{Prepared: len(members), Warnings: append([]string(nil), s.warnings...)}
	log := zap.L().With(zap.Int("members", len(members)))

	if opts.DryRun {
		report.Members = members
		log.Info("sync: dry run")
		return report, nil
	}
	if len(s.targets) == 0 {
		return report, &model.ConfigurationError{Capability: "contact sync", Setting: "sync_api_key"}
	}
	if len(members) == 0 {
		log.Info("sync: nothing to push")
		return report, nil
	}

	for _, t := range s.targets {
		tr := TargetReport{Target: t.Name()}
		results, err := t.Push(ctx, members)
		if err != nil {
			tr.Err = err.Error()
			log.Error("sync: target failed", zap.String("target", t.Name()), zap.Error(err))
		}
		for _, r := range results {
			switch r.Status {
			case StatusCreated:
				tr.Created++
			case StatusUpdated:
				tr.Updated++
			default:
				tr.Errors = append(tr.Errors, r)
			}
			metrics.SyncMembers.WithLabelValues(t.Name(), r.Status).Inc()
		}
		log.Info("sync: target complete",
			zap.String("target", t.Name()),
			zap.Int("created", tr.Created),
			zap.Int("updated", tr.Updated),
			zap.Int("errors", len(tr.Errors)),
		)
		report.Targets = append(report.Targets, tr)
	}
	return report, nil
}

func (s *Syncer) companiesFor(ctx context.Context, leads []model.Lead) (map[string]*model.Company, error) {
	out := make(map[string]*model.Company)
	for _, l := range leads {
		if l.CompanyID == "" {
			continue
		}
		if _, ok := out[l.CompanyID]; ok {
			continue
		}
		c, err := s.store.GetCompany(ctx, l.CompanyID)
		if err != nil {
			return nil, eris.Wrapf(err, "sync: get company %s", l.CompanyID)
		}
		out[l.CompanyID] = c
	}
	return out, nil
}

// chunk splits members into slices of at most size.
func chunk(members []Member, size int) [][]Member {
	if size <= 0 {
		size = len(members)
	}
	var out [][]Member
	for start := 0; start < len(members); start += size {
		out = append(out, members[start:min(start+size, len(members))])
	}
	return out
}
