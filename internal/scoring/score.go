package scoring

import (
	"github.com/sells-group/leads-cli/internal/config"
	"github.com/sells-group/leads-cli/internal/model"
)

// Scorer holds validated weights and the domain lookup tables.
type Scorer struct {
	cfg        config.ScoringConfig
	free       map[string]struct{}
	enterprise map[string]struct{}
}

// New validates cfg and builds a Scorer. Domains listed in cfg extend the
// built-in free-email and enterprise lists.
func New(cfg config.ScoringConfig) (*Scorer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := &Scorer{
		cfg:        cfg,
		free:       make(map[string]struct{}),
		enterprise: make(map[string]struct{}),
	}
	for _, d := range append(freeEmailDomains, cfg.FreeEmailDomains...) {
		s.free[model.NormalizeDomain(d)] = struct{}{}
	}
	for _, d := range append(enterpriseDomains, cfg.EnterpriseDomains...) {
		s.enterprise[model.NormalizeDomain(d)] = struct{}{}
	}
	return s, nil
}

// Default returns a Scorer with the default weights.
func Default() *Scorer {
	s, err := New(config.DefaultScoring())
	if err != nil {
		panic(err)
	}
	return s
}

// Breakdown lists the points contributed by each signal.
type Breakdown struct {
	Activity  int `json:"activity"`
	Hierarchy int `json:"hierarchy"`
	Team      int `json:"team"`
	Domain    int `json:"domain"`
}

// Result is the outcome of scoring one lead.
type Result struct {
	Score     int                     `json:"lead_score"`
	Stage     model.Stage             `json:"lead_stage"`
	Level     model.HierarchicalLevel `json:"hierarchical_level"`
	Breakdown Breakdown               `json:"breakdown"`
}

// StageFor maps a score onto the ordered stage partition. Scores below the
// medium threshold, including negative ones, are low.
func (s *Scorer) StageFor(score int) model.Stage {
	t := s.cfg.Stages
	switch {
	case score >= t.Enterprise:
		return model.StageEnterprise
	case score >= t.VeryHigh:
		return model.StageVeryHigh
	case score >= t.High:
		return model.StageHigh
	case score >= t.Medium:
		return model.StageMedium
	default:
		return model.StageLow
	}
}

// Score computes the lead's score from its own fields, its company and the
// number of other leads at the same company. The seniority level is derived
// from the job title when the title is set.
func (s *Scorer) Score(lead *model.Lead, company *model.Company, siblings int) Result {
	level := lead.HierarchicalLevel
	if lead.JobTitle != "" {
		level = ClassifyTitle(lead.JobTitle)
	}

	domain := lead.Domain()
	if company != nil && company.Domain != "" {
		domain = company.Domain
	}

	b := Breakdown{
		Activity:  s.ActivityPoints(lead.SessionCount),
		Hierarchy: s.HierarchyPoints(level),
		Team:      s.TeamAdoptionPoints(siblings),
		Domain:    s.DomainPoints(domain, company),
	}
	total := b.Activity + b.Hierarchy + b.Team + b.Domain

	return Result{
		Score:     total,
		Stage:     s.StageFor(total),
		Level:     level,
		Breakdown: b,
	}
}

// Apply scores lead and writes score, stage and level onto it. It reports
// whether any of them changed.
func (s *Scorer) Apply(lead *model.Lead, company *model.Company, siblings int) bool {
	r := s.Score(lead, company, siblings)
	changed := lead.Score != r.Score || lead.Stage != r.Stage || lead.HierarchicalLevel != r.Level
	lead.Score = r.Score
	lead.Stage = r.Stage
	lead.HierarchicalLevel = r.Level
	return changed
}
