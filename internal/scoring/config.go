// Package scoring computes lead scores and stages. Score and the signal
// functions are pure: the same lead, company and sibling count always give
// the same result.
package scoring

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leads-cli/internal/config"
)

// LoadFile overlays the YAML file at path onto base and validates the result.
func LoadFile(path string, base config.ScoringConfig) (config.ScoringConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, eris.Wrapf(err, "scoring: read %s", path)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, eris.Wrapf(err, "scoring: parse %s", path)
	}
	if err := ValidateConfig(cfg); err != nil {
		return base, err
	}
	return cfg, nil
}

// ValidateConfig checks that weights are non-negative and stage thresholds
// are strictly increasing.
func ValidateConfig(c config.ScoringConfig) error {
	var errs []string

	nonNegative := map[string]int{
		"per_session":             c.PerSession,
		"activity_cap":            c.ActivityCap,
		"hierarchy.ic":            c.Hierarchy.Individual,
		"hierarchy.manager":       c.Hierarchy.Manager,
		"hierarchy.director":      c.Hierarchy.Director,
		"hierarchy.vp":            c.Hierarchy.VP,
		"hierarchy.c_level":       c.Hierarchy.CLevel,
		"team_threshold":          c.TeamThreshold,
		"team_bonus":              c.TeamBonus,
		"free_email_penalty":      c.FreeEmailPenalty,
		"enterprise_domain_bonus": c.EnterpriseDomainBonus,
		"enterprise_min_size":     c.EnterpriseMinSize,
	}
	for _, name := range sortedKeys(nonNegative) {
		if nonNegative[name] < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	h := c.Hierarchy
	if h.Individual > h.Manager || h.Manager > h.Director || h.Director > h.VP || h.VP > h.CLevel {
		errs = append(errs, "hierarchy weights must not decrease with seniority")
	}

	s := c.Stages
	if s.Medium >= s.High || s.High >= s.VeryHigh || s.VeryHigh >= s.Enterprise {
		errs = append(errs, fmt.Sprintf("stage thresholds must increase: medium=%d high=%d very_high=%d enterprise=%d",
			s.Medium, s.High, s.VeryHigh, s.Enterprise))
	}

	if len(errs) > 0 {
		return eris.Errorf("scoring: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
