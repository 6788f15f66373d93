package scoring

import (
	"strings"
	"unicode"

	"github.com/sells-group/leads-cli/internal/model"
)

var (
	cSuiteTokens = map[string]bool{
		"ceo": true, "cto": true, "cfo": true, "coo": true, "cmo": true,
		"cio": true, "ciso": true, "cro": true, "cpo": true, "cdo": true,
		"chief": true, "founder": true, "cofounder": true, "owner": true,
	}
	vpTokens       = map[string]bool{"vp": true, "svp": true, "evp": true, "avp": true}
	directorTokens = map[string]bool{"director": true, "head": true}
	managerTokens  = map[string]bool{"manager": true, "mgr": true, "lead": true, "supervisor": true}
)

// ClassifyTitle maps a free-text job title to a seniority level. An empty
// title is LevelUnknown; any other unmatched title is an individual
// contributor.
func ClassifyTitle(title string) model.HierarchicalLevel {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return model.LevelUnknown
	}
	tokens := strings.FieldsFunc(t, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	has := func(set map[string]bool) bool {
		for _, tok := range tokens {
			if set[tok] {
				return true
			}
		}
		return false
	}

	switch {
	case has(cSuiteTokens):
		return model.LevelCLevel
	case strings.Contains(t, "vice president") || has(vpTokens):
		return model.LevelVP
	case has(map[string]bool{"president": true}):
		return model.LevelCLevel
	case has(directorTokens):
		return model.LevelDirector
	case has(managerTokens):
		return model.LevelManager
	default:
		return model.LevelIndividual
	}
}
