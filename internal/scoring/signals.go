package scoring

import (
	"strconv"
	"strings"

	"github.com/sells-group/leads-cli/internal/model"
)

var freeEmailDomains = []string{
	"gmail.com", "googlemail.com", "yahoo.com", "yahoo.co.uk", "ymail.com",
	"hotmail.com", "hotmail.co.uk", "outlook.com", "live.com", "msn.com",
	"aol.com", "icloud.com", "me.com", "mac.com", "proton.me", "protonmail.com",
	"gmx.com", "gmx.de", "web.de", "mail.com", "yandex.com", "yandex.ru",
	"zoho.com", "fastmail.com", "hey.com", "qq.com", "163.com", "126.com",
}

var enterpriseDomains = []string{
	"microsoft.com", "google.com", "amazon.com", "apple.com", "meta.com",
	"ibm.com", "oracle.com", "salesforce.com", "sap.com", "cisco.com",
	"intel.com", "adobe.com", "accenture.com", "deloitte.com", "pwc.com",
	"ey.com", "kpmg.com", "jpmorgan.com", "jpmchase.com", "goldmansachs.com",
	"morganstanley.com", "bankofamerica.com", "citi.com", "wellsfargo.com",
	"walmart.com", "ge.com", "siemens.com", "bosch.com", "unilever.com",
	"pg.com", "jnj.com", "pfizer.com", "verizon.com", "att.com",
}

// ActivityPoints rewards engagement: PerSession points per session, capped
// at ActivityCap. Negative session counts score zero.
func (s *Scorer) ActivityPoints(sessions int) int {
	if sessions <= 0 {
		return 0
	}
	p := sessions * s.cfg.PerSession
	if p > s.cfg.ActivityCap || p < 0 {
		return s.cfg.ActivityCap
	}
	return p
}

// HierarchyPoints rewards seniority.
func (s *Scorer) HierarchyPoints(level model.HierarchicalLevel) int {
	h := s.cfg.Hierarchy
	switch level {
	case model.LevelCLevel:
		return h.CLevel
	case model.LevelVP:
		return h.VP
	case model.LevelDirector:
		return h.Director
	case model.LevelManager:
		return h.Manager
	case model.LevelIndividual:
		return h.Individual
	default:
		return 0
	}
}

// TeamAdoptionPoints awards TeamBonus once a company has at least
// TeamThreshold other leads.
func (s *Scorer) TeamAdoptionPoints(siblings int) int {
	if s.cfg.TeamThreshold > 0 && siblings >= s.cfg.TeamThreshold {
		return s.cfg.TeamBonus
	}
	return 0
}

// DomainPoints penalizes free webmail domains and rewards curated enterprise
// domains or companies whose recorded size reaches EnterpriseMinSize.
func (s *Scorer) DomainPoints(domain string, company *model.Company) int {
	domain = strings.ToLower(domain)
	if s.IsFreeEmail(domain) {
		return -s.cfg.FreeEmailPenalty
	}
	if s.IsEnterprise(domain) {
		return s.cfg.EnterpriseDomainBonus
	}
	if company != nil && s.cfg.EnterpriseMinSize > 0 &&
		sizeLowerBound(company.Attributes.Get(model.AttrSize)) >= s.cfg.EnterpriseMinSize {
		return s.cfg.EnterpriseDomainBonus
	}
	return 0
}

// IsFreeEmail reports whether domain is a consumer mailbox provider.
func (s *Scorer) IsFreeEmail(domain string) bool {
	_, ok := s.free[domain]
	return ok
}

// IsEnterprise reports whether domain or any parent domain is on the
// enterprise list.
func (s *Scorer) IsEnterprise(domain string) bool {
	for d := domain; d != ""; {
		if _, ok := s.enterprise[d]; ok {
			return true
		}
		_, rest, found := strings.Cut(d, ".")
		if !found || !strings.Contains(rest, ".") {
			return false
		}
		d = rest
	}
	return false
}

// sizeLowerBound reads the lower bound of employee-size strings such as
// "1001-5000", "10,001+" or "250".
func sizeLowerBound(size string) int {
	size = strings.ReplaceAll(strings.TrimSpace(size), ",", "")
	end := strings.IndexFunc(size, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return 0
	}
	if end > 0 {
		size = size[:end]
	}
	n, err := strconv.Atoi(size)
	if err != nil {
		return 0
	}
	return n
}
