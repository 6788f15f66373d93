package model

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/rotisserie/eris"
)

// CompanyAttr names one enrichment attribute of a company. The set is closed;
// ParseCompanyAttr rejects anything else.
type CompanyAttr string

const (
	AttrWebsite      CompanyAttr = "website"
	AttrLinkedIn     CompanyAttr = "linkedin"
	AttrFacebook     CompanyAttr = "facebook"
	AttrSize         CompanyAttr = "size"
	AttrHQCountry    CompanyAttr = "hq_country"
	AttrOrgType      CompanyAttr = "org_type"
	AttrTechStack    CompanyAttr = "tech_stack"
	AttrStreet       CompanyAttr = "street"
	AttrCity         CompanyAttr = "city"
	AttrState        CompanyAttr = "state"
	AttrPostalCode   CompanyAttr = "postal_code"
	AttrCountry      CompanyAttr = "country"
	AttrPhone        CompanyAttr = "phone"
	AttrFundingStage CompanyAttr = "funding_stage"
	AttrTotalFunding CompanyAttr = "total_funding"
)

var knownAttrs = map[CompanyAttr]struct{}{
	AttrWebsite: {}, AttrLinkedIn: {}, AttrFacebook: {}, AttrSize: {},
	AttrHQCountry: {}, AttrOrgType: {}, AttrTechStack: {}, AttrStreet: {},
	AttrCity: {}, AttrState: {}, AttrPostalCode: {}, AttrCountry: {},
	AttrPhone: {}, AttrFundingStage: {}, AttrTotalFunding: {},
}

// ParseCompanyAttr validates an attribute name.
func ParseCompanyAttr(s string) (CompanyAttr, error) {
	a := CompanyAttr(s)
	if _, ok := knownAttrs[a]; !ok {
		return "", eris.Errorf("model: unknown company attribute %q", s)
	}
	return a, nil
}

// Attributes holds company enrichment values keyed by attribute.
type Attributes map[CompanyAttr]string

// Get returns the value of k, or "" when unset.
func (a Attributes) Get(k CompanyAttr) string {
	if a == nil {
		return ""
	}
	return a[k]
}

// Fill copies non-empty values from src. Populated keys are only replaced
// when overwrite is set. It returns the keys that changed, sorted.
func (a Attributes) Fill(src Attributes, overwrite bool) []CompanyAttr {
	var changed []CompanyAttr
	for k, v := range src {
		if v == "" {
			continue
		}
		cur, ok := a[k]
		if ok && cur != "" && !overwrite {
			continue
		}
		if cur == v {
			continue
		}
		a[k] = v
		changed = append(changed, k)
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed
}

// UnmarshalJSON rejects unknown attribute keys.
func (a *Attributes) UnmarshalJSON(b []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return eris.Wrap(err, "model: decode attributes")
	}
	out := make(Attributes, len(raw))
	for k, v := range raw {
		attr, err := ParseCompanyAttr(k)
		if err != nil {
			return err
		}
		out[attr] = v
	}
	*a = out
	return nil
}

// Company is the organization a lead belongs to, keyed by email domain.
type Company struct {
	ID         string     `json:"id"`
	Domain     string     `json:"domain"`
	Name       string     `json:"company_name,omitempty"`
	Industry   string     `json:"industry,omitempty"`
	Attributes Attributes `json:"attributes,omitempty"`
	EnrichedAt *time.Time `json:"enriched_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CompanyNote is a free-text note owned by a company. Notes are removed with
// their company.
type CompanyNote struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tag is a shared lead label. Names are stored normalized.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
