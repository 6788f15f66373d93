package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/resilience"
)

const companyPrompt = `Extract company details for %s from its homepage below.
Reply with JSON only. Use empty strings for anything not stated or clearly implied.
{"company_name": "", "industry": "", "size": "", "hq_country": "", "org_type": "", "tech_stack": "",
 "street": "", "city": "", "state": "", "postal_code": "", "country": "", "phone": "",
 "funding_stage": "", "total_funding": ""}
"size" is an employee range such as "51-200". "org_type" is one of: private, public, nonprofit, government, education.

Title: %s
Description: %s

Page text:
%s`

// HomePage is what a homepage scrape yields before any AI call.
type HomePage struct {
	URL         string
	Title       string
	Description string
	Text        string
	LinkedIn    string
	Facebook    string
	Phone       string
}

// CompanyProfile is the enrichment result for one company domain.
type CompanyProfile struct {
	Domain     string           `json:"domain"`
	Name       string           `json:"company_name,omitempty"`
	Industry   string           `json:"industry,omitempty"`
	Attributes model.Attributes `json:"attributes,omitempty"`
	Provider   string           `json:"provider,omitempty"`
}

// CompanyEnricher scrapes a company homepage and asks the AI providers for
// firmographics.
type CompanyEnricher struct {
	http       *http.Client
	completers []Completer
	breakers   *resilience.Breakers
	retry      resilience.RetryPolicy
	aiTimeout  time.Duration
}

// CompanyOption configures a CompanyEnricher.
type CompanyOption func(*CompanyEnricher)

// WithCompanyHTTPClient sets the HTTP client used for homepage fetches.
func WithCompanyHTTPClient(hc *http.Client) CompanyOption {
	return func(c *CompanyEnricher) { c.http = hc }
}

// WithCompanyBreakers shares circuit breakers with the lead engine.
func WithCompanyBreakers(b *resilience.Breakers) CompanyOption {
	return func(c *CompanyEnricher) { c.breakers = b }
}

// NewCompanyEnricher creates a CompanyEnricher. completers may be empty, in
// which case only the homepage scrape runs.
func NewCompanyEnricher(opts Options, completers []Completer, options ...CompanyOption) *CompanyEnricher {
	c := &CompanyEnricher{
		http:       &http.Client{Timeout: 15 * time.Second},
		completers: completers,
		retry:      opts.Retry,
		aiTimeout:  opts.AITimeout,
	}
	if c.aiTimeout <= 0 {
		c.aiTimeout = DefaultOptions().AITimeout
	}
	if c.retry.MaxAttempts <= 0 {
		c.retry = resilience.RetryOnce()
	}
	for _, o := range options {
		o(c)
	}
	if c.breakers == nil {
		c.breakers = resilience.NewBreakers(resilience.BreakerSettings{})
	}
	return c
}

// Enrich scrapes the homepage of domain and extracts company attributes. It
// returns an error only when neither the scrape nor the AI produced anything.
func (c *CompanyEnricher) Enrich(ctx context.Context, domain string) (*CompanyProfile, error) {
	d := model.NormalizeDomain(domain)
	if d == "" {
		return nil, &model.InvalidInputError{Field: "domain", Value: domain, Reason: "not a domain"}
	}
	log := zap.L().With(zap.String("domain", d), zap.String("step", string(model.StepCompany)))

	profile := &CompanyProfile{Domain: d, Attributes: model.Attributes{}}

	page, err := c.FetchHomePage(ctx, d)
	if err != nil {
		log.Warn("enrich: homepage fetch failed", zap.Error(err))
		return nil, eris.Wrapf(err, "enrich: company %s", d)
	}

	profile.Attributes[model.AttrWebsite] = page.URL
	profile.Attributes[model.AttrLinkedIn] = page.LinkedIn
	profile.Attributes[model.AttrFacebook] = page.Facebook
	profile.Attributes[model.AttrPhone] = page.Phone
	profile.Name = siteName(page.Title)
	profile.Provider = "homepage"

	prompt := fmt.Sprintf(companyPrompt, d, page.Title, page.Description, truncate(page.Text, maxPageChars))
	for _, comp := range c.completers {
		b := c.breakers.Get(comp.Name())
		text, err := resilience.DoVal(ctx, c.retry.WithLogging(comp.Name(), "company"), func(ctx context.Context) (string, error) {
			return resilience.Call(ctx, b, func(ctx context.Context) (string, error) {
				actx, cancel := context.WithTimeout(ctx, c.aiTimeout)
				defer cancel()
				return comp.Complete(actx, prompt)
			})
		})
		if err != nil {
			log.Warn("enrich: company provider failed", zap.String("provider", comp.Name()), zap.Error(err))
			continue
		}
		name, industry, attrs, ok := parseCompany(text)
		if !ok {
			continue
		}
		if name != "" {
			profile.Name = name
		}
		profile.Industry = industry
		profile.Attributes.Fill(attrs, false)
		profile.Provider = comp.Name()
		break
	}

	for k, v := range profile.Attributes {
		if v == "" {
			delete(profile.Attributes, k)
		}
	}
	return profile, nil
}

var phonePattern = regexp.MustCompile(`^\+?[\d\s().\-]{7,20}$`)

// FetchHomePage downloads and parses the homepage of domain.
func (c *CompanyEnricher) FetchHomePage(ctx context.Context, domain string) (*HomePage, error) {
	target := "https://" + domain
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: create homepage request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; leads-cli)")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: fetch homepage")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, eris.Errorf("enrich: homepage status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: parse homepage")
	}

	page := &HomePage{
		URL:   target,
		Title: cleanSpace(doc.Find("title").First().Text()),
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		page.Description = cleanSpace(desc)
	} else if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		page.Description = cleanSpace(desc)
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		lower := strings.ToLower(href)
		switch {
		case strings.HasPrefix(lower, "tel:"):
			if page.Phone == "" {
				if p, err := url.PathUnescape(strings.TrimSpace(href[4:])); err == nil && phonePattern.MatchString(p) {
					page.Phone = p
				}
			}
		case strings.Contains(lower, "linkedin.com/company/"):
			if page.LinkedIn == "" {
				page.LinkedIn = canonicalURL(href)
			}
		case strings.Contains(lower, "facebook.com/"):
			if page.Facebook == "" && !strings.Contains(lower, "/sharer") {
				page.Facebook = canonicalURL(href)
			}
		}
	})

	doc.Find("script, style, noscript, svg").Remove()
	page.Text = cleanSpace(doc.Find("body").Text())
	return page, nil
}

// parseCompany reads the company prompt's JSON answer. Unknown keys are
// dropped.
func parseCompany(text string) (name, industry string, attrs model.Attributes, ok bool) {
	raw, found := extractJSON(text)
	if !found {
		return "", "", nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return "", "", nil, false
	}

	attrs = model.Attributes{}
	for k, v := range m {
		s := cleanValue(jsonString(v))
		if s == "" {
			continue
		}
		switch k {
		case "company_name":
			name = s
			continue
		case "industry":
			industry = s
			continue
		}
		attr, err := model.ParseCompanyAttr(k)
		if err != nil {
			continue
		}
		attrs[attr] = s
	}
	return name, industry, attrs, name != "" || industry != "" || len(attrs) > 0
}

func jsonString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := cleanValue(jsonString(e)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}

// siteName takes the most name-like segment of a page title.
func siteName(title string) string {
	for _, sep := range []string{" | ", " - ", " – ", " :: "} {
		if i := strings.Index(title, sep); i > 0 {
			return strings.TrimSpace(title[:i])
		}
	}
	return strings.TrimSpace(title)
}

func cleanSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
