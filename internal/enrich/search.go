package enrich

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/pkg/jina"
	"github.com/sells-group/leads-cli/pkg/perplexity"
)

// Candidate is one search hit that may identify the person behind an email.
type Candidate struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// Query identifies the person to look for.
type Query struct {
	Email   string
	Domain  string
	Company string
}

// String renders the query as web search terms: the email's local part split
// into words, the company label and the address itself.
func (q Query) String() string {
	person := strings.NewReplacer(".", " ", "_", " ", "-", " ", "+", " ").Replace(model.LocalPart(q.Email))
	person = strings.Join(strings.Fields(person), " ")
	return strings.Join(strings.Fields(fmt.Sprintf("%s %s %s linkedin", person, q.company(), q.Email)), " ")
}

func (q Query) company() string {
	if c := strings.TrimSpace(q.Company); c != "" {
		return c
	}
	return q.Domain
}

// Searcher runs a web search and returns raw hits in provider order.
type Searcher interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Candidate, error)
}

// JinaSearcher adapts the Jina search API.
type JinaSearcher struct {
	client jina.Client
}

// NewJinaSearcher wraps a Jina client.
func NewJinaSearcher(c jina.Client) *JinaSearcher {
	return &JinaSearcher{client: c}
}

// Name implements Searcher.
func (s *JinaSearcher) Name() string { return "jina" }

// Search implements Searcher.
func (s *JinaSearcher) Search(ctx context.Context, q Query) ([]Candidate, error) {
	resp, err := s.client.Search(ctx, q.String())
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	out := make([]Candidate, 0, len(resp.Data))
	for _, r := range resp.Data {
		snippet := r.Description
		if snippet == "" {
			snippet = r.Content
		}
		out = append(out, Candidate{URL: r.URL, Title: r.Title, Snippet: truncate(snippet, 300)})
	}
	return out, nil
}

const perplexitySearchPrompt = `Search the web for the professional profile of the person who uses the email address %s.
Find their LinkedIn profile and their role at %s.
List every relevant URL you found, one per line, each followed by a short description.`

// PerplexitySearcher uses Perplexity's cited sources as search hits.
type PerplexitySearcher struct {
	client perplexity.Client
}

// NewPerplexitySearcher wraps a Perplexity client.
func NewPerplexitySearcher(c perplexity.Client) *PerplexitySearcher {
	return &PerplexitySearcher{client: c}
}

// Name implements Searcher.
func (s *PerplexitySearcher) Name() string { return "perplexity" }

// Search implements Searcher. Cited sources become the hits; URLs in the
// answer text are used only when nothing was cited.
func (s *PerplexitySearcher) Search(ctx context.Context, q Query) ([]Candidate, error) {
	temp := 0.1
	resp, err := s.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "user", Content: fmt.Sprintf(perplexitySearchPrompt, q.Email, q.company())},
		},
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}

	sources := resp.Sources()
	out := make([]Candidate, 0, len(sources))
	for _, r := range sources {
		out = append(out, Candidate{URL: r.URL, Title: r.Title})
	}
	if len(out) == 0 {
		for _, u := range urlsInText(resp.Text()) {
			out = append(out, Candidate{URL: u})
		}
	}
	return out, nil
}

// hostBlocklist holds contact aggregators and directories whose pages
// describe many people and never confirm one.
var hostBlocklist = []string{
	"zoominfo.com",
	"rocketreach.co",
	"apollo.io",
	"contactout.com",
	"signalhire.com",
	"lusha.com",
	"seamless.ai",
	"leadiq.com",
	"hunter.io",
	"clearbit.com",
	"spokeo.com",
	"whitepages.com",
	"peoplefinders.com",
	"truepeoplesearch.com",
	"beenverified.com",
	"radaris.com",
	"theorg.com",
	"crunchbase.com",
	"dnb.com",
	"emailformat.com",
	"email-format.com",
}

func isBlockedHost(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, b := range hostBlocklist {
		if host == b || strings.HasSuffix(host, "."+b) {
			return true
		}
	}
	return false
}

// IsLinkedInProfile reports whether u points at a personal LinkedIn profile.
func IsLinkedInProfile(u string) bool {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Host)
	if host != "linkedin.com" && !strings.HasSuffix(host, ".linkedin.com") {
		return false
	}
	return strings.HasPrefix(strings.ToLower(parsed.Path), "/in/")
}

// canonicalURL normalizes a hit URL for comparison: lowercase host, no
// fragment, no query, no trailing slash. It returns "" for non-http URLs.
func canonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	host := strings.ToLower(u.Host)
	// Country subdomains (uk.linkedin.com) resolve to the same profile.
	if strings.HasSuffix(host, ".linkedin.com") {
		host = "www.linkedin.com"
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	return "https://" + host + path
}

// FilterCandidates drops blocklisted and malformed hits, removes duplicates,
// moves LinkedIn profiles to the front and caps the list at max. Relative
// order is otherwise preserved.
func FilterCandidates(in []Candidate, max int) []Candidate {
	seen := make(map[string]bool, len(in))
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		canon := canonicalURL(c.URL)
		if canon == "" || seen[canon] {
			continue
		}
		u, _ := url.Parse(canon)
		if isBlockedHost(u.Host) {
			continue
		}
		seen[canon] = true
		c.URL = canon
		c.Title = strings.TrimSpace(c.Title)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return IsLinkedInProfile(out[i].URL) && !IsLinkedInProfile(out[j].URL)
	})

	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
