// Package enrich turns a bare email address into company identity and person
// attributes through chained web search, AI candidate selection and AI
// attribute extraction.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/metrics"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/resilience"
	"github.com/sells-group/leads-cli/pkg/jina"
)

const selectPrompt = `We are identifying the person who uses the email address %s (company: %s).

Search results:
%s
Which single result is this person's own professional profile? Reply with JSON only:
{"url": "<the chosen result URL>"} or {"url": null} if none of the results is clearly this person.`

const extractPrompt = `Extract the professional details of the person who uses the email address %s (company: %s)
from the profile below.

URL: %s
Title: %s
Snippet: %s
%s
Reply with JSON only, using empty strings for anything not stated:
{"found": true, "full_name": "", "first_name": "", "last_name": "", "job_title": "", "linkedin_url": ""}
Set "found" to false if the profile is not about this person.`

// maxPageChars bounds the page text passed to the extract prompt.
const maxPageChars = 6000

// Reader fetches page text for a URL.
type Reader interface {
	Read(ctx context.Context, targetURL string) (*jina.ReadResponse, error)
}

// Cache stores serialized enrichment results per email.
type Cache interface {
	GetCachedEnrichment(ctx context.Context, email string) ([]byte, error)
	SetCachedEnrichment(ctx context.Context, email string, data []byte, ttl time.Duration) error
}

// Options holds per-step timeouts and limits.
type Options struct {
	SearchTimeout time.Duration
	AITimeout     time.Duration
	ReaderTimeout time.Duration
	MaxCandidates int
	// CacheTTL <= 0 disables the result cache.
	CacheTTL time.Duration
	Retry    resilience.RetryPolicy
}

// DefaultOptions returns the timeouts used when none are configured.
func DefaultOptions() Options {
	return Options{
		SearchTimeout: 15 * time.Second,
		AITimeout:     30 * time.Second,
		ReaderTimeout: 20 * time.Second,
		MaxCandidates: 8,
		CacheTTL:      7 * 24 * time.Hour,
		Retry:         resilience.RetryOnce(),
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithReader enables fetching the selected page before extraction.
func WithReader(r Reader) Option {
	return func(e *Engine) { e.reader = r }
}

// WithCache enables the per-email result cache.
func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithBreakers shares circuit breakers across engines.
func WithBreakers(b *resilience.Breakers) Option {
	return func(e *Engine) { e.breakers = b }
}

// WithDisabled records capabilities that are off for lack of configuration.
// Each error is surfaced once per batch by Warnings.
func WithDisabled(errs ...*model.ConfigurationError) Option {
	return func(e *Engine) { e.disabled = append(e.disabled, errs...) }
}

// Engine runs the search, select and extract steps. It has no side effects
// besides network calls and the optional cache.
type Engine struct {
	searchers  []Searcher
	completers []Completer
	reader     Reader
	cache      Cache
	breakers   *resilience.Breakers
	disabled   []*model.ConfigurationError
	opts       Options
}

// NewEngine creates an Engine. Searchers and completers are tried in order;
// the first is primary and the rest are fallbacks. Either list may be empty,
// which disables the steps that need it.
func NewEngine(opts Options, searchers []Searcher, completers []Completer, options ...Option) *Engine {
	d := DefaultOptions()
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = d.SearchTimeout
	}
	if opts.AITimeout <= 0 {
		opts.AITimeout = d.AITimeout
	}
	if opts.ReaderTimeout <= 0 {
		opts.ReaderTimeout = d.ReaderTimeout
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = d.MaxCandidates
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = d.Retry
	}

	e := &Engine{
		searchers:  searchers,
		completers: completers,
		opts:       opts,
	}
	for _, o := range options {
		o(e)
	}
	if e.breakers == nil {
		e.breakers = resilience.NewBreakers(resilience.BreakerSettings{})
	}
	return e
}

// Warnings describes every disabled capability. An engine without searchers
// or completers reports them even when no ConfigurationError was supplied.
func (e *Engine) Warnings() []string {
	disabled := append([]*model.ConfigurationError(nil), e.disabled...)
	if len(e.searchers) == 0 && !e.isDisabled("search") {
		disabled = append(disabled, &model.ConfigurationError{Capability: "search", Setting: "search_api_key"})
	}
	if len(e.completers) == 0 && !e.isDisabled("ai") {
		disabled = append(disabled, &model.ConfigurationError{Capability: "ai", Setting: "ai_primary_key"})
	}
	out := make([]string, 0, len(disabled))
	for _, d := range disabled {
		out = append(out, d.Error())
	}
	return out
}

func (e *Engine) isDisabled(capability string) bool {
	for _, d := range e.disabled {
		if d.Capability == capability {
			return true
		}
	}
	return false
}

// Enrich looks up the person behind email. companyHint, when set, is used in
// the search query instead of the bare domain. It fails only when the email
// has no usable domain; step failures are recorded on the result.
func (e *Engine) Enrich(ctx context.Context, email, companyHint string) (*model.EnrichmentResult, error) {
	norm, err := model.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	domain, _ := model.DomainFromEmail(norm)

	log := zap.L().With(zap.String("email", norm), zap.String("domain", domain))

	if cached := e.cached(ctx, norm, log); cached != nil {
		return cached, nil
	}

	res := &model.EnrichmentResult{
		Email:       norm,
		Domain:      domain,
		CompanyName: strings.TrimSpace(companyHint),
		Confidence:  model.ConfidenceNone,
	}
	q := Query{Email: norm, Domain: domain, Company: companyHint}

	cands := e.search(ctx, res, q, log)
	chosen, ok := e.selectCandidate(ctx, res, q, cands, log)
	if ok {
		res.SelectedURL = chosen.URL
	}
	e.extract(ctx, res, q, chosen, ok, log)

	log.Debug("enrich: done",
		zap.String("confidence", string(res.Confidence)),
		zap.String("provider", res.Provider),
		zap.String("selected_url", res.SelectedURL),
	)

	if res.Confidence != model.ConfidenceNone && !res.Failed() {
		e.store(ctx, res, log)
	}
	return res, nil
}

func (e *Engine) search(ctx context.Context, res *model.EnrichmentResult, q Query, log *zap.Logger) []Candidate {
	start := time.Now()
	if len(e.searchers) == 0 {
		e.record(res, model.StepOutcome{Step: model.StepSearch, Status: model.StepDisabled}, start)
		return nil
	}

	var lastErr error
	failures := 0
	for _, s := range e.searchers {
		hits, err := call(ctx, e, s.Name(), e.opts.SearchTimeout, func(ctx context.Context) ([]Candidate, error) {
			return s.Search(ctx, q)
		})
		if err != nil {
			failures++
			lastErr = err
			log.Warn("enrich: search provider failed", zap.String("step", "search"), zap.String("provider", s.Name()), zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		cands := FilterCandidates(hits, e.opts.MaxCandidates)
		if len(cands) == 0 {
			continue
		}
		e.record(res, model.StepOutcome{Step: model.StepSearch, Status: model.StepOK, Provider: s.Name()}, start)
		return cands
	}

	// An empty answer from any provider makes the step empty; it failed only
	// when no provider answered at all.
	if failures == len(e.searchers) || ctx.Err() != nil {
		e.record(res, model.StepOutcome{Step: model.StepSearch, Status: model.StepFailed, Error: errString(lastErr)}, start)
		return nil
	}
	e.record(res, model.StepOutcome{Step: model.StepSearch, Status: model.StepEmpty}, start)
	return nil
}

func (e *Engine) selectCandidate(ctx context.Context, res *model.EnrichmentResult, q Query, cands []Candidate, log *zap.Logger) (Candidate, bool) {
	start := time.Now()
	if len(cands) == 0 {
		e.record(res, model.StepOutcome{Step: model.StepSelect, Status: model.StepSkipped}, start)
		return Candidate{}, false
	}
	if len(e.completers) == 0 {
		e.record(res, model.StepOutcome{Step: model.StepSelect, Status: model.StepDisabled}, start)
		return bestProfile(cands)
	}

	prompt := fmt.Sprintf(selectPrompt, q.Email, q.company(), formatCandidates(cands))
	var lastErr error
	for _, c := range e.completers {
		text, err := call(ctx, e, c.Name(), e.opts.AITimeout, func(ctx context.Context) (string, error) {
			return c.Complete(ctx, prompt)
		})
		if err != nil {
			lastErr = err
			log.Warn("enrich: select provider failed", zap.String("step", "select"), zap.String("provider", c.Name()), zap.Error(err))
			continue
		}
		chosen, ok := parseSelection(text, cands)
		if !ok {
			e.record(res, model.StepOutcome{Step: model.StepSelect, Status: model.StepEmpty, Provider: c.Name()}, start)
			return Candidate{}, false
		}
		e.record(res, model.StepOutcome{Step: model.StepSelect, Status: model.StepOK, Provider: c.Name()}, start)
		return chosen, true
	}

	e.record(res, model.StepOutcome{Step: model.StepSelect, Status: model.StepFailed, Error: errString(lastErr)}, start)
	return bestProfile(cands)
}

func (e *Engine) extract(ctx context.Context, res *model.EnrichmentResult, q Query, chosen Candidate, selected bool, log *zap.Logger) {
	start := time.Now()
	if !selected {
		status := model.StepSkipped
		if len(e.completers) == 0 {
			status = model.StepDisabled
		}
		e.record(res, model.StepOutcome{Step: model.StepExtract, Status: status}, start)
		return
	}

	heuristic, fromTitle := personFromTitle(chosen)

	if len(e.completers) == 0 {
		e.record(res, model.StepOutcome{Step: model.StepExtract, Status: model.StepDisabled}, start)
		if fromTitle {
			applySearchOnly(res, heuristic, chosen)
		}
		return
	}

	prompt := fmt.Sprintf(extractPrompt, q.Email, q.company(), chosen.URL, chosen.Title, chosen.Snippet, e.pageText(ctx, chosen.URL, log))

	var lastErr error
	for _, c := range e.completers {
		text, err := call(ctx, e, c.Name(), e.opts.AITimeout, func(ctx context.Context) (string, error) {
			return c.Complete(ctx, prompt)
		})
		if err != nil {
			lastErr = err
			log.Warn("enrich: extract provider failed", zap.String("step", "extract"), zap.String("provider", c.Name()), zap.Error(err))
			continue
		}
		p, ok := parsePerson(text)
		if !ok {
			log.Debug("enrich: extract returned nothing usable", zap.String("provider", c.Name()))
			continue
		}
		if p.LinkedInURL == "" && IsLinkedInProfile(chosen.URL) {
			p.LinkedInURL = chosen.URL
		}
		res.Person = p
		res.Confidence = model.ConfidenceAIConfirmed
		res.Provider = c.Name()
		e.record(res, model.StepOutcome{Step: model.StepExtract, Status: model.StepOK, Provider: c.Name()}, start)
		return
	}

	status := model.StepEmpty
	if lastErr != nil {
		status = model.StepFailed
	}
	e.record(res, model.StepOutcome{Step: model.StepExtract, Status: status, Error: errString(lastErr)}, start)
	if fromTitle {
		applySearchOnly(res, heuristic, chosen)
	}
}

// pageText fetches the selected page through the reader. Failures only cost
// the extra context.
func (e *Engine) pageText(ctx context.Context, u string, log *zap.Logger) string {
	if e.reader == nil || IsLinkedInProfile(u) {
		return ""
	}
	resp, err := call(ctx, e, "reader", e.opts.ReaderTimeout, func(ctx context.Context) (*jina.ReadResponse, error) {
		return e.reader.Read(ctx, u)
	})
	if err != nil {
		log.Debug("enrich: reader failed", zap.String("url", u), zap.Error(err))
		return ""
	}
	if resp == nil || strings.TrimSpace(resp.Data.Content) == "" {
		return ""
	}
	return "\nPage text:\n" + truncate(resp.Data.Content, maxPageChars) + "\n"
}

// call runs fn against one provider with its own timeout, a circuit breaker
// and the retry policy. Only transient errors are retried.
func call[T any](ctx context.Context, e *Engine, provider string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	b := e.breakers.Get(provider)
	v, err := resilience.DoVal(ctx, e.opts.Retry.WithLogging(provider, "enrich"), func(ctx context.Context) (T, error) {
		return resilience.Call(ctx, b, func(ctx context.Context) (T, error) {
			actx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return fn(actx)
		})
	})
	result := "ok"
	if err != nil {
		result = "error"
		err = eris.Wrapf(err, "enrich: %s", provider)
	}
	metrics.ProviderCalls.WithLabelValues(provider, result).Inc()
	return v, err
}

func (e *Engine) record(res *model.EnrichmentResult, o model.StepOutcome, start time.Time) {
	o.Duration = time.Since(start)
	res.Record(o)
	metrics.EnrichSteps.WithLabelValues(string(o.Step), string(o.Status)).Inc()
	metrics.EnrichStepDuration.WithLabelValues(string(o.Step)).Observe(o.Duration.Seconds())
}

// bestProfile picks the first LinkedIn profile hit without AI confirmation.
func bestProfile(cands []Candidate) (Candidate, bool) {
	for _, c := range cands {
		if IsLinkedInProfile(c.URL) {
			return c, true
		}
	}
	return Candidate{}, false
}

func applySearchOnly(res *model.EnrichmentResult, p model.PersonAttributes, c Candidate) {
	res.Person = p
	res.Confidence = model.ConfidenceSearchOnly
	if res.Provider == "" {
		if o, ok := res.Step(model.StepSearch); ok {
			res.Provider = o.Provider
		}
	}
	if res.SelectedURL == "" {
		res.SelectedURL = c.URL
	}
}

func formatCandidates(cands []Candidate) string {
	var b strings.Builder
	for i, c := range cands {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, c.URL, c.Title)
		if c.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", strings.ReplaceAll(c.Snippet, "\n", " "))
		}
	}
	return b.String()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (e *Engine) cached(ctx context.Context, email string, log *zap.Logger) *model.EnrichmentResult {
	if e.cache == nil || e.opts.CacheTTL <= 0 {
		return nil
	}
	data, err := e.cache.GetCachedEnrichment(ctx, email)
	if err != nil {
		metrics.EnrichCache.WithLabelValues("error").Inc()
		log.Debug("enrich: cache lookup failed", zap.Error(err))
		return nil
	}
	if data == nil {
		metrics.EnrichCache.WithLabelValues("miss").Inc()
		return nil
	}
	var res model.EnrichmentResult
	if err := json.Unmarshal(data, &res); err != nil {
		metrics.EnrichCache.WithLabelValues("error").Inc()
		log.Debug("enrich: cached result unreadable", zap.Error(err))
		return nil
	}
	metrics.EnrichCache.WithLabelValues("hit").Inc()
	log.Debug("enrich: using cached result")
	return &res
}

func (e *Engine) store(ctx context.Context, res *model.EnrichmentResult, log *zap.Logger) {
	if e.cache == nil || e.opts.CacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := e.cache.SetCachedEnrichment(ctx, res.Email, data, e.opts.CacheTTL); err != nil {
		log.Debug("enrich: failed to cache result", zap.Error(err))
	}
}
