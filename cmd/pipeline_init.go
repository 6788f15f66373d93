package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/config"
	"github.com/sells-group/leads-cli/internal/contactsync"
	"github.com/sells-group/leads-cli/internal/db"
	"github.com/sells-group/leads-cli/internal/enrich"
	"github.com/sells-group/leads-cli/internal/fetcher"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/pipeline"
	"github.com/sells-group/leads-cli/internal/resilience"
	"github.com/sells-group/leads-cli/internal/scoring"
	"github.com/sells-group/leads-cli/internal/store"
	anthropicpkg "github.com/sells-group/leads-cli/pkg/anthropic"
	"github.com/sells-group/leads-cli/pkg/jina"
	"github.com/sells-group/leads-cli/pkg/mailchimp"
	openaipkg "github.com/sells-group/leads-cli/pkg/openai"
	"github.com/sells-group/leads-cli/pkg/perplexity"
	sfpkg "github.com/sells-group/leads-cli/pkg/salesforce"
)

// appEnv holds the store and the services built on it for one command run.
type appEnv struct {
	Store    store.Store
	Importer *pipeline.Importer
	Breakers *resilience.Breakers
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp opens and migrates the store, then wires every configured provider.
// Missing credentials disable the capability they unlock; they never fail
// initialization. Callers should defer env.Close().
func initApp(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env, err := buildApp(cfg, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return env, nil
}

// buildApp wires services around an open store.
func buildApp(c *config.Config, st store.Store) (*appEnv, error) {
	scoringCfg := c.Scoring
	if scoringCfg.File != "" {
		loaded, err := scoring.LoadFile(scoringCfg.File, scoringCfg)
		if err != nil {
			return nil, err
		}
		scoringCfg = loaded
	}
	scorer, err := scoring.New(scoringCfg)
	if err != nil {
		return nil, err
	}

	breakers := resilience.NewBreakers(resilience.SettingsFromConfig(c.Circuit))
	opts := enrichOptions(c)

	searchers, disabled := buildSearchers(c)
	completers, aiDisabled := buildCompleters(c)
	disabled = append(disabled, aiDisabled...)

	engineOpts := []enrich.Option{
		enrich.WithBreakers(breakers),
		enrich.WithCache(st),
		enrich.WithDisabled(disabled...),
	}
	if c.Pipeline.FetchProfilePage && c.SearchAPIKey != "" {
		engineOpts = append(engineOpts, enrich.WithReader(newJinaClient(c)))
	}
	engine := enrich.NewEngine(opts, searchers, completers, engineOpts...)
	companies := enrich.NewCompanyEnricher(opts, completers, enrich.WithCompanyBreakers(breakers))

	imp := pipeline.New(st, scorer, pipeline.OptionsFromConfig(c.Pipeline),
		pipeline.WithLeadEnricher(engine),
		pipeline.WithCompanyEnricher(companies),
	)

	for _, w := range engine.Warnings() {
		zap.L().Warn("capability disabled", zap.String("reason", w))
	}

	return &appEnv{
		Store:    st,
		Importer: imp,
		Breakers: breakers,
	}, nil
}

// newSyncer connects the configured contact sync targets. It is separate
// from buildApp so commands that never sync skip the Salesforce login.
func newSyncer(c *config.Config, st store.Store) *contactsync.Syncer {
	targets, warnings := buildTargets(c)
	for _, w := range warnings {
		zap.L().Warn("capability disabled", zap.String("reason", w))
	}
	return contactsync.NewSyncer(st, targets, warnings...)
}

func enrichOptions(c *config.Config) enrich.Options {
	return enrich.Options{
		SearchTimeout: time.Duration(c.Pipeline.SearchTimeoutSecs) * time.Second,
		AITimeout:     time.Duration(c.Pipeline.AITimeoutSecs) * time.Second,
		ReaderTimeout: time.Duration(c.Pipeline.ReaderTimeoutSecs) * time.Second,
		MaxCandidates: c.Pipeline.MaxCandidates,
		CacheTTL:      time.Duration(c.Pipeline.CacheTTLHours) * time.Hour,
		Retry:         resilience.PolicyFromConfig(c.Retry),
	}
}

func newJinaClient(c *config.Config) jina.Client {
	opts := []jina.Option{jina.WithBaseURL(c.Jina.BaseURL), jina.WithRateLimit(c.Jina.RateLimit)}
	if c.Jina.SearchBaseURL != "" {
		opts = append(opts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
	}
	return jina.NewClient(c.SearchAPIKey, opts...)
}

// buildSearchers returns Jina as primary and Perplexity as fallback.
func buildSearchers(c *config.Config) ([]enrich.Searcher, []*model.ConfigurationError) {
	var searchers []enrich.Searcher
	var disabled []*model.ConfigurationError

	if c.SearchAPIKey != "" {
		searchers = append(searchers, enrich.NewJinaSearcher(newJinaClient(c)))
	}
	if c.Perplexity.Key != "" {
		pc := perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		)
		searchers = append(searchers, enrich.NewPerplexitySearcher(pc))
	}
	if len(searchers) == 0 {
		disabled = append(disabled, &model.ConfigurationError{Capability: "search", Setting: "search_api_key"})
	}
	return searchers, disabled
}

// buildCompleters returns Anthropic as primary and the OpenAI-compatible
// endpoint as fallback.
func buildCompleters(c *config.Config) ([]enrich.Completer, []*model.ConfigurationError) {
	var completers []enrich.Completer
	var disabled []*model.ConfigurationError

	if c.AIPrimaryKey != "" {
		ac := anthropicpkg.NewClient(c.AIPrimaryKey)
		completers = append(completers, enrich.NewAnthropicCompleter(ac, c.Anthropic.Model, c.Anthropic.MaxTokens))
	}

	if c.AIFallbackKey != "" {
		oc, err := openaipkg.NewClient(openaipkg.Config{
			BaseURL: c.OpenAI.BaseURL,
			APIKey:  c.AIFallbackKey,
			Model:   c.OpenAI.Model,
		})
		if err != nil {
			zap.L().Warn("fallback AI client init failed", zap.Error(err))
		} else {
			completers = append(completers, enrich.NewOpenAICompleter(oc, c.OpenAI.MaxTokens))
		}
	}
	if len(completers) == 0 {
		disabled = append(disabled, &model.ConfigurationError{Capability: "ai", Setting: "ai_primary_key"})
	}
	return completers, disabled
}

// buildTargets returns the contact sync targets the configuration enables,
// plus a warning for each one it cannot.
func buildTargets(c *config.Config) ([]contactsync.Target, []string) {
	var targets []contactsync.Target
	var warnings []string
	retry := resilience.PolicyFromConfig(c.Retry)

	switch {
	case c.SyncAPIKey == "":
		warnings = append(warnings, (&model.ConfigurationError{Capability: "contact sync", Setting: "sync_api_key"}).Error())
	case c.SyncAudienceID == "":
		warnings = append(warnings, (&model.ConfigurationError{Capability: "contact sync", Setting: "sync_audience_id"}).Error())
	default:
		mcOpts := []mailchimp.Option{mailchimp.WithRateLimit(c.Mailchimp.RateLimit)}
		if c.Mailchimp.BaseURL != "" {
			mcOpts = append(mcOpts, mailchimp.WithBaseURL(c.Mailchimp.BaseURL))
		}
		mc, err := mailchimp.NewClient(c.SyncAPIKey, mcOpts...)
		if err != nil {
			warnings = append(warnings, "mailchimp disabled: "+err.Error())
		} else {
			targets = append(targets, contactsync.NewMailchimpTarget(mc, c.SyncAudienceID, c.Mailchimp, retry))
		}
	}

	if c.Salesforce.Enabled() {
		sf, err := initSalesforce(c.Salesforce)
		if err != nil {
			warnings = append(warnings, "salesforce disabled: "+err.Error())
		} else {
			targets = append(targets, contactsync.NewSalesforceTarget(sf, c.Salesforce.StageField))
		}
	}
	return targets, warnings
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leads.db"
		}
		s, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{MaxConns: cfg.Store.MaxConns})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSalesforce(c config.SalesforceConfig) (sfpkg.Client, error) {
	pemData, err := os.ReadFile(c.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}
	return sfpkg.Connect(c.LoginURL, c.Username, c.ClientID, string(pemData), sfpkg.WithRateLimit(c.RateLimit))
}

// fetchOptions builds table fetch options with the HTTP and FTP fetchers.
func fetchOptions(format fetcher.Format, sheet string) fetcher.Options {
	return fetcher.Options{
		HTTP:   fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Retry: resilience.PolicyFromConfig(cfg.Retry)}),
		FTP:    fetcher.NewFTPFetcher(fetcher.FTPOptions{}),
		Format: format,
		Sheet:  sheet,
	}
}
