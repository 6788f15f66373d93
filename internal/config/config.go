package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	// Credentials. Each may be empty; the capability it unlocks is then
	// disabled and reported as a batch warning.
	SearchAPIKey   string `yaml:"search_api_key" mapstructure:"search_api_key"`
	AIPrimaryKey   string `yaml:"ai_primary_key" mapstructure:"ai_primary_key"`
	AIFallbackKey  string `yaml:"ai_fallback_key" mapstructure:"ai_fallback_key"`
	SyncAPIKey     string `yaml:"sync_api_key" mapstructure:"sync_api_key"`
	SyncAudienceID string `yaml:"sync_audience_id" mapstructure:"sync_audience_id"`

	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Mailchimp  MailchimpConfig  `yaml:"mailchimp" mapstructure:"mailchimp"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// JinaConfig holds Jina search and reader endpoints. The key is SearchAPIKey.
type JinaConfig struct {
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string  `yaml:"search_base_url" mapstructure:"search_base_url"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// PerplexityConfig holds the fallback search provider settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds primary AI provider settings. The key is AIPrimaryKey.
type AnthropicConfig struct {
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OpenAIConfig holds fallback AI provider settings. The key is AIFallbackKey.
// BaseURL may point at any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// MailchimpConfig holds contact sync settings. Credentials are SyncAPIKey and
// SyncAudienceID.
type MailchimpConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	StageMergeField string  `yaml:"stage_merge_field" mapstructure:"stage_merge_field"`
	ScoreMergeField string  `yaml:"score_merge_field" mapstructure:"score_merge_field"`
	BatchSize       int     `yaml:"batch_size" mapstructure:"batch_size"`
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// SalesforceConfig holds Salesforce JWT auth settings for the optional CRM
// sync target.
type SalesforceConfig struct {
	ClientID   string  `yaml:"client_id" mapstructure:"client_id"`
	Username   string  `yaml:"username" mapstructure:"username"`
	KeyPath    string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL   string  `yaml:"login_url" mapstructure:"login_url"`
	StageField string  `yaml:"stage_field" mapstructure:"stage_field"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// Enabled reports whether enough settings are present to authenticate.
func (s SalesforceConfig) Enabled() bool {
	return s.ClientID != "" && s.Username != "" && s.KeyPath != ""
}

// PipelineConfig configures batch import and enrichment.
type PipelineConfig struct {
	Workers            int  `yaml:"workers" mapstructure:"workers"`
	SearchTimeoutSecs  int  `yaml:"search_timeout_secs" mapstructure:"search_timeout_secs"`
	AITimeoutSecs      int  `yaml:"ai_timeout_secs" mapstructure:"ai_timeout_secs"`
	ReaderTimeoutSecs  int  `yaml:"reader_timeout_secs" mapstructure:"reader_timeout_secs"`
	MaxCandidates      int  `yaml:"max_candidates" mapstructure:"max_candidates"`
	FetchProfilePage   bool `yaml:"fetch_profile_page" mapstructure:"fetch_profile_page"`
	EnrichCompanies    bool `yaml:"enrich_companies" mapstructure:"enrich_companies"`
	CacheTTLHours      int  `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	RescoreSiblingsMax int  `yaml:"rescore_siblings_max" mapstructure:"rescore_siblings_max"`
}

// RetryConfig configures retry for external calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ScoringConfig holds lead scoring weights and stage thresholds.
type ScoringConfig struct {
	// File optionally points at a YAML file that overrides these values.
	File string `yaml:"file" mapstructure:"file"`

	PerSession  int `yaml:"per_session" mapstructure:"per_session"`
	ActivityCap int `yaml:"activity_cap" mapstructure:"activity_cap"`

	Hierarchy HierarchyWeights `yaml:"hierarchy" mapstructure:"hierarchy"`

	TeamThreshold int `yaml:"team_threshold" mapstructure:"team_threshold"`
	TeamBonus     int `yaml:"team_bonus" mapstructure:"team_bonus"`

	FreeEmailPenalty      int `yaml:"free_email_penalty" mapstructure:"free_email_penalty"`
	EnterpriseDomainBonus int `yaml:"enterprise_domain_bonus" mapstructure:"enterprise_domain_bonus"`
	EnterpriseMinSize     int `yaml:"enterprise_min_size" mapstructure:"enterprise_min_size"`

	FreeEmailDomains  []string `yaml:"free_email_domains" mapstructure:"free_email_domains"`
	EnterpriseDomains []string `yaml:"enterprise_domains" mapstructure:"enterprise_domains"`

	Stages StageThresholds `yaml:"stages" mapstructure:"stages"`
}

// HierarchyWeights are points per seniority level.
type HierarchyWeights struct {
	Individual int `yaml:"ic" mapstructure:"ic"`
	Manager    int `yaml:"manager" mapstructure:"manager"`
	Director   int `yaml:"director" mapstructure:"director"`
	VP         int `yaml:"vp" mapstructure:"vp"`
	CLevel     int `yaml:"c_level" mapstructure:"c_level"`
}

// StageThresholds are the inclusive lower bounds of each stage above low.
type StageThresholds struct {
	Medium     int `yaml:"medium" mapstructure:"medium"`
	High       int `yaml:"high" mapstructure:"high"`
	VeryHigh   int `yaml:"very_high" mapstructure:"very_high"`
	Enterprise int `yaml:"enterprise" mapstructure:"enterprise"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// KeysFile is loaded into the environment before configuration is read.
const KeysFile = "keys.env"

// Load reads configuration from keys.env, config.yaml and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(KeysFile); err != nil {
		zap.L().Debug("config: no keys file loaded", zap.String("path", KeysFile), zap.Error(err))
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials also accept the bare names used in keys.env.
	for _, key := range []string{"search_api_key", "ai_primary_key", "ai_fallback_key", "sync_api_key", "sync_audience_id"} {
		if err := v.BindEnv(key, "LEADS_"+strings.ToUpper(key), strings.ToUpper(key)); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leads.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("jina.rate_limit", 5)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 512)
	v.SetDefault("mailchimp.stage_merge_field", "STAGE")
	v.SetDefault("mailchimp.score_merge_field", "SCORE")
	v.SetDefault("mailchimp.batch_size", 500)
	v.SetDefault("mailchimp.rate_limit", 5)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 10)

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.search_timeout_secs", 15)
	v.SetDefault("pipeline.ai_timeout_secs", 30)
	v.SetDefault("pipeline.reader_timeout_secs", 20)
	v.SetDefault("pipeline.max_candidates", 8)
	v.SetDefault("pipeline.fetch_profile_page", true)
	v.SetDefault("pipeline.enrich_companies", true)
	v.SetDefault("pipeline.cache_ttl_hours", 168)
	v.SetDefault("pipeline.rescore_siblings_max", 500)

	// One retry on transient errors.
	v.SetDefault("retry.max_attempts", 2)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)

	d := DefaultScoring()
	v.SetDefault("scoring.per_session", d.PerSession)
	v.SetDefault("scoring.activity_cap", d.ActivityCap)
	v.SetDefault("scoring.hierarchy.ic", d.Hierarchy.Individual)
	v.SetDefault("scoring.hierarchy.manager", d.Hierarchy.Manager)
	v.SetDefault("scoring.hierarchy.director", d.Hierarchy.Director)
	v.SetDefault("scoring.hierarchy.vp", d.Hierarchy.VP)
	v.SetDefault("scoring.hierarchy.c_level", d.Hierarchy.CLevel)
	v.SetDefault("scoring.team_threshold", d.TeamThreshold)
	v.SetDefault("scoring.team_bonus", d.TeamBonus)
	v.SetDefault("scoring.free_email_penalty", d.FreeEmailPenalty)
	v.SetDefault("scoring.enterprise_domain_bonus", d.EnterpriseDomainBonus)
	v.SetDefault("scoring.enterprise_min_size", d.EnterpriseMinSize)
	v.SetDefault("scoring.stages.medium", d.Stages.Medium)
	v.SetDefault("scoring.stages.high", d.Stages.High)
	v.SetDefault("scoring.stages.very_high", d.Stages.VeryHigh)
	v.SetDefault("scoring.stages.enterprise", d.Stages.Enterprise)
}

// DefaultScoring returns the default scoring weights.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		PerSession:  2,
		ActivityCap: 20,
		Hierarchy: HierarchyWeights{
			Individual: 5,
			Manager:    10,
			Director:   20,
			VP:         30,
			CLevel:     40,
		},
		TeamThreshold:         3,
		TeamBonus:             15,
		FreeEmailPenalty:      20,
		EnterpriseDomainBonus: 25,
		EnterpriseMinSize:     1000,
		Stages: StageThresholds{
			Medium:     20,
			High:       40,
			VeryHigh:   60,
			Enterprise: 80,
		},
	}
}

// Validate checks settings that would make the pipeline misbehave rather than
// merely disable a capability.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Pipeline.Workers < 1 || c.Pipeline.Workers > 32 {
		errs = append(errs, fmt.Sprintf("pipeline.workers must be between 1 and 32, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.SearchTimeoutSecs <= 0 || c.Pipeline.AITimeoutSecs <= 0 || c.Pipeline.ReaderTimeoutSecs <= 0 {
		errs = append(errs, "pipeline timeouts must be > 0")
	}
	if c.Pipeline.MaxCandidates <= 0 {
		errs = append(errs, "pipeline.max_candidates must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
