package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leads.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 15, cfg.Pipeline.SearchTimeoutSecs)
	assert.Equal(t, 30, cfg.Pipeline.AITimeoutSecs)
	assert.Equal(t, 8, cfg.Pipeline.MaxCandidates)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, "https://s.jina.ai", cfg.Jina.SearchBaseURL)
	assert.Equal(t, "STAGE", cfg.Mailchimp.StageMergeField)
	assert.Equal(t, DefaultScoring().Hierarchy, cfg.Scoring.Hierarchy)
	assert.Equal(t, DefaultScoring().Stages, cfg.Scoring.Stages)
	assert.Empty(t, cfg.SearchAPIKey)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/leads
log:
  level: debug
  format: console
pipeline:
  workers: 8
scoring:
  team_bonus: 30
  stages:
    medium: 25
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, 30, cfg.Scoring.TeamBonus)
	assert.Equal(t, 25, cfg.Scoring.Stages.Medium)
	assert.Equal(t, 40, cfg.Scoring.Stages.High)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("LEADS_PIPELINE_WORKERS", "6")
	t.Setenv("LEADS_SEARCH_API_KEY", "jina-key")
	t.Setenv("AI_PRIMARY_KEY", "sk-ant")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Pipeline.Workers)
	assert.Equal(t, "jina-key", cfg.SearchAPIKey)
	assert.Equal(t, "sk-ant", cfg.AIPrimaryKey)
}

func TestLoadKeysFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, KeysFile),
		[]byte("SYNC_API_KEY=abc-us21\nSYNC_AUDIENCE_ID=list1\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("SYNC_API_KEY")
		_ = os.Unsetenv("SYNC_AUDIENCE_ID")
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "abc-us21", cfg.SyncAPIKey)
	assert.Equal(t, "list1", cfg.SyncAudienceID)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Store: StoreConfig{Driver: "sqlite", DatabaseURL: "x.db"},
		Pipeline: PipelineConfig{
			Workers:           4,
			SearchTimeoutSecs: 1,
			AITimeoutSecs:     1,
			ReaderTimeoutSecs: 1,
			MaxCandidates:     8,
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"no url", func(c *Config) { c.Store.DatabaseURL = "" }, "database_url"},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		{"too many workers", func(c *Config) { c.Pipeline.Workers = 64 }, "pipeline.workers"},
		{"no timeout", func(c *Config) { c.Pipeline.AITimeoutSecs = 0 }, "timeouts"},
		{"no candidates", func(c *Config) { c.Pipeline.MaxCandidates = 0 }, "max_candidates"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_SyncKeyWithoutAudience(t *testing.T) {
	c := validConfig()
	c.SyncAPIKey = "k-us1"

	assert.NoError(t, c.Validate())
}

func TestSalesforceEnabled(t *testing.T) {
	assert.False(t, SalesforceConfig{}.Enabled())
	assert.True(t, SalesforceConfig{ClientID: "c", Username: "u", KeyPath: "k"}.Enabled())
}
