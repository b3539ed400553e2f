package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kamilpajak/commentguard/internal/batching"
	"github.com/kamilpajak/commentguard/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "commentguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, models.ModeRedact, cfg.Pipeline.DefaultMode)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
  write_timeout: 2m
pipeline:
  max_splits: 5
providers:
  OpenAI:
    io_ratios:
      redaction: 2.0
    models:
      gpt-4o-mini:
        tpm: 200000
        rpm: 500
  bedrock:
    api_key_env: BEDROCK_KEY
    token_limits:
      input: 50000
      output: 4000
`)
	t.Setenv("PORT", "")
	t.Setenv("COMMENTGUARD_MAX_SPLITS", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout, "unset keys keep defaults")
	assert.Equal(t, 5, cfg.Pipeline.MaxSplits)
	assert.Equal(t, 15, cfg.Pipeline.SafetyMarginPercent)

	openai := cfg.Providers["openai"]
	assert.Equal(t, "OPENAI_API_KEY", openai.APIKeyEnv)
	assert.Equal(t, 128000, openai.TokenLimits.Input)
	assert.Equal(t, 2.0, openai.IORatios[batching.PhaseRedaction])
	assert.Equal(t, 0.5, openai.IORatios[batching.PhaseScanA])

	assert.Equal(t, 50000, cfg.Providers["bedrock"].TokenLimits.Input)
	assert.Contains(t, cfg.Providers, "anthropic")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9090\"\n")
	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("KINDE_DOMAIN", "acme.kinde.com")
	t.Setenv("KINDE_AUDIENCE", "api")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "postgres://x", cfg.DatabaseURL)
	assert.Equal(t, "acme.kinde.com", cfg.Auth.Domain)
	assert.Equal(t, "api", cfg.Auth.Audience)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	_, err = Load(writeConfig(t, "server: [not, a, map"))
	assert.ErrorContains(t, err, "parsing config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"margin", func(c *Config) { c.Pipeline.SafetyMarginPercent = 100 }, "pipeline.safety_margin_percent"},
		{"splits", func(c *Config) { c.Pipeline.MaxSplits = 0 }, "pipeline.max_splits"},
		{"batch", func(c *Config) { c.Pipeline.PostProcessBatchSize = 0 }, "pipeline.post_process_batch_size"},
		{"mode", func(c *Config) { c.Pipeline.DefaultMode = "shred" }, "pipeline.default_mode"},
		{"phase", func(c *Config) {
			p := c.Providers["openai"]
			p.IORatios = batching.IORatios{"summarise": 1}
			c.Providers["openai"] = p
		}, "providers.openai.io_ratios"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(&cfg)

			var ce *batching.ConfigurationError
			require.ErrorAs(t, cfg.Validate(), &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestRateLimits(t *testing.T) {
	cfg := Default()
	p := cfg.Providers["anthropic"]
	p.Models = map[string]ModelLimits{"claude-haiku": {TPM: 50000}}
	cfg.Providers["anthropic"] = p

	lim := cfg.RateLimits("Anthropic", "claude-haiku")
	require.NotNil(t, lim.TPM)
	assert.Equal(t, 50000, *lim.TPM)
	assert.Nil(t, lim.RPM)

	assert.Nil(t, cfg.RateLimits("anthropic", "other").TPM)
	assert.Nil(t, cfg.RateLimits("nobody", "x").RPM)
}

func TestBudget(t *testing.T) {
	cfg := Default()
	b := cfg.Budget("google", "gemini-2.0-flash")
	assert.Equal(t, 1000000, b.Limits.Input)
	assert.Equal(t, 1.2, b.Ratios[batching.PhaseRedaction])
}

func TestAPIKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg := Default()
	assert.Equal(t, map[string]string{"openai": "sk-test"}, cfg.APIKeys())
}
