// Package config loads server and pipeline settings.
//
// Values merge in order: defaults <- YAML file <- environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kamilpajak/commentguard/internal/batching"
	"github.com/kamilpajak/commentguard/internal/llm"
	"github.com/kamilpajak/commentguard/internal/postprocess"
	"github.com/kamilpajak/commentguard/internal/scan"
	"github.com/kamilpajak/commentguard/pkg/models"
)

// Config is the effective configuration.
type Config struct {
	Server      ServerConfig              `yaml:"server"`
	Auth        AuthConfig                `yaml:"auth"`
	DatabaseURL string                    `yaml:"database_url"`
	Log         LogConfig                 `yaml:"log"`
	Pipeline    PipelineConfig            `yaml:"pipeline"`
	Providers   map[string]ProviderConfig `yaml:"providers"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
}

// AuthConfig identifies the Kinde tenant that issues bearer tokens.
type AuthConfig struct {
	Domain   string `yaml:"domain"`
	Audience string `yaml:"audience"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// PipelineConfig tunes scanning and post-processing.
type PipelineConfig struct {
	SafetyMarginPercent  int         `yaml:"safety_margin_percent"`
	MaxSplits            int         `yaml:"max_splits"`
	PostProcessBatchSize int         `yaml:"post_process_batch_size"`
	DefaultMode          models.Mode `yaml:"default_mode"`
	CreditsPerComment    int         `yaml:"credits_per_comment"`
}

// ProviderConfig holds per-provider credentials and limits.
type ProviderConfig struct {
	APIKeyEnv   string                 `yaml:"api_key_env"`
	TokenLimits batching.TokenLimits   `yaml:"token_limits"`
	IORatios    batching.IORatios      `yaml:"io_ratios"`
	Models      map[string]ModelLimits `yaml:"models"`
}

// ModelLimits are the per-minute ceilings for one model. Zero is unlimited.
type ModelLimits struct {
	TPM int `yaml:"tpm"`
	RPM int `yaml:"rpm"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   5 * time.Minute,
			AllowedOrigins: []string{"http://localhost:3000"},
			RateLimitRPS:   5,
			RateLimitBurst: 10,
		},
		Log: LogConfig{Level: "info"},
		Pipeline: PipelineConfig{
			SafetyMarginPercent:  batching.DefaultSafetyMarginPercent,
			MaxSplits:            scan.DefaultMaxSplits,
			PostProcessBatchSize: postprocess.DefaultBatchSize,
			DefaultMode:          models.ModeRedact,
			CreditsPerComment:    1,
		},
		Providers: map[string]ProviderConfig{
			llm.ProviderOpenAI: {
				APIKeyEnv:   "OPENAI_API_KEY",
				TokenLimits: batching.TokenLimits{Input: 128000, Output: 16384},
				IORatios:    defaultRatios(),
			},
			llm.ProviderAnthropic: {
				APIKeyEnv:   "ANTHROPIC_API_KEY",
				TokenLimits: batching.TokenLimits{Input: 200000, Output: 8192},
				IORatios:    defaultRatios(),
			},
			llm.ProviderGoogle: {
				APIKeyEnv:   "GOOGLE_API_KEY",
				TokenLimits: batching.TokenLimits{Input: 1000000, Output: 8192},
				IORatios:    defaultRatios(),
			},
		},
	}
}

func defaultRatios() batching.IORatios {
	return batching.IORatios{
		batching.PhaseScanA:       0.5,
		batching.PhaseScanB:       0.5,
		batching.PhaseAdjudicator: 0.6,
		batching.PhaseRedaction:   1.2,
		batching.PhaseRephrase:    1.3,
	}
}

// Load builds the effective config. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	mergeEnv(&cfg)
	return cfg, nil
}

// mergeFile decodes the YAML file over cfg, so only keys present in the
// file change. Provider entries merge field by field.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	defaults := cfg.Providers
	cfg.Providers = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	merged := make(map[string]ProviderConfig, len(defaults)+len(cfg.Providers))
	for name, p := range defaults {
		merged[name] = p
	}
	for name, p := range cfg.Providers {
		name = strings.ToLower(name)
		base := merged[name]
		if p.APIKeyEnv != "" {
			base.APIKeyEnv = p.APIKeyEnv
		}
		if p.TokenLimits.Input > 0 {
			base.TokenLimits.Input = p.TokenLimits.Input
		}
		if p.TokenLimits.Output > 0 {
			base.TokenLimits.Output = p.TokenLimits.Output
		}
		if len(p.IORatios) > 0 {
			ratios := batching.IORatios{}
			for k, v := range base.IORatios {
				ratios[k] = v
			}
			for k, v := range p.IORatios {
				ratios[k] = v
			}
			base.IORatios = ratios
		}
		if len(p.Models) > 0 {
			base.Models = p.Models
		}
		merged[name] = base
	}
	cfg.Providers = merged
	return nil
}

func mergeEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("KINDE_DOMAIN"); v != "" {
		cfg.Auth.Domain = v
	}
	if v := os.Getenv("KINDE_AUDIENCE"); v != "" {
		cfg.Auth.Audience = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("COMMENTGUARD_MAX_SPLITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxSplits = n
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port == "":
		return &batching.ConfigurationError{Field: "server.port", Reason: "required"}
	case c.Pipeline.SafetyMarginPercent < 0 || c.Pipeline.SafetyMarginPercent >= 100:
		return &batching.ConfigurationError{Field: "pipeline.safety_margin_percent", Reason: "must be in [0, 100)"}
	case c.Pipeline.MaxSplits < 1:
		return &batching.ConfigurationError{Field: "pipeline.max_splits", Reason: "must be at least 1"}
	case c.Pipeline.PostProcessBatchSize < 1:
		return &batching.ConfigurationError{Field: "pipeline.post_process_batch_size", Reason: "must be at least 1"}
	case !c.Pipeline.DefaultMode.Valid():
		return &batching.ConfigurationError{Field: "pipeline.default_mode", Reason: fmt.Sprintf("unknown mode %q", c.Pipeline.DefaultMode)}
	case c.Pipeline.CreditsPerComment < 0:
		return &batching.ConfigurationError{Field: "pipeline.credits_per_comment", Reason: "must not be negative"}
	}
	for name, p := range c.Providers {
		for phase := range p.IORatios {
			if !batching.KnownPhase(phase) {
				return &batching.ConfigurationError{Field: "providers." + name + ".io_ratios", Reason: fmt.Sprintf("unknown phase %q", phase)}
			}
		}
	}
	return nil
}

// Budget returns the sizing budget for a provider/model.
func (c *Config) Budget(provider, model string) batching.Budget {
	p := c.Providers[strings.ToLower(provider)]
	return batching.Budget{Limits: p.TokenLimits, Ratios: p.IORatios}
}

// RateLimits returns the TPM/RPM ceilings for a provider/model.
func (c *Config) RateLimits(provider, model string) llm.RateLimits {
	m, ok := c.Providers[strings.ToLower(provider)].Models[model]
	if !ok {
		return llm.RateLimits{}
	}
	var out llm.RateLimits
	if m.TPM > 0 {
		out.TPM = &m.TPM
	}
	if m.RPM > 0 {
		out.RPM = &m.RPM
	}
	return out
}

// APIKeys reads each provider's key from its configured environment
// variable. Providers without a key are omitted.
func (c *Config) APIKeys() map[string]string {
	keys := make(map[string]string, len(c.Providers))
	for name, p := range c.Providers {
		if p.APIKeyEnv == "" {
			continue
		}
		if v := os.Getenv(p.APIKeyEnv); v != "" {
			keys[name] = v
		}
	}
	return keys
}
