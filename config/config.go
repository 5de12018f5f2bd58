// Package config loads the agent settings from defaults, an optional
// fileagent.yaml, FILEAGENT_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/martinemde/fileagent/audit"
	"github.com/martinemde/fileagent/unifiedllm"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	KeyProvider      = "provider"
	KeyModel         = "model"
	KeyMaxTokens     = "max_tokens"
	KeyTemperature   = "temperature"
	KeyAPIKey        = "api_key"
	KeyRequestDelay  = "request_delay"
	KeyScriptTimeout = "script_timeout"
	KeyAuditLog      = "audit_log"
	KeyVerbose       = "verbose"
	KeyConfigFile    = "config"
)

// Config is built once at startup and passed by pointer.
type Config struct {
	Target        string
	Provider      string
	Model         string
	MaxTokens     int
	Temperature   *float64 // nil leaves the provider default
	APIKey        string
	RequestDelay  time.Duration
	ScriptTimeout time.Duration
	AuditLog      string
	Verbose       bool
}

// providerKeyEnv names the conventional credential variable per provider.
var providerKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"groq":      "GROQ_API_KEY",
}

// RegisterFlags adds the agent's flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyProvider, "anthropic", "model provider (anthropic, openai, groq, ollama)")
	fs.String(KeyModel, "", "model id or alias; defaults to the provider's latest tool-capable model")
	fs.Int(KeyMaxTokens, 4096, "token budget per model call")
	fs.Float64(KeyTemperature, 0, "sampling temperature, 0 to 2; unset uses the provider default")
	fs.Duration(KeyRequestDelay, unifiedllm.DefaultRequestDelay, "fixed pause before every model call")
	fs.Duration(KeyScriptTimeout, 30*time.Second, "wall-clock limit for run_script")
	fs.String(KeyAuditLog, "", "audit log path; defaults to <stem>_agent_log.json next to the target")
	fs.BoolP(KeyVerbose, "v", false, "log requests, tool calls and diagnostics")
	fs.String(KeyConfigFile, "", "path to a config file (default: ./fileagent.yaml if present)")
}

// Load resolves the configuration for target. fs must have been set up with
// RegisterFlags and parsed.
func Load(fs *pflag.FlagSet, target string) (*Config, error) {
	if strings.TrimSpace(target) == "" {
		return nil, errors.New("a target file is required")
	}

	v := viper.New()
	v.SetEnvPrefix("FILEAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if file := v.GetString(KeyConfigFile); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("fileagent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Target:        target,
		Provider:      strings.ToLower(v.GetString(KeyProvider)),
		Model:         v.GetString(KeyModel),
		MaxTokens:     v.GetInt(KeyMaxTokens),
		APIKey:        v.GetString(KeyAPIKey),
		RequestDelay:  v.GetDuration(KeyRequestDelay),
		ScriptTimeout: v.GetDuration(KeyScriptTimeout),
		AuditLog:      v.GetString(KeyAuditLog),
		Verbose:       v.GetBool(KeyVerbose),
	}

	if v.IsSet(KeyTemperature) {
		t := v.GetFloat64(KeyTemperature)
		cfg.Temperature = &t
	}

	if cfg.APIKey == "" {
		if env, ok := providerKeyEnv[cfg.Provider]; ok {
			_ = v.BindEnv("provider_key", env)
			cfg.APIKey = v.GetString("provider_key")
		}
	}
	if cfg.Model == "" {
		if info := unifiedllm.GetLatestModel(cfg.Provider, "tools"); info != nil {
			cfg.Model = info.ID
		}
	} else {
		cfg.Model = unifiedllm.ResolveModel(cfg.Model)
	}
	if abs, err := filepath.Abs(cfg.Target); err == nil {
		cfg.Target = abs
	}
	if cfg.AuditLog == "" {
		cfg.AuditLog = audit.DefaultPath(cfg.Target)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects settings that can never work. A missing API key is not
// checked here; the transport reports it on first use.
func (c *Config) validate() error {
	if c.Provider == "" {
		return errors.New("provider must not be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", *c.Temperature)
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("request_delay must not be negative, got %s", c.RequestDelay)
	}
	if c.ScriptTimeout <= 0 {
		return fmt.Errorf("script_timeout must be positive, got %s", c.ScriptTimeout)
	}
	return nil
}
