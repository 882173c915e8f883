// Package config loads bridge configuration with viper: an optional YAML
// config file layered under environment variables. Credentials are NOT
// handled here — compass.ResolveCredentials reads the four BLACKBIRD_*
// variables directly so their contract stays in one place.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/blackbird-ai/blackbird-mcp/pkg/compass"
)

// Config holds every tunable of the bridge. All fields have working
// defaults; a config file is never required.
type Config struct {
	BaseURL string
	AuthURL string // empty = derive from auth mode

	Retry       compass.RetryPolicy
	Poll        compass.PollConfig
	TokenMargin time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	OpsAddr        string // empty = ops listener disabled
	OpsCORSOrigins []string
}

// Load reads cfgFile (or the default search path when empty) and the
// environment, returning the effective configuration. Environment variables
// use the key with dots replaced by underscores, uppercased — e.g.
// BLACKBIRD_BASE_URL for blackbird.base_url.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.blackbird-mcp")
		v.AddConfigPath(".")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("blackbird.base_url", compass.DefaultBaseURL)
	v.SetDefault("blackbird.auth_url", "")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.max_delay", "10s")
	v.SetDefault("retry.jitter", 0.5)
	v.SetDefault("poll.interval", "10s")
	v.SetDefault("poll.max_checks", 60)
	v.SetDefault("poll.max_wait", "10m")
	v.SetDefault("token.margin", "30s")
	v.SetDefault("rate_limit.rps", 5.0)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("ops.addr", "")
	v.SetDefault("ops.cors_origins", []string{})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile == "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if cfgFile != "" {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	cfg := &Config{
		BaseURL: v.GetString("blackbird.base_url"),
		AuthURL: v.GetString("blackbird.auth_url"),
		Retry: compass.RetryPolicy{
			MaxAttempts: v.GetInt("retry.max_attempts"),
			BaseDelay:   v.GetDuration("retry.base_delay"),
			MaxDelay:    v.GetDuration("retry.max_delay"),
			Jitter:      v.GetFloat64("retry.jitter"),
		},
		Poll: compass.PollConfig{
			Interval:  v.GetDuration("poll.interval"),
			MaxChecks: v.GetInt("poll.max_checks"),
			MaxWait:   v.GetDuration("poll.max_wait"),
		},
		TokenMargin:    v.GetDuration("token.margin"),
		RateLimitRPS:   v.GetFloat64("rate_limit.rps"),
		RateLimitBurst: v.GetInt("rate_limit.burst"),
		OpsAddr:        v.GetString("ops.addr"),
		OpsCORSOrigins: v.GetStringSlice("ops.cors_origins"),
	}

	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry.max_attempts must be >= 1, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Poll.Interval <= 0 {
		return nil, fmt.Errorf("poll.interval must be > 0, got %s", cfg.Poll.Interval)
	}
	return cfg, nil
}
