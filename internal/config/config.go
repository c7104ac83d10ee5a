// Package config loads dealproof settings from an optional HCL file, then
// applies DEALPROOF_* environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rs/zerolog"

	"github.com/lox/dealproof/internal/backend"
)

// Config is the resolved configuration.
type Config struct {
	Backend Backend `envPrefix:"DEALPROOF_BACKEND_"`
	Reveal  Reveal  `envPrefix:"DEALPROOF_REVEAL_"`
	Log     Log     `envPrefix:"DEALPROOF_LOG_"`
}

// Backend configures the dealer connection.
type Backend struct {
	URL           string        `env:"URL"`
	Timeout       time.Duration `env:"TIMEOUT"`
	RetryInitial  time.Duration `env:"RETRY_INITIAL"`
	RetryMax      time.Duration `env:"RETRY_MAX"`
	RetryMaxTries uint          `env:"RETRY_MAX_TRIES"`
}

// Retry converts the backend settings into a retry policy.
func (b Backend) Retry() backend.RetryConfig {
	return backend.RetryConfig{
		InitialInterval: b.RetryInitial,
		MaxInterval:     b.RetryMax,
		MaxTries:        b.RetryMaxTries,
	}
}

// Reveal configures showdown pacing.
type Reveal struct {
	Delay time.Duration `env:"DELAY"`
}

// Log configures logging output.
type Log struct {
	Level  string `env:"LEVEL"`
	Format string `env:"FORMAT"`
	File   string `env:"FILE"`
}

// fileConfig mirrors Config as written in HCL. Every block is optional and
// durations are Go duration strings.
type fileConfig struct {
	Backend *fileBackend `hcl:"backend,block"`
	Reveal  *fileReveal  `hcl:"reveal,block"`
	Log     *fileLog     `hcl:"log,block"`
}

type fileBackend struct {
	URL           string `hcl:"url,optional"`
	Timeout       string `hcl:"timeout,optional"`
	RetryInitial  string `hcl:"retry_initial,optional"`
	RetryMax      string `hcl:"retry_max,optional"`
	RetryMaxTries int    `hcl:"retry_max_tries,optional"`
}

type fileReveal struct {
	Delay string `hcl:"delay,optional"`
}

type fileLog struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
	File   string `hcl:"file,optional"`
}

// Default returns the built-in configuration.
func Default() *Config {
	retry := backend.DefaultRetryConfig()
	return &Config{
		Backend: Backend{
			URL:           "ws://localhost:8080/ws",
			Timeout:       10 * time.Second,
			RetryInitial:  retry.InitialInterval,
			RetryMax:      retry.MaxInterval,
			RetryMaxTries: retry.MaxTries,
		},
		Reveal: Reveal{Delay: 1500 * time.Millisecond},
		Log:    Log{Level: "info", Format: "console"},
	}
}

// Load reads filename (skipped when empty or missing) and the process
// environment.
func Load(filename string) (*Config, error) {
	return load(filename, env.Options{})
}

// LoadWithEnv is Load with an explicit environment instead of os.Environ.
func LoadWithEnv(filename string, environ map[string]string) (*Config, error) {
	return load(filename, env.Options{Environment: environ})
}

func load(filename string, opts env.Options) (*Config, error) {
	cfg := Default()
	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			if err := cfg.applyFile(filename); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(filename string) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(file.Body, nil, &fc)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	if b := fc.Backend; b != nil {
		if b.URL != "" {
			c.Backend.URL = b.URL
		}
		if err := setDuration(&c.Backend.Timeout, "backend.timeout", b.Timeout); err != nil {
			return err
		}
		if err := setDuration(&c.Backend.RetryInitial, "backend.retry_initial", b.RetryInitial); err != nil {
			return err
		}
		if err := setDuration(&c.Backend.RetryMax, "backend.retry_max", b.RetryMax); err != nil {
			return err
		}
		if b.RetryMaxTries < 0 {
			return fmt.Errorf("backend.retry_max_tries must not be negative")
		}
		if b.RetryMaxTries > 0 {
			c.Backend.RetryMaxTries = uint(b.RetryMaxTries)
		}
	}
	if r := fc.Reveal; r != nil {
		if err := setDuration(&c.Reveal.Delay, "reveal.delay", r.Delay); err != nil {
			return err
		}
	}
	if l := fc.Log; l != nil {
		if l.Level != "" {
			c.Log.Level = l.Level
		}
		if l.Format != "" {
			c.Log.Format = l.Format
		}
		if l.File != "" {
			c.Log.File = l.File
		}
	}
	return nil
}

func setDuration(dst *time.Duration, name, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("invalid backend url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("invalid backend url scheme %q", u.Scheme)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}
	if c.Backend.RetryInitial <= 0 || c.Backend.RetryMax < c.Backend.RetryInitial {
		return fmt.Errorf("retry intervals must be positive and max >= initial")
	}
	if c.Backend.RetryMaxTries == 0 {
		return fmt.Errorf("retry max tries must be at least 1")
	}
	if c.Reveal.Delay <= 0 {
		return fmt.Errorf("reveal delay must be positive")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	return nil
}
