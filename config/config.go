// Package config loads client settings from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mini-jsonrpc/registry"
)

const (
	AppName = "mini-jsonrpc"
	// EnvPrefix starts every environment override, e.g. MINI_JSONRPC_TIMEOUT.
	EnvPrefix = "MINI_JSONRPC_"
)

// Config holds the client configuration
type Config struct {
	Version   string              `yaml:"version"`
	Service   string              `yaml:"service"`
	Endpoints []registry.Endpoint `yaml:"endpoints"`
	Etcd      Etcd                `yaml:"etcd"`
	Transport string              `yaml:"transport"`
	Codec     string              `yaml:"codec"`
	Balancer  string              `yaml:"balancer"`
	Timeout   time.Duration       `yaml:"timeout"`
	Retry     Retry               `yaml:"retry"`
	RateLimit RateLimit           `yaml:"rate_limit"`
	PoolSize  int                 `yaml:"pool_size"`
	IDKind    string              `yaml:"id_kind"`
	LogLevel  string              `yaml:"log_level"`
}

// Etcd enables discovery through etcd when Endpoints is set.
type Etcd struct {
	Endpoints []string `yaml:"endpoints"`
	Prefix    string   `yaml:"prefix"`
}

type Retry struct {
	Max       int           `yaml:"max"`
	BaseDelay time.Duration `yaml:"base_delay"`
}

// RateLimit is disabled while Rate is zero.
type RateLimit struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// Default returns the settings used for anything the file and environment leave out.
func Default() *Config {
	return &Config{
		Version:   "2.0",
		Service:   "default",
		Transport: "tcp",
		Codec:     "json",
		Balancer:  "round_robin",
		Timeout:   10 * time.Second,
		Retry:     Retry{Max: 0, BaseDelay: 100 * time.Millisecond},
		PoolSize:  1,
		IDKind:    "number",
		LogLevel:  "info",
	}
}

// Load reads the config file, applies environment overrides and validates.
//
// A missing file is not an error unless its path was given explicitly; the
// defaults are used instead.
func Load(customPath string) (*Config, error) {
	cfg, err := Read(customPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that still apply their own
// overrides (command line flags) before validating.
func Read(customPath string) (*Config, error) {
	cfg := Default()

	// 1. Load from YAML file
	configPath, err := ResolvePath(customPath)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err == nil {
			// Expand env vars before unmarshalling
			expanded := os.ExpandEnv(string(file))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) || customPath != "" {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// 2. Override with environment variables
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	str("VERSION", &cfg.Version)
	str("SERVICE", &cfg.Service)
	str("TRANSPORT", &cfg.Transport)
	str("CODEC", &cfg.Codec)
	str("BALANCER", &cfg.Balancer)
	str("ID_KIND", &cfg.IDKind)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("ETCD_PREFIX", &cfg.Etcd.Prefix)

	if v := os.Getenv(EnvPrefix + "ENDPOINTS"); v != "" {
		cfg.Endpoints = nil
		for _, addr := range splitList(v) {
			cfg.Endpoints = append(cfg.Endpoints, registry.Endpoint{Addr: addr})
		}
	}
	if v := os.Getenv(EnvPrefix + "ETCD_ENDPOINTS"); v != "" {
		cfg.Etcd.Endpoints = splitList(v)
	}

	durations := map[string]*time.Duration{
		"TIMEOUT":          &cfg.Timeout,
		"RETRY_BASE_DELAY": &cfg.Retry.BaseDelay,
	}
	for name, dst := range durations {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"RETRY_MAX":        &cfg.Retry.Max,
		"RATE_LIMIT_BURST": &cfg.RateLimit.Burst,
		"POOL_SIZE":        &cfg.PoolSize,
	}
	for name, dst := range ints {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv(EnvPrefix + "RATE_LIMIT_RATE"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sRATE_LIMIT_RATE: %w", EnvPrefix, err)
		}
		cfg.RateLimit.Rate = r
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the values the client cannot start without.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version must not be empty")
	}
	if c.Service == "" {
		return fmt.Errorf("service is not set. Please set %sSERVICE or add to config file", EnvPrefix)
	}
	if len(c.Endpoints) == 0 && len(c.Etcd.Endpoints) == 0 {
		return fmt.Errorf("no endpoints configured: set endpoints or etcd.endpoints (or %sENDPOINTS)", EnvPrefix)
	}
	for i, ep := range c.Endpoints {
		if ep.Addr == "" {
			return fmt.Errorf("endpoints[%d]: addr is empty", i)
		}
		if ep.Weight < 0 {
			return fmt.Errorf("endpoints[%d]: weight must not be negative", i)
		}
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Retry.Max < 0 {
		return fmt.Errorf("retry.max must not be negative")
	}
	if c.RateLimit.Rate < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit.burst must be positive when rate_limit.rate is set")
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1")
	}
	switch strings.ToLower(c.IDKind) {
	case "number", "ulid":
	default:
		return fmt.Errorf("unknown id_kind %q (want number or ulid)", c.IDKind)
	}
	return nil
}

// ResolvePath returns the explicit path, else MINI_JSONRPC_CONFIG, else the
// file under the XDG config directory.
func ResolvePath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	if env := os.Getenv(EnvPrefix + "CONFIG"); env != "" {
		return env, nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName, "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", AppName, "config.yaml"), nil
}
