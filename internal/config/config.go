// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads bichat settings from the XDG config file, a .env file,
// the environment and the OS keychain, in increasing order of precedence
// (the keychain only fills secrets that are still empty).
//
// Only non-secret settings are written to the config file; the access token,
// warehouse DSN and API keys live in the keychain.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bichat/cli/internal/keychain"
	"bichat/cli/internal/xdg"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LLM backends for the reasoning loop.
const (
	LLMPlanner   = "planner"
	LLMServing   = "serving"
	LLMAnthropic = "anthropic"
)

// Config holds all settings.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Databricks DatabricksConfig `yaml:"databricks"`
	Genie      GenieConfig      `yaml:"genie"`
	Warehouse  WarehouseConfig  `yaml:"warehouse"`
	Agent      AgentConfig      `yaml:"agent"`
	Enhance    bool             `yaml:"enhance"`
	Bridge     BridgeConfig     `yaml:"bridge"`
}

// DatabricksConfig locates the workspace and its resources.
type DatabricksConfig struct {
	Host            string `yaml:"host"`
	SpaceID         string `yaml:"space_id"`
	WarehouseID     string `yaml:"warehouse_id"`
	ServingEndpoint string `yaml:"serving_endpoint"`
	Token           string `yaml:"-"`
}

// GenieConfig bounds conversation polling.
type GenieConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	WaitBudget     time.Duration `yaml:"wait_budget"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// WarehouseConfig selects the SQL backend. DSN is a secret.
type WarehouseConfig struct {
	WaitBudget time.Duration `yaml:"wait_budget"`
	DSN        string        `yaml:"-"`
}

// AgentConfig tunes the reasoning loop fallback.
type AgentConfig struct {
	LLM            string        `yaml:"llm"`
	MaxSteps       int           `yaml:"max_steps"`
	MaxWait        time.Duration `yaml:"max_wait"`
	ForceFinal     bool          `yaml:"force_final_after_first_tool"`
	AnthropicModel string        `yaml:"anthropic_model"`
	AnthropicKey   string        `yaml:"-"`
}

// BridgeConfig configures `serve` and `ask --remote`.
type BridgeConfig struct {
	Listen string `yaml:"listen"`
	Addr   string `yaml:"addr"`
	Token  string `yaml:"-"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Genie: GenieConfig{
			PollInterval:   2 * time.Second,
			WaitBudget:     30 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Warehouse: WarehouseConfig{WaitBudget: 2 * time.Minute},
		Agent: AgentConfig{
			LLM:        LLMPlanner,
			MaxSteps:   1,
			MaxWait:    60 * time.Second,
			ForceFinal: true,
		},
		Enhance: true,
		Bridge:  BridgeConfig{Listen: "127.0.0.1:7070"},
	}
}

// Validate checks values that would otherwise fail later in confusing ways.
func (c Config) Validate() error {
	var errs []error
	switch c.Agent.LLM {
	case LLMPlanner, LLMServing, LLMAnthropic:
	default:
		errs = append(errs, fmt.Errorf("agent.llm must be one of %s, %s, %s (got %q)", LLMPlanner, LLMServing, LLMAnthropic, c.Agent.LLM))
	}
	if c.Agent.MaxSteps < 1 {
		errs = append(errs, errors.New("agent.max_steps must be at least 1"))
	}
	if c.Genie.PollInterval <= 0 || c.Genie.WaitBudget <= 0 {
		errs = append(errs, errors.New("genie.poll_interval and genie.wait_budget must be positive"))
	}
	if h := c.Databricks.Host; h != "" && strings.Contains(strings.TrimPrefix(strings.TrimPrefix(h, "https://"), "http://"), " ") {
		errs = append(errs, fmt.Errorf("databricks.host %q is not a valid host", h))
	}
	return errors.Join(errs...)
}

// SecretStore is the part of the keychain Load needs.
type SecretStore interface {
	Load(key string) (string, error)
}

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// Path overrides the config file location.
	Path string
	// EnvFiles are loaded into the environment without overriding existing
	// variables. Missing files are ignored. Defaults to ".env".
	EnvFiles []string
	// Secrets fills empty secrets. Nil skips the keychain.
	Secrets SecretStore
}

// DefaultPath returns the config file location.
func DefaultPath() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the configuration. A missing file yields defaults.
func Load(opts LoadOptions) (Config, error) {
	c, err := LoadFile(opts.Path)
	if err != nil {
		return c, err
	}

	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return c, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return c, err
	}
	if opts.Secrets != nil {
		c.applySecrets(opts.Secrets)
	}
	return c, c.Validate()
}

// LoadFile reads defaults overlaid with the config file only, for commands
// that edit the file. An empty path means DefaultPath.
func LoadFile(path string) (Config, error) {
	c := Defaults()
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return c, err
		}
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return c, err
	default:
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	str(&c.Databricks.Host, "DATABRICKS_HOST")
	str(&c.Databricks.Token, "DATABRICKS_TOKEN")
	str(&c.Databricks.SpaceID, "GENIE_SPACE_ID", "DATABRICKS_GENIE_SPACE_ID")
	str(&c.Databricks.WarehouseID, "DATABRICKS_WAREHOUSE_ID")
	str(&c.Databricks.ServingEndpoint, "DATABRICKS_SERVING_ENDPOINT_NAME")
	str(&c.Warehouse.DSN, "WAREHOUSE_DSN")
	str(&c.Agent.AnthropicKey, "ANTHROPIC_API_KEY")
	str(&c.Agent.LLM, "BICHAT_AGENT_LLM")
	str(&c.Bridge.Token, "BICHAT_BRIDGE_TOKEN")
	str(&c.Bridge.Addr, "BICHAT_BRIDGE_ADDR")
	str(&c.LogLevel, "BICHAT_LOG_LEVEL")
	if os.Getenv("BICHAT_VERBOSE") == "1" {
		c.LogLevel = "debug"
	}

	if v, ok := os.LookupEnv("ENABLE_RESPONSE_ENHANCEMENT"); ok && v != "" {
		b, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			return fmt.Errorf("ENABLE_RESPONSE_ENHANCEMENT: %w", err)
		}
		c.Enhance = b
	}
	return nil
}

func (c *Config) applySecrets(s SecretStore) {
	fill := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, err := s.Load(key); err == nil {
			*dst = v
		}
	}
	fill(&c.Databricks.Token, keychain.KeyDatabricksToken)
	fill(&c.Warehouse.DSN, keychain.KeyWarehouseDSN)
	fill(&c.Agent.AnthropicKey, keychain.KeyAnthropicKey)
}

// Save writes the non-secret settings to path (DefaultPath when empty) with
// 0600 permissions.
func Save(path string, c Config) error {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return err
		}
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
