// Package config loads and persists the solbeam configuration file.
//
// Configuration lives at ~/.solbeam/config.yaml and maps named environments
// (dev, main, ...) to an RPC endpoint, a keypair file, and the token mint the
// transfer commands operate on. Batch state files are stored next to it under
// ~/.solbeam/transfers/.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default values applied by New.
const (
	DefaultEnv            = "dev"
	DefaultWorkers        = 4
	DefaultConfirmTimeout = 30
	DefaultConfirmPoll    = 1
	DefaultTokenDecimals  = 9
)

// configDirName is the directory under the user home holding all solbeam state.
const configDirName = ".solbeam"

// ErrUnknownEnv indicates the requested environment has no config entry.
var ErrUnknownEnv = errors.New("environment not found in config")

// Environment describes one named ledger environment.
type Environment struct {
	// RPCURL is the JSON-RPC endpoint for this environment.
	RPCURL string `yaml:"rpc_url"`

	// Keypair is the path to the sender keypair file (Solana id.json format).
	Keypair string `yaml:"keypair"`

	// TokenMint is the mint address of the token transfer commands act on.
	TokenMint string `yaml:"token_mint"`

	// TokenDecimals is the token's configured decimal precision.
	TokenDecimals int `yaml:"token_decimals"`
}

// TransferConfig holds tunables for the bulk transfer executor.
type TransferConfig struct {
	// Workers bounds the number of records processed concurrently.
	Workers int `yaml:"workers"`

	// ConfirmTimeoutSeconds bounds how long a single record's confirmation
	// poll may run before giving up for this invocation.
	ConfirmTimeoutSeconds int `yaml:"confirm_timeout_seconds"`

	// ConfirmPollSeconds is the base delay between status polls.
	ConfirmPollSeconds int `yaml:"confirm_poll_seconds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Config is the root configuration document.
type Config struct {
	DefaultEnv   string                 `yaml:"default_env"`
	Environments map[string]Environment `yaml:"environments"`
	Transfer     TransferConfig         `yaml:"transfer"`
	Logging      LoggingConfig          `yaml:"logging"`

	configPath string
}

// New returns a Config populated with defaults and the standard config path.
func New() *Config {
	cfg := &Config{
		DefaultEnv: DefaultEnv,
		Environments: map[string]Environment{
			"dev": {
				RPCURL:        "https://api.devnet.solana.com",
				TokenDecimals: DefaultTokenDecimals,
			},
			"main": {
				RPCURL:        "https://api.mainnet-beta.solana.com",
				TokenDecimals: DefaultTokenDecimals,
			},
		},
		Transfer: TransferConfig{
			Workers:               DefaultWorkers,
			ConfirmTimeoutSeconds: DefaultConfirmTimeout,
			ConfirmPollSeconds:    DefaultConfirmPoll,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}

	if home, err := os.UserHomeDir(); err == nil {
		cfg.configPath = filepath.Join(home, configDirName, "config.yaml")
	}
	return cfg
}

// Load reads the config file at the standard path, applying it over defaults.
// A missing file is not an error; defaults are returned.
func Load() (*Config, error) {
	cfg := New()

	data, err := os.ReadFile(cfg.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", cfg.configPath, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", cfg.configPath, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults backfills zero-valued tunables after unmarshalling a partial file.
func (c *Config) applyDefaults() {
	if c.DefaultEnv == "" {
		c.DefaultEnv = DefaultEnv
	}
	if c.Transfer.Workers <= 0 {
		c.Transfer.Workers = DefaultWorkers
	}
	if c.Transfer.ConfirmTimeoutSeconds <= 0 {
		c.Transfer.ConfirmTimeoutSeconds = DefaultConfirmTimeout
	}
	if c.Transfer.ConfirmPollSeconds <= 0 {
		c.Transfer.ConfirmPollSeconds = DefaultConfirmPoll
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// ConfigPath returns the path of the backing config file.
func (c *Config) ConfigPath() string {
	return c.configPath
}

// SetConfigPath overrides the backing config file path. Used by tests and by
// config init when writing to a non-standard location.
func (c *Config) SetConfigPath(path string) {
	c.configPath = path
}

// DataDir returns the directory batch state files are stored in.
func (c *Config) DataDir() string {
	return filepath.Join(filepath.Dir(c.configPath), "transfers")
}

// Env resolves the named environment, falling back to DefaultEnv when name is
// empty. Returns ErrUnknownEnv when no entry exists.
func (c *Config) Env(name string) (string, Environment, error) {
	if name == "" {
		name = c.DefaultEnv
	}
	env, ok := c.Environments[name]
	if !ok {
		return name, Environment{}, fmt.Errorf("%w: %q", ErrUnknownEnv, name)
	}
	if env.TokenDecimals <= 0 {
		env.TokenDecimals = DefaultTokenDecimals
	}
	return name, env, nil
}

// Save writes the configuration to the backing file atomically, creating the
// config directory if needed.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.New("config path not set")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	dir := filepath.Dir(c.configPath)
	if mkdirErr := os.MkdirAll(dir, 0o750); mkdirErr != nil {
		return fmt.Errorf("creating config directory: %w", mkdirErr)
	}

	tmpPath := c.configPath + ".tmp"
	if writeErr := os.WriteFile(tmpPath, data, 0o600); writeErr != nil {
		return fmt.Errorf("writing config temp file: %w", writeErr)
	}
	if renameErr := os.Rename(tmpPath, c.configPath); renameErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming config temp file: %w", renameErr)
	}
	return nil
}
