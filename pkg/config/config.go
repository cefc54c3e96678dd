package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig is the HTTP API listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// StoreConfig locates the durable stores.
type StoreConfig struct {
	// BadgerDir holds accounts, proposals and the proposal id sequence.
	BadgerDir string `yaml:"badger_dir"`
	// HistoryDB is the sqlite file for the transaction history.
	HistoryDB string `yaml:"history_db"`
}

// GatewayConfig points at the contract gateway (relayer).
type GatewayConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	// DryRun replaces the remote gateway with an always-confirm stub.
	// Useful for local development without a relayer.
	DryRun bool `yaml:"dry_run"`
}

// LogConfig mirrors pkg/logger.Config.
type LogConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Gateway GatewayConfig `yaml:"gateway"`
	Log     LogConfig     `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Listen: ":8080"},
		Store: StoreConfig{
			BadgerDir: "data/store",
			HistoryDB: "data/history.db",
		},
		Gateway: GatewayConfig{
			URL:     "http://localhost:8545",
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a YAML config file and applies env overrides on top of
// defaults. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets environment variables win over the file, so deployments
// can keep one config file and vary endpoints per machine.
func (c *Config) applyEnv() {
	if v := os.Getenv("ENERGYTRADE_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("ENERGYTRADE_BADGER_DIR"); v != "" {
		c.Store.BadgerDir = v
	}
	if v := os.Getenv("ENERGYTRADE_HISTORY_DB"); v != "" {
		c.Store.HistoryDB = v
	}
	if v := os.Getenv("ENERGYTRADE_GATEWAY_URL"); v != "" {
		c.Gateway.URL = v
	}
	if v := os.Getenv("ENERGYTRADE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Server.Listen) == "" {
		return fmt.Errorf("server.listen is required")
	}
	if strings.TrimSpace(c.Store.BadgerDir) == "" {
		return fmt.Errorf("store.badger_dir is required")
	}
	if strings.TrimSpace(c.Store.HistoryDB) == "" {
		return fmt.Errorf("store.history_db is required")
	}
	if !c.Gateway.DryRun && strings.TrimSpace(c.Gateway.URL) == "" {
		return fmt.Errorf("gateway.url is required unless gateway.dry_run")
	}
	if c.Gateway.Timeout <= 0 {
		c.Gateway.Timeout = 30 * time.Second
	}
	return nil
}
