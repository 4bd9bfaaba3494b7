package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenHost   string       `yaml:"listen_host"`
	Port         int          `yaml:"port"`
	DataDir      string       `yaml:"data_dir"`
	CatalogFile  string       `yaml:"catalog_file"`
	ProgressFile string       `yaml:"progress_file"`
	LogLevel     string       `yaml:"log_level"`
	WatchCatalog bool         `yaml:"watch_catalog"`
	Backup       BackupConfig `yaml:"backup"`
}

type BackupConfig struct {
	Hostname  string `yaml:"hostname"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	StateFile string `yaml:"state_file"`
}

// DefaultConfig mirrors running with no config file: loopback on port 5000,
// data files under ./data.
func DefaultConfig() *Config {
	return &Config{
		ListenHost: "127.0.0.1",
		Port:       5000,
		DataDir:    "data",
		LogLevel:   "info",
	}
}

// LoadConfig reads a YAML config file on top of the defaults. An empty path
// means defaults only. The PORT environment variable overrides the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: PORT %q is not a number", v)
		}
		cfg.Port = port
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenHost == "" {
		c.ListenHost = "127.0.0.1"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.CatalogFile == "" {
		c.CatalogFile = filepath.Join(c.DataDir, "hideout_data.json")
	}
	if c.ProgressFile == "" {
		c.ProgressFile = filepath.Join(c.DataDir, "progress.json")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Backup.StateFile == "" {
		c.Backup.StateFile = ".hideout-backup.json"
	}
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	return nil
}

// Addr is the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.Port))
}

// Validate checks the fields the backup and restore commands need.
func (b BackupConfig) Validate() error {
	if b.Hostname == "" {
		return fmt.Errorf("config: backup.hostname is required")
	}
	if b.Bucket == "" {
		return fmt.Errorf("config: backup.bucket is required")
	}
	if b.Region == "" {
		return fmt.Errorf("config: backup.region is required")
	}
	return nil
}
