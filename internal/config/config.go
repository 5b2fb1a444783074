// Package config resolves the specq home directory and loads the YAML
// configuration that tunes the queue, scanner, priority domains, tracker,
// and worker command.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Domain assigns one coarse spec-id prefix a disjoint priority range.
// Bucket is the ordinal of the range (1 dispatches before 2); prefixes not
// listed here fall into the last bucket.
type Domain struct {
	Prefix     string `yaml:"prefix"`
	Bucket     int    `yaml:"bucket"`
	SchemaPath string `yaml:"schema_path,omitempty"`
}

// Tracker holds the external tracker connection settings.
type Tracker struct {
	BaseURL string `yaml:"base_url"`
	Repo    string `yaml:"repo"` // owner/name
	Token   string `yaml:"token,omitempty"`
}

// Worker holds the external coding worker invocation settings.
type Worker struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Config is the parsed <home>/config.yaml.
type Config struct {
	CorpusRoot    string        `yaml:"corpus_root"`
	SourceRoot    string        `yaml:"source_root,omitempty"`
	AliasRoot     string        `yaml:"alias_root,omitempty"` // import alias, default "@/"
	MaxConcurrent int           `yaml:"max_concurrent,omitempty"`
	MaxRetries    int           `yaml:"max_retries,omitempty"`
	RetryDelay    time.Duration `yaml:"retry_delay,omitempty"`
	Domains       []Domain      `yaml:"domains,omitempty"`
	Tracker       Tracker       `yaml:"tracker"`
	Worker        Worker        `yaml:"worker"`
	MetricsAddr   string        `yaml:"metrics_addr,omitempty"`
	// HistoryDSN selects the shared PostgreSQL attempt log; empty means the
	// local SQLite file under the home directory.
	HistoryDSN string `yaml:"history_dsn,omitempty"`
}

// Default returns the configuration used when no config.yaml exists.
func Default() Config {
	return Config{
		AliasRoot:     "@/",
		SourceRoot:    "src",
		MaxConcurrent: 3,
		MaxRetries:    3,
		RetryDelay:    30 * time.Second,
		Domains: []Domain{
			{Prefix: "APP", Bucket: 1, SchemaPath: "specs/app/app.schema.json"},
			{Prefix: "API", Bucket: 2},
		},
		Worker:      Worker{Timeout: 30 * time.Minute},
		MetricsAddr: "127.0.0.1:9464",
	}
}

// Load reads <home>/config.yaml, layering it over Default. A missing file is
// not an error; a malformed one is.
func Load(home string) (Config, error) {
	cfg := Default()
	path := filepath.Join(home, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.AliasRoot == "" {
		cfg.AliasRoot = "@/"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Worker.Timeout <= 0 {
		cfg.Worker.Timeout = 30 * time.Minute
	}
	return cfg, nil
}

// Save writes cfg to <home>/config.yaml, creating home if needed.
func Save(home string, cfg Config) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(home, "config.yaml"), data, 0o644)
}
