// Package config holds the runtime configuration of subhub: storage backend,
// logging and upstream fetch limits. It is read from a YAML file laid over
// NewConfig's defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Storage struct {
	// Driver is "sqlite" or "mysql".
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite and a go-sql-driver DSN for mysql.
	DSN    string `yaml:"dsn"`
	Prefix string `yaml:"prefix"`
}

type Log struct {
	Level  string   `yaml:"level"`
	Writer []string `yaml:"writer"` // "console", "file"
	File   string   `yaml:"file"`
}

type Fetch struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"max_bytes"`
}

type Config struct {
	Storage Storage `yaml:"storage"`
	Log     Log     `yaml:"log"`
	Fetch   Fetch   `yaml:"fetch"`
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		Storage: Storage{
			Driver: "sqlite",
			DSN:    "subhub.db",
			Prefix: "subhub_",
		},
		Log: Log{
			Level:  "info",
			Writer: []string{"console"},
			File:   "logs/subhub.log",
		},
		Fetch: Fetch{
			Timeout:  15 * time.Second,
			MaxBytes: 5 * 1024 * 1024,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.CheckValid(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) CheckValid() error {
	var errs []error
	switch c.Storage.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be sqlite or mysql, got %q", c.Storage.Driver))
	}
	if strings.TrimSpace(c.Storage.DSN) == "" {
		errs = append(errs, errors.New("storage.dsn is required"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug/info/warn/error, got %q", c.Log.Level))
	}
	for _, w := range c.Log.Writer {
		switch w {
		case "console":
		case "file":
			if strings.TrimSpace(c.Log.File) == "" {
				errs = append(errs, errors.New("log.file is required when the file writer is enabled"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown log writer %q", w))
		}
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	if c.Fetch.MaxBytes <= 0 {
		errs = append(errs, errors.New("fetch.max_bytes must be positive"))
	}
	return errors.Join(errs...)
}
