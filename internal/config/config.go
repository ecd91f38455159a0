package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Version   string   `json:"version" mapstructure:"version"`
	SchemaDir string   `json:"schema_dir" mapstructure:"schema_dir"`
	PlanFile  string   `json:"plan_file" mapstructure:"plan_file"`
	Database  Database `json:"database" mapstructure:"database"`
	Seed      Seed     `json:"seed" mapstructure:"seed"`
}

type Database struct {
	Provider string `json:"provider" mapstructure:"provider"`
	URLEnv   string `json:"url_env" mapstructure:"url_env"`
}

type Seed struct {
	// DefaultCount is the number of rows generated per table when the plan
	// file does not override it.
	DefaultCount int `json:"default_count" mapstructure:"default_count"`
	// MaxParams overrides the provider's bind-parameter ceiling. Zero means
	// use the provider default.
	MaxParams int `json:"max_params,omitempty" mapstructure:"max_params"`
	// ScratchDir is where the per-run reference store file is placed. Empty
	// means the OS temp dir.
	ScratchDir string `json:"scratch_dir,omitempty" mapstructure:"scratch_dir"`
}

func Load() (*Config, error) {
	var cfg Config

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Version == "" {
		cfg.Version = "1"
	}
	if cfg.SchemaDir == "" {
		cfg.SchemaDir = "db/schema"
	}
	if cfg.PlanFile == "" {
		cfg.PlanFile = "seed.yaml"
	}
	if cfg.Database.Provider == "" {
		cfg.Database.Provider = "postgresql"
	}
	if cfg.Database.URLEnv == "" {
		cfg.Database.URLEnv = "DATABASE_URL"
	}
	if cfg.Seed.DefaultCount == 0 {
		cfg.Seed.DefaultCount = 25
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	supportedProviders := []string{"postgresql", "postgres", "mysql", "sqlite", "sqlite3"}
	supported := false
	for _, provider := range supportedProviders {
		if c.Database.Provider == provider {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported database provider: %s. Supported providers: %v", c.Database.Provider, supportedProviders)
	}

	if c.Seed.DefaultCount < 0 {
		return fmt.Errorf("seed.default_count cannot be negative")
	}
	if c.Seed.MaxParams < 0 {
		return fmt.Errorf("seed.max_params cannot be negative")
	}
	return nil
}

func (c *Config) GetDatabaseURL() (string, error) {
	dbURL := os.Getenv(c.Database.URLEnv)
	if dbURL == "" {
		return "", fmt.Errorf("database URL not found in environment variable %s", c.Database.URLEnv)
	}
	return dbURL, nil
}

// GetSchemaFiles returns all .sql files in the schema directory, sorted by
// name for consistent ordering.
func (c *Config) GetSchemaFiles() ([]string, error) {
	entries, err := os.ReadDir(c.SchemaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory %s: %w", c.SchemaDir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, filepath.Join(c.SchemaDir, entry.Name()))
		}
	}
	return files, nil
}

// WriteDefault writes a starter sprout.config.json into dir. Fails if one
// already exists.
func WriteDefault(dir string) error {
	path := filepath.Join(dir, "sprout.config.json")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	cfg := Config{
		Version:   "1",
		SchemaDir: "db/schema",
		PlanFile:  "seed.yaml",
		Database: Database{
			Provider: "postgresql",
			URLEnv:   "DATABASE_URL",
		},
		Seed: Seed{DefaultCount: 25},
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
