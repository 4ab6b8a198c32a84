// Package config handles loading and validating repoprobe configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

const (
	defaultTimeoutSeconds = 120
	defaultMaxOutputChars = 4000
	defaultDataDirName    = ".repoprobe"
)

// Config is the root configuration for repoprobe.
//
// Resolution order per field: built-in default, then the YAML config file,
// then a REPOPROBE_* environment variable.
type Config struct {
	// TimeoutSeconds is the wall-clock limit per executed command.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// MaxOutputChars caps each captured output stream (tail kept).
	MaxOutputChars int `yaml:"max_output_chars"`

	// AllowPython opts in to executing Python install/run commands.
	AllowPython bool `yaml:"allow_python"`

	// PolicyPath is an explicit try-run policy file. Empty = conventional
	// in-repo locations, then built-in defaults.
	PolicyPath string `yaml:"policy_path"`

	// DataDir holds the history database. Default: ~/.repoprobe.
	DataDir string `yaml:"data_dir"`

	// ReportDir receives report artifacts. Empty = <repo>/.repoprobe-report.
	ReportDir string `yaml:"report_dir"`
}

// Load reads the configuration. path may be empty: defaults plus environment
// overrides apply. A config file that exists but cannot be parsed is an
// error.
func Load(path string) (*Config, error) {
	cfg := &Config{
		TimeoutSeconds: defaultTimeoutSeconds,
		MaxOutputChars: defaultMaxOutputChars,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("determining home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, defaultDataDirName)
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaultTimeoutSeconds
	}
	if cfg.MaxOutputChars <= 0 {
		cfg.MaxOutputChars = defaultMaxOutputChars
	}
	return cfg, nil
}

// HistoryDBPath returns the SQLite history database path.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("REPOPROBE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("REPOPROBE_MAX_OUTPUT_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxOutputChars = n
		}
	}
	if v := os.Getenv("REPOPROBE_ALLOW_PYTHON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AllowPython = b
		}
	}
	if v := os.Getenv("REPOPROBE_POLICY_PATH"); v != "" {
		cfg.PolicyPath = v
	}
	if v := os.Getenv("REPOPROBE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("REPOPROBE_REPORT_DIR"); v != "" {
		cfg.ReportDir = v
	}
}
