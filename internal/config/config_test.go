package config

import (
	"os"
	"path/filepath"
	"testing"
)

// clearRepoprobeEnv keeps ambient REPOPROBE_* variables from leaking into
// default-value assertions.
func clearRepoprobeEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"REPOPROBE_TIMEOUT_SECONDS",
		"REPOPROBE_MAX_OUTPUT_CHARS",
		"REPOPROBE_ALLOW_PYTHON",
		"REPOPROBE_POLICY_PATH",
		"REPOPROBE_DATA_DIR",
		"REPOPROBE_REPORT_DIR",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearRepoprobeEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TimeoutSeconds != 120 {
		t.Errorf("timeout = %d, want 120", cfg.TimeoutSeconds)
	}
	if cfg.MaxOutputChars != 4000 {
		t.Errorf("max output = %d, want 4000", cfg.MaxOutputChars)
	}
	if cfg.AllowPython {
		t.Error("python must be opt-in")
	}
	if cfg.DataDir == "" {
		t.Error("data dir default not resolved")
	}
	if filepath.Base(cfg.HistoryDBPath()) != "history.db" {
		t.Errorf("history path = %s", cfg.HistoryDBPath())
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	clearRepoprobeEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
timeout_seconds: 45
max_output_chars: 1000
allow_python: true
policy_path: /etc/repoprobe/policy.json
data_dir: /var/lib/repoprobe
report_dir: /tmp/reports
`
	if err := os.WriteFile(path, []byte(content), 0640); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TimeoutSeconds != 45 {
		t.Errorf("timeout = %d, want 45", cfg.TimeoutSeconds)
	}
	if cfg.MaxOutputChars != 1000 {
		t.Errorf("max output = %d, want 1000", cfg.MaxOutputChars)
	}
	if !cfg.AllowPython {
		t.Error("allow_python not applied")
	}
	if cfg.PolicyPath != "/etc/repoprobe/policy.json" {
		t.Errorf("policy path = %q", cfg.PolicyPath)
	}
	if cfg.DataDir != "/var/lib/repoprobe" {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
	if cfg.ReportDir != "/tmp/reports" {
		t.Errorf("report dir = %q", cfg.ReportDir)
	}
}

func TestLoad_MissingFileIsError(t *testing.T) {
	clearRepoprobeEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for explicit missing config file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	clearRepoprobeEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("timeout_seconds: [not a number"), 0640); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearRepoprobeEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("timeout_seconds: 45\n"), 0640); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("REPOPROBE_TIMEOUT_SECONDS", "7")
	t.Setenv("REPOPROBE_ALLOW_PYTHON", "true")
	t.Setenv("REPOPROBE_DATA_DIR", "/data/probe")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TimeoutSeconds != 7 {
		t.Errorf("timeout = %d, env must win over file", cfg.TimeoutSeconds)
	}
	if !cfg.AllowPython {
		t.Error("REPOPROBE_ALLOW_PYTHON not applied")
	}
	if cfg.DataDir != "/data/probe" {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
}

func TestLoad_InvalidEnvValuesIgnored(t *testing.T) {
	clearRepoprobeEnv(t)
	t.Setenv("REPOPROBE_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("REPOPROBE_ALLOW_PYTHON", "maybe")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TimeoutSeconds != 120 {
		t.Errorf("timeout = %d, want default when env is unparseable", cfg.TimeoutSeconds)
	}
	if cfg.AllowPython {
		t.Error("unparseable bool must not enable python")
	}
}

func TestLoad_NonPositiveValuesFallBack(t *testing.T) {
	clearRepoprobeEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("timeout_seconds: -5\nmax_output_chars: 0\n"), 0640); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TimeoutSeconds != 120 || cfg.MaxOutputChars != 4000 {
		t.Errorf("got %d/%d, want defaults for non-positive values", cfg.TimeoutSeconds, cfg.MaxOutputChars)
	}
}
