package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writePolicy(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0640); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestDefault_AllListsNonEmpty(t *testing.T) {
	p := Default()
	if p.Source != SourceDefault {
		t.Errorf("source = %q, want %q", p.Source, SourceDefault)
	}
	for name, list := range map[string][]string{
		"scriptPriority":           p.ScriptPriority,
		"allowedCommands":          p.AllowedCommands,
		"allowedScriptEntrypoints": p.AllowedScriptEntrypoints,
		"blockedScriptEntrypoints": p.BlockedScriptEntrypoints,
	} {
		if len(list) == 0 {
			t.Errorf("default %s is empty", name)
		}
	}
}

func TestDefault_ReturnsFreshValue(t *testing.T) {
	a := Default()
	a.AllowedCommands[0] = "mutated"
	b := Default()
	if b.AllowedCommands[0] == "mutated" {
		t.Fatal("Default() shares state between calls")
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	p, err := Load(t.TempDir(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Source != SourceDefault {
		t.Errorf("source = %q, want default", p.Source)
	}
}

func TestLoad_InvalidJSONIsFatal(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "tryrun-policy.json", "{not json")

	_, err := Load(dir, "")
	if err == nil {
		t.Fatal("expected error for invalid policy JSON")
	}
	if !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("error = %v, want ErrInvalidPolicy", err)
	}
}

func TestLoad_ConventionalLocationOrder(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, filepath.Join(".repoprobe", "tryrun-policy.json"),
		`{"allowedCommands": ["docker"]}`)
	writePolicy(t, dir, "tryrun-policy.json",
		`{"allowedCommands": ["npm"]}`)

	p, err := Load(dir, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.CommandAllowed("docker") || p.CommandAllowed("npm") {
		t.Errorf("expected .repoprobe/ location to win, got allowed=%v", p.AllowedCommands)
	}
}

func TestLoad_OverridePathOnly(t *testing.T) {
	dir := t.TempDir()
	// In-repo file is ignored when an explicit override is given.
	writePolicy(t, dir, "tryrun-policy.json", `{"allowedCommands": ["npm"]}`)
	override := writePolicy(t, dir, "custom.json", `{"allowedCommands": ["make"]}`)

	p, err := Load(dir, override)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Source != override {
		t.Errorf("source = %q, want %q", p.Source, override)
	}
	if !p.CommandAllowed("make") || p.CommandAllowed("npm") {
		t.Errorf("allowed = %v, want only override contents", p.AllowedCommands)
	}
}

func TestLoad_EmptyFieldFallsBackToDefault(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty array", `{"allowedCommands": []}`},
		{"whitespace only", `{"allowedCommands": ["  ", ""]}`},
		{"wrong type", `{"allowedCommands": "docker"}`},
		{"wrong element type", `{"allowedCommands": [1, 2]}`},
		{"key missing", `{}`},
	}
	def := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writePolicy(t, dir, "tryrun-policy.json", tt.content)
			p, err := Load(dir, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(p.AllowedCommands) != len(def.AllowedCommands) {
				t.Errorf("allowedCommands = %v, want built-in defaults", p.AllowedCommands)
			}
		})
	}
}

func TestLoad_NormalizesOverrides(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "tryrun-policy.json",
		`{"allowedCommands": ["  Docker ", "NPM", "docker", "npm"]}`)

	p, err := Load(dir, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"docker", "npm"}
	if len(p.AllowedCommands) != len(want) {
		t.Fatalf("allowedCommands = %v, want %v", p.AllowedCommands, want)
	}
	for i, v := range want {
		if p.AllowedCommands[i] != v {
			t.Errorf("allowedCommands[%d] = %q, want %q", i, p.AllowedCommands[i], v)
		}
	}
}

func TestLoad_UnknownKeysIgnored(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "tryrun-policy.json",
		`{"futureKnob": 7, "scriptPriority": ["build"]}`)

	p, err := Load(dir, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.ScriptPriority) != 1 || p.ScriptPriority[0] != "build" {
		t.Errorf("scriptPriority = %v, want [build]", p.ScriptPriority)
	}
}

func TestEntrypoint_BlockDominatesAllow(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "tryrun-policy.json",
		`{"allowedScriptEntrypoints": ["node", "curl"], "blockedScriptEntrypoints": ["curl"]}`)

	p, err := Load(dir, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.EntrypointAllowed("curl") {
		t.Fatal("test setup: curl should be on the allow list")
	}
	if !p.EntrypointBlocked("curl") {
		t.Error("curl must remain blocked even when also allowed")
	}
}
