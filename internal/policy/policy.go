// Package policy loads and merges the safe-execution policy that gates the
// try-run engine.
//
// Deny-first evaluation: blocked entrypoints are checked before allowed ones;
// if both match, the command is rejected. A present-but-invalid policy file
// is a fatal error: silently falling back to defaults would mask an
// operator's intended lockdown. A missing policy file is not an error.
package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Conventional in-repo policy locations, tried in order when no explicit
// override path is supplied. First valid file wins.
var conventionalPaths = []string{
	filepath.Join(".repoprobe", "tryrun-policy.json"),
	"tryrun-policy.json",
}

// SourceDefault marks a policy built entirely from built-in defaults.
const SourceDefault = "default"

// ErrInvalidPolicy wraps JSON or read failures for a policy file that exists.
var ErrInvalidPolicy = errors.New("invalid try-run policy")

// TryRunPolicy defines which commands and script entrypoints the try-run
// engine may execute. Every list is non-empty: override fields that are
// empty after cleaning fall back to the built-in defaults. Read-only after
// load.
type TryRunPolicy struct {
	// Source is "default" or the path of the policy file that was merged.
	Source string

	// ScriptPriority orders which manifest scripts to prefer.
	ScriptPriority []string

	// AllowedCommands lists top-level executables permitted to run at all.
	AllowedCommands []string

	// AllowedScriptEntrypoints lists binaries a script body may invoke.
	AllowedScriptEntrypoints []string

	// BlockedScriptEntrypoints lists binaries rejected unconditionally.
	// Block always dominates allow.
	BlockedScriptEntrypoints []string
}

// rawPolicy is the on-disk JSON shape. All keys optional; unknown keys are
// ignored. Fields are kept raw so a wrong-typed value degrades to the
// built-in default for that field instead of failing the whole file;
// only JSON the file itself cannot parse is fatal.
type rawPolicy struct {
	ScriptPriority           json.RawMessage `json:"scriptPriority"`
	AllowedCommands          json.RawMessage `json:"allowedCommands"`
	AllowedScriptEntrypoints json.RawMessage `json:"allowedScriptEntrypoints"`
	BlockedScriptEntrypoints json.RawMessage `json:"blockedScriptEntrypoints"`
}

// stringList decodes a raw field as a string array; anything else yields nil.
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	return list
}

// Default returns the built-in policy. A fresh value is constructed on every
// call so a caller can never mutate the defaults of another run.
func Default() TryRunPolicy {
	return TryRunPolicy{
		Source:         SourceDefault,
		ScriptPriority: []string{"test", "lint", "build", "start", "dev"},
		AllowedCommands: []string{
			"docker", "npm", "pnpm", "yarn", "bun",
			"make", "node",
			"python", "python3", "pip", "pip3", "pytest",
		},
		AllowedScriptEntrypoints: []string{
			"node", "vite", "tsc", "next", "jest", "vitest", "mocha",
			"eslint", "prettier", "webpack", "rollup", "esbuild",
			"tsx", "ts-node", "react-scripts", "nodemon", "cargo",
		},
		BlockedScriptEntrypoints: []string{
			"curl", "wget", "bash", "sh", "zsh", "powershell", "pwsh",
			"sudo", "rm", "eval",
		},
	}
}

// Load resolves the effective policy for a repository.
//
// If overridePath is non-empty, only that path is consulted. Otherwise the
// conventional in-repo locations under rootDir are tried in order. A file
// that exists but cannot be read or parsed returns ErrInvalidPolicy.
func Load(rootDir, overridePath string) (TryRunPolicy, error) {
	if overridePath != "" {
		return loadFile(overridePath)
	}
	for _, rel := range conventionalPaths {
		path := filepath.Join(rootDir, rel)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return loadFile(path)
	}
	return Default(), nil
}

func loadFile(path string) (TryRunPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TryRunPolicy{}, fmt.Errorf("%w: reading %s: %v", ErrInvalidPolicy, path, err)
	}

	var raw rawPolicy
	if err := json.Unmarshal(data, &raw); err != nil {
		return TryRunPolicy{}, fmt.Errorf("%w: parsing %s: %v", ErrInvalidPolicy, path, err)
	}

	p := Default()
	p.Source = path
	p.ScriptPriority = mergeList(stringList(raw.ScriptPriority), p.ScriptPriority)
	p.AllowedCommands = mergeList(stringList(raw.AllowedCommands), p.AllowedCommands)
	p.AllowedScriptEntrypoints = mergeList(stringList(raw.AllowedScriptEntrypoints), p.AllowedScriptEntrypoints)
	p.BlockedScriptEntrypoints = mergeList(stringList(raw.BlockedScriptEntrypoints), p.BlockedScriptEntrypoints)
	return p, nil
}

// mergeList normalizes an override list (trim, lowercase, dedupe) and uses
// it if anything survives cleaning; otherwise the default is kept.
func mergeList(override, def []string) []string {
	cleaned := make([]string, 0, len(override))
	seen := make(map[string]bool, len(override))
	for _, v := range override {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		cleaned = append(cleaned, v)
	}
	if len(cleaned) == 0 {
		return def
	}
	return cleaned
}

// CommandAllowed reports whether a top-level executable may run at all.
func (p TryRunPolicy) CommandAllowed(name string) bool {
	return contains(p.AllowedCommands, strings.ToLower(name))
}

// EntrypointBlocked reports whether a script entrypoint is unconditionally
// rejected. Checked before EntrypointAllowed; block dominates.
func (p TryRunPolicy) EntrypointBlocked(name string) bool {
	return contains(p.BlockedScriptEntrypoints, strings.ToLower(name))
}

// EntrypointAllowed reports whether a script entrypoint is on the allow list.
func (p TryRunPolicy) EntrypointAllowed(name string) bool {
	return contains(p.AllowedScriptEntrypoints, strings.ToLower(name))
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
