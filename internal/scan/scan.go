// Package scan discovers the key descriptor files the planner needs:
// container descriptors, package manifests, lockfiles, and Python project
// files. It reads only well-known paths at the repository root, no
// recursive indexing happens here.
package scan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Compose file names, checked in order.
var composeNames = []string{
	"docker-compose.yml",
	"docker-compose.yaml",
	"compose.yml",
	"compose.yaml",
}

// Python entrypoint candidates, checked in order.
var pythonEntrypoints = []string{"main.py", "app.py", "run.py"}

// KeyFiles holds the descriptor paths discovered at a repository root.
// Absent files are empty strings.
type KeyFiles struct {
	Dockerfile      string `json:"dockerfile,omitempty"`
	ComposeFile     string `json:"compose_file,omitempty"`
	PackageManifest string `json:"package_manifest,omitempty"`

	// Lockfiles present at the root, by runner name (bun, pnpm, yarn, npm).
	Lockfiles map[string]string `json:"lockfiles,omitempty"`

	Requirements     string `json:"requirements,omitempty"`
	PyProject        string `json:"pyproject,omitempty"`
	PythonEntrypoint string `json:"python_entrypoint,omitempty"`
}

// HasContainerDescriptor reports whether a Dockerfile or compose file exists.
func (k KeyFiles) HasContainerDescriptor() bool {
	return k.Dockerfile != "" || k.ComposeFile != ""
}

// HasPythonDescriptor reports whether a requirements or pyproject file exists.
func (k KeyFiles) HasPythonDescriptor() bool {
	return k.Requirements != "" || k.PyProject != ""
}

// Discover inspects rootDir for the well-known descriptor files.
func Discover(rootDir string) (KeyFiles, error) {
	if _, err := os.Stat(rootDir); err != nil {
		return KeyFiles{}, fmt.Errorf("repository root %s: %w", rootDir, err)
	}

	kf := KeyFiles{Lockfiles: map[string]string{}}

	kf.Dockerfile = existing(rootDir, "Dockerfile")
	for _, name := range composeNames {
		if p := existing(rootDir, name); p != "" {
			kf.ComposeFile = p
			break
		}
	}

	kf.PackageManifest = existing(rootDir, "package.json")
	lockNames := map[string][]string{
		"bun":  {"bun.lock", "bun.lockb"},
		"pnpm": {"pnpm-lock.yaml"},
		"yarn": {"yarn.lock"},
		"npm":  {"package-lock.json"},
	}
	for runner, names := range lockNames {
		for _, name := range names {
			if p := existing(rootDir, name); p != "" {
				kf.Lockfiles[runner] = p
				break
			}
		}
	}

	kf.Requirements = existing(rootDir, "requirements.txt")
	kf.PyProject = existing(rootDir, "pyproject.toml")
	for _, name := range pythonEntrypoints {
		if p := existing(rootDir, name); p != "" {
			kf.PythonEntrypoint = p
			break
		}
	}

	return kf, nil
}

// existing returns the joined path when it is a regular file, else "".
func existing(root, name string) string {
	p := filepath.Join(root, name)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return ""
	}
	return p
}

// PackageManifest is the subset of package.json the planner consumes.
type PackageManifest struct {
	Name    string            `json:"name"`
	Scripts map[string]string `json:"scripts"`

	// Bin is either a string or an object in package.json; only presence
	// matters to the planner, so it is kept raw.
	Bin json.RawMessage `json:"bin"`
}

// HasBin reports whether the package exposes at least one CLI binary.
func (m PackageManifest) HasBin() bool {
	return len(m.Bin) > 0 && string(m.Bin) != "null" && string(m.Bin) != "{}"
}

// LoadPackageManifest parses a package.json file. A malformed manifest is an
// error for the caller to degrade on; the planner treats it as "no scripts".
func LoadPackageManifest(path string) (PackageManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PackageManifest{}, fmt.Errorf("reading package manifest %s: %w", path, err)
	}
	var m PackageManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return PackageManifest{}, fmt.Errorf("parsing package manifest %s: %w", path, err)
	}
	return m, nil
}
