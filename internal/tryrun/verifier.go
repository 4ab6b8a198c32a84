package tryrun

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// buildOutputDirs are checked for fresh filesystem side effects after a
// build step, a stronger signal than log phrasing.
var buildOutputDirs = []string{"dist", "build", "out", ".next", "target"}

// Port extraction patterns, tried in order against stdout+stderr.
var portPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)listening\s+on\s+port\s+(\d{2,5})`),
	regexp.MustCompile(`(?i)(?:listening|running|started)\s+(?:on|at)\s+\S*:(\d{2,5})`),
	regexp.MustCompile(`[a-z0-9.\[\]-]+:(\d{2,5})\b`),
	regexp.MustCompile(`(?i)\bport\s+(\d{2,5})\b`),
}

// VerifyInput carries everything the verifier may consult for one command.
type VerifyInput struct {
	Step           Step
	HelpMode       bool
	Success        bool
	TimedOut       bool
	ExitCode       *int
	Stdout         string
	Stderr         string
	SandboxDir     string
	StartedAt      time.Time
	Classification FailureClass // meaningful only when Success is false
}

// Verify maps a completed command's outcome to a verification judgment.
// Pure except for the build-directory stat. The returned evidence is never
// empty: every execution must carry a human-auditable justification.
func Verify(in VerifyInput) (VerificationStatus, string) {
	if in.TimedOut {
		return VerificationFailed, "command exceeded its wall-clock timeout and was terminated"
	}
	if !in.Success {
		code := "unknown"
		if in.ExitCode != nil {
			code = fmt.Sprintf("%d", *in.ExitCode)
		}
		return VerificationFailed, fmt.Sprintf("command exited with code %s (classified as %s)", code, in.Classification)
	}

	combined := strings.ToLower(in.Stdout + "\n" + in.Stderr)

	if in.Step == StepStart && in.HelpMode {
		return VerificationPartial, "start command only probed help output; runtime startup was not verified"
	}

	switch in.Step {
	case StepInstall:
		if anyOf(combined, "installed", "added", "dependencies", "lockfile", "up to date", "up-to-date") {
			return VerificationVerified, "install output contains dependency installation phrasing"
		}
		return VerificationPartial, "install exited cleanly but output carries no installation phrasing"

	case StepTest:
		if testRanCount.MatchString(combined) || anyOf(combined, "pass", "passed", "0 fail") {
			return VerificationVerified, "test output contains pass markers"
		}
		return VerificationPartial, "tests exited cleanly but output carries no pass markers"

	case StepBuild:
		if dir, ok := freshBuildDir(in.SandboxDir, in.StartedAt); ok {
			return VerificationVerified, fmt.Sprintf("build output directory %q was modified during the command", dir)
		}
		if anyOf(combined, "compiled", "built", "build complete", "bundled", "webpack", "vite") {
			return VerificationPartial, "no fresh build output directory found, but output contains build phrasing"
		}
		return VerificationPartial, "build exited cleanly but produced no observable build output signal"

	case StepStart:
		if port, ok := extractPort(in.Stdout + "\n" + in.Stderr); ok {
			return VerificationVerified, fmt.Sprintf("startup output reports a listening port (%s)", port)
		}
		if anyOf(combined, "listening", "started", "server running", "ready in", "ready on") {
			return VerificationPartial, "output contains startup phrasing but no listening port was extracted"
		}
		return VerificationPartial, "start command exited cleanly but emitted no startup signal"

	case StepLint:
		if anyOf(combined, "0 errors", "no issues", "no problems", "0 problems", "clean") {
			return VerificationVerified, "lint output reports zero issues"
		}
		return VerificationPartial, "lint exited cleanly but output carries no explicit zero-issue phrasing"
	}

	return VerificationPartial, fmt.Sprintf("command exited cleanly; no dedicated verifier for step %q", in.Step)
}

var testRanCount = regexp.MustCompile(`ran\s+\d+\s+tests?`)

// freshBuildDir reports the first known build output directory modified at
// or after the command's start time.
func freshBuildDir(sandboxDir string, startedAt time.Time) (string, bool) {
	if sandboxDir == "" {
		return "", false
	}
	// Filesystem mtimes may have coarser resolution than the start stamp.
	cutoff := startedAt.Truncate(time.Second)
	for _, name := range buildOutputDirs {
		info, err := os.Stat(filepath.Join(sandboxDir, name))
		if err != nil || !info.IsDir() {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			return name, true
		}
	}
	return "", false
}

// extractPort pulls a listening port number out of startup output.
func extractPort(text string) (string, bool) {
	for _, re := range portPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}
