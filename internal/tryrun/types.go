// Package tryrun implements the safe try-run execution engine.
//
// Given the key files discovered in a repository, the planner proposes a
// small set of install/build/test/start commands, authorizes a policy-safe
// subset, and the executor runs that subset sequentially inside an ephemeral
// sandbox copy of the repository. Every execution carries a verification
// judgment with human-auditable evidence. The engine reports signal, it
// never guarantees the project actually works.
package tryrun

import "time"

// Strategy is the top-level execution approach chosen by the planner.
// Exactly one strategy is chosen per plan, by detection precedence:
// container > package-manager > python > none.
type Strategy string

const (
	StrategyContainer      Strategy = "container"
	StrategyPackageManager Strategy = "package-manager"
	StrategyPython         Strategy = "python"
	StrategyNone           Strategy = "none"
)

// Step labels the role of a command within the try-run attempt.
type Step string

const (
	StepInstall Step = "install"
	StepTest    Step = "test"
	StepBuild   Step = "build"
	StepStart   Step = "start"
	StepLint    Step = "lint"
	StepRun     Step = "run"
)

// VerificationStatus is the judgment attached to a completed command.
type VerificationStatus string

const (
	VerificationVerified VerificationStatus = "verified"
	VerificationPartial  VerificationStatus = "partial"
	VerificationFailed   VerificationStatus = "failed"
	VerificationSkipped  VerificationStatus = "skipped"
)

// FailureClass is the fixed failure taxonomy produced by the classifier.
type FailureClass string

const (
	FailureMissingEnv   FailureClass = "missing-env"
	FailureMissingDeps  FailureClass = "missing-deps"
	FailurePortConflict FailureClass = "port-conflict"
	FailureTestFail     FailureClass = "test-fail"
	FailurePermission   FailureClass = "permission"
	FailureUnknown      FailureClass = "unknown"
)

// ClassificationSuccess marks an execution that exited cleanly; all other
// classification values are FailureClass strings.
const ClassificationSuccess = "success"

// PlannedCommand is one command the planner proposed. Run is the final
// authorization to execute: the policy sanitization pass may flip it from
// true to false, never the other way around.
type PlannedCommand struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	Step     Step     `json:"step"`
	HelpMode bool     `json:"help_mode,omitempty"`
	Run      bool     `json:"run"`
	Why      string   `json:"why"`
}

// Display returns the command as a single shell-style line for humans.
func (c PlannedCommand) Display() string {
	s := c.Command
	for _, a := range c.Args {
		s += " " + a
	}
	return s
}

// RunPlan is the ordered outcome of planning. ProposedCommands is the
// display-only list (includes unauthorized entries); ExecutableCommands is
// what the executor iterates.
type RunPlan struct {
	Strategy           Strategy         `json:"strategy"`
	Reason             string           `json:"reason"`
	ProposedCommands   []string         `json:"proposed_commands"`
	ExecutableCommands []PlannedCommand `json:"executable_commands"`
}

// Authorized reports whether at least one command may actually execute.
func (p RunPlan) Authorized() bool {
	for _, c := range p.ExecutableCommands {
		if c.Run {
			return true
		}
	}
	return false
}

// CommandExecution records one concrete run of a planned command.
//
// ExitCode is nil when the process never produced one (spawn failure is
// recorded with the -1 sentinel instead, so a nil exit code only appears
// together with TimedOut). VerificationEvidence is never empty.
type CommandExecution struct {
	Command              string             `json:"command"`
	Args                 []string           `json:"args"`
	Step                 Step               `json:"step"`
	HelpMode             bool               `json:"help_mode,omitempty"`
	Cwd                  string             `json:"cwd"`
	DurationMs           int64              `json:"duration_ms"`
	ExitCode             *int               `json:"exit_code,omitempty"`
	TimedOut             bool               `json:"timed_out"`
	StdoutSnippet        string             `json:"stdout_snippet"`
	StderrSnippet        string             `json:"stderr_snippet"`
	Classification       string             `json:"classification"`
	VerificationStatus   VerificationStatus `json:"verification_status"`
	VerificationEvidence string             `json:"verification_evidence"`
	ProbableFixes        []string           `json:"probable_fixes,omitempty"`
}

// Succeeded reports whether the command exited zero without timing out.
func (e CommandExecution) Succeeded() bool {
	return !e.TimedOut && e.ExitCode != nil && *e.ExitCode == 0
}

// Display returns the executed command as a single line.
func (e CommandExecution) Display() string {
	s := e.Command
	for _, a := range e.Args {
		s += " " + a
	}
	return s
}

// RunAttemptResult is the full outcome of one try-run attempt. Executions
// are appended in plan order; the sandbox directory backing the attempt is
// removed before this value is returned to the caller.
type RunAttemptResult struct {
	Attempted  bool               `json:"attempted"`
	Planner    RunPlan            `json:"planner"`
	Executions []CommandExecution `json:"executions"`
	Summary    string             `json:"summary"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}
