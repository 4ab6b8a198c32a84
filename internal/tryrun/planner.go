package tryrun

import (
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jkaninda/repoprobe/internal/policy"
	"github.com/jkaninda/repoprobe/internal/scan"
)

// maxScriptsPerPlan caps how many manifest scripts one plan may select.
const maxScriptsPerPlan = 3

// runnerLockPriority orders package-manager runners by lockfile authority.
// The first runner whose lockfile is present owns the install step.
var runnerLockPriority = []string{"bun", "pnpm", "yarn", "npm"}

// knownRunners are entrypoints whose absence on PATH makes a script
// unrunnable regardless of policy.
var knownRunners = map[string]bool{
	"npm": true, "pnpm": true, "yarn": true, "bun": true, "npx": true,
}

// envAssignment matches leading KEY=value tokens in a script body.
var envAssignment = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=`)

// Planner builds a RunPlan from repository signals under a loaded policy.
//
// Detection precedence (first match wins): container descriptor > package
// manifest > Python project descriptor > none. A container descriptor is the
// author's own reproduction recipe and is trusted over re-derived heuristics.
type Planner struct {
	policy policy.TryRunPolicy
	logger *slog.Logger

	// lookPath resolves a binary on PATH; swapped out in tests.
	lookPath func(name string) (string, error)
}

// NewPlanner creates a Planner bound to a policy.
func NewPlanner(pol policy.TryRunPolicy, logger *slog.Logger) *Planner {
	return &Planner{
		policy:   pol,
		logger:   logger,
		lookPath: exec.LookPath,
	}
}

// BuildRunPlan produces the ordered plan for one try-run attempt.
// allowPython gates Python command authorization: a Python interpreter has
// broader ambient trust than a JS dependency install, so it is opt-in.
func (p *Planner) BuildRunPlan(rootDir string, kf scan.KeyFiles, timeoutSeconds int, allowPython bool) RunPlan {
	var plan RunPlan
	switch {
	case kf.HasContainerDescriptor():
		plan = p.containerPlan(rootDir, kf)
	case kf.PackageManifest != "":
		plan = p.packageManagerPlan(kf)
	case kf.HasPythonDescriptor():
		plan = p.pythonPlan(kf, allowPython)
	default:
		plan = RunPlan{
			Strategy: StrategyNone,
			Reason:   "no container descriptor, package manifest, or python project descriptor found",
		}
	}

	p.sanitizeByPolicy(&plan)

	for _, c := range plan.ExecutableCommands {
		plan.ProposedCommands = append(plan.ProposedCommands, c.Display())
	}

	p.logger.Info("run plan built",
		slog.String("strategy", string(plan.Strategy)),
		slog.Int("commands", len(plan.ExecutableCommands)),
		slog.Bool("authorized", plan.Authorized()),
		slog.Int("timeout_seconds", timeoutSeconds),
	)
	return plan
}

// containerPlan trusts the repository's own container recipe.
func (p *Planner) containerPlan(rootDir string, kf scan.KeyFiles) RunPlan {
	dockerAvailable := p.available("docker")
	why := func(ok string) string {
		if dockerAvailable {
			return ok
		}
		return "docker is not available on PATH"
	}

	var cmds []PlannedCommand
	if kf.ComposeFile != "" {
		cmds = append(cmds, PlannedCommand{
			Command: "docker",
			Args: []string{
				"compose", "-f", filepath.Base(kf.ComposeFile),
				"up", "--build", "--abort-on-container-exit",
			},
			Step: StepStart,
			Run:  dockerAvailable,
			Why:  why("compose file is the author's reproduction recipe; abort on first container exit"),
		})
		return RunPlan{
			Strategy:           StrategyContainer,
			Reason:             "compose file found at repository root",
			ExecutableCommands: cmds,
		}
	}

	tag := "repoprobe-tryrun:" + uuid.NewString()[:8]
	cmds = append(cmds,
		PlannedCommand{
			Command: "docker",
			Args:    []string{"build", "-t", tag, "."},
			Step:    StepBuild,
			Run:     dockerAvailable,
			Why:     why("build the repository's own Dockerfile into a locally tagged image"),
		},
		PlannedCommand{
			Command: "docker",
			Args:    []string{"run", "--rm", tag},
			Step:    StepStart,
			Run:     dockerAvailable,
			Why:     why("run the freshly built image; wall-clock timeout bounds long-lived containers"),
		},
	)
	return RunPlan{
		Strategy:           StrategyContainer,
		Reason:             "Dockerfile found at repository root",
		ExecutableCommands: cmds,
	}
}

// packageManagerPlan derives install plus up to three scripts from the
// package manifest.
func (p *Planner) packageManagerPlan(kf scan.KeyFiles) RunPlan {
	runner, lockfile := p.chooseRunner(kf)
	runnerAvailable := p.available(runner)

	var cmds []PlannedCommand

	installWhy := fmt.Sprintf("install dependencies with %s", runner)
	if lockfile != "" {
		installWhy += fmt.Sprintf(" (%s present)", filepath.Base(lockfile))
	}
	if !runnerAvailable {
		installWhy = fmt.Sprintf("%s lockfile present but %s is not available on PATH", runner, runner)
	}
	cmds = append(cmds, PlannedCommand{
		Command: runner,
		Args:    []string{"install"},
		Step:    StepInstall,
		Run:     runnerAvailable,
		Why:     installWhy,
	})

	manifest, err := scan.LoadPackageManifest(kf.PackageManifest)
	if err != nil {
		p.logger.Warn("package manifest unreadable, planning install only",
			slog.String("path", kf.PackageManifest),
			slog.String("error", err.Error()),
		)
	}

	selected := p.selectScripts(manifest.Scripts)
	for _, name := range selected {
		body := manifest.Scripts[name]
		step := scriptStep(name)
		safe, safetyWhy := p.evaluateScriptSafety(body)

		cmd := PlannedCommand{
			Command: runner,
			Args:    []string{"run", name},
			Step:    step,
			Run:     runnerAvailable && safe,
			Why:     safetyWhy,
		}
		if safe && !runnerAvailable {
			cmd.Why = fmt.Sprintf("script %q is safe but %s is not available on PATH", name, runner)
		}

		// A start or dev script on a package that ships a CLI binary gets a
		// help probe tail so the executor never launches a persistent server
		// unattended.
		if step == StepStart && manifest.HasBin() {
			cmd.Args = append(cmd.Args, "--", "--help")
			cmd.HelpMode = true
			cmd.Why += "; probed with --help to avoid leaving a server running"
		}
		cmds = append(cmds, cmd)
	}

	if len(selected) == 0 {
		// Placeholder for visibility only, never authorized.
		cmds = append(cmds, PlannedCommand{
			Command: runner,
			Args:    []string{"run"},
			Step:    StepRun,
			Run:     false,
			Why:     "no manifest scripts matched the policy script priorities",
		})
	}

	return RunPlan{
		Strategy:           StrategyPackageManager,
		Reason:             "package manifest found at repository root",
		ExecutableCommands: cmds,
	}
}

// pythonPlan synthesizes install and run commands; nothing is authorized
// unless python execution was explicitly allowed.
func (p *Planner) pythonPlan(kf scan.KeyFiles, allowPython bool) RunPlan {
	gateWhy := func(ok string) string {
		if allowPython {
			return ok
		}
		return "python execution is opt-in; rerun with python execution enabled to authorize"
	}

	var cmds []PlannedCommand
	switch {
	case kf.Requirements != "":
		cmds = append(cmds, PlannedCommand{
			Command: "pip",
			Args:    []string{"install", "-r", filepath.Base(kf.Requirements)},
			Step:    StepInstall,
			Run:     allowPython && p.available("pip"),
			Why:     gateWhy("install pinned requirements"),
		})
	case kf.PyProject != "":
		cmds = append(cmds, PlannedCommand{
			Command: "pip",
			Args:    []string{"install", "-e", "."},
			Step:    StepInstall,
			Run:     allowPython && p.available("pip"),
			Why:     gateWhy("install the project in editable mode from pyproject.toml"),
		})
	}

	if kf.PythonEntrypoint != "" {
		cmds = append(cmds, PlannedCommand{
			Command: "python",
			Args:    []string{filepath.Base(kf.PythonEntrypoint)},
			Step:    StepRun,
			Run:     allowPython && p.available("python"),
			Why:     gateWhy(fmt.Sprintf("detected entrypoint %s", filepath.Base(kf.PythonEntrypoint))),
		})
	} else {
		cmds = append(cmds, PlannedCommand{
			Command: "pytest",
			Args:    []string{},
			Step:    StepTest,
			Run:     allowPython && p.available("pytest"),
			Why:     gateWhy("no entrypoint detected; fall back to the test suite"),
		})
	}

	return RunPlan{
		Strategy:           StrategyPython,
		Reason:             "python project descriptor found at repository root",
		ExecutableCommands: cmds,
	}
}

// chooseRunner picks the package-manager runner and the lockfile that
// nominated it. With no lockfile at all, npm is the fallback runner.
func (p *Planner) chooseRunner(kf scan.KeyFiles) (runner, lockfile string) {
	for _, r := range runnerLockPriority {
		if lf, ok := kf.Lockfiles[r]; ok {
			return r, lf
		}
	}
	return "npm", ""
}

// selectScripts returns up to maxScriptsPerPlan script names present in the
// manifest, in policy priority order.
func (p *Planner) selectScripts(scripts map[string]string) []string {
	if len(scripts) == 0 {
		return nil
	}
	var selected []string
	for _, want := range p.policy.ScriptPriority {
		if _, ok := scripts[want]; ok {
			selected = append(selected, want)
			if len(selected) == maxScriptsPerPlan {
				break
			}
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return priorityIndex(p.policy.ScriptPriority, selected[i]) < priorityIndex(p.policy.ScriptPriority, selected[j])
	})
	return selected
}

func priorityIndex(priority []string, name string) int {
	for i, v := range priority {
		if v == name {
			return i
		}
	}
	return len(priority)
}

// evaluateScriptSafety judges a manifest script body by its effective
// entrypoint: leading KEY=value environment assignments are skipped, then
// the next token is lowercased and checked. Block always wins over allow.
func (p *Planner) evaluateScriptSafety(body string) (bool, string) {
	entry := scriptEntrypoint(body)
	if entry == "" {
		return false, "script has no effective entrypoint"
	}
	if knownRunners[entry] && !p.available(entry) {
		return false, fmt.Sprintf("script entrypoint %q is not available on PATH", entry)
	}
	if p.policy.EntrypointBlocked(entry) {
		return false, fmt.Sprintf("script entrypoint %q is blocked by policy", entry)
	}
	if !p.policy.EntrypointAllowed(entry) {
		return false, fmt.Sprintf("script entrypoint %q is not on the policy allow list", entry)
	}
	return true, fmt.Sprintf("script entrypoint %q accepted by policy", entry)
}

// scriptEntrypoint extracts the first non-assignment token, lowercased.
func scriptEntrypoint(body string) string {
	for _, tok := range strings.Fields(body) {
		if envAssignment.MatchString(tok) {
			continue
		}
		return strings.ToLower(tok)
	}
	return ""
}

// scriptStep maps a manifest script name to its try-run step.
func scriptStep(name string) Step {
	switch name {
	case "test":
		return StepTest
	case "lint":
		return StepLint
	case "build":
		return StepBuild
	case "start", "dev":
		return StepStart
	default:
		return StepRun
	}
}

// sanitizeByPolicy is the last-mile gate: any command whose top-level
// executable is not on the policy allow list loses authorization, no matter
// which code path proposed it. Monotonic narrowing: run only ever flips
// true to false here.
func (p *Planner) sanitizeByPolicy(plan *RunPlan) {
	for i := range plan.ExecutableCommands {
		c := &plan.ExecutableCommands[i]
		if p.policy.CommandAllowed(c.Command) {
			continue
		}
		if c.Run {
			c.Run = false
		}
		c.Why += fmt.Sprintf("; command %q is not on the policy allow list", c.Command)
	}
}

func (p *Planner) available(binary string) bool {
	_, err := p.lookPath(binary)
	return err == nil
}
