package tryrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/jkaninda/repoprobe/internal/observability"
)

const (
	defaultTimeout          = 120 * time.Second
	defaultMaxOutputChars   = 4000
	defaultGraceKillDelay   = 1500 * time.Millisecond
	defaultProgressInterval = 5 * time.Second

	// spawnFailureExitCode marks commands that never started (binary
	// missing, exec permission denied). Matches the os/exec convention
	// for "no exit code available".
	spawnFailureExitCode = -1
)

// Fixed summary sentences. Callers match on these exact strings.
const (
	SummaryNoCommands = "no commands executed"
	SummaryRecovered  = "recovered after fallback"
)

// ExecutorConfig configures the try-run executor. Zero values fall back to
// defaults.
type ExecutorConfig struct {
	// Timeout is the wall-clock limit per command, not shared across the plan.
	Timeout time.Duration

	// MaxOutputChars caps each captured stream; the tail is kept.
	MaxOutputChars int

	// GraceKillDelay is the window between SIGTERM and SIGKILL on timeout.
	GraceKillDelay time.Duration

	// ProgressInterval paces progress events for long-running commands.
	ProgressInterval time.Duration
}

// Executor runs the authorized commands of a RunPlan inside an ephemeral
// sandbox copy of the repository.
//
// Guarantees:
//   - Commands run strictly sequentially, in plan order
//   - Each command runs in its own process group under a wall-clock timeout
//   - Timeout escalates: SIGTERM to the group, grace window, then SIGKILL
//   - Captured output is tail-truncated continuously, never buffered unbounded
//   - The sandbox directory is removed on every exit path
//   - A command that cannot spawn is a recorded result, not an error
type Executor struct {
	cfg     ExecutorConfig
	logger  *slog.Logger
	sink    EventSink
	metrics *observability.MetricsCollector
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithEventSink attaches a live event sink.
func WithEventSink(sink EventSink) ExecutorOption {
	return func(e *Executor) { e.sink = sink }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *observability.MetricsCollector) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxOutputChars <= 0 {
		cfg.MaxOutputChars = defaultMaxOutputChars
	}
	if cfg.GraceKillDelay <= 0 {
		cfg.GraceKillDelay = defaultGraceKillDelay
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}
	e := &Executor{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteRunPlan runs the plan's authorized commands against an isolated
// copy of sourceRepoPath and returns the attempt result.
//
// Control flow is sequential-with-fallback: a failed command normally ends
// the loop, except when a timed-out help-probe start command has a later
// help-probe start alternative, in which case execution skips forward to it. The
// loop only ever moves forward; a failed command is never retried.
func (e *Executor) ExecuteRunPlan(ctx context.Context, sourceRepoPath string, plan RunPlan) (*RunAttemptResult, error) {
	result := &RunAttemptResult{
		Planner:   plan,
		StartedAt: time.Now().UTC(),
	}

	if !plan.Authorized() {
		result.Summary = SummaryNoCommands
		result.FinishedAt = time.Now().UTC()
		e.metrics.ObserveAttempt(string(plan.Strategy), false)
		return result, nil
	}
	result.Attempted = true

	copyStart := time.Now()
	sandbox, err := createSandbox(sourceRepoPath)
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveSandboxCopy(time.Since(copyStart))
	defer removeSandbox(sandbox, e.logger)

	e.logger.Info("sandbox ready",
		slog.String("source", sourceRepoPath),
		slog.String("sandbox", sandbox),
		slog.Duration("copy_time", time.Since(copyStart)),
	)

	cmds := plan.ExecutableCommands
	usedFallback := false
	for i := 0; i < len(cmds); {
		pc := cmds[i]
		if !pc.Run {
			i++
			continue
		}

		execution := e.runCommand(ctx, sandbox, i, pc)
		result.Executions = append(result.Executions, execution)
		e.metrics.ObserveExecution(string(pc.Step), string(execution.VerificationStatus),
			time.Duration(execution.DurationMs)*time.Millisecond)

		if execution.Succeeded() {
			i++
			continue
		}

		next, ok := fallbackTarget(cmds, i, execution)
		if !ok {
			break
		}
		usedFallback = true
		e.emit(Event{
			Type:    EventFallback,
			Index:   next,
			Command: cmds[next].Display(),
			Step:    cmds[next].Step,
		})
		e.logger.Info("continuing to alternate start probe",
			slog.String("failed", pc.Display()),
			slog.String("next", cmds[next].Display()),
		)
		i = next
	}

	result.Summary = synthesizeSummary(result.Executions, usedFallback)
	result.FinishedAt = time.Now().UTC()
	e.metrics.ObserveAttempt(string(plan.Strategy), true)
	return result, nil
}

// fallbackTarget implements the single lookahead rule: a start-step command
// run in help mode that failed specifically via timeout may yield to a later
// authorized start-step help-probe entry. Forward only, at most one hop per
// failure.
func fallbackTarget(cmds []PlannedCommand, failedIdx int, failed CommandExecution) (int, bool) {
	pc := cmds[failedIdx]
	if pc.Step != StepStart || !pc.HelpMode || !failed.TimedOut {
		return 0, false
	}
	for j := failedIdx + 1; j < len(cmds); j++ {
		if cmds[j].Run && cmds[j].Step == StepStart && cmds[j].HelpMode {
			return j, true
		}
	}
	return 0, false
}

// runCommand executes one planned command inside the sandbox and returns
// its fully classified and verified record.
func (e *Executor) runCommand(ctx context.Context, sandbox string, idx int, pc PlannedCommand) CommandExecution {
	display := pc.Display()
	e.emit(Event{Type: EventStart, Index: idx, Command: display, Step: pc.Step})
	e.logger.Info("executing command",
		slog.String("command", display),
		slog.String("step", string(pc.Step)),
		slog.String("dir", sandbox),
		slog.Duration("timeout", e.cfg.Timeout),
	)

	execution := CommandExecution{
		Command:  pc.Command,
		Args:     pc.Args,
		Step:     pc.Step,
		HelpMode: pc.HelpMode,
		Cwd:      sandbox,
	}

	stdout := newTailWriter(e.cfg.MaxOutputChars)
	stderr := newTailWriter(e.cfg.MaxOutputChars)

	cmd := exec.Command(pc.Command, pc.Args...)
	cmd.Dir = sandbox
	cmd.Env = buildEnv(sandbox)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Own process group so termination reaches every child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		// Spawn failure is expected, recoverable-by-reporting information.
		_, _ = stderr.Write([]byte("spawn failure: " + err.Error()))
		code := spawnFailureExitCode
		execution.ExitCode = &code
		e.finalize(&execution, sandbox, start, stdout, stderr)
		e.emitEnd(idx, &execution)
		return execution
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	timer := time.NewTimer(e.cfg.Timeout)
	defer timer.Stop()
	ticker := time.NewTicker(e.cfg.ProgressInterval)
	defer ticker.Stop()

	var waitErr error
	timedOut := false
wait:
	for {
		select {
		case waitErr = <-waitCh:
			break wait
		case <-ticker.C:
			e.emit(Event{
				Type:    EventProgress,
				Index:   idx,
				Command: display,
				Step:    pc.Step,
				Elapsed: time.Since(start),
			})
		case <-timer.C:
			timedOut = true
			waitErr = e.terminate(cmd, waitCh)
			break wait
		case <-ctx.Done():
			timedOut = true
			waitErr = e.terminate(cmd, waitCh)
			break wait
		}
	}

	execution.DurationMs = time.Since(start).Milliseconds()
	execution.TimedOut = timedOut

	if !timedOut {
		code := 0
		if waitErr != nil {
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				code = exitErr.ExitCode()
			} else {
				code = spawnFailureExitCode
				_, _ = stderr.Write([]byte("\nwait failure: " + waitErr.Error()))
			}
		}
		execution.ExitCode = &code
	}

	e.finalize(&execution, sandbox, start, stdout, stderr)
	e.emitEnd(idx, &execution)
	return execution
}

// terminate escalates against the whole process group: SIGTERM immediately,
// then SIGKILL after the grace window. Well-behaved processes get a chance
// to flush output; the sandbox is never blocked indefinitely.
func (e *Executor) terminate(cmd *exec.Cmd, waitCh <-chan error) error {
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case err := <-waitCh:
		return err
	case <-time.After(e.cfg.GraceKillDelay):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		return <-waitCh
	}
}

// finalize fills snippets, classification, fixes, and the verification
// judgment on a completed execution record.
func (e *Executor) finalize(execution *CommandExecution, sandbox string, startedAt time.Time, stdout, stderr *tailWriter) {
	if execution.DurationMs == 0 {
		execution.DurationMs = time.Since(startedAt).Milliseconds()
	}
	execution.StdoutSnippet = stdout.String()
	execution.StderrSnippet = stderr.String()

	success := execution.Succeeded()
	var class FailureClass
	if success {
		execution.Classification = ClassificationSuccess
	} else {
		class = Classify(execution.StderrSnippet, execution.StdoutSnippet)
		execution.Classification = string(class)
		execution.ProbableFixes = ProbableFixes(class)
	}

	status, evidence := Verify(VerifyInput{
		Step:           execution.Step,
		HelpMode:       execution.HelpMode,
		Success:        success,
		TimedOut:       execution.TimedOut,
		ExitCode:       execution.ExitCode,
		Stdout:         execution.StdoutSnippet,
		Stderr:         execution.StderrSnippet,
		SandboxDir:     sandbox,
		StartedAt:      startedAt,
		Classification: class,
	})
	execution.VerificationStatus = status
	execution.VerificationEvidence = evidence

	e.logger.Info("command finished",
		slog.String("command", execution.Display()),
		slog.Bool("timed_out", execution.TimedOut),
		slog.String("classification", execution.Classification),
		slog.String("verification", string(status)),
		slog.Int64("duration_ms", execution.DurationMs),
	)
}

func (e *Executor) emitEnd(idx int, execution *CommandExecution) {
	e.emit(Event{
		Type:     EventEnd,
		Index:    idx,
		Command:  execution.Display(),
		Step:     execution.Step,
		Elapsed:  time.Duration(execution.DurationMs) * time.Millisecond,
		ExitCode: execution.ExitCode,
		TimedOut: execution.TimedOut,
		Status:   execution.VerificationStatus,
	})
}

// synthesizeSummary produces the human summary line for a finished attempt.
func synthesizeSummary(execs []CommandExecution, usedFallback bool) string {
	if len(execs) == 0 {
		return SummaryNoCommands
	}
	last := execs[len(execs)-1]
	if !last.Succeeded() {
		return fmt.Sprintf("failed at %q (%s)", last.Display(), last.Classification)
	}
	if usedFallback {
		return SummaryRecovered
	}
	for i := len(execs) - 1; i >= 0; i-- {
		if execs[i].Step != StepStart {
			continue
		}
		if execs[i].HelpMode {
			return "all commands completed; start command only probed help text"
		}
		if execs[i].VerificationStatus == VerificationVerified {
			return "all commands completed; startup verification signal detected"
		}
		return "all commands completed; startup signal not strongly verified"
	}
	return "all executed commands completed"
}

// buildEnv constructs the sandboxed command environment. The host PATH is
// kept, since package managers and language runtimes live in user-local
// install locations, but nothing else from the parent environment leaks in.
func buildEnv(sandboxDir string) []string {
	return []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + sandboxDir,
		"TMPDIR=" + sandboxDir,
		"LANG=en_US.UTF-8",
		"TERM=dumb",
		"CI=true",
		"NO_COLOR=1",
	}
}
