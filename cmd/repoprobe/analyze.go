package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/repoprobe/internal/config"
	"github.com/jkaninda/repoprobe/internal/observability"
	"github.com/jkaninda/repoprobe/internal/policy"
	"github.com/jkaninda/repoprobe/internal/report"
	"github.com/jkaninda/repoprobe/internal/scan"
	"github.com/jkaninda/repoprobe/internal/storage"
	"github.com/jkaninda/repoprobe/internal/tryrun"
)

var (
	analyzeConfigPath  string
	analyzeTimeout     int
	analyzeMaxOutput   int
	analyzeAllowPython bool
	analyzePolicyPath  string
	analyzeReportDir   string
	analyzeNoHistory   bool
	analyzeVerbose     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <repository-path>",
	Short: "Plan and execute a safe try-run against a repository",
	Long: `Analyze discovers the repository's key descriptor files, builds a
policy-gated run plan, executes the authorized commands inside an ephemeral
sandbox, and writes markdown and JSON report artifacts.

Examples:
  repoprobe analyze ./some-repo
  repoprobe analyze ./some-repo --timeout 60 --policy ./tryrun-policy.json
  repoprobe analyze ./some-repo --allow-python`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeConfigPath, "config", "", "config file path (or REPOPROBE_CONFIG env)")
	analyzeCmd.Flags().IntVar(&analyzeTimeout, "timeout", 0, "per-command timeout in seconds")
	analyzeCmd.Flags().IntVar(&analyzeMaxOutput, "max-output", 0, "max captured output per stream in characters")
	analyzeCmd.Flags().BoolVar(&analyzeAllowPython, "allow-python", false, "authorize python install/run commands")
	analyzeCmd.Flags().StringVar(&analyzePolicyPath, "policy", "", "explicit try-run policy file")
	analyzeCmd.Flags().StringVar(&analyzeReportDir, "report-dir", "", "directory for report artifacts")
	analyzeCmd.Flags().BoolVar(&analyzeNoHistory, "no-history", false, "skip persisting the attempt to history")
	analyzeCmd.Flags().BoolVar(&analyzeVerbose, "verbose", false, "verbose logging")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	repoPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving repository path: %w", err)
	}

	cfg, err := loadAnalyzeConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(analyzeVerbose)

	pol, err := policy.Load(repoPath, cfg.PolicyPath)
	if err != nil {
		// Misconfigured trust boundary: abort the whole analysis.
		return err
	}
	logger.Info("policy loaded", slog.String("source", pol.Source))

	keyFiles, err := scan.Discover(repoPath)
	if err != nil {
		return err
	}

	planner := tryrun.NewPlanner(pol, logger)
	plan := planner.BuildRunPlan(repoPath, keyFiles, cfg.TimeoutSeconds, cfg.AllowPython)

	metrics := observability.NewMetricsCollector()
	executor := tryrun.NewExecutor(tryrun.ExecutorConfig{
		Timeout:        time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxOutputChars: cfg.MaxOutputChars,
	}, logger,
		tryrun.WithEventSink(printEvent),
		tryrun.WithMetrics(metrics),
	)

	result, err := executor.ExecuteRunPlan(cmd.Context(), repoPath, plan)
	if err != nil {
		return err
	}

	fmt.Println(report.Markdown(result))

	reportDir := cfg.ReportDir
	if reportDir == "" {
		reportDir = filepath.Join(repoPath, ".repoprobe-report")
	}
	mdPath, jsonPath, err := report.WriteArtifacts(reportDir, result)
	if err != nil {
		logger.Warn("failed to write report artifacts", slog.String("error", err.Error()))
	} else {
		logger.Info("report artifacts written",
			slog.String("markdown", mdPath),
			slog.String("json", jsonPath),
		)
	}

	if !analyzeNoHistory {
		saveHistory(cmd.Context(), cfg, logger, repoPath, result)
	}
	return nil
}

// loadAnalyzeConfig merges the config file with command-line overrides.
// Flags win over file and environment values.
func loadAnalyzeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(goutils.Env("REPOPROBE_CONFIG", analyzeConfigPath))
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("timeout") {
		cfg.TimeoutSeconds = analyzeTimeout
	}
	if cmd.Flags().Changed("max-output") {
		cfg.MaxOutputChars = analyzeMaxOutput
	}
	if cmd.Flags().Changed("allow-python") {
		cfg.AllowPython = analyzeAllowPython
	}
	if analyzePolicyPath != "" {
		cfg.PolicyPath = analyzePolicyPath
	}
	if analyzeReportDir != "" {
		cfg.ReportDir = analyzeReportDir
	}
	return cfg, nil
}

// saveHistory persists the attempt; failures are reported, never fatal.
func saveHistory(ctx context.Context, cfg *config.Config, logger *slog.Logger, repoPath string, result *tryrun.RunAttemptResult) {
	store, err := storage.Open(cfg.HistoryDBPath(), logger)
	if err != nil {
		logger.Warn("history unavailable", slog.String("error", err.Error()))
		return
	}
	defer store.Close()

	id, err := store.SaveAttempt(ctx, repoPath, result)
	if err != nil {
		logger.Warn("failed to save history", slog.String("error", err.Error()))
		return
	}
	logger.Info("attempt saved to history", slog.String("id", id.String()))
}

// printEvent renders live executor events as plain log lines.
func printEvent(ev tryrun.Event) {
	switch ev.Type {
	case tryrun.EventStart:
		fmt.Fprintf(os.Stderr, "▶ [%s] %s\n", ev.Step, ev.Command)
	case tryrun.EventProgress:
		fmt.Fprintf(os.Stderr, "… [%s] %s (running %s)\n", ev.Step, ev.Command, ev.Elapsed.Round(time.Second))
	case tryrun.EventEnd:
		outcome := string(ev.Status)
		if ev.TimedOut {
			outcome = "timed out"
		}
		fmt.Fprintf(os.Stderr, "■ [%s] %s → %s (%s)\n", ev.Step, ev.Command, outcome, ev.Elapsed.Round(time.Millisecond))
	case tryrun.EventFallback:
		fmt.Fprintf(os.Stderr, "↷ falling back to %s\n", ev.Command)
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
