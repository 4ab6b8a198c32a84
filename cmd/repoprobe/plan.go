package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jkaninda/repoprobe/internal/config"
	"github.com/jkaninda/repoprobe/internal/policy"
	"github.com/jkaninda/repoprobe/internal/scan"
	"github.com/jkaninda/repoprobe/internal/tryrun"
)

var (
	planPolicyPath  string
	planAllowPython bool
	planVerbose     bool
)

var planCmd = &cobra.Command{
	Use:   "plan <repository-path>",
	Short: "Show the run plan without executing anything",
	Long: `Plan performs detection and policy gating only: it prints which commands
would be proposed and which are authorized to execute, with the justification
for each decision. Nothing is run and no sandbox is created.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planPolicyPath, "policy", "", "explicit try-run policy file")
	planCmd.Flags().BoolVar(&planAllowPython, "allow-python", false, "authorize python install/run commands")
	planCmd.Flags().BoolVar(&planVerbose, "verbose", false, "verbose logging")
}

func runPlan(_ *cobra.Command, args []string) error {
	repoPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving repository path: %w", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	logger := newLogger(planVerbose)

	polPath := cfg.PolicyPath
	if planPolicyPath != "" {
		polPath = planPolicyPath
	}
	pol, err := policy.Load(repoPath, polPath)
	if err != nil {
		return err
	}

	keyFiles, err := scan.Discover(repoPath)
	if err != nil {
		return err
	}

	planner := tryrun.NewPlanner(pol, logger)
	plan := planner.BuildRunPlan(repoPath, keyFiles, cfg.TimeoutSeconds, planAllowPython || cfg.AllowPython)

	fmt.Printf("Strategy: %s\n", plan.Strategy)
	fmt.Printf("Reason:   %s\n", plan.Reason)
	fmt.Printf("Policy:   %s\n\n", pol.Source)
	if len(plan.ExecutableCommands) == 0 {
		fmt.Println("No commands proposed.")
		return nil
	}
	for _, c := range plan.ExecutableCommands {
		gate := "SKIP"
		if c.Run {
			gate = "RUN "
		}
		fmt.Printf("  [%s] %-7s %s\n          %s\n", gate, c.Step, c.Display(), c.Why)
	}
	return nil
}
