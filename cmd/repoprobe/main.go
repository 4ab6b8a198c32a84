// Repoprobe plans and executes safe try-runs against untrusted repositories.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "repoprobe",
	Short: "Safe try-run analysis for arbitrary source repositories",
	Long: `Repoprobe inspects a source repository, plans which install/build/test/start
commands could safely be run against it, executes the policy-authorized subset
inside an ephemeral sandbox under timeout, and reports a verified/partial/failed
judgment with human-auditable evidence for every command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(analyzeCmd, planCmd, historyCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
