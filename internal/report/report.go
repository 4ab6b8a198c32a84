// Package report renders a finished try-run attempt as markdown and JSON
// artifacts. Thin formatting only; all judgment lives in the tryrun engine.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jkaninda/repoprobe/internal/tryrun"
)

// Markdown renders the attempt as a markdown section with one table row per
// execution.
func Markdown(result *tryrun.RunAttemptResult) string {
	var b strings.Builder

	b.WriteString("## Try-Run Report\n\n")
	fmt.Fprintf(&b, "- Strategy: `%s`\n", result.Planner.Strategy)
	fmt.Fprintf(&b, "- Reason: %s\n", result.Planner.Reason)
	fmt.Fprintf(&b, "- Attempted: %t\n", result.Attempted)
	fmt.Fprintf(&b, "- Summary: %s\n\n", result.Summary)

	if len(result.Planner.ProposedCommands) > 0 {
		b.WriteString("### Proposed Commands\n\n")
		for _, c := range result.Planner.ProposedCommands {
			fmt.Fprintf(&b, "- `%s`\n", c)
		}
		b.WriteString("\n")
	}

	if len(result.Executions) == 0 {
		return b.String()
	}

	b.WriteString("### Executions\n\n")
	b.WriteString("| Step | Command | Exit | Duration | Status | Evidence |\n")
	b.WriteString("|------|---------|------|----------|--------|----------|\n")
	for _, e := range result.Executions {
		exit := "-"
		if e.ExitCode != nil {
			exit = fmt.Sprintf("%d", *e.ExitCode)
		}
		if e.TimedOut {
			exit = "timeout"
		}
		fmt.Fprintf(&b, "| %s | `%s` | %s | %s | %s | %s |\n",
			e.Step,
			cell(e.Display()),
			exit,
			(time.Duration(e.DurationMs) * time.Millisecond).String(),
			e.VerificationStatus,
			cell(e.VerificationEvidence),
		)
	}

	for _, e := range result.Executions {
		if len(e.ProbableFixes) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n**Probable fixes for `%s` (%s):**\n\n", cell(e.Display()), e.Classification)
		for _, fix := range e.ProbableFixes {
			fmt.Fprintf(&b, "- %s\n", fix)
		}
	}

	return b.String()
}

// WriteArtifacts writes the markdown and JSON artifacts into dir and returns
// their paths.
func WriteArtifacts(dir string, result *tryrun.RunAttemptResult) (mdPath, jsonPath string, err error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", "", fmt.Errorf("creating report dir: %w", err)
	}

	mdPath = filepath.Join(dir, "tryrun-report.md")
	if err := os.WriteFile(mdPath, []byte(Markdown(result)), 0640); err != nil {
		return "", "", fmt.Errorf("writing markdown artifact: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encoding result: %w", err)
	}
	jsonPath = filepath.Join(dir, "tryrun-report.json")
	if err := os.WriteFile(jsonPath, data, 0640); err != nil {
		return "", "", fmt.Errorf("writing json artifact: %w", err)
	}
	return mdPath, jsonPath, nil
}

// cell escapes characters that would break a markdown table row.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
