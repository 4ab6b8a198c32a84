package tryrun

import (
	"regexp"
	"strings"
)

// failureRule maps output text patterns to one failure class. Rules are
// evaluated in fixed priority order; compound failure text can match several
// classes, and the first match is taken as the most actionable.
type failureRule struct {
	class FailureClass
	match func(text string) bool
}

var testFailCount = regexp.MustCompile(`\b\d+\s+fail(?:ed|ing|ures?)\b`)

// classifierRules in priority order: missing-env, missing-deps,
// port-conflict, test-fail, permission. Anything else is unknown.
//
// Known limitation: a failure whose log text incidentally matches an earlier
// class's keywords is classified as that class; the order is part of the
// output contract and is not reordered per input.
var classifierRules = []failureRule{
	{FailureMissingEnv, func(t string) bool {
		if strings.Contains(t, "process.env") && strings.Contains(t, "must be set") {
			return true
		}
		return anyOf(t,
			"missing environment variable",
			"required environment variable",
			"missing required env",
			"environment variable is not set",
		)
	}},
	{FailureMissingDeps, func(t string) bool {
		return anyOf(t,
			"cannot find module",
			"module not found",
			"modulenotfounderror",
			"no module named",
			"command not found",
			"could not resolve dependency",
			"eresolve",
			"unable to resolve dependency tree",
			"missing dependency",
		)
	}},
	{FailurePortConflict, func(t string) bool {
		return anyOf(t,
			"eaddrinuse",
			"address already in use",
			"port is already in use",
			"bind: address",
		)
	}},
	{FailureTestFail, func(t string) bool {
		return testFailCount.MatchString(t) || anyOf(t,
			"tests failed",
			"test failed",
			"test suite failed",
			"assertionerror",
			"assertion failed",
		)
	}},
	{FailurePermission, func(t string) bool {
		return anyOf(t,
			"eacces",
			"eperm",
			"permission denied",
			"operation not permitted",
		)
	}},
}

// Classify maps failure output to the failure taxonomy. Pure function:
// case-insensitive matching over the concatenated stderr+stdout text.
func Classify(stderr, stdout string) FailureClass {
	text := strings.ToLower(stderr + "\n" + stdout)
	for _, rule := range classifierRules {
		if rule.match(text) {
			return rule.class
		}
	}
	return FailureUnknown
}

// probableFixes is the static remediation lookup per failure class.
var probableFixes = map[FailureClass][]string{
	FailureMissingEnv: {
		"Set the required environment variables; check the project README or a .env.example file.",
		"Copy .env.example to .env and fill in the values before rerunning.",
	},
	FailureMissingDeps: {
		"Run the package manager's install step before executing scripts.",
		"Verify the dependency is declared in the manifest and the lockfile is current.",
	},
	FailurePortConflict: {
		"Stop the process occupying the port, or configure an alternate port via environment.",
	},
	FailureTestFail: {
		"Inspect the failing test output; the failure is in the project's own suite, not the run harness.",
	},
	FailurePermission: {
		"Check file permissions inside the repository; scripts must not write outside the working tree.",
	},
	FailureUnknown: {
		"Inspect the captured output tail; the failure matched no known pattern.",
	},
}

// ProbableFixes returns the ordered remediation hints for a failure class.
func ProbableFixes(class FailureClass) []string {
	if fixes, ok := probableFixes[class]; ok {
		return append([]string(nil), fixes...)
	}
	return append([]string(nil), probableFixes[FailureUnknown]...)
}

func anyOf(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
