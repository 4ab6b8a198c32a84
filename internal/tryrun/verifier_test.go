package tryrun

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestVerify_EvidenceNeverEmpty(t *testing.T) {
	steps := []Step{StepInstall, StepTest, StepBuild, StepStart, StepLint, StepRun}
	for _, step := range steps {
		for _, success := range []bool{true, false} {
			for _, timedOut := range []bool{true, false} {
				in := VerifyInput{
					Step:     step,
					Success:  success && !timedOut,
					TimedOut: timedOut,
					ExitCode: intPtr(1),
				}
				_, evidence := Verify(in)
				if evidence == "" {
					t.Errorf("empty evidence for step=%s success=%t timedOut=%t", step, success, timedOut)
				}
			}
		}
	}
}

func TestVerify_Timeout(t *testing.T) {
	status, evidence := Verify(VerifyInput{Step: StepTest, TimedOut: true})
	if status != VerificationFailed {
		t.Errorf("status = %s, want failed", status)
	}
	if !strings.Contains(evidence, "timeout") {
		t.Errorf("evidence = %q, want timeout mention", evidence)
	}
}

func TestVerify_FailureNamesExitCodeAndClass(t *testing.T) {
	status, evidence := Verify(VerifyInput{
		Step:           StepInstall,
		Success:        false,
		ExitCode:       intPtr(127),
		Classification: FailureMissingDeps,
	})
	if status != VerificationFailed {
		t.Errorf("status = %s, want failed", status)
	}
	if !strings.Contains(evidence, "127") || !strings.Contains(evidence, string(FailureMissingDeps)) {
		t.Errorf("evidence = %q, want exit code and classification", evidence)
	}
}

func TestVerify_HelpModeStartAlwaysPartial(t *testing.T) {
	status, evidence := Verify(VerifyInput{
		Step:     StepStart,
		HelpMode: true,
		Success:  true,
		Stdout:   "Server listening on port 3000", // ignored in help mode
	})
	if status != VerificationPartial {
		t.Errorf("status = %s, want partial", status)
	}
	if !strings.Contains(evidence, "not verified") {
		t.Errorf("evidence = %q, want startup-not-verified note", evidence)
	}
}

func TestVerify_Install(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		want   VerificationStatus
	}{
		{"added packages", "added 120 packages in 3s", VerificationVerified},
		{"up to date", "up to date, audited 98 packages", VerificationVerified},
		{"no phrasing", "done.", VerificationPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := Verify(VerifyInput{Step: StepInstall, Success: true, Stdout: tt.stdout})
			if status != tt.want {
				t.Errorf("status = %s, want %s", status, tt.want)
			}
		})
	}
}

func TestVerify_Test(t *testing.T) {
	status, _ := Verify(VerifyInput{Step: StepTest, Success: true, Stdout: "12 passed, 0 failed"})
	if status != VerificationVerified {
		t.Errorf("status = %s, want verified", status)
	}
	status, _ = Verify(VerifyInput{Step: StepTest, Success: true, Stdout: "done"})
	if status != VerificationPartial {
		t.Errorf("status = %s, want partial without pass markers", status)
	}
}

func TestVerify_BuildDirSideEffect(t *testing.T) {
	sandbox := t.TempDir()
	started := time.Now()
	if err := os.Mkdir(filepath.Join(sandbox, "dist"), 0750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	status, evidence := Verify(VerifyInput{
		Step:       StepBuild,
		Success:    true,
		SandboxDir: sandbox,
		StartedAt:  started,
	})
	if status != VerificationVerified {
		t.Errorf("status = %s, want verified for fresh dist/", status)
	}
	if !strings.Contains(evidence, "dist") {
		t.Errorf("evidence = %q, want dist mention", evidence)
	}
}

func TestVerify_BuildStaleDirIsPartial(t *testing.T) {
	sandbox := t.TempDir()
	stale := filepath.Join(sandbox, "build")
	if err := os.Mkdir(stale, 0750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	status, _ := Verify(VerifyInput{
		Step:       StepBuild,
		Success:    true,
		SandboxDir: sandbox,
		StartedAt:  time.Now(),
	})
	if status != VerificationPartial {
		t.Errorf("status = %s, want partial for stale build dir", status)
	}
}

func TestVerify_BuildPhrasingFallback(t *testing.T) {
	status, _ := Verify(VerifyInput{
		Step:       StepBuild,
		Success:    true,
		SandboxDir: t.TempDir(),
		StartedAt:  time.Now(),
		Stdout:     "build complete in 2.3s",
	})
	if status != VerificationPartial {
		t.Errorf("status = %s, want partial on log phrasing alone", status)
	}
}

func TestVerify_StartPortExtraction(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		want   VerificationStatus
	}{
		{"listening on port", "Server listening on port 3000", VerificationVerified},
		{"address colon port", "ready - started server on 0.0.0.0:8080", VerificationVerified},
		{"localhost url", "Local: http://localhost:5173/", VerificationVerified},
		{"startup phrasing only", "server started successfully", VerificationPartial},
		{"no signal", "hello", VerificationPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, evidence := Verify(VerifyInput{Step: StepStart, Success: true, Stdout: tt.stdout})
			if status != tt.want {
				t.Errorf("status = %s (%s), want %s", status, evidence, tt.want)
			}
		})
	}
}

func TestVerify_Lint(t *testing.T) {
	status, _ := Verify(VerifyInput{Step: StepLint, Success: true, Stdout: "✔ 0 problems (0 errors, 0 warnings)"})
	if status != VerificationVerified {
		t.Errorf("status = %s, want verified", status)
	}
}

func TestVerify_UnhandledStepIsPartial(t *testing.T) {
	status, evidence := Verify(VerifyInput{Step: StepRun, Success: true})
	if status != VerificationPartial {
		t.Errorf("status = %s, want partial", status)
	}
	if !strings.Contains(evidence, "no dedicated verifier") {
		t.Errorf("evidence = %q, want generic note", evidence)
	}
}
