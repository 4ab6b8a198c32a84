package tryrun

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// skipDirs are never copied into the sandbox: version-control metadata and
// known heavy or generated trees. Installs and builds recreate what they
// need inside the sandbox.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
	"out":          true,
	".next":        true,
	"target":       true,
	"coverage":     true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"vendor":       true,
	".cache":       true,
	".turbo":       true,
}

// createSandbox deep-copies the repository into a fresh temporary directory.
// Execution never touches the caller's working tree. A copy failure is fatal
// for the attempt: a sandbox that cannot be created cannot safely run
// anything.
func createSandbox(sourceRepo string) (string, error) {
	dir, err := os.MkdirTemp("", "repoprobe-tryrun-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return "", fmt.Errorf("creating sandbox dir: %w", err)
	}
	if err := copyTree(sourceRepo, dir); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("copying repository into sandbox: %w", err)
	}
	return dir, nil
}

// removeSandbox is the unconditional cleanup step. Its own failure is
// swallowed so it never masks the primary result.
func removeSandbox(dir string, logger *slog.Logger) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("failed to remove sandbox dir",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
	}
}

// copyTree copies regular files and directories from src into dst, skipping
// the skipDirs set. Symlinks are not followed and not recreated; a link
// could point outside the repository.
func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		srcPath := filepath.Join(src, name)
		dstPath := filepath.Join(dst, name)

		if entry.IsDir() {
			if skipDirs[name] {
				continue
			}
			if err := os.Mkdir(dstPath, 0750); err != nil {
				return fmt.Errorf("creating %s: %w", dstPath, err)
			}
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if err := copyFile(srcPath, dstPath, entry); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, entry os.DirEntry) error {
	info, err := entry.Info()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}

// tailWriter keeps only the last max bytes written. Diagnostic signal
// concentrates at the end of long logs, and unbounded buffering is a
// memory-exhaustion risk against untrusted output volume.
type tailWriter struct {
	max int
	buf []byte
}

func newTailWriter(max int) *tailWriter {
	return &tailWriter{max: max}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	if w.max <= 0 {
		return len(p), nil
	}
	if len(p) >= w.max {
		w.buf = append(w.buf[:0], p[len(p)-w.max:]...)
		return len(p), nil
	}
	w.buf = append(w.buf, p...)
	if over := len(w.buf) - w.max; over > 0 {
		copy(w.buf, w.buf[over:])
		w.buf = w.buf[:w.max]
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	return string(w.buf)
}
