package files

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// scratchDirName is the extraction workspace created under the processed
// data directory. It is owned exclusively by one pipeline run.
const scratchDirName = "_temp_extraction"

// Workspace owns the ephemeral extraction directory used while reading
// archive members. Reset gives each run a clean state; Purge removes the
// directory entirely at the end of a successful run.
type Workspace struct {
	dir    string
	logger *slog.Logger
}

// NewWorkspace creates a workspace rooted under baseDir.
func NewWorkspace(baseDir string, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workspace{
		dir:    filepath.Join(baseDir, scratchDirName),
		logger: logger,
	}
}

// Dir returns the workspace directory path.
func (w *Workspace) Dir() string {
	return w.dir
}

// Reset removes any residue from previous runs and recreates the workspace.
func (w *Workspace) Reset() error {
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("failed to clear workspace %s: %w", w.dir, err)
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace %s: %w", w.dir, err)
	}

	w.logger.Debug("Workspace reset", slog.String("dir", w.dir))
	return nil
}

// Purge removes the workspace directory and everything under it.
func (w *Workspace) Purge() error {
	w.logger.Debug("Purging workspace", slog.String("dir", w.dir))
	return os.RemoveAll(w.dir)
}

// MemberPath resolves the extraction target for an archive member name,
// creating parent directories as needed. Member names that would escape the
// workspace are rejected.
func (w *Workspace) MemberPath(name string) (string, error) {
	target := filepath.Join(w.dir, filepath.FromSlash(name))

	// Guard against zip-slip member names like "../../etc/passwd".
	if target != w.dir && !strings.HasPrefix(target, w.dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive member %q escapes the extraction workspace", name)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create member directory: %w", err)
	}
	return target, nil
}
