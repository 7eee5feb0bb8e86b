package files

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Discover returns the paths of all regular files in the raw data
// directory, sorted by name for deterministic processing order. The crawler
// that populates the directory is an external collaborator; this is the
// pipeline's only view of its output.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	slog.Debug("Discovered input files",
		slog.String("dir", dir),
		slog.Int("count", len(paths)))

	return paths, nil
}

// IsRegistryFile reports whether the path looks like an operator registry
// (cadop) source file.
func IsRegistryFile(path string) bool {
	return strings.Contains(strings.ToLower(filepath.Base(path)), "cadop")
}

// IsAccountingArchive reports whether the path looks like a quarterly
// accounting filing archive.
func IsAccountingArchive(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".zip")
}

// IsTabularMember reports whether an archive member name has a tabular
// extension the pipeline can read.
func IsTabularMember(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".csv") ||
		strings.HasSuffix(lower, ".txt") ||
		strings.HasSuffix(lower, ".xlsx")
}
