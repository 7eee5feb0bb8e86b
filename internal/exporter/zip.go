package exporter

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
)

// ZipSingleFile packages filePath into a new zip archive at zipPath under
// the member name arcName, then deletes the uncompressed original. Export
// failures propagate to the caller: a partially written final artifact is
// worse than a loud failure.
func ZipSingleFile(zipPath, filePath, arcName string) error {
	src, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file for compression: %w", err)
	}
	defer src.Close()

	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", zipPath, err)
	}
	defer out.Close()

	archive := zip.NewWriter(out)
	member, err := archive.Create(arcName)
	if err != nil {
		return fmt.Errorf("failed to create archive member: %w", err)
	}
	if _, err := io.Copy(member, src); err != nil {
		return fmt.Errorf("failed to compress %s: %w", arcName, err)
	}
	if err := archive.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("failed to sync archive: %w", err)
	}

	src.Close()
	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to remove intermediate file: %w", err)
	}

	return nil
}
