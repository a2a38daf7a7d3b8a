// Package archive resolves uploaded source bundles: zips are extracted next
// to the archive, and the directory names every tree walk skips live here.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var excludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	".next":        true,
}

// IsExcludedDir reports whether a directory name holds VCS metadata,
// dependency caches, build caches or virtual environments.
func IsExcludedDir(name string) bool {
	return excludedDirs[name]
}

// IsZip reports whether path names a zip archive.
func IsZip(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zip")
}

// ExtractedDir returns the sibling directory a zip archive extracts into:
// uploads/7/source.zip -> uploads/7/source_extracted.
// The result is cleaned so entry containment checks compare like with like.
func ExtractedDir(zipPath string) string {
	zipPath = filepath.Clean(zipPath)
	return strings.TrimSuffix(zipPath, filepath.Ext(zipPath)) + "_extracted"
}

// Extract unpacks zipPath into ExtractedDir(zipPath) and returns that
// directory. Existing files with the same name are overwritten; files from a
// previous extraction that are not in the archive are left alone, so
// repeated calls are safe.
func Extract(zipPath string) (string, error) {
	dest := ExtractedDir(zipPath)

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("open zip %s: %w", zipPath, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}

	for _, f := range r.File {
		if err := extractFile(f, dest); err != nil {
			return "", err
		}
	}
	return dest, nil
}

// Resolve returns a directory to read sources from: zips are extracted,
// directories are returned as-is.
func Resolve(sourcePath string) (string, error) {
	if IsZip(sourcePath) {
		return Extract(sourcePath)
	}
	return sourcePath, nil
}

func extractFile(f *zip.File, dest string) error {
	target := filepath.Join(dest, filepath.FromSlash(f.Name))
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return fmt.Errorf("zip entry %q escapes destination", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", f.Name, err)
	}
	defer src.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return out.Close()
}
