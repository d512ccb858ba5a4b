// Package security guards the paths the planner reads and writes.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// JoinWithin joins elem onto root and rejects results that escape root.
// The check is lexical so it works for in-memory filesystems too; callers
// writing to disk should also run ValidatePathWithinDirectory.
func JoinWithin(root string, elem ...string) (string, error) {
	cleanRoot := filepath.Clean(root)
	joined := filepath.Join(append([]string{cleanRoot}, elem...)...)
	rel, err := filepath.Rel(cleanRoot, joined)
	if err != nil {
		return "", fmt.Errorf("path is outside %s: %w", root, err)
	}
	if escapes(rel) {
		return "", fmt.Errorf("path traversal detected: %s escapes %s", joined, root)
	}
	return joined, nil
}

// ValidatePathWithinDirectory checks that filePath resolves inside safeDir,
// following symlinks on both sides so a link inside safeDir cannot point out of it.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath(absPath))
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if escapes(relPath) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// ValidateOutputPath accepts report and archive destinations inside the
// working directory or the system temp directory.
func ValidateOutputPath(filePath string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	for _, dir := range []string{cwd, os.TempDir()} {
		if err := ValidatePathWithinDirectory(filePath, dir); err == nil {
			return nil
		}
	}
	return fmt.Errorf("output path %s must be within %s or %s", filePath, cwd, os.TempDir())
}

// canonicalPath resolves symlinks in absPath. For paths that do not exist
// yet it resolves the deepest existing parent, so /safe/link/new.txt with
// link -> /etc is reported as /etc/new.txt.
func canonicalPath(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	for check := absPath; ; {
		parent := filepath.Dir(check)
		if parent == check {
			return absPath
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, _ := filepath.Rel(parent, absPath)
			return filepath.Join(resolved, rel)
		}
		check = parent
	}
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel)
}
