// Package security validates file paths supplied by API clients before the
// server writes to them.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidateExportPath checks a destination path for report export. Exports may
// only land in the temp directory or the server's working directory; anything
// else is rejected as a traversal attempt.
func ValidateExportPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	for _, dir := range []string{os.TempDir(), cwd} {
		if err := validateWithinDirectory(path, dir); err == nil {
			return nil
		}
	}
	return fmt.Errorf("export path %q must be within the temp or working directory", path)
}

// validateWithinDirectory ensures path resolves to a location inside dir,
// including through symlinks. The target file usually does not exist yet, so
// symlinks are resolved on the nearest existing ancestor instead.
func validateWithinDirectory(path, dir string) error {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory: %w", err)
	}
	canonicalDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory symlinks: %w", err)
	}

	canonical := resolveThroughAncestors(absPath)

	rel, err := filepath.Rel(canonicalDir, canonical)
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path %q escapes %s", path, dir)
	}
	return nil
}

// resolveThroughAncestors canonicalizes absPath by resolving symlinks on the
// deepest ancestor that exists, then rejoining the remaining components. This
// catches tricks like /tmp/evil-link/report.json where evil-link points at
// a directory outside the allowed roots.
func resolveThroughAncestors(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}

	probe := absPath
	for {
		parent := filepath.Dir(probe)
		if parent == probe {
			return absPath
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, relErr := filepath.Rel(parent, absPath)
			if relErr != nil {
				return absPath
			}
			return filepath.Join(resolved, rel)
		}
		probe = parent
	}
}

// SanitizeFilename makes a safe filename component from an arbitrary string,
// for embedding client-supplied identifiers into default export names. Runs
// of disallowed characters collapse to a single underscore and the result is
// capped at 128 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128

	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
