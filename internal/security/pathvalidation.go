package security

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ValidatePathWithinDirectory checks if a file path is within a safe directory.
// It prevents path traversal attacks by ensuring the resolved path doesn't escape
// the specified safe directory.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	// Clean the path to resolve . and .. components
	cleanPath := filepath.Clean(filePath)

	// Get absolute paths for proper validation
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	// Resolve symlinks so a link inside the safe directory is judged by its
	// target; a path that does not exist yet resolves via its nearest existing ancestor.
	if resolved, err := filepath.EvalSymlinks(absSafeDir); err == nil {
		absSafeDir = resolved
	}
	existing, rest := absPath, ""
	for {
		if resolved, err := filepath.EvalSymlinks(existing); err == nil {
			absPath = filepath.Join(resolved, rest)
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest, existing = filepath.Join(filepath.Base(existing), rest), parent
	}

	// Check if path is within safe directory
	relPath, err := filepath.Rel(absSafeDir, absPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}

	// Reject paths that escape the safe directory
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}

	return nil
}

// ValidatePathWithinAllowedDirs checks if a file path is within any of the allowed directories.
// Returns nil if the path is valid, or an error describing why it was rejected.
func ValidatePathWithinAllowedDirs(filePath string, allowedDirs []string) error {
	if len(allowedDirs) == 0 {
		return fmt.Errorf("no allowed directories specified")
	}

	for _, dir := range allowedDirs {
		if err := ValidatePathWithinDirectory(filePath, dir); err == nil {
			return nil // Path is valid within this directory
		}
	}

	// Path is not within any allowed directory
	return fmt.Errorf("path must be within one of the allowed directories: %v", allowedDirs)
}

// ValidateExportPath validates a file path for export operations.
// It ensures the path is within either the temp directory or current working directory.
func ValidateExportPath(filePath string) error {
	tempDir := os.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	allowedDirs := []string{tempDir, cwd}
	return ValidatePathWithinAllowedDirs(filePath, allowedDirs)
}

// ValidateOutputPath validates a file path for a generated output file
// (e.g. a plotted track chart or replay export) using the same temp-dir-or-
// cwd rule as ValidateExportPath.
func ValidateOutputPath(filePath string) error {
	return ValidateExportPath(filePath)
}

var filenameDisallowed = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeFilename reduces an arbitrary string to a safe filename
// component: path separators and ".."/"." segments are dropped, runs of
// any other disallowed character collapse to a single underscore, and
// leading/trailing underscores and dots are trimmed. Falls back to
// "unknown" if nothing safe survives. Result is capped at 128 bytes.
func SanitizeFilename(name string) string {
	if name == "" {
		return "unknown"
	}

	var kept []string
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		kept = append(kept, seg)
	}
	joined := strings.Join(kept, "_")

	sanitized := filenameDisallowed.ReplaceAllString(joined, "_")
	sanitized = strings.Trim(sanitized, "_.")

	if sanitized == "" {
		return "unknown"
	}
	if len(sanitized) > 128 {
		sanitized = sanitized[:128]
	}
	return sanitized
}
