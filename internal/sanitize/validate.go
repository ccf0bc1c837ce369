// Package sanitize provides shared identifier and path validation for
// user-supplied feature names and document locations.
package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Validation errors for security checks.
var (
	// ErrPathTraversal indicates a path contains directory traversal sequences.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrInvalidFeatureName indicates the feature name format is invalid.
	ErrInvalidFeatureName = errors.New("invalid feature name")
)

// featureNamePattern matches valid feature names: lowercase
// alphanumeric with hyphens, 1-64 chars. Feature names become
// directory names and NATS subject tokens, so the character set stays
// narrow.
var featureNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}[a-z0-9]?$`)

// ValidateFeatureName checks that a feature name is safe to use as a
// directory name and event subject token.
func ValidateFeatureName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidFeatureName)
	}
	if strings.ContainsAny(name, "/\\.") {
		return fmt.Errorf("%w: contains path characters", ErrInvalidFeatureName)
	}
	if !featureNamePattern.MatchString(name) {
		return fmt.Errorf("%w: must be lowercase alphanumeric with hyphens (1-64 chars)", ErrInvalidFeatureName)
	}
	return nil
}

// ValidatePath checks a path for traversal and, when allowedRoot is
// non-empty, confines it to that directory. Returns the cleaned
// absolute path.
func ValidatePath(path, allowedRoot string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: contains '..'", ErrPathTraversal)
	}

	abs := filepath.Clean(path)
	if !filepath.IsAbs(abs) {
		var err error
		abs, err = filepath.Abs(abs)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
	}

	if allowedRoot != "" {
		absRoot, err := filepath.Abs(allowedRoot)
		if err != nil {
			return "", fmt.Errorf("failed to resolve allowed root: %w", err)
		}
		rel, err := filepath.Rel(absRoot, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: path escapes allowed root", ErrPathTraversal)
		}
	}
	return abs, nil
}
