package middleware

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

var (
	analyzerIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)
	tenantIDPattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

// ValidateAnalyzerID checks the analyzer name is safe to place in the analyze URL path.
func ValidateAnalyzerID(id string) error {
	if !analyzerIDPattern.MatchString(id) {
		return fmt.Errorf("invalid analyzer_id %q (letters, digits, '.', '_', '-', max 128 chars)", id)
	}
	return nil
}

// ValidateURL checks a remote document URL before it is handed to the analysis service.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL host cannot be empty")
	}
	if u.User != nil {
		return fmt.Errorf("credentials in URL are not allowed")
	}
	return nil
}

// ResolveLocalPath maps a client-supplied path to a file under root.
// Relative paths are joined to root; absolute paths must already be inside it.
// Symlinks are followed on both sides, so a link under root cannot point outside it.
func ResolveLocalPath(root, p string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("local file inputs are disabled")
	}
	if p == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsAny(p, "\x00\n\r") {
		return "", fmt.Errorf("invalid characters in path")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve input root: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolve input root: %w", err)
	}

	candidate := p
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(absRoot, candidate)
	}
	candidate, err = resolveExisting(filepath.Clean(candidate))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	rel, err := filepath.Rel(realRoot, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return candidate, nil
}

// resolveExisting follows symlinks in the longest existing prefix of p
// and appends the part that does not exist yet.
func resolveExisting(p string) (string, error) {
	var rest []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			parts := append([]string{resolved}, rest...)
			return filepath.Join(parts...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateTenantID validates tenant ID format
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}
	if !tenantIDPattern.MatchString(tenant) {
		return fmt.Errorf("invalid tenant ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateJobID validates job ID format (uuid)
func ValidateJobID(id string) error {
	pattern := `^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`
	if matched, _ := regexp.MatchString(pattern, id); !matched {
		return fmt.Errorf("invalid job ID format")
	}
	return nil
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
