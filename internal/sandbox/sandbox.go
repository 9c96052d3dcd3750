package sandbox

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// UnsafePathError reports a relative path that would escape the output root.
type UnsafePathError struct {
	Path string
}

func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("output file path cannot be absolute, contain '..', or be empty: %s", e.Path)
}

// ValidateRelative checks that p names something strictly inside a root:
// it must not be absolute, must not contain a ".." segment and must have
// at least one component.
func ValidateRelative(p string) error {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") || filepath.VolumeName(p) != "" {
		return &UnsafePathError{Path: p}
	}

	parts := 0
	for _, seg := range strings.FieldsFunc(p, isSeparator) {
		switch seg {
		case ".":
			continue
		case "..":
			return &UnsafePathError{Path: p}
		}
		parts++
	}
	if parts == 0 {
		return &UnsafePathError{Path: p}
	}
	return nil
}

func isSeparator(r rune) bool {
	return r == '/' || r == filepath.Separator
}

// Sandbox confines materialized files to a single output root and
// enforces a file size limit.
type Sandbox struct {
	root        string
	maxFileSize int64 // bytes, 0 means unlimited
}

// Config holds the sandbox configuration.
type Config struct {
	Root        string
	MaxFileSize string // e.g. "10MB", "1GB", "500KB"
}

// New creates a Sandbox from the given configuration.
// The root is resolved to an absolute path.
func New(cfg Config) (*Sandbox, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("sandbox: root is required")
	}
	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve root %q: %w", cfg.Root, err)
	}
	s := &Sandbox{root: abs}

	if cfg.MaxFileSize != "" {
		size, err := parseFileSize(cfg.MaxFileSize)
		if err != nil {
			return nil, fmt.Errorf("sandbox: parse max_file_size %q: %w", cfg.MaxFileSize, err)
		}
		s.maxFileSize = size
	}

	return s, nil
}

// Root returns the absolute output root.
func (s *Sandbox) Root() string {
	return s.root
}

// Resolve validates rel and returns its absolute location under the root.
func (s *Sandbox) Resolve(rel string) (string, error) {
	if err := ValidateRelative(rel); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(rel)), nil
}

// CheckFileSize validates that the given size in bytes does not exceed
// the sandbox's maximum file size. Returns nil if the size is within limits
// or if no limit is configured.
func (s *Sandbox) CheckFileSize(size int64) error {
	if s.maxFileSize <= 0 {
		return nil
	}
	if size > s.maxFileSize {
		return fmt.Errorf("sandbox: file size %d bytes exceeds maximum %d bytes (%s)",
			size, s.maxFileSize, formatFileSize(s.maxFileSize))
	}
	return nil
}

// MaxFileSize returns the configured maximum file size in bytes.
// Returns 0 if no limit is configured.
func (s *Sandbox) MaxFileSize() int64 {
	return s.maxFileSize
}

// parseFileSize parses a human-readable file size string into bytes.
// Supported suffixes: B, KB, MB, GB, TB (case-insensitive).
func parseFileSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	suffixes := []struct {
		suffix     string
		multiplier int64
	}{
		{"TB", 1024 * 1024 * 1024 * 1024},
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, sf := range suffixes {
		if strings.HasSuffix(s, sf.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, sf.suffix))
			n, err := strconv.ParseFloat(numStr, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q", numStr)
			}
			return int64(n * float64(sf.multiplier)), nil
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid file size %q", s)
	}
	return n, nil
}

func formatFileSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1fGB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1fMB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1fKB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
