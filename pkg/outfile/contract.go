// Package outfile tracks output files that generation promised to
// produce and checks that materialization kept the promise.
package outfile

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cgast/tfanygen/internal/sandbox"
)

// UnsatisfiedError lists names that were declared but never produced.
type UnsatisfiedError struct {
	Missing []string
}

func (e *UnsatisfiedError) Error() string {
	return "the following files have been referenced via 'outfile' but not produced: " +
		strings.Join(e.Missing, ", ")
}

// Contract holds the declared and produced name sets for one
// generate-and-materialize cycle. Declarations are a minimum: producing
// files that were never declared is allowed.
type Contract struct {
	root     string
	expected map[string]struct{}
	produced map[string]struct{}
}

// New creates a contract for files materialized under root.
func New(root string) (*Contract, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("outfile: resolve root %q: %w", root, err)
	}
	return &Contract{
		root:     abs,
		expected: make(map[string]struct{}),
		produced: make(map[string]struct{}),
	}, nil
}

// Root returns the absolute output root.
func (c *Contract) Root() string {
	return c.root
}

// Declare reserves name and returns the absolute path the file will have.
// Names that would land outside the root are refused and not recorded.
func (c *Contract) Declare(name string) (string, error) {
	if err := sandbox.ValidateRelative(name); err != nil {
		return "", fmt.Errorf("outfile: %w", err)
	}
	c.expected[name] = struct{}{}
	return filepath.Join(c.root, filepath.FromSlash(name)), nil
}

// RecordProduced marks name as materialized.
func (c *Contract) RecordProduced(name string) {
	c.produced[name] = struct{}{}
}

// Expected returns the declared names, sorted.
func (c *Contract) Expected() []string {
	return sortedKeys(c.expected)
}

// Finalize fails if any declared name was not produced.
func (c *Contract) Finalize() error {
	var missing []string
	for name := range c.expected {
		if _, ok := c.produced[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &UnsatisfiedError{Missing: missing}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
