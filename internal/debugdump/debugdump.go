// Package debugdump records generation requests and results as YAML files
// next to a base path.
package debugdump

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cgast/tfanygen/pkg/generate"
	"github.com/cgast/tfanygen/pkg/value"
)

type engine struct {
	next generate.Engine
	base string
}

// Wrap returns an engine that writes <base>.in.yaml before and
// <base>.out.yaml after every call to next. An empty base returns next.
func Wrap(next generate.Engine, base string) generate.Engine {
	if base == "" {
		return next
	}
	return &engine{next: next, base: base}
}

type dumpedRequest struct {
	Path    []string       `yaml:"path"`
	Classes []string       `yaml:"classes"`
	Args    map[string]any `yaml:"args"`
}

func (e *engine) Produce(ctx context.Context, req generate.Request) (value.Value, error) {
	in := dumpedRequest{Path: req.Path, Classes: req.Classes, Args: req.Args}
	if err := write(e.base+".in.yaml", in); err != nil {
		return value.Value{}, err
	}

	result, err := e.next.Produce(ctx, req)
	if err != nil {
		return result, err
	}

	if err := write(e.base+".out.yaml", result); err != nil {
		return value.Value{}, err
	}
	return result, nil
}

func write(path string, doc any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("debug dump %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("debug dump: %w", err)
	}
	return nil
}
