// Package generate drives the template/generation engine that produces
// result trees.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/cgast/tfanygen/pkg/value"
)

// OutfilesKey lists the names an external engine declared through its
// outfile filter.
const OutfilesKey = "$outfiles"

// OutfileRootEnv tells an external engine where declared outfiles land.
const OutfileRootEnv = "ANYGEN_OUTFILE_ROOT"

// Declarer receives outfile declarations made during generation.
type Declarer interface {
	Declare(name string) (string, error)
}

// Request is one generation call.
type Request struct {
	Path     []string       `json:"path"`
	Classes  []string       `json:"classes"`
	Args     map[string]any `json:"args"`
	Outfiles Declarer       `json:"-"`
}

// Engine produces a result tree for a request.
type Engine interface {
	Produce(ctx context.Context, req Request) (value.Value, error)
}

// FuncEngine adapts a function to Engine.
type FuncEngine func(ctx context.Context, req Request) (value.Value, error)

func (f FuncEngine) Produce(ctx context.Context, req Request) (value.Value, error) {
	return f(ctx, req)
}

// ExecEngine runs an external generator. The request is written as JSON on
// stdin and the result tree is read from stdout.
type ExecEngine struct {
	Command []string
	Env     map[string]string
	Dir     string
	Stderr  io.Writer
}

// Produce implements Engine.
func (e *ExecEngine) Produce(ctx context.Context, req Request) (value.Value, error) {
	if len(e.Command) == 0 {
		return value.Value{}, errors.New("generator command is empty")
	}

	input, err := json.Marshal(req)
	if err != nil {
		return value.Value{}, fmt.Errorf("encode generator request: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Dir = e.Dir
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = os.Environ()
	for k, v := range e.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if root, ok := outfileRoot(req.Outfiles); ok {
		cmd.Env = append(cmd.Env, OutfileRootEnv+"="+root)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if e.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, e.Stderr)
	}

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return value.Value{}, fmt.Errorf("generator %s: %w", e.Command[0], err)
		}
		return value.Value{}, fmt.Errorf("generator %s: %w: %s", e.Command[0], err, msg)
	}

	result, err := value.Unmarshal(stdout.Bytes())
	if err != nil {
		return value.Value{}, fmt.Errorf("decode generator result: %w", err)
	}
	if err := declareOutfiles(result, req.Outfiles); err != nil {
		return value.Value{}, err
	}
	return result, nil
}

type rooter interface {
	Root() string
}

func outfileRoot(d Declarer) (string, bool) {
	r, ok := d.(rooter)
	if !ok {
		return "", false
	}
	return r.Root(), true
}

// declareOutfiles pops OutfilesKey from result and reports each name to d.
func declareOutfiles(result value.Value, d Declarer) error {
	m, ok := result.Map()
	if !ok {
		return nil
	}
	names, ok := m.Pop(OutfilesKey)
	if !ok || names.IsNull() {
		return nil
	}
	seq, ok := names.Seq()
	if !ok {
		return fmt.Errorf("%s: must be a sequence, got %s", OutfilesKey, names.Kind())
	}
	for i, n := range seq {
		name, ok := n.Str()
		if !ok {
			return fmt.Errorf("%s[%d]: must be a string, got %s", OutfilesKey, i, n.Kind())
		}
		if d == nil {
			continue
		}
		if _, err := d.Declare(name); err != nil {
			return fmt.Errorf("%s[%d]: %w", OutfilesKey, i, err)
		}
	}
	return nil
}
