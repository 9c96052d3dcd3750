// Package terraform drives the orchestrator binary and builds the JSON
// configuration it consumes.
package terraform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/Masterminds/semver/v3"
)

// CommandError reports a non-zero exit of a terraform subcommand.
type CommandError struct {
	What string
	Code int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("'terraform %s' failed with return code %d", e.What, e.Code)
}

// Runner executes terraform in a working directory. Output of interactive
// commands is passed through to Stdout and Stderr.
type Runner struct {
	Binary  string
	Dir     string
	Targets []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// InitOptions controls Init.
type InitOptions struct {
	ForceCopy bool
}

// ApplyOptions controls Apply and Destroy.
type ApplyOptions struct {
	AutoApprove bool
	Parallelism int
	Refresh     bool
}

func (r *Runner) binary() string {
	if r.Binary == "" {
		return "terraform"
	}
	return r.Binary
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// LookPath checks that the terraform binary can be found.
func (r *Runner) LookPath() error {
	if _, err := exec.LookPath(r.binary()); err != nil {
		return fmt.Errorf("cannot find '%s' executable on PATH", r.binary())
	}
	return nil
}

// Init runs "terraform init".
func (r *Runner) Init(ctx context.Context, opts InitOptions) error {
	args := []string{"init", "-input=false"}
	if opts.ForceCopy {
		args = append(args, "-force-copy")
	}
	return r.run(ctx, "init", args)
}

// Apply runs "terraform apply". Without AutoApprove terraform prompts on
// Stdin.
func (r *Runner) Apply(ctx context.Context, opts ApplyOptions) error {
	return r.run(ctx, "apply", r.changeArgs("apply", opts))
}

// Destroy runs "terraform destroy".
func (r *Runner) Destroy(ctx context.Context, opts ApplyOptions) error {
	return r.run(ctx, "destroy", r.changeArgs("destroy", opts))
}

func (r *Runner) changeArgs(cmd string, opts ApplyOptions) []string {
	args := []string{cmd}
	if opts.AutoApprove {
		args = append(args, "-auto-approve")
	}
	if opts.Parallelism > 0 {
		args = append(args, "-parallelism="+strconv.Itoa(opts.Parallelism))
	}
	args = append(args, "-refresh="+strconv.FormatBool(opts.Refresh))
	for _, t := range r.Targets {
		args = append(args, "-target="+t)
	}
	return args
}

// StatePull returns the raw state document.
func (r *Runner) StatePull(ctx context.Context) ([]byte, error) {
	return r.capture(ctx, "state pull", []string{"state", "pull"})
}

var versionPattern = regexp.MustCompile(`Terraform v(\S+)`)

// Version reports the version of the terraform binary.
func (r *Runner) Version(ctx context.Context) (*semver.Version, error) {
	out, err := r.capture(ctx, "version", []string{"version"})
	if err != nil {
		return nil, err
	}
	m := versionPattern.FindSubmatch(out)
	if m == nil {
		return nil, errors.New("cannot parse 'terraform version' output")
	}
	v, err := semver.NewVersion(string(m[1]))
	if err != nil {
		return nil, fmt.Errorf("parse terraform version %q: %w", m[1], err)
	}
	return v, nil
}

// CheckVersion fails unless the binary satisfies constraint. An empty
// constraint always passes.
func (r *Runner) CheckVersion(ctx context.Context, constraint string) error {
	if constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid terraform version constraint %q: %w", constraint, err)
	}
	v, err := r.Version(ctx)
	if err != nil {
		return err
	}
	if ok, errs := c.Validate(v); !ok {
		return fmt.Errorf("terraform %s does not satisfy %q: %w", v, constraint, errors.Join(errs...))
	}
	r.logger().Debug("terraform version ok", "version", v.String(), "constraint", constraint)
	return nil
}

func (r *Runner) command(ctx context.Context, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, r.binary(), args...)
	cmd.Dir = r.Dir
	r.logger().Debug("running terraform", "dir", r.Dir, "args", args)
	return cmd
}

func (r *Runner) run(ctx context.Context, what string, args []string) error {
	cmd := r.command(ctx, args)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return exitError(what, cmd.Run())
}

// capture runs a command with its output buffered. On failure the captured
// output is echoed to Stderr.
func (r *Runner) capture(ctx context.Context, what string, args []string) ([]byte, error) {
	cmd := r.command(ctx, args)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := exitError(what, cmd.Run()); err != nil {
		if r.Stderr != nil {
			r.Stderr.Write(stdout.Bytes())
			r.Stderr.Write(stderr.Bytes())
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

func exitError(what string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &CommandError{What: what, Code: exitErr.ExitCode()}
	}
	return fmt.Errorf("terraform %s: %w", what, err)
}
