package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cgast/tfanygen/internal/config"
	"github.com/cgast/tfanygen/internal/debugdump"
	"github.com/cgast/tfanygen/internal/sandbox"
	"github.com/cgast/tfanygen/pkg/generate"
	"github.com/cgast/tfanygen/pkg/history"
	"github.com/cgast/tfanygen/pkg/materialize"
	"github.com/cgast/tfanygen/pkg/outfile"
	"github.com/cgast/tfanygen/pkg/terraform"
	"github.com/cgast/tfanygen/pkg/value"
)

type applyOptions struct {
	yes        bool
	destroy    bool
	jobs       int
	state      string
	model      string
	classes    string
	targets    stringList
	defs       defList
	configPath string
	logLevel   string

	refresh, noRefresh     bool
	forceCopy, noForceCopy bool
}

func parseApplyFlags(args []string) (*applyOptions, *flag.FlagSet, error) {
	o := &applyOptions{}
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	fs.BoolVar(&o.yes, "yes", false, "apply without asking for confirmation")
	fs.BoolVar(&o.yes, "y", false, "shorthand for --yes")
	fs.BoolVar(&o.destroy, "destroy", false, "destroy instead of apply")
	fs.BoolVar(&o.destroy, "d", false, "shorthand for --destroy")
	fs.IntVar(&o.jobs, "jobs", 0, "terraform parallelism")
	fs.IntVar(&o.jobs, "j", 0, "shorthand for --jobs")
	fs.StringVar(&o.state, "state", "", "state directory")
	fs.StringVar(&o.model, "model", "", "model directory")
	fs.StringVar(&o.classes, "classes", "", "comma separated class suffixes")
	fs.Var(&o.targets, "target", "resource to target (repeatable)")
	fs.Var(&o.defs, "def", "generator argument: key=value, key or @file.json|yaml (repeatable)")
	fs.Var(&o.defs, "D", "shorthand for --def")
	fs.BoolVar(&o.refresh, "refresh", false, "refresh state before changes")
	fs.BoolVar(&o.noRefresh, "no-refresh", false, "skip state refresh")
	fs.BoolVar(&o.forceCopy, "force-backend-copy", false, "copy state on backend change without asking")
	fs.BoolVar(&o.noForceCopy, "no-force-backend-copy", false, "ask before copying state on backend change")
	fs.StringVar(&o.configPath, "config", config.DefaultPath, "config file")
	fs.StringVar(&o.logLevel, "log-level", "", "log level override")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	if fs.NArg() > 0 {
		return nil, fs, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return o, fs, nil
}

// resolve fills unset options from cfg.
func (o *applyOptions) resolve(cfg config.Config) {
	if o.jobs <= 0 {
		o.jobs = cfg.Terraform.Jobs
	}
	if o.state == "" {
		o.state = cfg.StateDir
	}
	if o.model == "" {
		o.model = cfg.ModelDir
	}
	o.refresh = pickBool(cfg.Terraform.Refresh, o.refresh, o.noRefresh)
	o.forceCopy = pickBool(cfg.Terraform.ForceBackendCopy, o.forceCopy, o.noForceCopy)
}

func pickBool(def, on, off bool) bool {
	switch {
	case off:
		return false
	case on:
		return true
	}
	return def
}

// generatorClasses maps --classes onto the terraform class namespace.
func generatorClasses(classes string) []string {
	if classes == "" {
		return []string{"terraform"}
	}
	var out []string
	for _, c := range strings.Split(classes, ",") {
		out = append(out, "terraform."+c)
	}
	return out
}

type layout struct {
	state     string
	terraform string
	out       string
	debug     string
}

func newLayout(state string) (layout, error) {
	abs, err := filepath.Abs(state)
	if err != nil {
		return layout{}, err
	}
	return layout{
		state:     abs,
		terraform: filepath.Join(abs, "terraform"),
		out:       filepath.Join(abs, "out"),
		debug:     filepath.Join(abs, "debug"),
	}, nil
}

// handleApply implements `tfanygen [apply]`.
func handleApply(ctx context.Context, args []string) error {
	opts, _, err := parseApplyFlags(args)
	if err != nil {
		return err
	}
	cfg, logger, err := loadSettings(opts.configPath, opts.logLevel)
	if err != nil {
		return err
	}
	opts.resolve(cfg)

	dirs, err := newLayout(opts.state)
	if err != nil {
		return err
	}

	var targets []string
	for _, t := range opts.targets {
		targets = append(targets, "module.body."+t)
	}
	runner := &terraform.Runner{
		Binary:  cfg.Terraform.Binary,
		Dir:     dirs.terraform,
		Targets: targets,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Logger:  logger,
	}
	if err := runner.LookPath(); err != nil {
		return err
	}
	if err := runner.CheckVersion(ctx, cfg.Terraform.Version); err != nil {
		return err
	}

	run := newRun(opts, time.Now())
	err = apply(ctx, opts, cfg, dirs, runner, newEngine(cfg), &run, os.Stdout, logger)
	if cfg.History.Persist {
		recordRun(filepath.Join(dirs.state, "history.db"), run, err, cfg.History.MaxEntries, logger)
	}
	return err
}

// newRun starts the history record for one apply or destroy.
func newRun(opts *applyOptions, now time.Time) history.Run {
	run := history.Run{
		StartedAt: now.UTC(),
		Mode:      history.ModeApply,
		Classes:   generatorClasses(opts.classes),
	}
	if opts.destroy {
		run.Mode = history.ModeDestroy
	}
	return run
}

func apply(ctx context.Context, opts *applyOptions, cfg config.Config, dirs layout,
	runner *terraform.Runner, engine generate.Engine, run *history.Run, stdout io.Writer, logger *slog.Logger) error {

	if err := os.MkdirAll(dirs.terraform, 0755); err != nil {
		return err
	}
	if err := os.RemoveAll(dirs.debug); err != nil {
		return err
	}
	if err := os.Mkdir(dirs.debug, 0755); err != nil {
		return err
	}
	if !opts.destroy {
		if err := os.RemoveAll(dirs.out); err != nil {
			return err
		}
	}

	model, err := filepath.Abs(opts.model)
	if err != nil {
		return err
	}
	path := []string{model}

	result, err := debugdump.Wrap(engine, filepath.Join(dirs.debug, "terraform")).Produce(ctx, generate.Request{
		Path:    path,
		Classes: run.Classes,
		Args:    opts.defs.merged(),
	})
	if err != nil {
		return err
	}
	resultMap, ok := result.Map()
	if !ok {
		return fmt.Errorf("generation result must be a mapping, got %s", result.Kind())
	}

	program, err := genProgram(opts.configPath)
	if err != nil {
		return err
	}
	body, err := terraform.BuildBody(resultMap, terraform.BodyOptions{
		Destroy:  opts.destroy,
		Program:  program,
		Path:     path,
		DebugDir: dirs.debug,
	})
	if err != nil {
		return err
	}
	if sources, ok := resultMap.Get(terraform.KeyAnygen); ok {
		if m, ok := sources.Map(); ok && !opts.destroy {
			run.Sources = m.Keys()
		}
	}

	root := terraform.BuildRoot(resultMap, terraform.OutputNames(body))
	if err := terraform.WriteJSON(filepath.Join(dirs.terraform, "main.tf.json"), root); err != nil {
		return err
	}
	bodyDir := filepath.Join(dirs.terraform, terraform.BodyModule)
	if err := os.MkdirAll(bodyDir, 0755); err != nil {
		return err
	}
	if err := terraform.WriteJSON(filepath.Join(bodyDir, "main.tf.json"), body); err != nil {
		return err
	}

	if err := runner.Init(ctx, terraform.InitOptions{ForceCopy: opts.forceCopy}); err != nil {
		return err
	}

	changes := terraform.ApplyOptions{AutoApprove: opts.yes, Parallelism: opts.jobs, Refresh: opts.refresh}
	if opts.destroy {
		if err := runner.Destroy(ctx, changes); err != nil {
			return err
		}
		return os.RemoveAll(dirs.out)
	}
	if err := runner.Apply(ctx, changes); err != nil {
		return err
	}

	classes, err := onSuccessClasses(resultMap)
	if err != nil || len(classes) == 0 {
		return err
	}

	state, err := runner.StatePull(ctx)
	if err != nil {
		return err
	}
	outputs, err := terraform.ModuleOutputs(state)
	if err != nil {
		return err
	}

	success, err := onSuccess(ctx, debugdump.Wrap(engine, filepath.Join(dirs.debug, "on_success")), generate.Request{
		Path:    path,
		Classes: classes,
		Args:    map[string]any{"outputs": outputs},
	}, dirs.out, cfg.Sandbox.MaxFileSize, logger)
	if err != nil {
		return err
	}
	for _, w := range success.written {
		run.Files = append(run.Files, history.File{Name: w.Name, Size: w.Size, SHA256: w.SHA256, Mode: uint32(w.Mode)})
	}

	if success.text != "" {
		fmt.Fprintln(stdout, success.text)
	}
	return nil
}

// genProgram is the external data program terraform runs: this binary's
// gen subcommand pointed at the same config file.
func genProgram(configPath string) ([]string, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	cfg, err := filepath.Abs(configPath)
	if err != nil {
		return nil, err
	}
	return []string{self, "gen", "--config", cfg}, nil
}

func onSuccessClasses(result *value.Map) ([]string, error) {
	v, ok := result.Get(terraform.KeyOnSuccess)
	if !ok || v.IsNull() {
		return nil, nil
	}
	m, ok := v.Map()
	if !ok {
		return nil, fmt.Errorf("%s: must be a mapping, got %s", terraform.KeyOnSuccess, v.Kind())
	}
	cv, ok := m.Get("classes")
	if !ok || cv.IsNull() {
		return nil, nil
	}
	seq, ok := cv.Seq()
	if !ok {
		return nil, fmt.Errorf("%s.classes: must be a sequence, got %s", terraform.KeyOnSuccess, cv.Kind())
	}
	classes := make([]string, 0, len(seq))
	for i, item := range seq {
		s, ok := item.Str()
		if !ok {
			return nil, fmt.Errorf("%s.classes[%d]: must be a string, got %s", terraform.KeyOnSuccess, i, item.Kind())
		}
		classes = append(classes, s)
	}
	return classes, nil
}

type successResult struct {
	written []materialize.Written
	text    string
}

// onSuccess runs the on-success generation under an outfile contract,
// materializes its "files" into outDir and renders its "text".
func onSuccess(ctx context.Context, engine generate.Engine, req generate.Request,
	outDir, maxFileSize string, logger *slog.Logger) (successResult, error) {

	contract, err := outfile.New(outDir)
	if err != nil {
		return successResult{}, err
	}
	req.Outfiles = contract

	result, err := engine.Produce(ctx, req)
	if err != nil {
		return successResult{}, err
	}
	m, ok := result.Map()
	if !ok {
		return successResult{}, fmt.Errorf("on_success result must be a mapping, got %s", result.Kind())
	}

	files, _ := m.Get("files")
	entries, err := materialize.ParseEntries(files)
	if err != nil {
		return successResult{}, err
	}
	sb, err := sandbox.New(sandbox.Config{Root: contract.Root(), MaxFileSize: maxFileSize})
	if err != nil {
		return successResult{}, err
	}
	mat := &materialize.Materializer{Sandbox: sb, Recorder: contract, Logger: logger}
	written, err := mat.Materialize(entries)
	if err != nil {
		return successResult{written: written}, err
	}
	if err := contract.Finalize(); err != nil {
		return successResult{written: written}, err
	}

	res := successResult{written: written}
	if tv, ok := m.Get("text"); ok && tv.Truthy() {
		text, ok := tv.Str()
		if !ok {
			return res, fmt.Errorf("text: must be a string, got %s", tv.Kind())
		}
		if plain, _ := m.Get("plaintext"); !plain.Truthy() {
			text = renderMarkup(text)
		}
		res.text = text
	}
	return res, nil
}

func recordRun(path string, run history.Run, runErr error, maxEntries int, logger *slog.Logger) {
	if runErr != nil {
		run.Error = runErr.Error()
	}
	store, err := history.Open(path)
	if err != nil {
		logger.Warn("history unavailable", "error", err)
		return
	}
	defer store.Close()

	recorded, err := store.Record(run)
	if err != nil {
		logger.Warn("record run", "error", err)
		return
	}
	if n, err := store.Prune(maxEntries); err != nil {
		logger.Warn("prune history", "error", err)
	} else if n > 0 {
		logger.Debug("pruned history", "deleted", n)
	}
	logger.Debug("recorded run", "id", recorded.ID)
}
