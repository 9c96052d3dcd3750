package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/cgast/tfanygen/internal/config"
	"github.com/cgast/tfanygen/internal/debugdump"
	"github.com/cgast/tfanygen/pkg/generate"
	"github.com/cgast/tfanygen/pkg/protocol"
)

// newEngine builds the generation engine from config.
var newEngine = func(cfg config.Config) generate.Engine {
	return &generate.ExecEngine{
		Command: cfg.Generator.Command,
		Env:     cfg.Generator.Env,
		Stderr:  os.Stderr,
	}
}

// handleGen implements `tfanygen gen`: the external data program invoked by
// terraform. It reads one query from stdin and writes one response to stdout.
func handleGen(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("gen", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath, "config file")
	logLevel := fs.String("log-level", "", "log level override")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := loadSettings(*configPath, *logLevel)
	if err != nil {
		return err
	}

	q, err := protocol.ReadQuery(stdin)
	if err != nil {
		return err
	}
	req, err := protocol.FromQuery(q)
	if err != nil {
		return err
	}
	logger.Debug("external data query", "classes", req.Classes, "args", len(req.Args))

	engine := debugdump.Wrap(newEngine(cfg), req.DebugDump)
	result, err := engine.Produce(ctx, generate.Request{
		Path:    req.Path,
		Classes: req.Classes,
		Args:    req.Args,
	})
	if err != nil {
		return err
	}
	m, ok := result.Map()
	if !ok {
		return fmt.Errorf("generation result must be a mapping, got %s", result.Kind())
	}

	searchRoot := "."
	if len(req.Path) > 0 {
		searchRoot = req.Path[0]
	}
	resp, err := protocol.FinalizeResponse(m, searchRoot)
	if err != nil {
		return err
	}

	doc := make(map[string]any, len(resp))
	for k, v := range resp {
		doc[k] = v
	}
	if err := protocol.ValidateResponse(doc); err != nil {
		return err
	}
	return protocol.WriteResponse(stdout, resp)
}
