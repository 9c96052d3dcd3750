package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/cgast/tfanygen/internal/config"
	"github.com/cgast/tfanygen/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, args := "apply", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "apply":
		err = handleApply(ctx, args)
	case "gen":
		err = handleGen(ctx, args, os.Stdin, os.Stdout)
	case "history":
		err = handleHistory(args, os.Stdout)
	case "help":
		usage(os.Stdout)
		return
	default:
		usage(os.Stderr)
		os.Exit(1)
	}

	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if ctx.Err() != nil {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tfanygen [apply] [flags]")
	fmt.Fprintln(w, "       tfanygen gen [--config path]")
	fmt.Fprintln(w, "       tfanygen history [--state dir] [--limit n]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'tfanygen <command> -h' for command flags.")
}

// loadSettings reads the config file and installs the default logger.
// A non-empty logLevel overrides the configured one.
func loadSettings(path, logLevel string) (config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return cfg, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger, err := logging.Setup(os.Stderr, cfg.LogLevel)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}
