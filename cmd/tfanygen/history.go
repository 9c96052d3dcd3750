package main

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cgast/tfanygen/internal/config"
	"github.com/cgast/tfanygen/pkg/history"
)

// handleHistory implements `tfanygen history`.
func handleHistory(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath, "config file")
	state := fs.String("state", "", "state directory")
	limit := fs.Int("limit", 20, "number of runs to show, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadSettings(*configPath, "")
	if err != nil {
		return err
	}
	if *state == "" {
		*state = cfg.StateDir
	}

	store, err := history.Open(filepath.Join(*state, "history.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(*limit)
	if err != nil {
		return err
	}
	return printRuns(stdout, runs)
}

func printRuns(w io.Writer, runs []history.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tMODE\tCLASSES\tFILES\tSTATUS")
	for _, r := range runs {
		status := "ok"
		if r.Error != "" {
			status = "failed: " + r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Mode,
			strings.Join(r.Classes, ","), len(r.Files), status)
	}
	return tw.Flush()
}
