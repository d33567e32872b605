package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/knechtdev/knecht/internal/events"
	"github.com/knechtdev/knecht/internal/tasks"
)

// logOpts carries the log command's filter flags.
type logOpts struct {
	typ     string
	task    string
	actor   string
	since   string
	jsonOut bool
}

func newLogCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts logOpts
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the event log",
		Long: `Show the event log: one entry per change made to the ledger, oldest
first.`,
		Example: `  knecht log --task task-3
  knecht log --type task.pain --since 24h`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if cmdLog(opts, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.typ, "type", "", "Filter by event type (e.g. task.created)")
	cmd.Flags().StringVar(&opts.task, "task", "", "Filter by task id")
	cmd.Flags().StringVar(&opts.actor, "actor", "", "Filter by actor")
	cmd.Flags().StringVar(&opts.since, "since", "", "Show events since duration ago (e.g. 1h, 30m)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output as JSON lines")
	return cmd
}

// cmdLog is the CLI entry point for viewing the event log.
func cmdLog(opts logOpts, stdout, stderr io.Writer) int {
	l, code := openLedger(stderr, "knecht log")
	if l == nil {
		return code
	}
	defer l.Close()
	if l.log == nil {
		fmt.Fprintln(stderr, "knecht log: event log unavailable") //nolint:errcheck // best-effort stderr
		return 1
	}
	return doLog(l.log, opts, stdout, stderr)
}

// doLog reads and displays events. Accepts an injected provider for
// testability.
func doLog(log events.Provider, opts logOpts, stdout, stderr io.Writer) int {
	filter := events.Filter{Type: opts.typ, Actor: opts.actor}
	if opts.task != "" {
		id, ok := parseTaskArg("knecht log", opts.task, stderr)
		if !ok {
			return 1
		}
		filter.Subject = tasks.FormatID(id)
	}
	if opts.since != "" {
		d, err := time.ParseDuration(opts.since)
		if err != nil {
			fmt.Fprintf(stderr, "knecht log: invalid --since %q: %v\n", opts.since, err) //nolint:errcheck // best-effort stderr
			return 1
		}
		filter.Since = time.Now().Add(-d)
	}

	evts, err := log.List(filter)
	if err != nil {
		fmt.Fprintf(stderr, "knecht log: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	if opts.jsonOut {
		for _, e := range evts {
			data, _ := json.Marshal(e)
			fmt.Fprintln(stdout, string(data)) //nolint:errcheck // best-effort stdout
		}
		return 0
	}
	if len(evts) == 0 {
		fmt.Fprintln(stdout, "No events.") //nolint:errcheck // best-effort stdout
		return 0
	}
	writeEventTable(evts, stdout)
	return 0
}
