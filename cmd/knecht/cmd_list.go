package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/knechtdev/knecht/internal/events"
	"github.com/knechtdev/knecht/internal/tasks"
)

func newListCmd(stdout, stderr io.Writer) *cobra.Command {
	var statuses []string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in creation order",
		Long: `List tasks in creation order. Done tasks are marked [x] and delivered
tasks [>].`,
		Example: `  knecht list
  knecht list --status open --status delivered
  knecht list --json`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if cmdList(statuses, jsonOut, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only show tasks with this status: open, delivered, done (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// cmdList is the CLI entry point for listing tasks.
func cmdList(statuses []string, jsonOut bool, stdout, stderr io.Writer) int {
	l, code := openLedger(stderr, "knecht list")
	if l == nil {
		return code
	}
	defer l.Close()
	return doList(l.store, statuses, jsonOut, stdout, stderr)
}

// doList lists tasks, optionally filtered by status. Accepts an injected
// store for testability.
func doList(store tasks.Store, statuses []string, jsonOut bool, stdout, stderr io.Writer) int {
	filter := make([]tasks.Status, 0, len(statuses))
	for _, s := range statuses {
		st, err := tasks.ParseStatus(s)
		if err != nil {
			fmt.Fprintf(stderr, "knecht list: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
		filter = append(filter, st)
	}
	ts, err := store.List(filter...)
	if err != nil {
		fmt.Fprintf(stderr, "knecht list: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if jsonOut {
		writeTasksJSON(ts, stdout)
		return 0
	}
	if len(ts) == 0 {
		fmt.Fprintln(stdout, "No tasks") //nolint:errcheck // best-effort stdout
		return 0
	}
	writeTaskLines(ts, stdout)
	return 0
}

func newShowCmd(stdout, stderr io.Writer) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its blockers and pain log",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if cmdShow(args[0], jsonOut, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// cmdShow is the CLI entry point for showing a task.
func cmdShow(ref string, jsonOut bool, stdout, stderr io.Writer) int {
	l, code := openLedger(stderr, "knecht show")
	if l == nil {
		return code
	}
	defer l.Close()
	return doShow(l.store, l.log, ref, jsonOut, stdout, stderr)
}

// doShow prints one task. Pain notes are read from log, which may be nil.
func doShow(store tasks.Store, log events.Provider, ref string, jsonOut bool, stdout, stderr io.Writer) int {
	id, ok := parseTaskArg("knecht show", ref, stderr)
	if !ok {
		return 1
	}
	t, err := store.Get(id)
	if err != nil {
		fmt.Fprintf(stderr, "knecht show: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if jsonOut {
		writeTaskJSON(t, stdout)
		return 0
	}
	all, err := store.List()
	if err != nil {
		fmt.Fprintf(stderr, "knecht show: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	d := buildDetail(t, all)
	if log != nil {
		pain, err := log.List(events.Filter{Type: events.TaskPain, Subject: t.Ref()})
		if err != nil {
			fmt.Fprintf(stderr, "knecht show: reading pain log: %v\n", err) //nolint:errcheck // best-effort stderr
		}
		d.pain = pain
	}
	writeTaskDetail(d, stdout)
	return 0
}

func newReadyCmd(stdout, stderr io.Writer) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "ready",
		Short: "List open tasks whose blockers are all done",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if cmdReady(jsonOut, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// cmdReady is the CLI entry point for listing ready tasks.
func cmdReady(jsonOut bool, stdout, stderr io.Writer) int {
	l, code := openLedger(stderr, "knecht ready")
	if l == nil {
		return code
	}
	defer l.Close()
	return doReady(l.store, jsonOut, stdout, stderr)
}

func doReady(store tasks.Store, jsonOut bool, stdout, stderr io.Writer) int {
	ts, err := store.Ready()
	if err != nil {
		fmt.Fprintf(stderr, "knecht ready: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if jsonOut {
		writeTasksJSON(ts, stdout)
		return 0
	}
	if len(ts) == 0 {
		fmt.Fprintln(stdout, "No open tasks") //nolint:errcheck // best-effort stdout
		return 0
	}
	writeTaskLines(ts, stdout)
	return 0
}

func newNextCmd(stdout, stderr io.Writer) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Suggest the ready task to work on first",
		Long: `Suggest the ready task to work on first: the one with the highest pain
count, and among equals the oldest.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if cmdNext(jsonOut, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// cmdNext is the CLI entry point for next.
func cmdNext(jsonOut bool, stdout, stderr io.Writer) int {
	l, code := openLedger(stderr, "knecht next")
	if l == nil {
		return code
	}
	defer l.Close()
	return doNext(l.store, jsonOut, stdout, stderr)
}

// doNext prints the suggested task. An empty ready set is not an error.
func doNext(store tasks.Store, jsonOut bool, stdout, stderr io.Writer) int {
	t, ok, err := store.Next()
	if err != nil {
		fmt.Fprintf(stderr, "knecht next: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if !ok {
		if jsonOut {
			fmt.Fprintln(stdout, "null") //nolint:errcheck // best-effort stdout
			return 0
		}
		fmt.Fprintln(stdout, "No open tasks") //nolint:errcheck // best-effort stdout
		return 0
	}
	if jsonOut {
		writeTaskJSON(t, stdout)
		return 0
	}
	fmt.Fprintf(stdout, "Next: %s\n", taskLine(t)) //nolint:errcheck // best-effort stdout
	if t.Description != "" {
		fmt.Fprintf(stdout, "\n%s\n", t.Description) //nolint:errcheck // best-effort stdout
	}
	return 0
}
