package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knechtdev/knecht/internal/tasks"
)

func newStartCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "start <task-id>",
		Short: "Check that a task can be started and show it",
		Long: `Check that a task can be started and show it. A task can be started
when it is open and every blocker is done or deleted. Nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if cmdStart(args[0], stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// cmdStart is the CLI entry point for the readiness check.
func cmdStart(ref string, stdout, stderr io.Writer) int {
	l, code := openLedger(stderr, "knecht start")
	if l == nil {
		return code
	}
	defer l.Close()
	return doStart(l.store, ref, stdout, stderr)
}

// doStart fails with the list of open blockers when the task is not ready;
// otherwise it prints the task detail.
func doStart(store tasks.Store, ref string, stdout, stderr io.Writer) int {
	id, ok := parseTaskArg("knecht start", ref, stderr)
	if !ok {
		return 1
	}
	all, err := store.List()
	if err != nil {
		fmt.Fprintf(stderr, "knecht start: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	t, found := findTask(all, id)
	if !found {
		fmt.Fprintf(stderr, "knecht start: %s not found\n", tasks.FormatID(id)) //nolint:errcheck // best-effort stderr
		return 1
	}
	if t.Status != tasks.StatusOpen {
		fmt.Fprintf(stderr, "Cannot start %s: already %s\n", t.Ref(), t.Status) //nolint:errcheck // best-effort stderr
		return 1
	}
	if open := tasks.OpenBlockers(all, t); len(open) > 0 {
		refs := make([]string, len(open))
		for i, b := range open {
			refs[i] = tasks.FormatID(b)
		}
		fmt.Fprintf(stderr, "Cannot start %s: blocked by %s\n", t.Ref(), strings.Join(refs, ", ")) //nolint:errcheck // best-effort stderr
		return 1
	}
	writeTaskDetail(buildDetail(t, all), stdout)
	return 0
}

func findTask(all []tasks.Task, id int) (tasks.Task, bool) {
	for _, t := range all {
		if t.ID == id {
			return t, true
		}
	}
	return tasks.Task{}, false
}

// newStatusCmd builds done, deliver and reopen, which differ only in the
// target status.
func newStatusCmd(use, short, long string, target tasks.Status, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if cmdSetStatus(use, args[0], target, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func newDoneCmd(stdout, stderr io.Writer) *cobra.Command {
	return newStatusCmd("done", "Mark a task as done",
		"Mark a task as done. Done tasks no longer block anything.",
		tasks.StatusDone, stdout, stderr)
}

func newDeliverCmd(stdout, stderr io.Writer) *cobra.Command {
	return newStatusCmd("deliver", "Mark a task as delivered, pending verification",
		`Mark a task as delivered: the work is finished but not yet verified. A
delivered task still blocks the tasks waiting on it. Tasks that are already
delivered or done are refused.`,
		tasks.StatusDelivered, stdout, stderr)
}

func newReopenCmd(stdout, stderr io.Writer) *cobra.Command {
	return newStatusCmd("reopen", "Move a task back to open",
		"Move a delivered or done task back to open.",
		tasks.StatusOpen, stdout, stderr)
}

// cmdSetStatus is the CLI entry point shared by done, deliver and reopen.
func cmdSetStatus(name, ref string, target tasks.Status, stdout, stderr io.Writer) int {
	l, code := openLedger(stderr, "knecht "+name)
	if l == nil {
		return code
	}
	defer l.Close()
	return doSetStatus(l.store, name, ref, target, stdout, stderr)
}

// doSetStatus moves the task to target. The store allows any transition;
// deliver additionally refuses tasks that are already delivered or done.
func doSetStatus(store tasks.Store, name, ref string, target tasks.Status, stdout, stderr io.Writer) int {
	cmdName := "knecht " + name
	id, ok := parseTaskArg(cmdName, ref, stderr)
	if !ok {
		return 1
	}
	if target == tasks.StatusDelivered {
		cur, err := store.Get(id)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", cmdName, err) //nolint:errcheck // best-effort stderr
			return 1
		}
		if cur.Status != tasks.StatusOpen {
			fmt.Fprintf(stderr, "%s: %s is already %s\n", cmdName, cur.Ref(), cur.Status) //nolint:errcheck // best-effort stderr
			return 1
		}
	}
	t, err := store.SetStatus(id, target)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", cmdName, err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintf(stdout, "✓ %s: %s\n", t.Ref(), t.Title) //nolint:errcheck // best-effort stdout
	return 0
}
