package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knechtdev/knecht/internal/tasks"
)

func newAddCmd(stdout, stderr io.Writer) *cobra.Command {
	var nt tasks.NewTask
	var blockers []string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a new open task",
		Long: `Create a new open task. Words of the title are joined with spaces.

Use -a to say how to tell the task is done, and -b to make the new task
wait on existing tasks.`,
		Example: `  knecht add Fix login redirect -d "users land on /404" -a "login lands on /home"
  knecht add Ship release -b task-3 -b task-4`,
		Args: cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			if cmdAdd(args, nt, blockers, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&nt.Description, "description", "d", "", "Longer description of the task")
	cmd.Flags().StringVarP(&nt.AcceptanceCriteria, "acceptance-criteria", "a", "", "What must be true for the task to be done")
	cmd.Flags().StringArrayVarP(&blockers, "blocked-by", "b", nil, "Task that must be done first (repeatable)")
	return cmd
}

// cmdAdd is the CLI entry point for task creation. It opens the project
// ledger and delegates to doAdd.
func cmdAdd(args []string, nt tasks.NewTask, blockers []string, stdout, stderr io.Writer) int {
	l, code := openLedger(stderr, "knecht add")
	if l == nil {
		return code
	}
	defer l.Close()
	return doAdd(l.store, args, nt, blockers, stdout, stderr)
}

// doAdd creates a task from the title words and the description and
// acceptance criteria in nt. Accepts an injected store for testability.
func doAdd(store tasks.Store, args []string, nt tasks.NewTask, blockers []string, stdout, stderr io.Writer) int {
	title := strings.TrimSpace(strings.Join(args, " "))
	if title == "" {
		fmt.Fprintln(stderr, "Usage: knecht add <title> [-d <description>] [-a <criteria>] [-b <task-id>]...") //nolint:errcheck // best-effort stderr
		return 1
	}
	nt.Title = title
	for _, b := range blockers {
		id, ok := parseTaskArg("knecht add", b, stderr)
		if !ok {
			return 1
		}
		nt.BlockedBy = append(nt.BlockedBy, id)
	}
	t, err := store.Create(nt)
	if err != nil {
		fmt.Fprintf(stderr, "knecht add: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintf(stdout, "Created %s\n", t.Ref()) //nolint:errcheck // best-effort stdout
	return 0
}

func newUpdateCmd(stdout, stderr io.Writer) *cobra.Command {
	var title, description, criteria string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Change a task's title, description or acceptance criteria",
		Long: `Change a task's title, description or acceptance criteria. Only the
given flags are applied; pass an empty --description or
--acceptance-criteria to clear it.`,
		Example: `  knecht update task-4 -t "Fix login redirect loop"
  knecht update 4 -a "no redirect loop in the e2e suite"
  knecht update 4 -a ""`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var opts tasks.UpdateOpts
			if c.Flags().Changed("title") {
				opts.Title = &title
			}
			if c.Flags().Changed("description") {
				opts.Description = &description
			}
			if c.Flags().Changed("acceptance-criteria") {
				opts.AcceptanceCriteria = &criteria
			}
			if cmdUpdate(args[0], opts, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "New title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description")
	cmd.Flags().StringVarP(&criteria, "acceptance-criteria", "a", "", "New acceptance criteria")
	return cmd
}

// cmdUpdate is the CLI entry point for updating a task.
func cmdUpdate(ref string, opts tasks.UpdateOpts, stdout, stderr io.Writer) int {
	l, code := openLedger(stderr, "knecht update")
	if l == nil {
		return code
	}
	defer l.Close()
	return doUpdate(l.store, ref, opts, stdout, stderr)
}

// doUpdate applies opts to the task. At least one field must be given.
func doUpdate(store tasks.Store, ref string, opts tasks.UpdateOpts, stdout, stderr io.Writer) int {
	id, ok := parseTaskArg("knecht update", ref, stderr)
	if !ok {
		return 1
	}
	if opts.Title == nil && opts.Description == nil && opts.AcceptanceCriteria == nil {
		fmt.Fprintln(stderr, "knecht update: nothing to update (use -t <title>, -d <description> or -a <criteria>)") //nolint:errcheck // best-effort stderr
		return 1
	}
	t, err := store.Update(id, opts)
	if err != nil {
		fmt.Fprintf(stderr, "knecht update: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintf(stdout, "Updated %s: %s\n", t.Ref(), t.Title) //nolint:errcheck // best-effort stdout
	return 0
}

func newPainCmd(stdout, stderr io.Writer) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "pain <task-id>",
		Short: "Record that a task caused pain",
		Long: `Record that a task caused pain: its pain count goes up by one and the
note is appended to the event log. Tasks with more pain are picked first by
"knecht next".`,
		Example: `  knecht pain task-4 -d "hit the flaky login test again"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if cmdPain(args[0], note, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&note, "description", "d", "", "What happened (required)")
	return cmd
}

// cmdPain is the CLI entry point for recording pain.
func cmdPain(ref, note string, stdout, stderr io.Writer) int {
	l, code := openLedger(stderr, "knecht pain")
	if l == nil {
		return code
	}
	defer l.Close()
	return doPain(l.store, ref, note, stdout, stderr)
}

// doPain increments the task's pain count. The note is required.
func doPain(store tasks.Store, ref, note string, stdout, stderr io.Writer) int {
	id, ok := parseTaskArg("knecht pain", ref, stderr)
	if !ok {
		return 1
	}
	note = strings.TrimSpace(note)
	if note == "" {
		fmt.Fprintln(stderr, "knecht pain: a description is required (-d <what happened>)") //nolint:errcheck // best-effort stderr
		return 1
	}
	t, err := store.IncrementPain(id, note)
	if err != nil {
		fmt.Fprintf(stderr, "knecht pain: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintf(stdout, "Added pain to %s (pain count: %d)\n", t.Ref(), t.PainCount) //nolint:errcheck // best-effort stdout
	return 0
}

func newDeleteCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Long: `Delete a task. Its id is never reused. Tasks it was blocking treat the
deleted task as resolved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if cmdDelete(args[0], stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// cmdDelete is the CLI entry point for deleting a task.
func cmdDelete(ref string, stdout, stderr io.Writer) int {
	l, code := openLedger(stderr, "knecht delete")
	if l == nil {
		return code
	}
	defer l.Close()
	return doDelete(l.store, ref, stdout, stderr)
}

func doDelete(store tasks.Store, ref string, stdout, stderr io.Writer) int {
	id, ok := parseTaskArg("knecht delete", ref, stderr)
	if !ok {
		return 1
	}
	if err := store.Delete(id); err != nil {
		fmt.Fprintf(stderr, "knecht delete: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintf(stdout, "Deleted %s\n", tasks.FormatID(id)) //nolint:errcheck // best-effort stdout
	return 0
}
