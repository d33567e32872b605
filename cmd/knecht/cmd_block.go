package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/knechtdev/knecht/internal/tasks"
)

func newBlockCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "block <task-id> by <blocker-id>",
		Short: "Make a task wait until another is done",
		Long: `Make a task wait until another is done. A task cannot block itself and
an edge that would close a cycle is refused.`,
		Example: `  knecht block task-5 by task-2`,
		Args:    cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			if cmdBlock(args, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// cmdBlock is the CLI entry point for adding a blocker.
func cmdBlock(args []string, stdout, stderr io.Writer) int {
	l, code := openLedger(stderr, "knecht block")
	if l == nil {
		return code
	}
	defer l.Close()
	return doBlock(l.store, args, stdout, stderr)
}

// doBlock parses "<task> by <blocker>" and adds the edge.
func doBlock(store tasks.Store, args []string, stdout, stderr io.Writer) int {
	id, blocker, ok := parseEdgeArgs("block", "by", args, stderr)
	if !ok {
		return 1
	}
	if err := store.AddBlocker(id, blocker); err != nil {
		fmt.Fprintf(stderr, "knecht block: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintf(stdout, "Blocker added: %s is blocked by %s\n", //nolint:errcheck // best-effort stdout
		tasks.FormatID(id), tasks.FormatID(blocker))
	return 0
}

func newUnblockCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:     "unblock <task-id> from <blocker-id>",
		Short:   "Remove a blocker from a task",
		Example: `  knecht unblock task-5 from task-2`,
		Args:    cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			if cmdUnblock(args, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// cmdUnblock is the CLI entry point for removing a blocker.
func cmdUnblock(args []string, stdout, stderr io.Writer) int {
	l, code := openLedger(stderr, "knecht unblock")
	if l == nil {
		return code
	}
	defer l.Close()
	return doUnblock(l.store, args, stdout, stderr)
}

// doUnblock parses "<task> from <blocker>" and removes the edge. Naming an
// edge that does not exist is reported as an error.
func doUnblock(store tasks.Store, args []string, stdout, stderr io.Writer) int {
	id, blocker, ok := parseEdgeArgs("unblock", "from", args, stderr)
	if !ok {
		return 1
	}
	t, err := store.Get(id)
	if err != nil {
		fmt.Fprintf(stderr, "knecht unblock: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if !slices.Contains(t.BlockedBy, blocker) {
		fmt.Fprintf(stderr, "knecht unblock: %s is not blocked by %s\n", //nolint:errcheck // best-effort stderr
			t.Ref(), tasks.FormatID(blocker))
		return 1
	}
	if err := store.RemoveBlocker(id, blocker); err != nil {
		fmt.Fprintf(stderr, "knecht unblock: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintf(stdout, "Blocker removed: %s is no longer blocked by %s\n", //nolint:errcheck // best-effort stdout
		t.Ref(), tasks.FormatID(blocker))
	return 0
}

// parseEdgeArgs parses "<task> <keyword> <blocker>".
func parseEdgeArgs(name, keyword string, args []string, stderr io.Writer) (int, int, bool) {
	cmdName := "knecht " + name
	if len(args) != 3 || args[1] != keyword {
		fmt.Fprintf(stderr, "Usage: knecht %s <task-id> %s <blocker-id>\n", name, keyword) //nolint:errcheck // best-effort stderr
		return 0, 0, false
	}
	id, ok := parseTaskArg(cmdName, args[0], stderr)
	if !ok {
		return 0, 0, false
	}
	blocker, ok := parseTaskArg(cmdName, args[2], stderr)
	if !ok {
		return 0, 0, false
	}
	return id, blocker, true
}
