package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/knechtdev/knecht/internal/events"
	"github.com/knechtdev/knecht/internal/tasks"
)

// checkbox returns the list marker for a status.
func checkbox(s tasks.Status) string {
	switch s {
	case tasks.StatusDone:
		return "[x]"
	case tasks.StatusDelivered:
		return "[>]"
	default:
		return "[ ]"
	}
}

// taskLine renders the one-line list form: "[ ] task-3  Title (pain count: 2)".
func taskLine(t tasks.Task) string {
	line := fmt.Sprintf("%s %s  %s", checkbox(t.Status), t.Ref(), t.Title)
	if t.PainCount > 0 {
		line += fmt.Sprintf(" (pain count: %d)", t.PainCount)
	}
	return line
}

// writeTaskLines writes one taskLine per task.
func writeTaskLines(ts []tasks.Task, stdout io.Writer) {
	for _, t := range ts {
		fmt.Fprintln(stdout, taskLine(t)) //nolint:errcheck // best-effort stdout
	}
}

// writeTaskJSON writes a single task as indented JSON.
func writeTaskJSON(t tasks.Task, stdout io.Writer) {
	data, _ := json.MarshalIndent(t, "", "  ")
	fmt.Fprintln(stdout, string(data)) //nolint:errcheck // best-effort stdout
}

// writeTasksJSON writes tasks as a JSON array. A nil slice is written as [].
func writeTasksJSON(ts []tasks.Task, stdout io.Writer) {
	if ts == nil {
		ts = []tasks.Task{}
	}
	data, _ := json.MarshalIndent(ts, "", "  ")
	fmt.Fprintln(stdout, string(data)) //nolint:errcheck // best-effort stdout
}

// detail is everything the show and start views print about one task.
type detail struct {
	task      tasks.Task
	blockedBy []tasks.Task // existing blockers; missing ones are dropped
	blocks    []tasks.Task // tasks that list this one as a blocker
	pain      []events.Event
}

// buildDetail resolves t's blocker edges against all.
func buildDetail(t tasks.Task, all []tasks.Task) detail {
	d := detail{task: t}
	for _, o := range all {
		if slices.Contains(t.BlockedBy, o.ID) {
			d.blockedBy = append(d.blockedBy, o)
		}
		if slices.Contains(o.BlockedBy, t.ID) {
			d.blocks = append(d.blocks, o)
		}
	}
	return d
}

// writeTaskDetail writes a task in human-readable detail format.
// Unresolved blockers are marked so the reader sees why a task is not ready.
func writeTaskDetail(d detail, stdout io.Writer) {
	t := d.task
	w := func(s string) { fmt.Fprintln(stdout, s) } //nolint:errcheck // best-effort stdout
	w(fmt.Sprintf("%s: %s", t.Ref(), t.Title))
	w(fmt.Sprintf("Status:     %s", t.Status))
	w(fmt.Sprintf("Pain count: %d", t.PainCount))
	if t.Description != "" {
		w("Description:")
		for _, ln := range strings.Split(t.Description, "\n") {
			w("  " + ln)
		}
	}
	if t.AcceptanceCriteria != "" {
		w("Acceptance Criteria:")
		for _, ln := range strings.Split(t.AcceptanceCriteria, "\n") {
			w("  " + ln)
		}
	}
	if len(d.blockedBy) > 0 {
		w("Blocked by:")
		for _, b := range d.blockedBy {
			mark := ""
			if b.Status != tasks.StatusDone {
				mark = " (unresolved)"
			}
			w(fmt.Sprintf("  %s %s  %s%s", checkbox(b.Status), b.Ref(), b.Title, mark))
		}
	}
	if len(d.blocks) > 0 {
		w("Blocks:")
		for _, b := range d.blocks {
			w(fmt.Sprintf("  %s %s  %s", checkbox(b.Status), b.Ref(), b.Title))
		}
	}
	if len(d.pain) > 0 {
		w("Pain log:")
		for _, e := range d.pain {
			w(fmt.Sprintf("  %s  %s (%s)", e.Ts.Format("2006-01-02 15:04"), e.Message, e.Actor))
		}
	}
}

// writeEventTable writes events in a tab-aligned table.
func writeEventTable(evts []events.Event, stdout io.Writer) {
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTYPE\tACTOR\tTASK\tMESSAGE\tTIME") //nolint:errcheck // best-effort stdout
	for _, e := range evts {
		msg := e.Message
		if len(msg) > 40 {
			msg = msg[:37] + "..."
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck // best-effort stdout
			e.Seq, e.Type, e.Actor, e.Subject, msg,
			e.Ts.Format("2006-01-02 15:04:05"),
		)
	}
	tw.Flush() //nolint:errcheck // best-effort stdout
}
