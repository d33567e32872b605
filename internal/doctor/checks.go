package doctor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/knechtdev/knecht/internal/config"
	"github.com/knechtdev/knecht/internal/events"
	"github.com/knechtdev/knecht/internal/fsys"
	"github.com/knechtdev/knecht/internal/tasks"
)

// LedgerChecks returns every check in the order knecht doctor runs them.
func LedgerChecks() []Check {
	return []Check{
		&StructureCheck{},
		&ConfigCheck{},
		&TasksFileCheck{},
		&SeqCheck{},
		&BlockersCheck{},
		&CycleCheck{},
		&EventsLogCheck{},
	}
}

func readOptional(ctx *CheckContext, name string) ([]byte, bool, error) {
	data, err := ctx.FS.ReadFile(filepath.Join(ctx.Dir, name))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// rawLedger is the decoded tasks and blockers files. Edges are kept as
// written, before the store drops any of them.
type rawLedger struct {
	tasks []tasks.Task
	edges []tasks.Edge
	live  map[int]bool
}

func loadRaw(ctx *CheckContext) (*rawLedger, error) {
	data, _, err := readOptional(ctx, tasks.TasksFile)
	if err != nil {
		return nil, err
	}
	ts, _, err := tasks.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tasks.TasksFile, err)
	}
	data, _, err = readOptional(ctx, tasks.BlockersFile)
	if err != nil {
		return nil, err
	}
	edges, err := tasks.DecodeBlockers(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tasks.BlockersFile, err)
	}
	live := make(map[int]bool, len(ts))
	for _, t := range ts {
		live[t.ID] = true
	}
	return &rawLedger{tasks: ts, edges: edges, live: live}, nil
}

// skipped is the result for a check that needs files an earlier check
// already reported as unreadable.
func skipped(name string, err error) *CheckResult {
	return &CheckResult{
		Name:    name,
		Status:  StatusWarning,
		Message: "skipped",
		Details: []string{err.Error()},
	}
}

func compact(ctx *CheckContext) error {
	s, err := tasks.OpenFileStore(ctx.FS, ctx.Dir, tasks.WithLock(ctx.LockTimeout))
	if err != nil {
		return err
	}
	_, err = s.Compact()
	return err
}

// StructureCheck verifies the ledger directory and its tasks file exist.
type StructureCheck struct{}

// Name returns the check identifier.
func (c *StructureCheck) Name() string { return "ledger-structure" }

// Run stats the directory and the tasks file.
func (c *StructureCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	if fi, err := ctx.FS.Stat(ctx.Dir); err != nil || !fi.IsDir() {
		r.Status = StatusError
		r.Message = ctx.Dir + " is not a directory"
		r.FixHint = "run 'knecht init'"
		return r
	}
	if _, err := ctx.FS.Stat(filepath.Join(ctx.Dir, tasks.TasksFile)); err != nil {
		r.Status = StatusWarning
		r.Message = "tasks file missing (reads as an empty ledger)"
		r.FixHint = "run 'knecht doctor --fix' or 'knecht init'"
		return r
	}
	r.Status = StatusOK
	r.Message = "ledger directory and tasks file present"
	return r
}

// CanFix returns true: a missing tasks file is created empty.
func (c *StructureCheck) CanFix() bool { return true }

// Fix creates an empty tasks file. It never creates the directory, which
// is knecht init's job.
func (c *StructureCheck) Fix(ctx *CheckContext) error {
	if fi, err := ctx.FS.Stat(ctx.Dir); err != nil || !fi.IsDir() {
		return fmt.Errorf("%s missing", ctx.Dir)
	}
	path := filepath.Join(ctx.Dir, tasks.TasksFile)
	if _, err := ctx.FS.Stat(path); err == nil {
		return nil
	}
	return fsys.WriteAtomic(ctx.FS, path, nil, 0o644)
}

// ConfigCheck verifies config.toml parses and validates.
type ConfigCheck struct{}

// Name returns the check identifier.
func (c *ConfigCheck) Name() string { return "config" }

// Run loads config.toml.
func (c *ConfigCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	path := filepath.Join(ctx.Dir, tasks.ConfigFile)
	if _, err := ctx.FS.Stat(path); err != nil {
		r.Status = StatusOK
		r.Message = "no config.toml, defaults in use"
		return r
	}
	cfg, err := config.Load(ctx.FS, path)
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		r.FixHint = "edit " + path + " (see docs/reference/config.md)"
		return r
	}
	r.Status = StatusOK
	r.Message = "config.toml valid"
	r.Details = []string{"lock timeout: " + cfg.LockTimeout().String()}
	return r
}

// CanFix returns false.
func (c *ConfigCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *ConfigCheck) Fix(_ *CheckContext) error { return nil }

// TasksFileCheck verifies every row decodes and reports legacy rows.
type TasksFileCheck struct{}

// Name returns the check identifier.
func (c *TasksFileCheck) Name() string { return "tasks-file" }

// Run decodes the tasks file.
func (c *TasksFileCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	data, _, err := readOptional(ctx, tasks.TasksFile)
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		return r
	}
	ts, format, err := tasks.Decode(data)
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		r.FixHint = "repair the reported line by hand; every command refuses a ledger that does not decode"
		return r
	}
	counts := map[tasks.Status]int{}
	for _, t := range ts {
		counts[t.Status]++
	}
	for _, s := range []tasks.Status{tasks.StatusOpen, tasks.StatusDelivered, tasks.StatusDone} {
		r.Details = append(r.Details, fmt.Sprintf("%s: %d", s, counts[s]))
	}
	if format == tasks.FormatLegacy {
		r.Status = StatusWarning
		r.Message = fmt.Sprintf("%d tasks in %s row format", len(ts), format)
		r.FixHint = "run 'knecht doctor --fix' or make any change to rewrite it"
		return r
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("%d tasks", len(ts))
	return r
}

// CanFix returns true: legacy rows are rewritten in the current format.
func (c *TasksFileCheck) CanFix() bool { return true }

// Fix compacts the ledger.
func (c *TasksFileCheck) Fix(ctx *CheckContext) error { return compact(ctx) }

// SeqCheck verifies the id high-water mark is not below a live id. A low
// mark is harmless while that task lives, but deleting it would let its
// id be handed out again.
type SeqCheck struct{}

// Name returns the check identifier.
func (c *SeqCheck) Name() string { return "id-sequence" }

// Run compares the seq file with the highest task id.
func (c *SeqCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	data, _, err := readOptional(ctx, tasks.SeqFile)
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		return r
	}
	seq := 0
	if txt := strings.TrimSpace(string(data)); txt != "" {
		seq, err = strconv.Atoi(txt)
		if err != nil || seq < 0 {
			r.Status = StatusError
			r.Message = fmt.Sprintf("%s holds %q, not a number", tasks.SeqFile, txt)
			r.FixHint = "write the highest task id ever used into " + filepath.Join(ctx.Dir, tasks.SeqFile)
			return r
		}
	}
	raw, err := loadRaw(ctx)
	if err != nil {
		return skipped(c.Name(), err)
	}
	highest := 0
	for _, t := range raw.tasks {
		highest = max(highest, t.ID)
	}
	if seq < highest {
		r.Status = StatusWarning
		r.Message = fmt.Sprintf("high-water mark %d is below %s", seq, tasks.FormatID(highest))
		r.FixHint = "run 'knecht doctor --fix'"
		return r
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("next id is %s", tasks.FormatID(tasks.NextID(seq, raw.tasks)))
	return r
}

// CanFix returns true.
func (c *SeqCheck) CanFix() bool { return true }

// Fix compacts the ledger, which raises the mark.
func (c *SeqCheck) Fix(ctx *CheckContext) error { return compact(ctx) }

// BlockersCheck reports edges that refer to tasks no longer in the ledger.
// They do not change what is ready; they are clutter.
type BlockersCheck struct{}

// Name returns the check identifier.
func (c *BlockersCheck) Name() string { return "blockers" }

// Run decodes the blockers file and looks for stale edges.
func (c *BlockersCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	data, _, err := readOptional(ctx, tasks.BlockersFile)
	if err == nil {
		_, err = tasks.DecodeBlockers(data)
	}
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		r.FixHint = "repair the reported line by hand"
		return r
	}
	raw, err := loadRaw(ctx)
	if err != nil {
		return skipped(c.Name(), err)
	}
	for _, e := range raw.edges {
		switch {
		case !raw.live[e.Task]:
			r.Details = append(r.Details, fmt.Sprintf("%s no longer exists", tasks.FormatID(e.Task)))
		case !raw.live[e.Blocker]:
			r.Details = append(r.Details, fmt.Sprintf("%s waits on deleted %s", tasks.FormatID(e.Task), tasks.FormatID(e.Blocker)))
		}
	}
	if n := len(r.Details); n > 0 {
		r.Status = StatusWarning
		r.Message = fmt.Sprintf("%d of %d edges refer to deleted tasks", n, len(raw.edges))
		r.FixHint = "run 'knecht doctor --fix'"
		return r
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("%d edges", len(raw.edges))
	return r
}

// CanFix returns true.
func (c *BlockersCheck) CanFix() bool { return true }

// Fix compacts the ledger, which drops the stale edges.
func (c *BlockersCheck) Fix(ctx *CheckContext) error { return compact(ctx) }

// CycleCheck reports blocker cycles. The store refuses to create one, but
// a hand-edited or legacy blockers file can contain them, and every task
// on a cycle can never become ready.
type CycleCheck struct{}

// Name returns the check identifier.
func (c *CycleCheck) Name() string { return "blocker-cycles" }

// Run searches the blocker graph for cycles.
func (c *CycleCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	raw, err := loadRaw(ctx)
	if err != nil {
		return skipped(c.Name(), err)
	}
	cycles := findCycles(raw)
	if len(cycles) == 0 {
		r.Status = StatusOK
		r.Message = "no cycles"
		return r
	}
	for _, cyc := range cycles {
		names := make([]string, len(cyc))
		for i, id := range cyc {
			names[i] = tasks.FormatID(id)
		}
		r.Details = append(r.Details, strings.Join(names, " -> "))
	}
	r.Status = StatusError
	r.Message = fmt.Sprintf("%d cycles, first: %s", len(cycles), r.Details[0])
	r.FixHint = "break each cycle with 'knecht unblock <task> from <blocker>'"
	return r
}

// CanFix returns false: which edge to drop is a human decision.
func (c *CycleCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *CycleCheck) Fix(_ *CheckContext) error { return nil }

// findCycles walks the graph depth-first in id order and returns one path
// per back edge, starting and ending at the same task. Edges touching a
// missing task are ignored.
func findCycles(raw *rawLedger) [][]int {
	adj := make(map[int][]int)
	for _, e := range raw.edges {
		if raw.live[e.Task] && raw.live[e.Blocker] {
			adj[e.Task] = append(adj[e.Task], e.Blocker)
		}
	}
	ids := make([]int, 0, len(raw.live))
	for id := range raw.live {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		slices.Sort(adj[id])
	}

	const (
		unvisited = iota
		onPath
		finished
	)
	state := make(map[int]int, len(ids))
	var path []int
	var cycles [][]int
	var visit func(id int)
	visit = func(id int) {
		state[id] = onPath
		path = append(path, id)
		for _, next := range adj[id] {
			switch state[next] {
			case unvisited:
				visit(next)
			case onPath:
				start := slices.Index(path, next)
				cyc := slices.Clone(path[start:])
				cycles = append(cycles, append(cyc, next))
			}
		}
		path = path[:len(path)-1]
		state[id] = finished
	}
	for _, id := range ids {
		if state[id] == unvisited {
			visit(id)
		}
	}
	return cycles
}

// EventsLogCheck counts malformed lines in events.jsonl. Readers skip
// them, so they only cost history.
type EventsLogCheck struct{}

// Name returns the check identifier.
func (c *EventsLogCheck) Name() string { return "events-log" }

// Run decodes each line of the event log.
func (c *EventsLogCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	data, ok, err := readOptional(ctx, tasks.EventsFile)
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		return r
	}
	if !ok {
		r.Status = StatusOK
		r.Message = "no events recorded yet"
		return r
	}
	total := 0
	for i, ln := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(ln)) == 0 {
			continue
		}
		total++
		var e events.Event
		if err := json.Unmarshal(ln, &e); err != nil {
			r.Details = append(r.Details, fmt.Sprintf("line %d: %v", i+1, err))
		}
	}
	if n := len(r.Details); n > 0 {
		r.Status = StatusWarning
		r.Message = fmt.Sprintf("%d of %d lines malformed and skipped when reading", n, total)
		return r
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("%d events", total)
	return r
}

// CanFix returns false.
func (c *EventsLogCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *EventsLogCheck) Fix(_ *CheckContext) error { return nil }
