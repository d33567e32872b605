package tasks

import (
	"fmt"
	"slices"
)

// ledger is one loaded snapshot of the task set plus the id high-water
// mark. Mutations validate everything before changing anything, so an
// error leaves the ledger as it was.
type ledger struct {
	seq   int
	tasks []Task
}

func (l *ledger) clone() ledger {
	ts := make([]Task, len(l.tasks))
	for i, t := range l.tasks {
		ts[i] = t.clone()
	}
	return ledger{seq: l.seq, tasks: ts}
}

func (l *ledger) index(id int) int {
	return slices.IndexFunc(l.tasks, func(t Task) bool { return t.ID == id })
}

func (l *ledger) find(verb string, id int) (int, error) {
	i := l.index(id)
	if i < 0 {
		return -1, fmt.Errorf("%s %s: %w", verb, FormatID(id), ErrNotFound)
	}
	return i, nil
}

func (l *ledger) create(nt NewTask) (Task, error) {
	if err := validateTitle(nt.Title); err != nil {
		return Task{}, fmt.Errorf("creating task: %w", err)
	}
	var blockedBy []int
	for _, b := range nt.BlockedBy {
		if _, err := l.find("creating task: blocker", b); err != nil {
			return Task{}, err
		}
		blockedBy = insertSorted(blockedBy, b)
	}
	t := Task{
		ID:                 NextID(l.seq, l.tasks),
		Status:             StatusOpen,
		Title:              nt.Title,
		Description:        nt.Description,
		AcceptanceCriteria: nt.AcceptanceCriteria,
		BlockedBy:          blockedBy,
	}
	l.seq = t.ID
	l.tasks = append(l.tasks, t)
	return t.clone(), nil
}

func (l *ledger) get(id int) (Task, error) {
	i, err := l.find("getting", id)
	if err != nil {
		return Task{}, err
	}
	return l.tasks[i].clone(), nil
}

func (l *ledger) list(filter []Status) []Task {
	out := make([]Task, 0, len(l.tasks))
	for _, t := range l.tasks {
		if len(filter) == 0 || slices.Contains(filter, t.Status) {
			out = append(out, t.clone())
		}
	}
	return out
}

func (l *ledger) setStatus(id int, s Status) (Task, error) {
	if _, err := ParseStatus(string(s)); err != nil {
		return Task{}, fmt.Errorf("setting status of %s: %w", FormatID(id), err)
	}
	i, err := l.find("setting status of", id)
	if err != nil {
		return Task{}, err
	}
	l.tasks[i].Status = s
	return l.tasks[i].clone(), nil
}

func (l *ledger) update(id int, opts UpdateOpts) (Task, error) {
	i, err := l.find("updating", id)
	if err != nil {
		return Task{}, err
	}
	if opts.Title != nil {
		if err := validateTitle(*opts.Title); err != nil {
			return Task{}, fmt.Errorf("updating %s: %w", FormatID(id), err)
		}
		l.tasks[i].Title = *opts.Title
	}
	if opts.Description != nil {
		l.tasks[i].Description = *opts.Description
	}
	if opts.AcceptanceCriteria != nil {
		l.tasks[i].AcceptanceCriteria = *opts.AcceptanceCriteria
	}
	return l.tasks[i].clone(), nil
}

func (l *ledger) incrementPain(id int) (Task, error) {
	i, err := l.find("adding pain to", id)
	if err != nil {
		return Task{}, err
	}
	l.tasks[i].PainCount++
	return l.tasks[i].clone(), nil
}

// addBlocker reports whether the edge was new.
func (l *ledger) addBlocker(id, blocker int) (bool, error) {
	i, err := l.find("blocking", id)
	if err != nil {
		return false, err
	}
	if _, err := l.find(fmt.Sprintf("blocking %s by", FormatID(id)), blocker); err != nil {
		return false, err
	}
	if id == blocker {
		return false, fmt.Errorf("blocking %s: %w", FormatID(id), ErrSelfBlock)
	}
	if slices.Contains(l.tasks[i].BlockedBy, blocker) {
		return false, nil
	}
	if l.dependsOn(blocker, id) {
		return false, fmt.Errorf("blocking %s by %s: %w", FormatID(id), FormatID(blocker), ErrCycle)
	}
	l.tasks[i].BlockedBy = insertSorted(l.tasks[i].BlockedBy, blocker)
	return true, nil
}

// dependsOn reports whether from transitively waits on target through
// BlockedBy edges. Missing tasks end a path.
func (l *ledger) dependsOn(from, target int) bool {
	byID := make(map[int][]int, len(l.tasks))
	for _, t := range l.tasks {
		byID[t.ID] = t.BlockedBy
	}
	seen := map[int]bool{from: true}
	stack := []int{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		for _, next := range byID[cur] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// removeBlocker reports whether an edge was removed.
func (l *ledger) removeBlocker(id, blocker int) (bool, error) {
	i, err := l.find("unblocking", id)
	if err != nil {
		return false, err
	}
	j := slices.Index(l.tasks[i].BlockedBy, blocker)
	if j < 0 {
		return false, nil
	}
	l.tasks[i].BlockedBy = slices.Delete(l.tasks[i].BlockedBy, j, j+1)
	return true, nil
}

func (l *ledger) delete(id int) error {
	i, err := l.find("deleting", id)
	if err != nil {
		return err
	}
	// Keep the high-water mark at or above the deleted id.
	l.seq = max(l.seq, id)
	l.tasks = slices.Delete(l.tasks, i, i+1)
	return nil
}
