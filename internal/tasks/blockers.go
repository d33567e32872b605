package tasks

import (
	"cmp"
	"slices"
	"strings"
)

// Edge is one blocking relationship: Task is blocked by Blocker.
type Edge struct {
	Task    int
	Blocker int
}

// DecodeBlockers parses a blockers file. Each non-blank line is
// "task-<id>|task-<blocker>"; the bare "<id>|<blocker>" form is accepted.
func DecodeBlockers(data []byte) ([]Edge, error) {
	var edges []Edge
	for i, ln := range strings.Split(string(data), "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		left, right, ok := strings.Cut(ln, "|")
		if !ok {
			return nil, recordErr(i+1, ErrMalformedRecord, "blocker line %q has no separator", ln)
		}
		id, err := ParseID(left)
		if err != nil {
			return nil, recordErr(i+1, ErrInvalidNumber, "blocked task %q", left)
		}
		blocker, err := ParseID(right)
		if err != nil {
			return nil, recordErr(i+1, ErrInvalidNumber, "blocker %q", right)
		}
		if id == blocker {
			return nil, recordErr(i+1, ErrMalformedRecord, "%s blocks itself", FormatID(id))
		}
		edges = append(edges, Edge{Task: id, Blocker: blocker})
	}
	return edges, nil
}

// EncodeBlockers renders every task's BlockedBy as sorted edge lines.
func EncodeBlockers(ts []Task) []byte {
	var edges []Edge
	for _, t := range ts {
		for _, b := range t.BlockedBy {
			edges = append(edges, Edge{Task: t.ID, Blocker: b})
		}
	}
	slices.SortFunc(edges, func(a, b Edge) int {
		if c := cmp.Compare(a.Task, b.Task); c != 0 {
			return c
		}
		return cmp.Compare(a.Blocker, b.Blocker)
	})
	var sb strings.Builder
	for _, e := range edges {
		sb.WriteString(FormatID(e.Task))
		sb.WriteByte('|')
		sb.WriteString(FormatID(e.Blocker))
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// attachBlockers sets BlockedBy on ts from edges. Edges owned by tasks that
// no longer exist are dropped; edges pointing at missing blockers are kept.
func attachBlockers(ts []Task, edges []Edge) {
	idx := make(map[int]int, len(ts))
	for i, t := range ts {
		idx[t.ID] = i
	}
	for _, e := range edges {
		i, ok := idx[e.Task]
		if !ok {
			continue
		}
		ts[i].BlockedBy = insertSorted(ts[i].BlockedBy, e.Blocker)
	}
}

// insertSorted adds v to the ascending set s, returning s unchanged if v
// is already present.
func insertSorted(s []int, v int) []int {
	i, found := slices.BinarySearch(s, v)
	if found {
		return s
	}
	return slices.Insert(s, i, v)
}
