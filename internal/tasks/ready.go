package tasks

// NextID returns the id for a new task: one past the larger of the
// persisted high-water mark and the highest live id. Deleting the newest
// task therefore never frees its id.
func NextID(seq int, existing []Task) int {
	highest := seq
	for _, t := range existing {
		highest = max(highest, t.ID)
	}
	return highest + 1
}

// Ready returns, in input order, every open task whose blockers are all
// done or no longer present. A missing blocker counts as resolved.
func Ready(all []Task) []Task {
	status := make(map[int]Status, len(all))
	for _, t := range all {
		status[t.ID] = t.Status
	}
	var out []Task
	for _, t := range all {
		if t.Status != StatusOpen {
			continue
		}
		if len(openBlockers(status, t)) == 0 {
			out = append(out, t.clone())
		}
	}
	return out
}

// OpenBlockers returns the ids of t's blockers that still exist in all and
// are not done, in ascending order.
func OpenBlockers(all []Task, t Task) []int {
	status := make(map[int]Status, len(all))
	for _, o := range all {
		status[o.ID] = o.Status
	}
	return openBlockers(status, t)
}

func openBlockers(status map[int]Status, t Task) []int {
	var out []int
	for _, b := range t.BlockedBy {
		if st, ok := status[b]; ok && st != StatusDone {
			out = append(out, b)
		}
	}
	return out
}

// PickNext chooses the task to work on first: highest pain count, then
// lowest id. It returns false when ready is empty.
func PickNext(ready []Task) (Task, bool) {
	if len(ready) == 0 {
		return Task{}, false
	}
	best := ready[0]
	for _, t := range ready[1:] {
		if t.PainCount > best.PainCount || (t.PainCount == best.PainCount && t.ID < best.ID) {
			best = t
		}
	}
	return best.clone(), true
}
