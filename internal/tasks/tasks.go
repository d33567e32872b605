// Package tasks provides the task ledger: the record model, the flat-file
// codec that reads both historical row formats, the Store abstraction, and
// the ready/next resolution used to decide what to work on.
package tasks

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrNotFound is returned when a task ID does not exist in the ledger.
var ErrNotFound = errors.New("task not found")

// ErrMalformedRecord is returned (inside a *RecordError) when a row cannot
// be split into a valid task.
var ErrMalformedRecord = errors.New("malformed record")

// ErrUnknownStatus is returned (inside a *RecordError) when a row's status
// token is not open, delivered or done. ParseStatus also returns it.
var ErrUnknownStatus = errors.New("unknown status")

// ErrInvalidNumber is returned (inside a *RecordError) when an id or pain
// count is not a valid number.
var ErrInvalidNumber = errors.New("invalid number")

// ErrWriteFailed is returned when the atomic rewrite of a ledger file fails.
// The previous file content is intact when this is returned.
var ErrWriteFailed = errors.New("write failed")

// ErrBusy is returned when another process holds the ledger lock for longer
// than the configured lock timeout.
var ErrBusy = errors.New("task ledger busy")

// ErrInvalidTitle is returned when a title is empty or spans several lines.
var ErrInvalidTitle = errors.New("invalid title")

// ErrSelfBlock is returned when a task is asked to block itself.
var ErrSelfBlock = errors.New("task cannot block itself")

// ErrCycle is returned when adding a blocker would make a task transitively
// depend on itself.
var ErrCycle = errors.New("blocker would create a cycle")

// Status is the lifecycle state of a task.
type Status string

// Task statuses. Delivered means complete but pending verification; it does
// not resolve blockers and is not ready to start.
const (
	StatusOpen      Status = "open"
	StatusDelivered Status = "delivered"
	StatusDone      Status = "done"
)

// ParseStatus returns the Status for a persisted token. It is exact and
// case-sensitive.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusOpen, StatusDelivered, StatusDone:
		return st, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownStatus, s)
}

// Task is a single unit of work in the ledger.
type Task struct {
	ID                 int    `json:"id"`
	Status             Status `json:"status"`
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	PainCount          int    `json:"pain_count"`
	BlockedBy          []int  `json:"blocked_by,omitempty"` // ascending, no duplicates
}

// Ref returns the display reference of the task, e.g. "task-7".
func (t Task) Ref() string {
	return FormatID(t.ID)
}

func (t Task) clone() Task {
	t.BlockedBy = slices.Clone(t.BlockedBy)
	return t
}

// FormatID returns the display reference for an id, e.g. "task-7".
func FormatID(id int) string {
	return "task-" + strconv.Itoa(id)
}

// ParseID parses a task reference. Both "7" and "task-7" are accepted.
func ParseID(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(s, "task-"))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: task id %q", ErrInvalidNumber, s)
	}
	return n, nil
}

// NewTask carries the caller-provided fields for Store.Create.
type NewTask struct {
	Title              string
	Description        string
	AcceptanceCriteria string
	BlockedBy          []int
}

// UpdateOpts specifies which fields Store.Update replaces. Nil fields are
// left unchanged.
type UpdateOpts struct {
	Title              *string
	Description        *string
	AcceptanceCriteria *string // "" clears
}

// Store is the interface for task persistence. Every method is one
// load-apply-persist unit: either the whole mutation is persisted or none
// of it is. Implementations assign ids with NextID, start tasks Open with
// zero pain, and keep creation order.
type Store interface {
	// Create persists a new task and returns it. Returns ErrInvalidTitle
	// for an empty or multi-line title and ErrNotFound (wrapped) if a
	// blocker id does not exist.
	Create(nt NewTask) (Task, error)

	// Get retrieves a task by id. Returns ErrNotFound (wrapped) if absent.
	Get(id int) (Task, error)

	// List returns tasks in creation order. With a non-empty filter only
	// tasks whose status is in the filter are returned.
	List(filter ...Status) ([]Task, error)

	// SetStatus moves a task to any status. No transition is forbidden.
	SetStatus(id int, s Status) (Task, error)

	// Update replaces the non-nil fields of opts.
	Update(id int, opts UpdateOpts) (Task, error)

	// IncrementPain adds one to the task's pain count. The note is
	// recorded in the event log; it is not stored on the task.
	IncrementPain(id int, note string) (Task, error)

	// AddBlocker records that blocker must be done before id is ready.
	// Adding an existing edge is a no-op. Returns ErrNotFound if either
	// task is missing, ErrSelfBlock or ErrCycle for invalid edges.
	AddBlocker(id, blocker int) error

	// RemoveBlocker drops the edge. Removing a missing edge is a no-op.
	RemoveBlocker(id, blocker int) error

	// Delete removes a task. Its id is never reissued and other tasks'
	// blockers that reference it are left in place (they resolve).
	Delete(id int) error

	// Ready returns every open task whose blockers are all done or gone.
	Ready() ([]Task, error)

	// Next returns the ready task to work on first, or false if none is
	// ready.
	Next() (Task, bool, error)
}

// validateTitle enforces the non-empty, single-line title rule.
func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is empty", ErrInvalidTitle)
	}
	if strings.ContainsAny(title, "\r\n") {
		return fmt.Errorf("%w: title must be a single line", ErrInvalidTitle)
	}
	return nil
}
