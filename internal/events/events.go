// Package events provides the task ledger's audit trail.
//
// Events are simple, synchronous, append-only records of what happened to
// tasks. The recorder writes JSON lines to .knecht/events.jsonl; the reader
// scans them back. Recording is best-effort: errors are logged to stderr but
// never returned to callers.
package events

import "time"

// Event type constants, one per store mutation.
const (
	TaskCreated   = "task.created"
	TaskUpdated   = "task.updated"
	TaskStatus    = "task.status"
	TaskPain      = "task.pain"
	TaskBlocked   = "task.blocked"
	TaskUnblocked = "task.unblocked"
	TaskDeleted   = "task.deleted"
)

// Event is a single recorded occurrence in the ledger.
type Event struct {
	Seq     uint64    `json:"seq"`
	Type    string    `json:"type"`
	Ts      time.Time `json:"ts"`
	Actor   string    `json:"actor"`
	Subject string    `json:"subject,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Recorder records events. Safe for concurrent use. Best-effort.
type Recorder interface {
	Record(e Event)
}

// Provider is a Recorder that can also read its events back.
type Provider interface {
	Recorder
	List(filter Filter) ([]Event, error)
}

// Discard silently drops all events.
var Discard Recorder = discardRecorder{}

type discardRecorder struct{}

func (discardRecorder) Record(Event) {}
