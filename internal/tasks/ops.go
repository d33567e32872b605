package tasks

import (
	"context"
	"time"

	"github.com/knechtdev/knecht/internal/events"
	"github.com/knechtdev/knecht/internal/telemetry"
)

// DefaultActor is the event actor when none is configured.
const DefaultActor = "human"

// backend is the storage half of a Store: it hands a ledger to fn under
// whatever exclusion and persistence the implementation provides. update
// persists only when fn succeeds and reports a change, then calls committed
// before releasing its exclusion, so events land in commit order.
type backend interface {
	view(fn func(l *ledger) error) error
	update(fn func(l *ledger) (bool, error), committed func()) error
}

// ops implements every Store method on top of a backend, recording an event
// for each persisted mutation and a telemetry sample for every call.
type ops struct {
	b     backend
	rec   events.Recorder
	actor string
}

// Option configures a Store.
type Option func(*options)

type options struct {
	rec         events.Recorder
	actor       string
	lockTimeout time.Duration
	locking     bool
}

func buildOptions(opts []Option) options {
	o := options{rec: events.Discard, actor: DefaultActor}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithRecorder sends an event for every successful mutation to rec.
func WithRecorder(rec events.Recorder) Option {
	return func(o *options) {
		if rec != nil {
			o.rec = rec
		}
	}
}

// WithActor sets the actor recorded on events.
func WithActor(actor string) Option {
	return func(o *options) {
		if actor != "" {
			o.actor = actor
		}
	}
}

// WithLock enables the cross-process advisory lock with the given timeout.
// A zero timeout leaves locking off. MemStore ignores it.
func WithLock(timeout time.Duration) Option {
	return func(o *options) {
		o.locking = timeout > 0
		o.lockTimeout = timeout
	}
}

func (o *ops) observe(op string, start time.Time, err error) {
	ms := float64(time.Since(start).Microseconds()) / 1000
	telemetry.RecordStoreOp(context.Background(), op, ms, err)
}

func (o *ops) record(typ string, id int, msg string) {
	o.rec.Record(events.Event{
		Type:    typ,
		Actor:   o.actor,
		Subject: FormatID(id),
		Message: msg,
	})
}

// mutate runs fn as one load-apply-persist unit. fn returns whether it
// changed anything; committed runs only after a change is persisted.
func (o *ops) mutate(op string, fn func(l *ledger) (bool, error), committed func()) (err error) {
	start := time.Now()
	defer func() { o.observe(op, start, err) }()
	return o.b.update(fn, committed)
}

func (o *ops) query(op string, fn func(l *ledger) error) (err error) {
	start := time.Now()
	defer func() { o.observe(op, start, err) }()
	return o.b.view(fn)
}

// Create persists a new open task.
func (o *ops) Create(nt NewTask) (Task, error) {
	var t Task
	err := o.mutate("create", func(l *ledger) (bool, error) {
		var err error
		t, err = l.create(nt)
		return err == nil, err
	}, func() {
		o.record(events.TaskCreated, t.ID, t.Title)
		for _, b := range t.BlockedBy {
			o.record(events.TaskBlocked, t.ID, FormatID(b))
		}
	})
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

// Get returns the task with the given id.
func (o *ops) Get(id int) (Task, error) {
	var t Task
	err := o.query("get", func(l *ledger) error {
		var err error
		t, err = l.get(id)
		return err
	})
	return t, err
}

// List returns tasks in creation order, optionally filtered by status.
func (o *ops) List(filter ...Status) ([]Task, error) {
	var ts []Task
	err := o.query("list", func(l *ledger) error {
		ts = l.list(filter)
		return nil
	})
	return ts, err
}

// SetStatus moves a task to s.
func (o *ops) SetStatus(id int, s Status) (Task, error) {
	var t Task
	err := o.mutate("set_status", func(l *ledger) (bool, error) {
		prev, err := l.get(id)
		if err != nil {
			return false, err
		}
		t, err = l.setStatus(id, s)
		return err == nil && prev.Status != s, err
	}, func() {
		o.record(events.TaskStatus, id, string(s))
	})
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

// Update replaces the non-nil fields of opts.
func (o *ops) Update(id int, opts UpdateOpts) (Task, error) {
	var t Task
	err := o.mutate("update", func(l *ledger) (bool, error) {
		prev, err := l.get(id)
		if err != nil {
			return false, err
		}
		t, err = l.update(id, opts)
		changed := prev.Title != t.Title || prev.Description != t.Description ||
			prev.AcceptanceCriteria != t.AcceptanceCriteria
		return err == nil && changed, err
	}, func() {
		o.record(events.TaskUpdated, id, t.Title)
	})
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

// IncrementPain bumps the pain count and logs note as the event message.
func (o *ops) IncrementPain(id int, note string) (Task, error) {
	var t Task
	err := o.mutate("increment_pain", func(l *ledger) (bool, error) {
		var err error
		t, err = l.incrementPain(id)
		return err == nil, err
	}, func() {
		o.record(events.TaskPain, id, note)
	})
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

// AddBlocker records that blocker must be done before id is ready.
func (o *ops) AddBlocker(id, blocker int) error {
	return o.mutate("add_blocker", func(l *ledger) (bool, error) {
		return l.addBlocker(id, blocker)
	}, func() {
		o.record(events.TaskBlocked, id, FormatID(blocker))
	})
}

// RemoveBlocker drops the edge from id to blocker.
func (o *ops) RemoveBlocker(id, blocker int) error {
	return o.mutate("remove_blocker", func(l *ledger) (bool, error) {
		return l.removeBlocker(id, blocker)
	}, func() {
		o.record(events.TaskUnblocked, id, FormatID(blocker))
	})
}

// Delete removes a task; its id is never reissued.
func (o *ops) Delete(id int) error {
	var title string
	return o.mutate("delete", func(l *ledger) (bool, error) {
		t, err := l.get(id)
		if err != nil {
			return false, err
		}
		title = t.Title
		return true, l.delete(id)
	}, func() {
		o.record(events.TaskDeleted, id, title)
	})
}

// Ready returns every open task whose blockers are resolved.
func (o *ops) Ready() ([]Task, error) {
	var ts []Task
	err := o.query("ready", func(l *ledger) error {
		ts = Ready(l.tasks)
		return nil
	})
	return ts, err
}

// Next returns the ready task with the highest pain, lowest id first.
func (o *ops) Next() (Task, bool, error) {
	var t Task
	var ok bool
	err := o.query("next", func(l *ledger) error {
		t, ok = PickNext(Ready(l.tasks))
		return nil
	})
	return t, ok, err
}
