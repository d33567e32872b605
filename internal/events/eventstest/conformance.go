// Package eventstest provides a conformance test suite for events.Provider
// implementations. Each implementation's test file calls RunProviderTests
// with its own factory function.
package eventstest

import (
	"sync"
	"testing"
	"time"

	"github.com/knechtdev/knecht/internal/events"
)

// RunProviderTests runs the core conformance suite against a Provider
// implementation. newProvider must return a fresh, empty provider and a
// cleanup closure.
func RunProviderTests(t *testing.T, newProvider func(t *testing.T) (events.Provider, func())) {
	t.Helper()

	t.Run("RecordAndListRoundTrip", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		p.Record(events.Event{
			Type:    events.TaskPain,
			Actor:   "human",
			Subject: "task-1",
			Message: "hit this again during deploy",
		})

		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("List returned %d events, want 1", len(got))
		}
		e := got[0]
		if e.Type != events.TaskPain {
			t.Errorf("Type = %q, want %q", e.Type, events.TaskPain)
		}
		if e.Actor != "human" {
			t.Errorf("Actor = %q, want %q", e.Actor, "human")
		}
		if e.Subject != "task-1" {
			t.Errorf("Subject = %q, want %q", e.Subject, "task-1")
		}
		if e.Message != "hit this again during deploy" {
			t.Errorf("Message = %q", e.Message)
		}
	})

	t.Run("RecordAutoFillsSeq", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		p.Record(events.Event{Type: events.TaskCreated, Actor: "human"})
		p.Record(events.Event{Type: events.TaskStatus, Actor: "human"})

		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("List returned %d events, want 2", len(got))
		}
		if got[0].Seq == 0 {
			t.Error("first event Seq is 0, want non-zero")
		}
		if got[1].Seq <= got[0].Seq {
			t.Errorf("Seq not monotonically increasing: %d <= %d", got[1].Seq, got[0].Seq)
		}
	})

	t.Run("RecordAutoFillsTimestamp", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		before := time.Now().Add(-time.Second)
		p.Record(events.Event{Type: events.TaskCreated, Actor: "human"})

		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("List returned %d events, want 1", len(got))
		}
		if got[0].Ts.Before(before) {
			t.Errorf("Ts = %v, want after %v", got[0].Ts, before)
		}
	})

	t.Run("RecordPreservesExplicitTimestamp", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		ts := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
		p.Record(events.Event{Type: events.TaskCreated, Actor: "human", Ts: ts})

		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("List returned %d events, want 1", len(got))
		}
		if !got[0].Ts.Equal(ts) {
			t.Errorf("Ts = %v, want %v", got[0].Ts, ts)
		}
	})

	t.Run("ListEmptyProvider", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("List returned %d events, want 0", len(got))
		}
	})

	t.Run("ListFilterByType", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		p.Record(events.Event{Type: events.TaskCreated, Actor: "human", Subject: "task-1"})
		p.Record(events.Event{Type: events.TaskPain, Actor: "human", Subject: "task-1"})
		p.Record(events.Event{Type: events.TaskCreated, Actor: "human", Subject: "task-2"})

		got, err := p.List(events.Filter{Type: events.TaskCreated})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("List returned %d events, want 2", len(got))
		}
		for _, e := range got {
			if e.Type != events.TaskCreated {
				t.Errorf("unexpected type %q", e.Type)
			}
		}
	})

	t.Run("ListFilterByActorAndSubject", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		p.Record(events.Event{Type: events.TaskCreated, Actor: "human", Subject: "task-1"})
		p.Record(events.Event{Type: events.TaskCreated, Actor: "agent", Subject: "task-2"})
		p.Record(events.Event{Type: events.TaskStatus, Actor: "agent", Subject: "task-1"})

		got, err := p.List(events.Filter{Actor: "agent", Subject: "task-1"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("List returned %d events, want 1", len(got))
		}
		if got[0].Type != events.TaskStatus {
			t.Errorf("Type = %q, want %q", got[0].Type, events.TaskStatus)
		}
	})

	t.Run("ListFilterAfterSeq", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		for range 3 {
			p.Record(events.Event{Type: events.TaskCreated, Actor: "human"})
		}
		all, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		got, err := p.List(events.Filter{AfterSeq: all[0].Seq})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("List returned %d events, want 2", len(got))
		}
	})

	t.Run("ListNoMatch", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		p.Record(events.Event{Type: events.TaskCreated, Actor: "human"})
		got, err := p.List(events.Filter{Type: events.TaskDeleted})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("List returned %d events, want 0", len(got))
		}
	})
}

// RunConcurrencyTests checks that concurrent Record calls lose nothing and
// produce unique sequence numbers.
func RunConcurrencyTests(t *testing.T, newProvider func(t *testing.T) (events.Provider, func())) {
	t.Helper()

	t.Run("ConcurrentRecord", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		const n = 50
		var wg sync.WaitGroup
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.Record(events.Event{Type: events.TaskCreated, Actor: "human"})
			}()
		}
		wg.Wait()

		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != n {
			t.Fatalf("List returned %d events, want %d", len(got), n)
		}
		seen := make(map[uint64]bool, n)
		for _, e := range got {
			if seen[e.Seq] {
				t.Errorf("duplicate Seq %d", e.Seq)
			}
			seen[e.Seq] = true
		}
	})
}
