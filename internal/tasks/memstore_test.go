package tasks_test

import (
	"testing"

	"github.com/knechtdev/knecht/internal/events"
	"github.com/knechtdev/knecht/internal/tasks"
	"github.com/knechtdev/knecht/internal/tasks/taskstest"
)

func TestMemStoreConformance(t *testing.T) {
	taskstest.RunStoreTests(t, func() tasks.Store {
		return tasks.NewMemStore()
	})
}

func TestMemStoreFromSeedKeepsHighWaterMark(t *testing.T) {
	s := tasks.NewMemStoreFrom(8, []tasks.Task{{ID: 3, Status: tasks.StatusOpen, Title: "seeded"}})
	got, err := s.Create(tasks.NewTask{Title: "next"})
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != 9 {
		t.Errorf("ID = %d, want 9", got.ID)
	}
}

func TestMemStoreRecordsEvents(t *testing.T) {
	rec := events.NewFake()
	s := tasks.NewMemStore(tasks.WithRecorder(rec), tasks.WithActor("agent-1"))

	if _, err := s.Create(tasks.NewTask{Title: "A"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(tasks.NewTask{Title: "B", BlockedBy: []int{1}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.IncrementPain(2, "flaky deploy"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetStatus(1, tasks.StatusDone); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetStatus(1, tasks.StatusDone); err != nil { // no change, no event
		t.Fatal(err)
	}
	if err := s.AddBlocker(2, 1); err != nil { // existing edge, no event
		t.Fatal(err)
	}
	if err := s.RemoveBlocker(2, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(1); err == nil { // failed reads record nothing
		t.Fatal("Get after delete succeeded")
	}

	want := []struct{ typ, subject, msg string }{
		{events.TaskCreated, "task-1", "A"},
		{events.TaskCreated, "task-2", "B"},
		{events.TaskBlocked, "task-2", "task-1"},
		{events.TaskPain, "task-2", "flaky deploy"},
		{events.TaskStatus, "task-1", "done"},
		{events.TaskUnblocked, "task-2", "task-1"},
		{events.TaskDeleted, "task-1", "A"},
	}
	if len(rec.Events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(rec.Events), len(want), rec.Events)
	}
	for i, w := range want {
		e := rec.Events[i]
		if e.Type != w.typ || e.Subject != w.subject || e.Message != w.msg {
			t.Errorf("event %d = %s %s %q, want %s %s %q", i, e.Type, e.Subject, e.Message, w.typ, w.subject, w.msg)
		}
		if e.Actor != "agent-1" {
			t.Errorf("event %d actor = %q, want agent-1", i, e.Actor)
		}
	}
}

func TestMemStoreFailedMutationRecordsNothing(t *testing.T) {
	rec := events.NewFake()
	s := tasks.NewMemStore(tasks.WithRecorder(rec))
	if _, err := s.Create(tasks.NewTask{Title: ""}); err == nil {
		t.Fatal("expected error")
	}
	if err := s.Delete(4); err == nil {
		t.Fatal("expected error")
	}
	if len(rec.Events) != 0 {
		t.Errorf("recorded %d events for failed mutations", len(rec.Events))
	}
}
