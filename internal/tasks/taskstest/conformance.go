// Package taskstest provides a conformance test suite for tasks.Store
// implementations. Each implementation's test file calls RunStoreTests
// with its own factory function.
package taskstest

import (
	"errors"
	"slices"
	"testing"

	"github.com/knechtdev/knecht/internal/tasks"
)

// RunStoreTests runs the full conformance suite against a Store
// implementation. newStore must return a fresh, empty store for each call.
func RunStoreTests(t *testing.T, newStore func() tasks.Store) {
	t.Helper()

	t.Run("CreateAssignsSequentialIDs", func(t *testing.T) {
		s := newStore()
		a := mustCreate(t, s, "first")
		b := mustCreate(t, s, "second")
		if a.ID != 1 || b.ID != 2 {
			t.Errorf("ids = %d, %d, want 1, 2", a.ID, b.ID)
		}
	})

	t.Run("CreateStartsOpenWithZeroPain", func(t *testing.T) {
		s := newStore()
		got, err := s.Create(tasks.NewTask{Title: "Write docs", Description: "the CLI reference"})
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != tasks.StatusOpen {
			t.Errorf("Status = %q, want %q", got.Status, tasks.StatusOpen)
		}
		if got.PainCount != 0 {
			t.Errorf("PainCount = %d, want 0", got.PainCount)
		}
		if got.Description != "the CLI reference" {
			t.Errorf("Description = %q", got.Description)
		}
	})

	t.Run("CreateRejectsInvalidTitle", func(t *testing.T) {
		s := newStore()
		for _, title := range []string{"", "   ", "two\nlines"} {
			if _, err := s.Create(tasks.NewTask{Title: title}); !errors.Is(err, tasks.ErrInvalidTitle) {
				t.Errorf("Create(%q) error = %v, want ErrInvalidTitle", title, err)
			}
		}
		all := mustList(t, s)
		if len(all) != 0 {
			t.Errorf("rejected creates left %d tasks", len(all))
		}
	})

	t.Run("CreateWithBlockers", func(t *testing.T) {
		s := newStore()
		a := mustCreate(t, s, "A")
		b := mustCreate(t, s, "B")
		c, err := s.Create(tasks.NewTask{Title: "C", BlockedBy: []int{b.ID, a.ID, b.ID}})
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(c.BlockedBy, []int{1, 2}) {
			t.Errorf("BlockedBy = %v, want [1 2]", c.BlockedBy)
		}
		got := mustGet(t, s, c.ID)
		if !slices.Equal(got.BlockedBy, []int{1, 2}) {
			t.Errorf("persisted BlockedBy = %v, want [1 2]", got.BlockedBy)
		}
	})

	t.Run("CreateUnknownBlocker", func(t *testing.T) {
		s := newStore()
		if _, err := s.Create(tasks.NewTask{Title: "A", BlockedBy: []int{9}}); !errors.Is(err, tasks.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s := newStore()
		if _, err := s.Get(42); !errors.Is(err, tasks.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ListKeepsCreationOrderAndFilters", func(t *testing.T) {
		s := newStore()
		mustCreate(t, s, "one")
		mustCreate(t, s, "two")
		mustCreate(t, s, "three")
		if _, err := s.SetStatus(2, tasks.StatusDone); err != nil {
			t.Fatal(err)
		}
		if _, err := s.SetStatus(3, tasks.StatusDelivered); err != nil {
			t.Fatal(err)
		}

		all := mustList(t, s)
		if got := ids(all); !slices.Equal(got, []int{1, 2, 3}) {
			t.Errorf("List() ids = %v, want [1 2 3]", got)
		}
		open, err := s.List(tasks.StatusOpen)
		if err != nil {
			t.Fatal(err)
		}
		if got := ids(open); !slices.Equal(got, []int{1}) {
			t.Errorf("List(open) ids = %v, want [1]", got)
		}
		closed, err := s.List(tasks.StatusDone, tasks.StatusDelivered)
		if err != nil {
			t.Fatal(err)
		}
		if got := ids(closed); !slices.Equal(got, []int{2, 3}) {
			t.Errorf("List(done, delivered) ids = %v, want [2 3]", got)
		}
	})

	t.Run("SetStatusAllowsAnyTransition", func(t *testing.T) {
		s := newStore()
		mustCreate(t, s, "A")
		for _, st := range []tasks.Status{tasks.StatusDone, tasks.StatusOpen, tasks.StatusDelivered, tasks.StatusDone} {
			got, err := s.SetStatus(1, st)
			if err != nil {
				t.Fatalf("SetStatus(%q): %v", st, err)
			}
			if got.Status != st {
				t.Errorf("Status = %q, want %q", got.Status, st)
			}
		}
		if got := mustGet(t, s, 1); got.Status != tasks.StatusDone {
			t.Errorf("persisted Status = %q, want done", got.Status)
		}
	})

	t.Run("SetStatusErrors", func(t *testing.T) {
		s := newStore()
		mustCreate(t, s, "A")
		if _, err := s.SetStatus(7, tasks.StatusDone); !errors.Is(err, tasks.ErrNotFound) {
			t.Errorf("missing task error = %v, want ErrNotFound", err)
		}
		if _, err := s.SetStatus(1, "closed"); !errors.Is(err, tasks.ErrUnknownStatus) {
			t.Errorf("bad status error = %v, want ErrUnknownStatus", err)
		}
	})

	t.Run("UpdateReplacesOnlyGivenFields", func(t *testing.T) {
		s := newStore()
		if _, err := s.Create(tasks.NewTask{Title: "old", Description: "keep me"}); err != nil {
			t.Fatal(err)
		}
		title := "new"
		got, err := s.Update(1, tasks.UpdateOpts{Title: &title})
		if err != nil {
			t.Fatal(err)
		}
		if got.Title != "new" || got.Description != "keep me" {
			t.Errorf("got %q/%q, want new/keep me", got.Title, got.Description)
		}
		desc := ""
		if _, err := s.Update(1, tasks.UpdateOpts{Description: &desc}); err != nil {
			t.Fatal(err)
		}
		if got := mustGet(t, s, 1); got.Description != "" {
			t.Errorf("Description = %q, want empty", got.Description)
		}
	})

	t.Run("AcceptanceCriteria", func(t *testing.T) {
		s := newStore()
		criteria := "reviewed,\n\"signed off\" | merged"
		if _, err := s.Create(tasks.NewTask{Title: "T", AcceptanceCriteria: criteria}); err != nil {
			t.Fatal(err)
		}
		if got := mustGet(t, s, 1); got.AcceptanceCriteria != criteria {
			t.Errorf("AcceptanceCriteria = %q, want %q", got.AcceptanceCriteria, criteria)
		}
		title := "T2"
		if _, err := s.Update(1, tasks.UpdateOpts{Title: &title}); err != nil {
			t.Fatal(err)
		}
		if got := mustGet(t, s, 1); got.AcceptanceCriteria != criteria {
			t.Errorf("title update dropped criteria: %q", got.AcceptanceCriteria)
		}
		empty := ""
		if _, err := s.Update(1, tasks.UpdateOpts{AcceptanceCriteria: &empty}); err != nil {
			t.Fatal(err)
		}
		if got := mustGet(t, s, 1); got.AcceptanceCriteria != "" {
			t.Errorf("AcceptanceCriteria = %q, want empty", got.AcceptanceCriteria)
		}
	})

	t.Run("UpdateInvalidTitleChangesNothing", func(t *testing.T) {
		s := newStore()
		mustCreate(t, s, "stable")
		bad, desc := "", "changed"
		if _, err := s.Update(1, tasks.UpdateOpts{Title: &bad, Description: &desc}); !errors.Is(err, tasks.ErrInvalidTitle) {
			t.Fatalf("error = %v, want ErrInvalidTitle", err)
		}
		got := mustGet(t, s, 1)
		if got.Title != "stable" || got.Description != "" {
			t.Errorf("task changed after failed update: %+v", got)
		}
	})

	t.Run("IncrementPain", func(t *testing.T) {
		s := newStore()
		mustCreate(t, s, "A")
		for i := 1; i <= 3; i++ {
			got, err := s.IncrementPain(1, "slow")
			if err != nil {
				t.Fatal(err)
			}
			if got.PainCount != i {
				t.Errorf("PainCount = %d, want %d", got.PainCount, i)
			}
		}
		if _, err := s.IncrementPain(5, "x"); !errors.Is(err, tasks.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("AddBlocker", func(t *testing.T) {
		s := newStore()
		mustCreate(t, s, "A")
		mustCreate(t, s, "B")
		if err := s.AddBlocker(2, 1); err != nil {
			t.Fatal(err)
		}
		if err := s.AddBlocker(2, 1); err != nil {
			t.Fatalf("duplicate edge should be a no-op, got %v", err)
		}
		if got := mustGet(t, s, 2); !slices.Equal(got.BlockedBy, []int{1}) {
			t.Errorf("BlockedBy = %v, want [1]", got.BlockedBy)
		}
	})

	t.Run("AddBlockerErrors", func(t *testing.T) {
		s := newStore()
		mustCreate(t, s, "A")
		mustCreate(t, s, "B")
		mustCreate(t, s, "C")
		if err := s.AddBlocker(1, 9); !errors.Is(err, tasks.ErrNotFound) {
			t.Errorf("missing blocker error = %v, want ErrNotFound", err)
		}
		if err := s.AddBlocker(9, 1); !errors.Is(err, tasks.ErrNotFound) {
			t.Errorf("missing task error = %v, want ErrNotFound", err)
		}
		if err := s.AddBlocker(1, 1); !errors.Is(err, tasks.ErrSelfBlock) {
			t.Errorf("self edge error = %v, want ErrSelfBlock", err)
		}
		// 3 waits on 2 waits on 1; 1 waiting on 3 closes the loop.
		if err := s.AddBlocker(3, 2); err != nil {
			t.Fatal(err)
		}
		if err := s.AddBlocker(2, 1); err != nil {
			t.Fatal(err)
		}
		if err := s.AddBlocker(1, 3); !errors.Is(err, tasks.ErrCycle) {
			t.Errorf("cycle error = %v, want ErrCycle", err)
		}
		if got := mustGet(t, s, 1); len(got.BlockedBy) != 0 {
			t.Errorf("rejected edge persisted: %v", got.BlockedBy)
		}
	})

	t.Run("RemoveBlocker", func(t *testing.T) {
		s := newStore()
		mustCreate(t, s, "A")
		if _, err := s.Create(tasks.NewTask{Title: "B", BlockedBy: []int{1}}); err != nil {
			t.Fatal(err)
		}
		if err := s.RemoveBlocker(2, 1); err != nil {
			t.Fatal(err)
		}
		if got := mustGet(t, s, 2); len(got.BlockedBy) != 0 {
			t.Errorf("BlockedBy = %v, want empty", got.BlockedBy)
		}
		if err := s.RemoveBlocker(2, 1); err != nil {
			t.Errorf("removing a missing edge should be a no-op, got %v", err)
		}
		if err := s.RemoveBlocker(8, 1); !errors.Is(err, tasks.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("DeleteNeverReusesID", func(t *testing.T) {
		s := newStore()
		mustCreate(t, s, "A")
		mustCreate(t, s, "B")
		if err := s.Delete(2); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Get(2); !errors.Is(err, tasks.ErrNotFound) {
			t.Errorf("Get after delete error = %v, want ErrNotFound", err)
		}
		c := mustCreate(t, s, "C")
		if c.ID != 3 {
			t.Errorf("id after deleting the newest task = %d, want 3", c.ID)
		}
		if err := s.Delete(2); !errors.Is(err, tasks.ErrNotFound) {
			t.Errorf("second delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("DeletedBlockerResolves", func(t *testing.T) {
		s := newStore()
		mustCreate(t, s, "A")
		if _, err := s.Create(tasks.NewTask{Title: "B", BlockedBy: []int{1}}); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(1); err != nil {
			t.Fatal(err)
		}
		b := mustGet(t, s, 2)
		if !slices.Equal(b.BlockedBy, []int{1}) {
			t.Errorf("BlockedBy = %v, want dangling [1] kept", b.BlockedBy)
		}
		ready, err := s.Ready()
		if err != nil {
			t.Fatal(err)
		}
		if got := ids(ready); !slices.Equal(got, []int{2}) {
			t.Errorf("Ready ids = %v, want [2]", got)
		}
	})

	t.Run("ReadyExcludesOpenAndDeliveredBlockers", func(t *testing.T) {
		s := newStore()
		mustCreate(t, s, "A")
		if _, err := s.Create(tasks.NewTask{Title: "B", BlockedBy: []int{1}}); err != nil {
			t.Fatal(err)
		}
		mustCreate(t, s, "C")
		if _, err := s.SetStatus(3, tasks.StatusDelivered); err != nil {
			t.Fatal(err)
		}

		ready, err := s.Ready()
		if err != nil {
			t.Fatal(err)
		}
		if got := ids(ready); !slices.Equal(got, []int{1}) {
			t.Fatalf("Ready ids = %v, want [1]", got)
		}
		if _, err := s.SetStatus(1, tasks.StatusDelivered); err != nil {
			t.Fatal(err)
		}
		ready, err = s.Ready()
		if err != nil {
			t.Fatal(err)
		}
		if len(ready) != 0 {
			t.Errorf("delivered blocker should not resolve; Ready = %v", ids(ready))
		}
	})

	t.Run("NextPrefersPainThenLowestID", func(t *testing.T) {
		s := newStore()
		// Tasks 4 and 5 tie on pain; the lower id wins.
		pains := []int{10, 20, 5, 30, 30}
		for range pains {
			mustCreate(t, s, "task")
		}
		for i, p := range pains {
			for range p {
				if _, err := s.IncrementPain(i+1, ""); err != nil {
					t.Fatal(err)
				}
			}
		}
		got, ok, err := s.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok || got.ID != 4 {
			t.Errorf("Next = %d (ok=%v), want task 4", got.ID, ok)
		}
	})

	t.Run("NextEmpty", func(t *testing.T) {
		s := newStore()
		if _, ok, err := s.Next(); err != nil || ok {
			t.Errorf("Next on empty store = ok %v, err %v; want false, nil", ok, err)
		}
	})

	t.Run("EndToEndScenario", func(t *testing.T) {
		s := newStore()
		a := mustCreate(t, s, "A")
		if a.ID != 1 || a.Status != tasks.StatusOpen || a.PainCount != 0 {
			t.Fatalf("A = %+v", a)
		}
		b, err := s.Create(tasks.NewTask{Title: "B", BlockedBy: []int{1}})
		if err != nil {
			t.Fatal(err)
		}
		if b.ID != 2 {
			t.Fatalf("B id = %d, want 2", b.ID)
		}
		ready, err := s.Ready()
		if err != nil {
			t.Fatal(err)
		}
		if got := ids(ready); !slices.Equal(got, []int{1}) {
			t.Fatalf("Ready ids = %v, want [1]", got)
		}
		if _, err := s.SetStatus(1, tasks.StatusDone); err != nil {
			t.Fatal(err)
		}
		ready, err = s.Ready()
		if err != nil {
			t.Fatal(err)
		}
		if got := ids(ready); !slices.Equal(got, []int{2}) {
			t.Fatalf("Ready ids = %v, want [2]", got)
		}
		for range 3 {
			if _, err := s.IncrementPain(2, "slow"); err != nil {
				t.Fatal(err)
			}
		}
		if got := mustGet(t, s, 2); got.PainCount != 3 {
			t.Errorf("PainCount = %d, want 3", got.PainCount)
		}
		next, ok, err := s.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok || next.ID != 2 {
			t.Errorf("Next = %d (ok=%v), want 2", next.ID, ok)
		}
	})

	t.Run("ReturnedTasksAreCopies", func(t *testing.T) {
		s := newStore()
		mustCreate(t, s, "A")
		if _, err := s.Create(tasks.NewTask{Title: "B", BlockedBy: []int{1}}); err != nil {
			t.Fatal(err)
		}
		got := mustGet(t, s, 2)
		got.BlockedBy[0] = 99
		if again := mustGet(t, s, 2); again.BlockedBy[0] != 1 {
			t.Errorf("caller mutation leaked into store: %v", again.BlockedBy)
		}
	})
}

func mustCreate(t *testing.T, s tasks.Store, title string) tasks.Task {
	t.Helper()
	got, err := s.Create(tasks.NewTask{Title: title})
	if err != nil {
		t.Fatalf("Create(%q): %v", title, err)
	}
	return got
}

func mustGet(t *testing.T, s tasks.Store, id int) tasks.Task {
	t.Helper()
	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get(%d): %v", id, err)
	}
	return got
}

func mustList(t *testing.T, s tasks.Store) []tasks.Task {
	t.Helper()
	got, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return got
}

func ids(ts []tasks.Task) []int {
	out := make([]int, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}
