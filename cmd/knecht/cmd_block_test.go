package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/knechtdev/knecht/internal/events"
)

func TestDoBlock(t *testing.T) {
	store, rec := newTestStore(t, "Task A", "Task B")
	var stdout, stderr bytes.Buffer

	if code := doBlock(store, []string{"task-1", "by", "task-2"}, &stdout, &stderr); code != 0 {
		t.Fatalf("doBlock = %d; stderr: %s", code, stderr.String())
	}
	if got, want := stdout.String(), "Blocker added: task-1 is blocked by task-2\n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
	if tk := mustGetTask(t, store, 1); len(tk.BlockedBy) != 1 || tk.BlockedBy[0] != 2 {
		t.Errorf("BlockedBy = %v, want [2]", tk.BlockedBy)
	}
	blocked, _ := rec.List(events.Filter{Type: events.TaskBlocked})
	if len(blocked) != 1 || blocked[0].Subject != "task-1" || blocked[0].Message != "task-2" {
		t.Errorf("blocked events = %+v", blocked)
	}
}

func TestDoBlockErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"wrong keyword", []string{"task-1", "on", "task-2"}, "Usage: knecht block <task-id> by <blocker-id>"},
		{"too few", []string{"task-1", "by"}, "Usage: knecht block"},
		{"missing task", []string{"task-999", "by", "task-1"}, "not found"},
		{"missing blocker", []string{"task-1", "by", "task-999"}, "not found"},
		{"self", []string{"task-1", "by", "task-1"}, "cannot block itself"},
		{"cycle", []string{"task-2", "by", "task-3"}, "cycle"},
		{"bad id", []string{"one", "by", "task-2"}, "invalid number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t, "A", "B", "C")
			// task-3 waits on task-2, so task-2 by task-3 closes a loop.
			if err := store.AddBlocker(3, 2); err != nil {
				t.Fatal(err)
			}
			var stderr bytes.Buffer
			if code := doBlock(store, tt.args, &bytes.Buffer{}, &stderr); code != 1 {
				t.Errorf("doBlock = %d, want 1", code)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Errorf("stderr = %q, want %q", stderr.String(), tt.want)
			}
		})
	}
}

func TestDoUnblock(t *testing.T) {
	store, _ := newTestStore(t, "Blocked Task", "Blocker Task")
	if err := store.AddBlocker(1, 2); err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	if code := doUnblock(store, []string{"task-1", "from", "task-2"}, &stdout, &stderr); code != 0 {
		t.Fatalf("doUnblock = %d; stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Blocker removed") {
		t.Errorf("stdout = %q", stdout.String())
	}

	// The task can be started once the edge is gone.
	if code := doStart(store, "task-1", &bytes.Buffer{}, &bytes.Buffer{}); code != 0 {
		t.Errorf("doStart after unblock = %d, want 0", code)
	}
}

func TestDoUnblockMissingEdge(t *testing.T) {
	store, _ := newTestStore(t, "A", "B")
	var stderr bytes.Buffer
	if code := doUnblock(store, []string{"task-1", "from", "task-2"}, &bytes.Buffer{}, &stderr); code != 1 {
		t.Errorf("doUnblock = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "task-1 is not blocked by task-2") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestDoUnblockUsage(t *testing.T) {
	store, _ := newTestStore(t, "A", "B")
	var stderr bytes.Buffer
	if code := doUnblock(store, []string{"task-1", "by", "task-2"}, &bytes.Buffer{}, &stderr); code != 1 {
		t.Errorf("doUnblock = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "Usage: knecht unblock <task-id> from <blocker-id>") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
