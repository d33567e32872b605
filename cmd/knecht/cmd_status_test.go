package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/knechtdev/knecht/internal/tasks"
)

func TestDoSetStatus(t *testing.T) {
	tests := []struct {
		name   string
		from   tasks.Status
		target tasks.Status
	}{
		{"done", tasks.StatusOpen, tasks.StatusDone},
		{"deliver", tasks.StatusOpen, tasks.StatusDelivered},
		{"reopen", tasks.StatusDone, tasks.StatusOpen},
		{"done", tasks.StatusDelivered, tasks.StatusDone},
		{"reopen", tasks.StatusDelivered, tasks.StatusOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/from-"+string(tt.from), func(t *testing.T) {
			store, _ := newTestStore(t, "Write tests")
			if _, err := store.SetStatus(1, tt.from); err != nil {
				t.Fatal(err)
			}
			var stdout, stderr bytes.Buffer
			if code := doSetStatus(store, tt.name, "task-1", tt.target, &stdout, &stderr); code != 0 {
				t.Fatalf("doSetStatus = %d; stderr: %s", code, stderr.String())
			}
			if got, want := stdout.String(), "✓ task-1: Write tests\n"; got != want {
				t.Errorf("stdout = %q, want %q", got, want)
			}
			if tk := mustGetTask(t, store, 1); tk.Status != tt.target {
				t.Errorf("Status = %q, want %q", tk.Status, tt.target)
			}
		})
	}
}

func TestDoDeliverRefusesFinishedTasks(t *testing.T) {
	for _, st := range []tasks.Status{tasks.StatusDelivered, tasks.StatusDone} {
		t.Run(string(st), func(t *testing.T) {
			store, _ := newTestStore(t, "T")
			if _, err := store.SetStatus(1, st); err != nil {
				t.Fatal(err)
			}
			var stderr bytes.Buffer
			if code := doSetStatus(store, "deliver", "task-1", tasks.StatusDelivered, &bytes.Buffer{}, &stderr); code != 1 {
				t.Errorf("deliver = %d, want 1", code)
			}
			if want := "already " + string(st); !strings.Contains(stderr.String(), want) {
				t.Errorf("stderr = %q, want %q", stderr.String(), want)
			}
		})
	}
}

func TestDoSetStatusErrors(t *testing.T) {
	store, _ := newTestStore(t)
	var stderr bytes.Buffer
	if code := doSetStatus(store, "done", "task-99", tasks.StatusDone, &bytes.Buffer{}, &stderr); code != 1 {
		t.Errorf("done = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "knecht done:") || !strings.Contains(stderr.String(), "not found") {
		t.Errorf("stderr = %q", stderr.String())
	}

	stderr.Reset()
	if code := doSetStatus(store, "done", "abc", tasks.StatusDone, &bytes.Buffer{}, &stderr); code != 1 {
		t.Errorf("done abc = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "invalid number") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

// --- knecht start ---

func TestDoStartReady(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Create(tasks.NewTask{Title: "Implement feature X", Description: "X, Y and Z"}); err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	if code := doStart(store, "task-1", &stdout, &stderr); code != 0 {
		t.Fatalf("doStart = %d; stderr: %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"task-1: Implement feature X", "Description:", "X, Y and Z"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
}

func TestDoStartNoDescription(t *testing.T) {
	store, _ := newTestStore(t, "Simple task")
	var stdout bytes.Buffer
	if code := doStart(store, "1", &stdout, &bytes.Buffer{}); code != 0 {
		t.Fatalf("doStart = %d", code)
	}
	if strings.Contains(stdout.String(), "Description:") {
		t.Errorf("stdout shows empty description:\n%s", stdout.String())
	}
}

func TestDoStartBlocked(t *testing.T) {
	store, _ := newTestStore(t, "Blocker 1", "Blocker 2", "Done blocker")
	if _, err := store.SetStatus(3, tasks.StatusDone); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create(tasks.NewTask{Title: "Blocked", BlockedBy: []int{1, 2, 3}}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SetStatus(2, tasks.StatusDelivered); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := doStart(store, "task-4", &stdout, &stderr); code != 1 {
		t.Errorf("doStart = %d, want 1", code)
	}
	if got, want := stderr.String(), "Cannot start task-4: blocked by task-1, task-2\n"; got != want {
		t.Errorf("stderr = %q, want %q", got, want)
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout = %q, want empty", stdout.String())
	}
}

func TestDoStartDeletedBlockerResolves(t *testing.T) {
	store, _ := newTestStore(t, "Gone")
	if _, err := store.Create(tasks.NewTask{Title: "Waiting", BlockedBy: []int{1}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(1); err != nil {
		t.Fatal(err)
	}
	if code := doStart(store, "task-2", &bytes.Buffer{}, &bytes.Buffer{}); code != 0 {
		t.Errorf("doStart = %d, want 0", code)
	}
}

func TestDoStartNotOpen(t *testing.T) {
	store, _ := newTestStore(t, "T")
	if _, err := store.SetStatus(1, tasks.StatusDone); err != nil {
		t.Fatal(err)
	}
	var stderr bytes.Buffer
	if code := doStart(store, "task-1", &bytes.Buffer{}, &stderr); code != 1 {
		t.Errorf("doStart = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "already done") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestDoStartNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	var stderr bytes.Buffer
	if code := doStart(store, "task-999", &bytes.Buffer{}, &stderr); code != 1 {
		t.Errorf("doStart = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "task-999 not found") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
