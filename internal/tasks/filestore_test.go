package tasks_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/knechtdev/knecht/internal/events"
	"github.com/knechtdev/knecht/internal/fsys"
	"github.com/knechtdev/knecht/internal/tasks"
	"github.com/knechtdev/knecht/internal/tasks/taskstest"
)

const dir = "/proj/.knecht"

func ledgerPath(name string) string { return filepath.Join(dir, name) }

func openFake(t *testing.T, f *fsys.Fake, opts ...tasks.Option) *tasks.FileStore {
	t.Helper()
	s, err := tasks.OpenFileStore(f, dir, opts...)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	return s
}

func TestFileStoreConformance(t *testing.T) {
	taskstest.RunStoreTests(t, func() tasks.Store {
		s, err := tasks.OpenFileStore(fsys.NewFake(), dir)
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestFileStoreConformanceOnDisk(t *testing.T) {
	taskstest.RunStoreTests(t, func() tasks.Store {
		s, err := tasks.OpenFileStore(fsys.OSFS{}, filepath.Join(t.TempDir(), ".knecht"), tasks.WithLock(time.Second))
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestFileStorePersistsAcrossOpens(t *testing.T) {
	f := fsys.NewFake()
	s1 := openFake(t, f)
	if _, err := s1.Create(tasks.NewTask{Title: "A", Description: "with, comma"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s1.Create(tasks.NewTask{Title: "B", BlockedBy: []int{1}}); err != nil {
		t.Fatal(err)
	}

	s2 := openFake(t, f)
	b, err := s2.Get(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.BlockedBy) != 1 || b.BlockedBy[0] != 1 {
		t.Errorf("BlockedBy = %v, want [1]", b.BlockedBy)
	}

	wantTasks := "1,open,\"A\",\"with, comma\",0\n2,open,\"B\",\"\",0\n"
	if got := string(f.Files[ledgerPath(tasks.TasksFile)]); got != wantTasks {
		t.Errorf("tasks file = %q, want %q", got, wantTasks)
	}
	if got := string(f.Files[ledgerPath(tasks.BlockersFile)]); got != "task-2|task-1\n" {
		t.Errorf("blockers file = %q", got)
	}
	if got := string(f.Files[ledgerPath(tasks.SeqFile)]); got != "2\n" {
		t.Errorf("seq file = %q, want \"2\\n\"", got)
	}
}

func TestFileStoreIDsStayMonotonicAfterDeletingMax(t *testing.T) {
	f := fsys.NewFake()
	s := openFake(t, f)
	for _, title := range []string{"A", "B", "C"} {
		if _, err := s.Create(tasks.NewTask{Title: title}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Delete(3); err != nil {
		t.Fatal(err)
	}
	// A fresh store only sees the files.
	got, err := openFake(t, f).Create(tasks.NewTask{Title: "D"})
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != 4 {
		t.Errorf("ID = %d, want 4", got.ID)
	}
}

func TestFileStoreUpgradesLegacyOnWrite(t *testing.T) {
	f := fsys.NewFake()
	f.Files[ledgerPath(tasks.TasksFile)] = []byte("1|open|old \\| style\n2|done|second|desc|3\n")
	s := openFake(t, f)

	format, err := s.Format()
	if err != nil {
		t.Fatal(err)
	}
	if format != tasks.FormatLegacy {
		t.Fatalf("Format = %v, want legacy", format)
	}
	// Reads never rewrite.
	if _, err := s.List(); err != nil {
		t.Fatal(err)
	}
	if n := f.CallCount("Rename", ledgerPath(tasks.TasksFile)+".tmp"); n != 0 {
		t.Fatalf("read rewrote the tasks file %d times", n)
	}

	if _, err := s.IncrementPain(1, "legacy"); err != nil {
		t.Fatal(err)
	}
	want := "1,open,\"old | style\",\"\",1\n2,done,\"second\",\"desc\",3\n"
	if got := string(f.Files[ledgerPath(tasks.TasksFile)]); got != want {
		t.Errorf("tasks file = %q, want %q", got, want)
	}
	if format, _ := s.Format(); format != tasks.FormatCurrent {
		t.Errorf("Format after write = %v, want current", format)
	}
}

func TestFileStoreWritesOnlyChangedFiles(t *testing.T) {
	f := fsys.NewFake()
	s := openFake(t, f)
	if _, err := s.Create(tasks.NewTask{Title: "A"}); err != nil {
		t.Fatal(err)
	}
	f.Calls = nil
	if _, err := s.IncrementPain(1, ""); err != nil {
		t.Fatal(err)
	}
	if n := f.CallCount("WriteFile", ledgerPath(tasks.TasksFile)+".tmp"); n != 1 {
		t.Errorf("tasks written %d times, want 1", n)
	}
	for _, name := range []string{tasks.SeqFile, tasks.BlockersFile} {
		if n := f.CallCount("WriteFile", ledgerPath(name)+".tmp"); n != 0 {
			t.Errorf("%s written %d times, want 0", name, n)
		}
	}
}

func TestFileStoreRenameFailureKeepsPreviousFile(t *testing.T) {
	f := fsys.NewFake()
	s := openFake(t, f)
	if _, err := s.Create(tasks.NewTask{Title: "A"}); err != nil {
		t.Fatal(err)
	}
	before := string(f.Files[ledgerPath(tasks.TasksFile)])

	f.Errors["rename:"+ledgerPath(tasks.TasksFile)+".tmp"] = errors.New("disk full")
	_, err := s.Update(1, tasks.UpdateOpts{Title: ptr("renamed")})
	if !errors.Is(err, tasks.ErrWriteFailed) {
		t.Fatalf("error = %v, want ErrWriteFailed", err)
	}
	if got := string(f.Files[ledgerPath(tasks.TasksFile)]); got != before {
		t.Errorf("tasks file changed: %q, want %q", got, before)
	}
	if _, ok := f.Files[ledgerPath(tasks.TasksFile)+".tmp"]; ok {
		t.Error("temp file left behind")
	}

	delete(f.Errors, "rename:"+ledgerPath(tasks.TasksFile)+".tmp")
	got, err := openFake(t, f).Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "A" {
		t.Errorf("Title = %q, want A", got.Title)
	}
}

func TestFileStoreBlockersFailureRollsBackCreate(t *testing.T) {
	f := fsys.NewFake()
	s := openFake(t, f)
	if _, err := s.Create(tasks.NewTask{Title: "A"}); err != nil {
		t.Fatal(err)
	}

	f.Errors["rename:"+ledgerPath(tasks.BlockersFile)+".tmp"] = errors.New("disk full")
	_, err := s.Create(tasks.NewTask{Title: "B", BlockedBy: []int{1}})
	if !errors.Is(err, tasks.ErrWriteFailed) {
		t.Fatalf("error = %v, want ErrWriteFailed", err)
	}
	delete(f.Errors, "rename:"+ledgerPath(tasks.BlockersFile)+".tmp")

	if got := string(f.Files[ledgerPath(tasks.SeqFile)]); got != "1\n" {
		t.Errorf("seq file = %q, want \"1\\n\"", got)
	}
	if _, ok := f.Files[ledgerPath(tasks.BlockersFile)]; ok {
		t.Error("blockers file created")
	}
	s2 := openFake(t, f)
	all, err := s2.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("List = %+v, want only task 1", all)
	}
	ready, err := s2.Ready()
	if err != nil {
		t.Fatal(err)
	}
	if len(ready) != 1 || ready[0].ID != 1 {
		t.Errorf("Ready = %+v, want only task 1", ready)
	}
}

func TestFileStoreTasksFailureRollsBackEarlierFiles(t *testing.T) {
	f := fsys.NewFake()
	s := openFake(t, f)
	if _, err := s.Create(tasks.NewTask{Title: "A"}); err != nil {
		t.Fatal(err)
	}
	tasksBefore := string(f.Files[ledgerPath(tasks.TasksFile)])

	f.Errors["rename:"+ledgerPath(tasks.TasksFile)+".tmp"] = errors.New("disk full")
	_, err := s.Create(tasks.NewTask{Title: "B", BlockedBy: []int{1}})
	if !errors.Is(err, tasks.ErrWriteFailed) {
		t.Fatalf("error = %v, want ErrWriteFailed", err)
	}
	delete(f.Errors, "rename:"+ledgerPath(tasks.TasksFile)+".tmp")

	if got := string(f.Files[ledgerPath(tasks.SeqFile)]); got != "1\n" {
		t.Errorf("seq file = %q, want \"1\\n\"", got)
	}
	if _, ok := f.Files[ledgerPath(tasks.BlockersFile)]; ok {
		t.Error("blockers file left behind")
	}
	if got := string(f.Files[ledgerPath(tasks.TasksFile)]); got != tasksBefore {
		t.Errorf("tasks file = %q, want %q", got, tasksBefore)
	}

	// The id was never handed out, so the next create reuses it.
	got, err := openFake(t, f).Create(tasks.NewTask{Title: "C"})
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != 2 {
		t.Errorf("ID = %d, want 2", got.ID)
	}
}

func TestFileStoreFailedDeleteKeepsSeq(t *testing.T) {
	f := fsys.NewFake()
	s := openFake(t, f)
	for _, title := range []string{"A", "B"} {
		if _, err := s.Create(tasks.NewTask{Title: title}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AddBlocker(2, 1); err != nil {
		t.Fatal(err)
	}
	blockersBefore := string(f.Files[ledgerPath(tasks.BlockersFile)])

	f.Errors["rename:"+ledgerPath(tasks.TasksFile)+".tmp"] = errors.New("disk full")
	if err := s.Delete(2); !errors.Is(err, tasks.ErrWriteFailed) {
		t.Fatalf("error = %v, want ErrWriteFailed", err)
	}
	if got := string(f.Files[ledgerPath(tasks.BlockersFile)]); got != blockersBefore {
		t.Errorf("blockers file = %q, want %q", got, blockersBefore)
	}
	if got := string(f.Files[ledgerPath(tasks.SeqFile)]); got != "2\n" {
		t.Errorf("seq file = %q, want \"2\\n\"", got)
	}
}

func TestFileStoreDecodeErrorAbortsMutation(t *testing.T) {
	f := fsys.NewFake()
	s := openFake(t, f)
	if _, err := s.Create(tasks.NewTask{Title: "A"}); err != nil {
		t.Fatal(err)
	}
	corrupt := "1,open,\"A\",\"\",0\n2,bogus,\"B\",\"\",0\n"
	f.Files[ledgerPath(tasks.TasksFile)] = []byte(corrupt)

	_, err := s.Create(tasks.NewTask{Title: "C"})
	if !errors.Is(err, tasks.ErrUnknownStatus) {
		t.Fatalf("error = %v, want ErrUnknownStatus", err)
	}
	var re *tasks.RecordError
	if !errors.As(err, &re) || re.Line != 2 {
		t.Errorf("error = %v, want RecordError on line 2", err)
	}
	if got := string(f.Files[ledgerPath(tasks.TasksFile)]); got != corrupt {
		t.Errorf("corrupt file was rewritten: %q", got)
	}
	if _, err := tasks.OpenFileStore(f, dir); !errors.Is(err, tasks.ErrUnknownStatus) {
		t.Errorf("OpenFileStore error = %v, want ErrUnknownStatus", err)
	}
}

func TestFileStoreBadSeq(t *testing.T) {
	f := fsys.NewFake()
	f.Files[ledgerPath(tasks.SeqFile)] = []byte("many\n")
	if _, err := tasks.OpenFileStore(f, dir); !errors.Is(err, tasks.ErrInvalidNumber) {
		t.Errorf("error = %v, want ErrInvalidNumber", err)
	}
}

func TestFileStoreReadError(t *testing.T) {
	f := fsys.NewFake()
	f.Errors[ledgerPath(tasks.BlockersFile)] = os.ErrPermission
	if _, err := tasks.OpenFileStore(f, dir); !errors.Is(err, os.ErrPermission) {
		t.Errorf("error = %v, want ErrPermission", err)
	}
}

func TestFileStoreBusyWhenLocked(t *testing.T) {
	d := filepath.Join(t.TempDir(), ".knecht")
	s, err := tasks.OpenFileStore(fsys.OSFS{}, d, tasks.WithLock(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	other := flock.New(filepath.Join(d, tasks.LockFile))
	if err := other.Lock(); err != nil {
		t.Fatal(err)
	}
	_, err = s.Create(tasks.NewTask{Title: "A"})
	if !errors.Is(err, tasks.ErrBusy) {
		t.Errorf("error = %v, want ErrBusy", err)
	}
	if err := other.Unlock(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(tasks.NewTask{Title: "A"}); err != nil {
		t.Errorf("Create after unlock: %v", err)
	}
}

func TestFileStoreRecordsToFileLog(t *testing.T) {
	d := filepath.Join(t.TempDir(), ".knecht")
	var stderr strings.Builder
	rec, err := events.NewFileRecorder(filepath.Join(d, tasks.EventsFile), &stderr)
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close() //nolint:errcheck // test cleanup

	s, err := tasks.OpenFileStore(fsys.OSFS{}, d, tasks.WithRecorder(rec))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(tasks.NewTask{Title: "A"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.IncrementPain(1, "blocked the release"); err != nil {
		t.Fatal(err)
	}

	got, err := rec.List(events.Filter{Type: events.TaskPain})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Message != "blocked the release" || got[0].Actor != tasks.DefaultActor {
		t.Errorf("pain events = %+v", got)
	}
}

// lockWatcher records, for every event, whether the ledger lock was held
// by someone else at the time.
type lockWatcher struct {
	lockPath string
	held     []bool
}

func (w *lockWatcher) Record(events.Event) {
	other := flock.New(w.lockPath)
	defer other.Close() //nolint:errcheck // test cleanup
	ok, err := other.TryLock()
	w.held = append(w.held, err == nil && !ok)
}

func TestFileStoreRecordsWhileLocked(t *testing.T) {
	d := filepath.Join(t.TempDir(), ".knecht")
	w := &lockWatcher{lockPath: filepath.Join(d, tasks.LockFile)}
	s, err := tasks.OpenFileStore(fsys.OSFS{}, d, tasks.WithLock(time.Second), tasks.WithRecorder(w))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(tasks.NewTask{Title: "A"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(tasks.NewTask{Title: "B", BlockedBy: []int{1}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(1); err != nil {
		t.Fatal(err)
	}
	if len(w.held) != 4 {
		t.Fatalf("recorded %d events, want 4", len(w.held))
	}
	for i, held := range w.held {
		if !held {
			t.Errorf("event %d recorded after the lock was released", i)
		}
	}
}

func TestFileStoreFailedWriteRecordsNothing(t *testing.T) {
	f := fsys.NewFake()
	rec := events.NewFake()
	s := openFake(t, f, tasks.WithRecorder(rec))
	f.Errors["rename:"+ledgerPath(tasks.TasksFile)+".tmp"] = errors.New("disk full")
	if _, err := s.Create(tasks.NewTask{Title: "A"}); !errors.Is(err, tasks.ErrWriteFailed) {
		t.Fatalf("error = %v, want ErrWriteFailed", err)
	}
	if len(rec.Events) != 0 {
		t.Errorf("events = %+v, want none", rec.Events)
	}
}

func ptr[T any](v T) *T { return &v }

func TestFileStoreCompact(t *testing.T) {
	f := fsys.NewFake()
	f.Files[ledgerPath(tasks.TasksFile)] = []byte("1|open|legacy|notes|0\n3|done|kept|\n")
	f.Files[ledgerPath(tasks.BlockersFile)] = []byte("task-1|task-3\ntask-1|task-2\ntask-9|task-1\n")
	f.Files[ledgerPath(tasks.SeqFile)] = []byte("1\n")
	s := openFake(t, f)

	changed, err := s.Compact()
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("Compact reported no change")
	}
	if got, want := string(f.Files[ledgerPath(tasks.TasksFile)]), "1,open,\"legacy\",\"notes\",0\n3,done,\"kept\",\"\",0\n"; got != want {
		t.Errorf("tasks file = %q, want %q", got, want)
	}
	if got := string(f.Files[ledgerPath(tasks.BlockersFile)]); got != "task-1|task-3\n" {
		t.Errorf("blockers file = %q", got)
	}
	if got := string(f.Files[ledgerPath(tasks.SeqFile)]); got != "3\n" {
		t.Errorf("seq file = %q, want \"3\\n\"", got)
	}

	changed, err = s.Compact()
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("second Compact reported a change")
	}
}
