package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/knechtdev/knecht/internal/fsys"
)

// fakeProject is an initialized ledger in memory with locking off, since
// the advisory lock needs a real file.
func fakeProject(t *testing.T) *fsys.Fake {
	t.Helper()
	f := fsys.NewFake()
	if code := doInit(f, "/proj", &bytes.Buffer{}, &bytes.Buffer{}); code != 0 {
		t.Fatalf("doInit = %d", code)
	}
	f.Files["/proj/.knecht/config.toml"] = []byte("[store]\nlock_timeout = \"0\"\n")
	return f
}

func TestDoDoctorHealthy(t *testing.T) {
	f := fakeProject(t)
	var stdout bytes.Buffer
	if code := doDoctor(f, "/proj/.knecht", false, false, &stdout); code != 0 {
		t.Fatalf("doDoctor = %d\n%s", code, stdout.String())
	}
	out := stdout.String()
	if strings.Contains(out, "⚠") || strings.Contains(out, "✗") {
		t.Errorf("fresh ledger has findings:\n%s", out)
	}
	if !strings.HasSuffix(out, "\n7 passed\n") {
		t.Errorf("summary missing:\n%s", out)
	}
}

func TestDoDoctorFixesLegacyLedger(t *testing.T) {
	f := fakeProject(t)
	f.Files["/proj/.knecht/tasks"] = []byte("1|open|Only\n")

	var stdout bytes.Buffer
	if code := doDoctor(f, "/proj/.knecht", false, false, &stdout); code != 0 {
		t.Fatalf("warnings alone should not fail: %d\n%s", code, stdout.String())
	}
	if !strings.Contains(stdout.String(), "⚠ tasks-file") {
		t.Errorf("legacy rows not reported:\n%s", stdout.String())
	}

	stdout.Reset()
	if code := doDoctor(f, "/proj/.knecht", true, false, &stdout); code != 0 {
		t.Fatalf("doDoctor --fix = %d\n%s", code, stdout.String())
	}
	if got := string(f.Files["/proj/.knecht/tasks"]); got != "1,open,\"Only\",\"\",0\n" {
		t.Errorf("tasks file = %q", got)
	}
	if got := string(f.Files["/proj/.knecht/seq"]); got != "1\n" {
		t.Errorf("seq file = %q", got)
	}
}

func TestDoDoctorFailsOnCorruptRow(t *testing.T) {
	f := fakeProject(t)
	f.Files["/proj/.knecht/tasks"] = []byte("1,open,\"A\",\"\",0\n2,stuck,\"B\",\"\",0\n")

	var stdout bytes.Buffer
	if code := doDoctor(f, "/proj/.knecht", true, true, &stdout); code != 1 {
		t.Fatalf("doDoctor = %d, want 1\n%s", code, stdout.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "✗ tasks-file: line 2") {
		t.Errorf("corrupt row not reported:\n%s", out)
	}
	if !strings.Contains(out, "skipped") {
		t.Errorf("dependent checks not skipped:\n%s", out)
	}
}
