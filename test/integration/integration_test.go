//go:build integration

// Package integration exercises the real knecht binary as separate
// processes sharing one ledger, which in-process tests cannot do: only
// here does the advisory file lock arbitrate between writers.
package integration

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// knechtBinary is the path to the built knecht binary, set by TestMain.
var knechtBinary string

// TestMain builds the knecht binary once for all tests.
func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "knecht-integration-*")
	if err != nil {
		panic("integration: creating temp dir: " + err.Error())
	}

	knechtBinary = filepath.Join(tmpDir, "knecht")
	buildCmd := exec.Command("go", "build", "-o", knechtBinary, "./cmd/knecht")
	buildCmd.Dir = findModuleRoot()
	buildCmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	if out, err := buildCmd.CombinedOutput(); err != nil {
		os.RemoveAll(tmpDir) //nolint:errcheck // best-effort cleanup
		panic("integration: building knecht binary: " + err.Error() + "\n" + string(out))
	}

	code := m.Run()
	os.RemoveAll(tmpDir) //nolint:errcheck // best-effort cleanup
	os.Exit(code)
}

// knecht runs the binary in dir. Returns combined stdout+stderr and any
// error.
func knecht(dir string, args ...string) (string, error) {
	cmd := exec.Command(knechtBinary, args...)
	cmd.Dir = dir
	cmd.Env = filterEnv(os.Environ(), "KNECHT_OTEL_METRICS_URL", "KNECHT_OTEL_LOGS_URL")
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func mustKnecht(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := knecht(dir, args...)
	if err != nil {
		t.Fatalf("knecht %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

var createdRE = regexp.MustCompile(`^Created task-(\d+)\n$`)

func TestConcurrentAddsGetDistinctIDs(t *testing.T) {
	dir := t.TempDir()
	mustKnecht(t, dir, "init")

	const writers = 20
	var (
		mu   sync.Mutex
		ids  []int
		errs []string
		wg   sync.WaitGroup
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := knecht(dir, "add", fmt.Sprintf("Task %d", i))
			mu.Lock()
			defer mu.Unlock()
			m := createdRE.FindStringSubmatch(out)
			if err != nil || m == nil {
				errs = append(errs, fmt.Sprintf("writer %d: %v: %q", i, err, out))
				return
			}
			id, _ := strconv.Atoi(m[1])
			ids = append(ids, id)
		}()
	}
	wg.Wait()

	for _, e := range errs {
		t.Error(e)
	}
	sort.Ints(ids)
	for i, id := range ids {
		if id != i+1 {
			t.Fatalf("ids = %v, want 1..%d with no gaps or duplicates", ids, writers)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, ".knecht", "tasks"))
	if err != nil {
		t.Fatal(err)
	}
	if rows := strings.Count(string(data), "\n"); rows != writers {
		t.Errorf("tasks file has %d rows, want %d", rows, writers)
	}
}

func TestConcurrentPainIsNotLost(t *testing.T) {
	dir := t.TempDir()
	mustKnecht(t, dir, "init")
	mustKnecht(t, dir, "add", "Shared")

	const writers = 10
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if out, err := knecht(dir, "pain", "task-1", "-d", fmt.Sprintf("hit %d", i)); err != nil {
				t.Errorf("pain %d: %v\n%s", i, err, out)
			}
		}()
	}
	wg.Wait()

	out := mustKnecht(t, dir, "list")
	if want := fmt.Sprintf("(pain count: %d)", writers); !strings.Contains(out, want) {
		t.Errorf("list = %q, want %q", out, want)
	}
	log := mustKnecht(t, dir, "log", "--type", "task.pain", "--json")
	if n := strings.Count(log, "\n"); n != writers {
		t.Errorf("event log has %d pain events, want %d", n, writers)
	}
}

func TestDirFlagFromElsewhere(t *testing.T) {
	project := t.TempDir()
	elsewhere := t.TempDir()
	mustKnecht(t, elsewhere, "--dir", project, "init")
	mustKnecht(t, elsewhere, "--dir", project, "add", "Remote")

	sub := filepath.Join(project, "src", "pkg")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	out := mustKnecht(t, sub, "next")
	if !strings.Contains(out, "task-1  Remote") {
		t.Errorf("next from subdirectory = %q", out)
	}
}

// findModuleRoot walks up from the current directory to find go.mod.
func findModuleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		panic("integration: getting cwd: " + err.Error())
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			panic("integration: go.mod not found")
		}
		dir = parent
	}
}

// filterEnv returns env with the named variables removed.
func filterEnv(env []string, names ...string) []string {
	result := make([]string, 0, len(env))
	for _, e := range env {
		drop := false
		for _, name := range names {
			if strings.HasPrefix(e, name+"=") {
				drop = true
				break
			}
		}
		if !drop {
			result = append(result, e)
		}
	}
	return result
}
