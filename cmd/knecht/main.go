// knecht is a small command-line task tracker backed by flat files in .knecht/.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/knechtdev/knecht/internal/config"
	"github.com/knechtdev/knecht/internal/events"
	"github.com/knechtdev/knecht/internal/fsys"
	"github.com/knechtdev/knecht/internal/tasks"
	"github.com/knechtdev/knecht/internal/telemetry"
)

// ledgerDirName is the directory that marks a knecht project root.
const ledgerDirName = ".knecht"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errExit is a sentinel error returned by cobra RunE functions to signal
// non-zero exit. The command has already written its own error to stderr.
var errExit = errors.New("exit")

// dirFlag holds the value of the --dir persistent flag.
// Empty means "discover from cwd."
var dirFlag string

// stopTelemetry flushes the providers started by openLedger. Nil until a
// command opens the ledger.
var stopTelemetry telemetry.ShutdownFunc

// run executes the knecht CLI with the given args, writing output to stdout
// and errors to stderr. Returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	cmd, err := root.ExecuteC()
	code := 0
	if err != nil {
		if !errors.Is(err, errExit) {
			// Flag and argument errors from cobra itself.
			fmt.Fprintf(stderr, "knecht: %v\n", err) //nolint:errcheck // best-effort stderr
		}
		code = 1
	}
	if cmd != nil {
		telemetry.RecordCommand(context.Background(), cmd.Name(), code)
	}
	flushTelemetry(stderr)
	return code
}

// newRootCmd creates the root cobra command with all subcommands.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "knecht",
		Short:         "Flat-file task tracker with blockers and pain counts",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			fmt.Fprintf(stderr, "knecht: unknown command %q\n", args[0]) //nolint:errcheck // best-effort stderr
			return errExit
		},
	}
	root.PersistentFlags().StringVar(&dirFlag, "dir", "",
		"path to the project directory (default: walk up from cwd)")
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newInitCmd(stdout, stderr),
		newAddCmd(stdout, stderr),
		newListCmd(stdout, stderr),
		newShowCmd(stdout, stderr),
		newStartCmd(stdout, stderr),
		newDoneCmd(stdout, stderr),
		newDeliverCmd(stdout, stderr),
		newReopenCmd(stdout, stderr),
		newUpdateCmd(stdout, stderr),
		newPainCmd(stdout, stderr),
		newBlockCmd(stdout, stderr),
		newUnblockCmd(stdout, stderr),
		newDeleteCmd(stdout, stderr),
		newReadyCmd(stdout, stderr),
		newNextCmd(stdout, stderr),
		newLogCmd(stdout, stderr),
		newDoctorCmd(stdout, stderr),
		newVersionCmd(stdout),
	)
	root.AddCommand(newGenDocCmd(stdout, stderr, root))
	return root
}

// findLedger walks dir upward looking for a directory containing .knecht/.
// Returns the project root path or an error.
func findLedger(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if fi, err := os.Stat(filepath.Join(dir, ledgerDirName)); err == nil && fi.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a knecht project (no %s/ found; run 'knecht init')", ledgerDirName)
		}
		dir = parent
	}
}

// resolveProject returns the project root path. If --dir was provided, it
// verifies .knecht/ exists there. Otherwise falls back to os.Getwd() →
// findLedger().
func resolveProject() (string, error) {
	if dirFlag != "" {
		p, err := filepath.Abs(dirFlag)
		if err != nil {
			return "", err
		}
		if fi, err := os.Stat(filepath.Join(p, ledgerDirName)); err != nil || !fi.IsDir() {
			return "", fmt.Errorf("not a knecht project: %s (no %s/ found; run 'knecht init')", p, ledgerDirName)
		}
		return p, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return findLedger(cwd)
}

// eventActor returns the actor identity for events. KNECHT_ACTOR names an
// agent or script; otherwise "human".
func eventActor() string {
	if a := os.Getenv("KNECHT_ACTOR"); a != "" {
		return a
	}
	return tasks.DefaultActor
}

// ledger is an opened project: the task store and the event log it records
// into.
type ledger struct {
	store tasks.Store
	log   events.Provider
	rec   *events.FileRecorder
}

// Close releases the event log file.
func (l *ledger) Close() {
	if l.rec != nil {
		l.rec.Close() //nolint:errcheck // best-effort close
	}
}

// openLedger locates the project, loads its config and opens the FileStore
// with the event recorder attached. Telemetry is started here because the
// endpoints live in the project config. On error it writes to stderr and
// returns nil plus an exit code.
func openLedger(stderr io.Writer, cmdName string) (*ledger, int) {
	root, err := resolveProject()
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", cmdName, err) //nolint:errcheck // best-effort stderr
		return nil, 1
	}
	dir := filepath.Join(root, ledgerDirName)

	cfg, err := config.Load(fsys.OSFS{}, filepath.Join(dir, tasks.ConfigFile))
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", cmdName, err) //nolint:errcheck // best-effort stderr
		return nil, 1
	}
	startTelemetry(cfg, stderr)

	l := &ledger{}
	var rec events.Recorder = events.Discard
	if fr, err := events.NewFileRecorder(filepath.Join(dir, tasks.EventsFile), stderr); err != nil {
		fmt.Fprintf(stderr, "%s: event log disabled: %v\n", cmdName, err) //nolint:errcheck // best-effort stderr
	} else {
		l.rec, l.log, rec = fr, fr, fr
	}

	store, err := tasks.OpenFileStore(fsys.OSFS{}, dir,
		tasks.WithRecorder(rec),
		tasks.WithActor(eventActor()),
		tasks.WithLock(cfg.LockTimeout()),
	)
	if err != nil {
		l.Close()
		fmt.Fprintf(stderr, "%s: %v\n", cmdName, err) //nolint:errcheck // best-effort stderr
		return nil, 1
	}
	l.store = store
	return l, 0
}

// startTelemetry installs the OTLP providers once per process. Failures are
// reported and otherwise ignored; the command still runs.
func startTelemetry(cfg *config.Config, stderr io.Writer) {
	if stopTelemetry != nil {
		return
	}
	metricsURL, logsURL := telemetry.Endpoints(cfg.Telemetry.MetricsURL, cfg.Telemetry.LogsURL)
	shutdown, err := telemetry.Init(context.Background(), metricsURL, logsURL, version)
	if err != nil {
		fmt.Fprintf(stderr, "knecht: telemetry disabled: %v\n", err) //nolint:errcheck // best-effort stderr
		return
	}
	stopTelemetry = shutdown
}

func flushTelemetry(stderr io.Writer) {
	if stopTelemetry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stopTelemetry(ctx); err != nil {
		fmt.Fprintf(stderr, "knecht: flushing telemetry: %v\n", err) //nolint:errcheck // best-effort stderr
	}
	stopTelemetry = nil
}

// parseTaskArg parses a task reference argument, reporting a bad one to
// stderr.
func parseTaskArg(cmdName, arg string, stderr io.Writer) (int, bool) {
	id, err := tasks.ParseID(strings.TrimSpace(arg))
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", cmdName, err) //nolint:errcheck // best-effort stderr
		return 0, false
	}
	return id, true
}
