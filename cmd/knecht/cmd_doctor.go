package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/knechtdev/knecht/internal/config"
	"github.com/knechtdev/knecht/internal/doctor"
	"github.com/knechtdev/knecht/internal/fsys"
	"github.com/knechtdev/knecht/internal/tasks"
)

func newDoctorCmd(stdout, stderr io.Writer) *cobra.Command {
	var fix, verbose bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the ledger for problems",
		Long: `Run health checks on the .knecht/ ledger.

Checks the directory layout, config.toml, that every task row decodes,
the id high-water mark, blocker edges to deleted tasks, blocker cycles
and the event log. Use --fix to rewrite legacy rows, raise a stale
high-water mark and drop stale edges. Cycles are reported, never fixed.

Exits non-zero when any check fails.`,
		Example: `  knecht doctor
  knecht doctor --fix
  knecht doctor -v`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if cmdDoctor(fix, verbose, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "repair what can be repaired")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show details for each check")
	return cmd
}

// cmdDoctor does not go through openLedger: a ledger that fails to open
// is exactly what it has to diagnose.
func cmdDoctor(fix, verbose bool, stdout, stderr io.Writer) int {
	root, err := resolveProject()
	if err != nil {
		fmt.Fprintf(stderr, "knecht doctor: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	return doDoctor(fsys.OSFS{}, filepath.Join(root, ledgerDirName), fix, verbose, stdout)
}

func doDoctor(fs fsys.FS, dir string, fix, verbose bool, stdout io.Writer) int {
	timeout := config.DefaultLockTimeout
	if cfg, err := config.Load(fs, filepath.Join(dir, tasks.ConfigFile)); err == nil {
		timeout = cfg.LockTimeout()
	}
	d := &doctor.Doctor{}
	for _, c := range doctor.LedgerChecks() {
		d.Register(c)
	}
	ctx := &doctor.CheckContext{Dir: dir, FS: fs, LockTimeout: timeout, Verbose: verbose}
	rep := d.Run(ctx, stdout, fix)
	doctor.PrintSummary(stdout, rep)
	if !rep.Healthy() {
		return 1
	}
	return 0
}
