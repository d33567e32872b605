package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/knechtdev/knecht/internal/config"
	"github.com/knechtdev/knecht/internal/fsys"
	"github.com/knechtdev/knecht/internal/tasks"
)

func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a .knecht/ ledger in the current directory",
		Long: `Create a .knecht/ ledger in the current directory (or --dir).

Writes an empty tasks file and a default config.toml. Running init on an
existing project leaves its files untouched.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if cmdInit(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// cmdInit is the CLI entry point for init. Unlike the other commands it does
// not walk up looking for an existing ledger.
func cmdInit(stdout, stderr io.Writer) int {
	root := dirFlag
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(stderr, "knecht init: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
		root = cwd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		fmt.Fprintf(stderr, "knecht init: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	return doInit(fsys.OSFS{}, abs, stdout, stderr)
}

// doInit creates the ledger directory under root. Files that already exist
// are kept, so init is idempotent.
func doInit(fs fsys.FS, root string, stdout, stderr io.Writer) int {
	dir := filepath.Join(root, ledgerDirName)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(stderr, "knecht init: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	if err := writeIfMissing(fs, filepath.Join(dir, tasks.TasksFile), nil); err != nil {
		fmt.Fprintf(stderr, "knecht init: creating tasks file: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	cfg := config.Default()
	content, err := cfg.Marshal()
	if err != nil {
		fmt.Fprintf(stderr, "knecht init: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if err := writeIfMissing(fs, filepath.Join(dir, tasks.ConfigFile), content); err != nil {
		fmt.Fprintf(stderr, "knecht init: writing config: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	fmt.Fprintf(stdout, "Initialized knecht in %s\n", dir) //nolint:errcheck // best-effort stdout
	return 0
}

func writeIfMissing(fs fsys.FS, path string, data []byte) error {
	_, err := fs.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return fsys.WriteAtomic(fs, path, data, 0o644)
}
