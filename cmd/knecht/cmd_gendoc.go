package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/knechtdev/knecht/internal/docgen"
)

// defaultCLIDocPath is where gen-doc writes when no path is given.
const defaultCLIDocPath = "docs/reference/cli.md"

// newGenDocCmd creates the hidden "knecht gen-doc" subcommand. It writes the
// CLI reference by walking the real command tree. Must be called from the
// repository root (go.mod must exist).
func newGenDocCmd(stdout, stderr io.Writer, root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:    "gen-doc [path]",
		Short:  "Generate CLI reference documentation",
		Hidden: true,
		Args:   cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := os.Stat("go.mod"); err != nil {
				fmt.Fprintln(stderr, "knecht gen-doc: must run from repository root (go.mod not found)") //nolint:errcheck // best-effort stderr
				return errExit
			}
			outPath := defaultCLIDocPath
			if len(args) == 1 {
				outPath = args[0]
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				fmt.Fprintf(stderr, "knecht gen-doc: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			if err := docgen.WriteCLIMarkdown(outPath, root); err != nil {
				fmt.Fprintf(stderr, "knecht gen-doc: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			fmt.Fprintf(stdout, "Generated: %s\n", outPath) //nolint:errcheck // best-effort stdout
			return nil
		},
	}
}
