// Command genschema generates the config JSON Schema and markdown
// reference docs. Run from the repository root:
//
//	go run ./cmd/genschema
//
// Output:
//
//	docs/schema/config-schema.json
//	docs/reference/config.md
//	docs/reference/cli.md
package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/knechtdev/knecht/internal/docgen"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "genschema: %v\n", err) //nolint:errcheck // best-effort stderr
		os.Exit(1)
	}
}

func run() error {
	root, err := docgen.ModuleRoot()
	if err != nil {
		return err
	}
	if err := os.Chdir(root); err != nil {
		return fmt.Errorf("chdir to module root: %w", err)
	}

	for _, dir := range []string{"docs/schema", "docs/reference"} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	schema, err := docgen.GenerateConfigSchema(root)
	if err != nil {
		return fmt.Errorf("generating config schema: %w", err)
	}
	if err := docgen.WriteSchema("docs/schema/config-schema.json", schema); err != nil {
		return err
	}
	if err := docgen.WriteMarkdown("docs/reference/config.md", schema); err != nil {
		return fmt.Errorf("writing config.md: %w", err)
	}

	// The CLI reference needs the real command tree, which lives in main.
	genDoc := exec.Command("go", "run", "./cmd/knecht", "gen-doc", "docs/reference/cli.md")
	genDoc.Stdout = os.Stdout
	genDoc.Stderr = os.Stderr
	if err := genDoc.Run(); err != nil {
		return fmt.Errorf("generating CLI docs: %w", err)
	}

	fmt.Println("Generated:")
	for _, f := range []string{
		"docs/schema/config-schema.json",
		"docs/reference/config.md",
		"docs/reference/cli.md",
	} {
		fmt.Printf("  %s\n", f)
	}
	return nil
}
