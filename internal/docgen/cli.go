package docgen

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RenderCLIMarkdown writes a CLI reference by walking a cobra command tree:
// global flags first, then one H2 section per visible command with its
// synopsis, aliases, example, local flags and subcommands. Hidden commands
// and flags are skipped.
func RenderCLIMarkdown(w io.Writer, root *cobra.Command) error {
	m := &mdWriter{w: w}
	m.printf("# CLI Reference\n\n")
	m.printf("%s", generatedNote)

	if global := flagRows(root.PersistentFlags()); len(global) > 0 {
		m.printf("## Global Flags\n\n")
		m.table(flagHeader, global)
	}
	walkCommands(m, root)
	return m.err
}

// WriteCLIMarkdown writes the CLI reference to a file using atomic write.
func WriteCLIMarkdown(path string, root *cobra.Command) error {
	return writeAtomic(path, func(w io.Writer) error { return RenderCLIMarkdown(w, root) })
}

func walkCommands(m *mdWriter, cmd *cobra.Command) {
	renderCommand(m, cmd)
	for _, child := range visibleChildren(cmd) {
		walkCommands(m, child)
	}
}

func renderCommand(m *mdWriter, cmd *cobra.Command) {
	m.printf("## %s\n\n", cmd.CommandPath())

	desc := cmd.Long
	if desc == "" {
		desc = cmd.Short
	}
	if desc = strings.TrimSpace(desc); desc != "" {
		m.printf("%s\n\n", desc)
	}

	m.printf("```\n%s\n```\n\n", cmd.UseLine())

	if len(cmd.Aliases) > 0 {
		m.printf("**Aliases:** `%s`\n\n", strings.Join(cmd.Aliases, "`, `"))
	}
	if cmd.Example != "" {
		m.printf("**Example:**\n\n```\n%s\n```\n\n", strings.TrimSpace(cmd.Example))
	}

	if local := flagRows(cmd.LocalNonPersistentFlags()); len(local) > 0 {
		m.table(flagHeader, local)
	}

	children := visibleChildren(cmd)
	if len(children) == 0 {
		return
	}
	rows := make([][]string, 0, len(children))
	for _, c := range children {
		anchor := strings.ToLower(strings.ReplaceAll(c.CommandPath(), " ", "-"))
		rows = append(rows, []string{fmt.Sprintf("[%s](#%s)", c.CommandPath(), anchor), cell(c.Short)})
	}
	m.table([]string{"Subcommand", "Description"}, rows)
}

func visibleChildren(cmd *cobra.Command) []*cobra.Command {
	var out []*cobra.Command
	for _, c := range cmd.Commands() {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	return out
}

var flagHeader = []string{"Flag", "Type", "Default", "Description"}

// flagRows renders the visible flags of fs as table rows.
func flagRows(fs *pflag.FlagSet) [][]string {
	var rows [][]string
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		name := "`--" + f.Name + "`"
		if f.Shorthand != "" {
			name = "`-" + f.Shorthand + "`, " + name
		}
		def := ""
		if !isZeroDefault(f.DefValue, f.Value.Type()) {
			def = "`" + f.DefValue + "`"
		}
		rows = append(rows, []string{name, f.Value.Type(), def, cell(f.Usage)})
	})
	return rows
}

// isZeroDefault reports whether val is the zero value for a flag of type typ.
func isZeroDefault(val, typ string) bool {
	switch typ {
	case "bool":
		return val == "false"
	case "int", "int64", "uint", "float64", "count":
		return val == "0"
	case "duration":
		return val == "0s"
	case "stringSlice", "stringArray", "intSlice":
		return val == "[]"
	default:
		return val == ""
	}
}
