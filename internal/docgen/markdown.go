package docgen

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
)

// RenderMarkdown writes a markdown reference document from a JSON Schema:
// one section per $defs type, root type first, each with a field table.
func RenderMarkdown(w io.Writer, s *jsonschema.Schema) error {
	m := &mdWriter{w: w}
	title := s.Title
	if title == "" {
		title = "Configuration Reference"
	}
	m.printf("# %s\n\n", title)
	if s.Description != "" {
		m.printf("%s\n\n", s.Description)
	}
	m.printf("%s", generatedNote)

	rootName := refName(s.Ref)
	names := make([]string, 0, len(s.Definitions))
	for name := range s.Definitions {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		switch {
		case a == rootName:
			return -1
		case b == rootName:
			return 1
		}
		return strings.Compare(a, b)
	})

	for _, name := range names {
		def := s.Definitions[name]
		if def == nil || def.Properties == nil {
			continue
		}
		m.printf("## %s\n\n", name)
		if def.Description != "" {
			m.printf("%s\n\n", def.Description)
		}

		var rows [][]string
		for pair := def.Properties.Oldest(); pair != nil; pair = pair.Next() {
			req := ""
			if slices.Contains(def.Required, pair.Key) {
				req = "**yes**"
			}
			rows = append(rows, []string{
				"`" + pair.Key + "`",
				schemaTypeString(pair.Value),
				req,
				formatDefault(pair.Value),
				formatDescription(pair.Value),
			})
		}
		m.table([]string{"Field", "Type", "Required", "Default", "Description"}, rows)
	}
	return m.err
}

// WriteMarkdown generates a markdown file from a schema using atomic write.
func WriteMarkdown(path string, s *jsonschema.Schema) error {
	return writeAtomic(path, func(w io.Writer) error { return RenderMarkdown(w, s) })
}

// schemaTypeString returns a human-readable type string for a property.
func schemaTypeString(prop *jsonschema.Schema) string {
	if prop.Ref != "" {
		return refName(prop.Ref)
	}
	switch prop.Type {
	case "array":
		if prop.Items == nil {
			return "array"
		}
		if prop.Items.Ref != "" {
			return "[]" + refName(prop.Items.Ref)
		}
		return "[]" + prop.Items.Type
	case "object":
		if v := prop.AdditionalProperties; v != nil {
			if v.Ref != "" {
				return "map[string]" + refName(v.Ref)
			}
			return "map[string]" + v.Type
		}
		return "object"
	case "":
		return "any"
	}
	return prop.Type
}

// refName extracts the type name from a $ref like "#/$defs/StoreConfig".
func refName(ref string) string {
	return ref[strings.LastIndex(ref, "/")+1:]
}

func formatDefault(prop *jsonschema.Schema) string {
	if prop.Default != nil {
		return fmt.Sprintf("`%v`", prop.Default)
	}
	return ""
}

// formatDescription returns the description, appending enum values if present.
func formatDescription(prop *jsonschema.Schema) string {
	desc := prop.Description
	if len(prop.Enum) > 0 {
		vals := make([]string, len(prop.Enum))
		for i, v := range prop.Enum {
			vals[i] = fmt.Sprintf("`%v`", v)
		}
		desc = strings.TrimSpace(desc + " Enum: " + strings.Join(vals, ", "))
	}
	return cell(desc)
}
