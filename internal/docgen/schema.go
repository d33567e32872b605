package docgen

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/knechtdev/knecht/internal/config"
)

const modulePath = "github.com/knechtdev/knecht"

// newReflector creates a jsonschema.Reflector configured for TOML field
// names. When commentsRoot is non-empty, Go doc comments under it become
// descriptions; AddGoComments walks "." so the working directory must be
// the module root while it runs.
func newReflector(commentsRoot string) (*jsonschema.Reflector, error) {
	r := &jsonschema.Reflector{
		FieldNameTag: "toml",
	}
	if commentsRoot == "" {
		return r, nil
	}

	orig, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	if err := os.Chdir(commentsRoot); err != nil {
		return nil, fmt.Errorf("chdir to module root: %w", err)
	}
	defer func() { _ = os.Chdir(orig) }()

	if err := r.AddGoComments(modulePath, "."); err != nil {
		return nil, fmt.Errorf("extracting Go comments: %w", err)
	}
	return r, nil
}

// GenerateConfigSchema produces a JSON Schema for config.toml by reflecting
// config.Config. Pass the module root to pull descriptions from doc
// comments, or "" to rely on jsonschema struct tags alone.
func GenerateConfigSchema(moduleRoot string) (*jsonschema.Schema, error) {
	r, err := newReflector(moduleRoot)
	if err != nil {
		return nil, err
	}
	s := r.Reflect(&config.Config{})
	s.Title = "knecht Configuration"
	s.Description = "Schema for .knecht/config.toml, the optional per-ledger configuration."
	return s, nil
}

// WriteSchema writes s as indented JSON to path using atomic write.
func WriteSchema(path string, s *jsonschema.Schema) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	data = append(data, '\n')
	return writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
