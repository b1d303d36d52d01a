// Package manifest parses prompt definition YAML files into domain types.
// A file holds one or more definition records separated by "---".
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/promptledger/promptledger"

	"gopkg.in/yaml.v3"
)

// fileDefinition is the YAML record shape bound directly to definition fields.
// Field names follow the on-disk prompt file layout.
type fileDefinition struct {
	PromptID             string           `yaml:"prompt_id"`
	Version              string           `yaml:"version"`
	Description          string           `yaml:"description"`
	Template             string           `yaml:"template"`
	ExampleInputs        []map[string]any `yaml:"example_inputs"`
	ExpectedOutputSchema map[string]any   `yaml:"expected_output_schema"`
}

func (f *fileDefinition) empty() bool {
	return f.PromptID == "" && f.Version == "" && f.Description == "" &&
		f.Template == "" && len(f.ExampleInputs) == 0 && len(f.ExpectedOutputSchema) == 0
}

// ParseBytes parses a YAML stream into definitions, one per document.
// Empty documents are skipped; a stream with no records at all is malformed.
func ParseBytes(data []byte) ([]*promptledger.Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var defs []*promptledger.Definition
	for docIdx := 0; ; docIdx++ {
		var rec fileDefinition
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: document %d: %v", promptledger.ErrMalformedDefinition, docIdx, err)
		}
		if rec.empty() {
			continue
		}
		def, err := buildDefinition(&rec)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", docIdx, err)
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no definition records", promptledger.ErrMalformedDefinition)
	}
	return defs, nil
}

// ParseFile reads and parses a definition file.
func ParseFile(path string) ([]*promptledger.Definition, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is validated by caller
	if err != nil {
		return nil, fmt.Errorf("manifest: read file: %w", err)
	}
	return ParseBytes(data)
}

// ParseFS reads and parses a definition file from fs.FS (e.g. embed.FS).
func ParseFS(fsys fs.FS, name string) ([]*promptledger.Definition, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("manifest: read fs: %w", err)
	}
	return ParseBytes(data)
}

func buildDefinition(rec *fileDefinition) (*promptledger.Definition, error) {
	var opts []promptledger.DefinitionOption
	if rec.Description != "" {
		opts = append(opts, promptledger.WithDescription(rec.Description))
	}
	if len(rec.ExampleInputs) > 0 {
		opts = append(opts, promptledger.WithExampleInputs(rec.ExampleInputs))
	}
	if len(rec.ExpectedOutputSchema) > 0 {
		opts = append(opts, promptledger.WithOutputSchema(rec.ExpectedOutputSchema))
	}
	return promptledger.NewDefinition(rec.PromptID, rec.Version, rec.Template, opts...)
}
