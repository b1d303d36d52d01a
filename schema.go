package promptledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaDefinition is a compiled JSON Schema declared by a definition's
// expected_output_schema. Immutable after CompileSchema; safe for concurrent
// Validate calls.
type SchemaDefinition struct {
	doc      map[string]any
	compiled *jsonschema.Schema
}

// CompileSchema normalizes a schema document (typically YAML decode output)
// to JSON values and compiles it. An empty document means no schema is
// declared and compiles to nil.
func CompileSchema(doc map[string]any) (*SchemaDefinition, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("schema: encode: %w", err)
	}
	var normalized map[string]any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("schema: normalize: %w", err)
	}
	compiled, err := jsonschema.CompileString("schema.json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}
	return &SchemaDefinition{doc: normalized, compiled: compiled}, nil
}

// Validate checks a candidate value for structural conformance. A nil
// SchemaDefinition accepts anything. The candidate is normalized to JSON
// values first, so Go literals (ints, structs from decoded requests) validate
// the same as values decoded straight from JSON. Violations are returned as
// a SchemaViolationError listing every failed leaf constraint with its JSON
// Pointer path.
func (s *SchemaDefinition) Validate(candidate any) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	err := s.compiled.Validate(normalizeJSON(candidate))
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return &SchemaViolationError{Violations: collectViolations(ve)}
}

// Doc returns a copy of the normalized schema document, or nil when no
// schema is declared.
func (s *SchemaDefinition) Doc() map[string]any {
	if s == nil {
		return nil
	}
	return maps.Clone(s.doc)
}

// MarshalJSON serializes the schema as its original document, so definitions
// round-trip through API responses unchanged.
func (s *SchemaDefinition) MarshalJSON() ([]byte, error) {
	if s == nil || s.doc == nil {
		return []byte("null"), nil
	}
	return json.Marshal(s.doc)
}

// normalizeJSON round-trips v through encoding/json so the validator sees
// only JSON value kinds (bool, float64, string, []any, map[string]any, nil).
func normalizeJSON(v any) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// collectViolations flattens a validation error tree into its leaf causes.
// Leaves carry the most specific expected-versus-actual message.
func collectViolations(ve *jsonschema.ValidationError) []Violation {
	var out []Violation
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, Violation{Path: e.InstanceLocation, Message: e.Message})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}
