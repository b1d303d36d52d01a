package promptledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for definition loading, version resolution, rendering,
// and output validation.
// All use prefix "promptledger:" for identification. Callers should use errors.Is/errors.As.
var (
	ErrMalformedDefinition = errors.New("promptledger: definition record is malformed")
	ErrUnknownPrompt       = errors.New("promptledger: no definitions registered for prompt id")
	ErrUnknownVersion      = errors.New("promptledger: requested prompt version not found")
	ErrMissingVariable     = errors.New("promptledger: required template variable not provided")
	ErrTemplateRender      = errors.New("promptledger: template rendering failed")
	ErrSchemaViolation     = errors.New("promptledger: output does not conform to expected schema")
)

// VariableError wraps a sentinel error with variable and prompt context.
// Use errors.Is(err, ErrMissingVariable) and errors.As(err, &variableErr) to inspect.
type VariableError struct {
	Variable string
	PromptID string
	Err      error
}

// Error implements error.
func (e *VariableError) Error() string {
	return fmt.Sprintf("promptledger: variable %q in prompt %q: %v", e.Variable, e.PromptID, e.Err)
}

// Unwrap returns the wrapped error for errors.Is/errors.As.
func (e *VariableError) Unwrap() error { return e.Err }

// Compile-time check that VariableError implements error.
var _ error = (*VariableError)(nil)

// Violation describes one failed schema constraint: where in the candidate
// output it occurred (a JSON Pointer, "" for the root) and what the schema
// expected versus what was found.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// SchemaViolationError wraps ErrSchemaViolation with the full list of failed
// constraints. Use errors.As to recover the violations.
type SchemaViolationError struct {
	PromptID   string
	Violations []Violation
}

// Error implements error.
func (e *SchemaViolationError) Error() string {
	if len(e.Violations) == 0 {
		return ErrSchemaViolation.Error()
	}
	v := e.Violations[0]
	return fmt.Sprintf("%v: %d violation(s), first at %q: %s", ErrSchemaViolation, len(e.Violations), v.Path, v.Message)
}

// Unwrap returns ErrSchemaViolation for errors.Is.
func (e *SchemaViolationError) Unwrap() error { return ErrSchemaViolation }

var _ error = (*SchemaViolationError)(nil)
