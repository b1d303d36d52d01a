package promptledger

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/template"

	"github.com/promptledger/promptledger/internal/cast"
)

// NewDefinition builds a Definition with defensive copies and applies options.
// The template body is parsed and its variables extracted up front, and the
// output schema (if any) is compiled, so a Definition that constructs without
// error is ready to render. Returns ErrMalformedDefinition when a required
// field is missing, the version is not strict semver, the template does not
// parse, or the schema does not compile.
func NewDefinition(id, version, tmpl string, opts ...DefinitionOption) (*Definition, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: missing prompt_id", ErrMalformedDefinition)
	}
	if strings.TrimSpace(version) == "" {
		return nil, fmt.Errorf("%w: prompt %q: missing version", ErrMalformedDefinition, id)
	}
	if _, err := ParseVersion(version); err != nil {
		return nil, fmt.Errorf("prompt %q: %w", id, err)
	}
	if strings.TrimSpace(tmpl) == "" {
		return nil, fmt.Errorf("%w: prompt %q: missing template", ErrMalformedDefinition, id)
	}
	d := &Definition{
		ID:       id,
		Version:  version,
		Template: tmpl,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.ExampleInputs != nil {
		d.ExampleInputs = cloneInputs(d.ExampleInputs)
	}
	if len(d.schemaDoc) > 0 {
		schema, err := CompileSchema(d.schemaDoc)
		if err != nil {
			return nil, fmt.Errorf("%w: prompt %q: expected_output_schema: %v", ErrMalformedDefinition, id, err)
		}
		d.OutputSchema = schema
	}
	d.schemaDoc = nil
	parsed, err := template.New(id).Funcs(templateFuncs()).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("%w: prompt %q: template: %v", ErrMalformedDefinition, id, err)
	}
	d.tpl = parsed
	d.vars = extractVarsFromTree(parsed.Tree)
	return d, nil
}

// CloneDefinition returns a copy of the definition with cloned slice and map
// fields. Registries use this so callers cannot mutate the cached definition.
// The parsed template and compiled schema are shared; both are immutable.
func CloneDefinition(d *Definition) *Definition {
	if d == nil {
		return nil
	}
	return &Definition{
		ID:            d.ID,
		Version:       d.Version,
		Description:   d.Description,
		Template:      d.Template,
		ExampleInputs: cloneInputs(d.ExampleInputs),
		OutputSchema:  d.OutputSchema,
		tpl:           d.tpl,
		vars:          d.vars,
	}
}

// Render substitutes inputs into the template body and returns the final
// prompt text. Every variable referenced by the template must be present in
// inputs; the first missing one is reported as a VariableError wrapping
// ErrMissingVariable. Extra keys are ignored. Scalar values substitute as-is;
// maps and slices are canonicalized to compact JSON so rendering stays
// deterministic.
func (d *Definition) Render(inputs map[string]any) (string, error) {
	if d.tpl == nil {
		return "", fmt.Errorf("%w: prompt %q: template not parsed", ErrTemplateRender, d.ID)
	}
	data := make(map[string]any, len(inputs))
	for k, v := range inputs {
		data[k] = cast.TemplateValue(v)
	}
	for _, name := range d.vars {
		if _, ok := data[name]; !ok {
			return "", &VariableError{Variable: name, PromptID: d.ID, Err: ErrMissingVariable}
		}
	}
	var buf bytes.Buffer
	if err := d.tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTemplateRender, err)
	}
	return buf.String(), nil
}

// Variables returns the variable names the template references, in order of
// first appearance.
func (d *Definition) Variables() []string {
	return slices.Clone(d.vars)
}

// ValidateOutput checks a candidate model output against the declared output
// schema. Definitions without a schema accept any output. Violations are
// reported as a SchemaViolationError wrapping ErrSchemaViolation.
func (d *Definition) ValidateOutput(candidate any) error {
	err := d.OutputSchema.Validate(candidate)
	if err != nil {
		var sve *SchemaViolationError
		if errors.As(err, &sve) {
			sve.PromptID = d.ID
		}
	}
	return err
}

func cloneInputs(inputs []map[string]any) []map[string]any {
	if inputs == nil {
		return nil
	}
	out := make([]map[string]any, len(inputs))
	for i, m := range inputs {
		out[i] = maps.Clone(m)
	}
	return out
}
