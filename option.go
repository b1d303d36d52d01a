package promptledger

// DefinitionOption configures a Definition (functional options pattern).
type DefinitionOption func(*Definition)

// WithDescription sets the free-text description shown to definition consumers.
func WithDescription(desc string) DefinitionOption {
	return func(d *Definition) {
		d.Description = desc
	}
}

// WithExampleInputs sets illustrative input maps (e.g. from manifest example_inputs).
func WithExampleInputs(inputs []map[string]any) DefinitionOption {
	return func(d *Definition) {
		d.ExampleInputs = inputs
	}
}

// WithOutputSchema sets the raw JSON Schema document for the expected model
// output. NewDefinition compiles it; an empty document means no schema.
func WithOutputSchema(doc map[string]any) DefinitionOption {
	return func(d *Definition) {
		d.schemaDoc = doc
	}
}
