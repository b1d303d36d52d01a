package promptledger_test

import (
	"errors"
	"fmt"

	"github.com/promptledger/promptledger"
)

func ExampleNewDefinition() {
	def, err := promptledger.NewDefinition(
		"summarization_short",
		"1.0.0",
		"Summarize in two sentences: {{ .input_text }}",
		promptledger.WithDescription("Short summary prompt"),
	)
	if err != nil {
		panic(err)
	}
	fmt.Println(def.ID, def.Version)
	fmt.Println(def.Variables())
	// Output:
	// summarization_short 1.0.0
	// [input_text]
}

func ExampleDefinition_Render() {
	def, _ := promptledger.NewDefinition("greeting", "1.0.0", "Hello, {{ .user_name }}!")
	text, err := def.Render(map[string]any{"user_name": "Alice"})
	if err != nil {
		panic(err)
	}
	fmt.Println(text)
	// Output: Hello, Alice!
}

func ExampleDefinition_Render_missingVariable() {
	def, _ := promptledger.NewDefinition("greeting", "1.0.0", "Hello, {{ .user_name }}!")
	_, err := def.Render(map[string]any{})
	var ve *promptledger.VariableError
	if errors.As(err, &ve) {
		fmt.Println(ve.Variable)
	}
	// Output: user_name
}

func ExampleDefinition_ValidateOutput() {
	def, _ := promptledger.NewDefinition("qa", "1.0.0", "Answer: {{ .question }}",
		promptledger.WithOutputSchema(map[string]any{
			"type":     "object",
			"required": []any{"answer"},
		}),
	)
	err := def.ValidateOutput(map[string]any{"wrong_key": true})
	var sve *promptledger.SchemaViolationError
	if errors.As(err, &sve) {
		fmt.Println(len(sve.Violations) > 0)
	}
	// Output: true
}
