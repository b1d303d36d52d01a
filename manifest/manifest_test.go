package manifest

import (
	"embed"
	"testing"

	"github.com/promptledger/promptledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

//go:embed testdata/*.yaml
var testdataFS embed.FS

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParseBytes_ValidSimple(t *testing.T) {
	t.Parallel()
	data := []byte(`
prompt_id: simple_prompt
version: 1.0.0
template: "Hello, {{ .user_name }}."
`)
	defs, err := ParseBytes(data)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "simple_prompt", defs[0].ID)
	assert.Equal(t, "1.0.0", defs[0].Version)
	assert.Equal(t, []string{"user_name"}, defs[0].Variables())
}

func TestParseBytes_ValidFull(t *testing.T) {
	t.Parallel()
	data, err := testdataFS.ReadFile("testdata/valid_full.yaml")
	require.NoError(t, err)
	defs, err := ParseBytes(data)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	def := defs[0]
	assert.Equal(t, "support_answer", def.ID)
	assert.Equal(t, "1.2.0", def.Version)
	assert.Equal(t, "Customer support answer with structured output.", def.Description)
	require.Len(t, def.ExampleInputs, 1)
	assert.Equal(t, "Where is my order?", def.ExampleInputs[0]["question"])
	require.NotNil(t, def.OutputSchema)
	assert.NoError(t, def.ValidateOutput(map[string]any{"answer": "Shipped Tuesday.", "sentiment": "neutral"}))
	assert.Error(t, def.ValidateOutput(map[string]any{"sentiment": "neutral"}))
}

func TestParseBytes_MultiDocument(t *testing.T) {
	t.Parallel()
	data, err := testdataFS.ReadFile("testdata/multi_doc.yaml")
	require.NoError(t, err)
	defs, err := ParseBytes(data)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "1.0.0", defs[0].Version)
	assert.Equal(t, "1.1.0", defs[1].Version)
	assert.Equal(t, defs[0].ID, defs[1].ID)
}

func TestParseBytes_MissingFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
	}{
		{"missing prompt_id", "version: 1.0.0\ntemplate: hi\n"},
		{"missing version", "prompt_id: p\ntemplate: hi\n"},
		{"missing template", "prompt_id: p\nversion: 1.0.0\n"},
		{"loose version", "prompt_id: p\nversion: \"1.0\"\ntemplate: hi\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseBytes([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, promptledger.ErrMalformedDefinition)
		})
	}
}

func TestParseBytes_BadYAML(t *testing.T) {
	t.Parallel()
	_, err := ParseBytes([]byte("prompt_id: x\ntemplate: [unclosed"))
	require.Error(t, err)
	assert.ErrorIs(t, err, promptledger.ErrMalformedDefinition)
}

func TestParseBytes_SecondDocumentBad(t *testing.T) {
	t.Parallel()
	data := []byte(`
prompt_id: ok
version: 1.0.0
template: hi
---
prompt_id: broken
template: also hi
`)
	_, err := ParseBytes(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, promptledger.ErrMalformedDefinition)
	assert.Contains(t, err.Error(), "document 1")
}

func TestParseBytes_EmptyStream(t *testing.T) {
	t.Parallel()
	for _, data := range []string{"", "---\n", "# just a comment\n"} {
		_, err := ParseBytes([]byte(data))
		require.Error(t, err, "input %q", data)
		assert.ErrorIs(t, err, promptledger.ErrMalformedDefinition)
	}
}

func TestParseFile(t *testing.T) {
	t.Parallel()
	defs, err := ParseFile("testdata/valid_simple.yaml")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "simple_prompt", defs[0].ID)
}

func TestParseFile_Missing(t *testing.T) {
	t.Parallel()
	_, err := ParseFile("testdata/nope.yaml")
	require.Error(t, err)
}

func TestParseFile_InvalidRecords(t *testing.T) {
	t.Parallel()
	for _, name := range []string{
		"testdata/invalid_missing_id.yaml",
		"testdata/invalid_missing_version.yaml",
	} {
		_, err := ParseFile(name)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, promptledger.ErrMalformedDefinition, name)
	}
}

func TestParseFS(t *testing.T) {
	t.Parallel()
	defs, err := ParseFS(testdataFS, "testdata/valid_simple.yaml")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "simple_prompt", defs[0].ID)
}
