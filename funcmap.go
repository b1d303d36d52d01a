package promptledger

import (
	"encoding/json"
	"text/template"
	"unicode/utf8"
)

// templateFuncs returns the template.FuncMap available to definition bodies.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"truncate_chars": truncateChars,
		"to_json":        toJSON,
	}
}

// truncateChars truncates text to at most maxChars runes.
// Uses RuneCountInString for early exit to avoid allocating []rune when no truncation is needed.
func truncateChars(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars])
}

// toJSON returns the compact JSON encoding of v, for embedding structured
// values inside a prompt body.
func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
