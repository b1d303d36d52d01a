// Package cast provides value conversion helpers for map[string]any and similar generic data.
package cast

import (
	"encoding/json"
	"fmt"
)

// TemplateValue prepares a caller-supplied input value for template
// substitution. Scalars pass through unchanged so conditionals keep their
// truthiness; composite values (maps, slices, structs) are canonicalized to
// their compact JSON encoding so the rendered text is deterministic.
func TemplateValue(v any) any {
	if IsScalar(v) {
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// IsScalar reports whether v is a scalar value (nil, bool, string, or a
// numeric type, including json.Number).
func IsScalar(v any) bool {
	switch v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		json.Number:
		return true
	default:
		return false
	}
}
