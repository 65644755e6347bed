package domain

// CopyMap returns a deep copy of m. Nested map[string]any and []any values
// are copied recursively; other values are shared.
func CopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CopyValue(v)
	}
	return out
}

// CopyValue deep-copies JSON-shaped values (maps and slices of any).
func CopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = CopyValue(item)
		}
		return out
	default:
		return v
	}
}
