package domain

// CloneValue deep-copies a JSON-like value (maps, slices and scalars).
// Other types are returned as-is.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = CloneValue(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = CloneValue(sub)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = CloneValue(sub)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = sub
		}
		return out
	default:
		return v
	}
}

// MergeShallow returns a new map holding base overlaid with patch.
func MergeShallow(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
