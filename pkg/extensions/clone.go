package extensions

// asObject accepts both plain JSON objects and Documents.
func asObject(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, m != nil
	case Document:
		return map[string]interface{}(m), m != nil
	default:
		return nil, false
	}
}

func cloneObject(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		if t == nil {
			return nil
		}
		return cloneObject(t)
	case Document:
		return t.Clone()
	case []interface{}:
		if t == nil {
			return nil
		}
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// CloneValue returns a deep copy of a JSON-like value.
func CloneValue(v interface{}) interface{} {
	return cloneValue(v)
}
