package stack

import "fmt"

// Map returns v as a string-keyed map, converting map[any]any.
func Map(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, item := range m {
			out[fmt.Sprint(k)] = item
		}
		return out, true
	}
	return nil, false
}

// List returns v as a slice.
func List(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// String returns v when it is a string.
func String(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// Lookup walks nested maps along keys.
func Lookup(v any, keys ...string) (any, bool) {
	current := v
	for _, key := range keys {
		m, ok := Map(current)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// LookupString walks nested maps and returns a string leaf.
func LookupString(v any, keys ...string) string {
	item, ok := Lookup(v, keys...)
	if !ok {
		return ""
	}
	s, _ := item.(string)
	return s
}

// Normalize converts every nested map[any]any into map[string]any.
func Normalize(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = Normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	}
	return v
}

// RefTarget returns the target of {"Ref": target}.
func RefTarget(v any) (string, bool) {
	m, ok := Map(v)
	if !ok || len(m) != 1 {
		return "", false
	}
	s, ok := m["Ref"].(string)
	return s, ok
}

// GetAttTarget returns the logical id and attribute of {"Fn::GetAtt": [id, attr]}.
func GetAttTarget(v any) (string, string, bool) {
	m, ok := Map(v)
	if !ok || len(m) != 1 {
		return "", "", false
	}
	args, ok := List(m["Fn::GetAtt"])
	if !ok || len(args) == 0 {
		return "", "", false
	}
	id, _ := args[0].(string)
	attr := ""
	if len(args) > 1 {
		attr, _ = args[1].(string)
	}
	return id, attr, id != ""
}
