package types

// State is the mutable key-value data threaded through a workflow run.
// Values may be scalars, slices, or nested maps. A State instance is
// owned by exactly one in-flight run and must not be shared across runs.
type State map[string]any

// Clone returns a deep copy of the state. Log entries snapshot state
// before and after each node, so copies must not alias the live maps.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge applies a partial update to the state in place. The merge is
// shallow: updated keys overwrite existing values wholesale, untouched
// keys persist, and nested structures are never merged recursively.
func (s State) Merge(update State) {
	for k, v := range update {
		s[k] = v
	}
}

// Get navigates a dotted field path ("metrics.quality_score") through
// nested maps. The second return reports whether every segment resolved.
func (s State) Get(path []string) (any, bool) {
	var cur any = map[string]any(s)
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			if st, isState := cur.(State); isState {
				m = map[string]any(st)
			} else {
				return nil, false
			}
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case State:
		return map[string]any(t.Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e).(map[string]any)
		}
		return out
	default:
		// Scalars (and anything else) are copied by value. Actions that
		// store pointers in state give up snapshot isolation for them.
		return v
	}
}
