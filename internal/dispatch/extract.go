package dispatch

import (
	"github.com/hanpama/virtugraph/internal/gqlpath"
)

// Extract reads the value at target out of v, the value produced at base.
// Field segments follow response keys; fragment segments keep objects whose
// __typename matches (or that carry none). Lists met on the way are
// flattened, so the result is a single value only when none was met.
func Extract(v any, base, target gqlpath.Path) (any, bool) {
	if target == base {
		return v, true
	}
	if !target.IsDescendentTo(base) {
		return nil, false
	}
	rel := target.Segments()[base.Len():]
	var out []any
	listed := extract(v, rel, &out, false)
	if listed {
		if out == nil {
			out = []any{}
		}
		return out, true
	}
	if len(out) == 0 {
		return nil, true
	}
	return out[0], true
}

func extract(v any, rel []gqlpath.Segment, out *[]any, listed bool) bool {
	if list, ok := v.([]any); ok && len(rel) > 0 {
		for _, e := range list {
			extract(e, rel, out, true)
		}
		return true
	}
	if len(rel) == 0 {
		*out = append(*out, v)
		return listed
	}
	obj, ok := v.(map[string]any)
	if !ok {
		if v == nil && !listed {
			*out = append(*out, nil)
		}
		return listed
	}
	seg := rel[0]
	switch seg.Kind {
	case gqlpath.KindInlineFragment:
		if tn, ok := obj["__typename"].(string); ok && tn != seg.Name {
			return listed
		}
		return extract(obj, rel[1:], out, listed)
	case gqlpath.KindFragmentSpread:
		return extract(obj, rel[1:], out, listed)
	}
	return extract(obj[seg.ResponseKey()], rel[1:], out, listed)
}
