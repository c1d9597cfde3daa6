package webhook

import "fmt"

// FilterCondition selects the objects of the array at ArrayPath whose Field
// equals Equals, e.g. the "status" entries of changelog.items.
type FilterCondition struct {
	ArrayPath string
	Field     string
	Equals    string
}

// Select returns the matching objects in array order. A missing array selects nothing.
func (f FilterCondition) Select(p Payload) []map[string]any {
	v, ok := p.Lookup(f.ArrayPath)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if text(m[f.Field]) == f.Equals {
			out = append(out, m)
		}
	}
	return out
}

// First is Select limited to the first match.
func (f FilterCondition) First(p Payload) (map[string]any, bool) {
	matches := f.Select(p)
	if len(matches) == 0 {
		return nil, false
	}
	return matches[0], true
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
