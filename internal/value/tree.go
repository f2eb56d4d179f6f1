package value

import (
	"sort"
	"strings"
)

// Tree is an immutable snapshot mapping option paths to resolved values.
// The zero value is an empty tree.
type Tree struct {
	values map[string]any
}

// NewTree builds a tree from a flat path map. The map is deep-copied.
func NewTree(flat map[string]any) Tree {
	if len(flat) == 0 {
		return Tree{}
	}
	return Tree{values: CloneMap(flat)}
}

// Get returns the value at path. The returned value must not be modified;
// use Lookup for a private copy.
func (t Tree) Get(path string) (any, bool) {
	v, ok := t.values[path]
	return v, ok
}

// Lookup returns a deep copy of the value at path.
func (t Tree) Lookup(path string) (any, bool) {
	v, ok := t.values[path]
	if !ok {
		return nil, false
	}
	return Clone(v), true
}

// Has reports whether path is resolved.
func (t Tree) Has(path string) bool {
	_, ok := t.values[path]
	return ok
}

// Len returns the number of resolved paths.
func (t Tree) Len() int {
	return len(t.values)
}

// Paths returns every resolved path in lexical order.
func (t Tree) Paths() []string {
	return SortedKeys(t.values)
}

// Flat returns a deep copy of the path map.
func (t Tree) Flat() map[string]any {
	if t.values == nil {
		return map[string]any{}
	}
	return CloneMap(t.values)
}

// Nested returns the tree as a nested document, splitting paths on dots.
func (t Tree) Nested() map[string]any {
	out := make(map[string]any)
	for _, p := range t.Paths() {
		SetByPath(out, p, Clone(t.values[p]))
	}
	return out
}

// Equal reports whether two trees hold the same paths and values.
func (t Tree) Equal(other Tree) bool {
	if len(t.values) != len(other.values) {
		return false
	}
	for p, v := range t.values {
		ov, ok := other.values[p]
		if !ok || !Equal(v, ov) {
			return false
		}
	}
	return true
}

// ChangedPaths returns the sorted paths whose values differ between trees,
// including paths present in only one of them.
func (t Tree) ChangedPaths(other Tree) []string {
	var changed []string
	for p, v := range t.values {
		if ov, ok := other.values[p]; !ok || !Equal(v, ov) {
			changed = append(changed, p)
		}
	}
	for p := range other.values {
		if _, ok := t.values[p]; !ok {
			changed = append(changed, p)
		}
	}
	sort.Strings(changed)
	return changed
}

// GetByPath retrieves a value from a nested map using a dot-separated path.
func GetByPath(data map[string]any, path string) (any, bool) {
	if data == nil {
		return nil, false
	}

	current := any(data)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		val, exists := m[part]
		if !exists {
			return nil, false
		}
		current = val
	}

	return current, true
}

// SetByPath sets a value in a nested map using a dot-separated path,
// creating intermediate maps as needed.
func SetByPath(data map[string]any, path string, v any) {
	if data == nil {
		return
	}

	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = v
}

// Flatten flattens a nested map into dot-separated keys. Leaves are
// non-map values; empty maps are dropped.
func Flatten(data map[string]any) map[string]any {
	result := make(map[string]any)
	flatten(data, "", result)
	return result
}

func flatten(data map[string]any, prefix string, result map[string]any) {
	for key, val := range data {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flatten(nested, full, result)
		} else {
			result[full] = val
		}
	}
}
