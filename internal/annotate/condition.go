package annotate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/stratum/internal/value"
)

// Condition is a predicate over the best-known merged tree. A contribution
// whose condition does not hold is withdrawn for that merge iteration.
type Condition interface {
	// Holds evaluates the condition against tree.
	Holds(tree value.Tree) (bool, error)

	// Refs lists the option paths the condition reads. Nil means unknown.
	Refs() []string

	// String describes the condition for diagnostics.
	String() string
}

// Always is the condition that always holds.
var Always Condition = always{}

type always struct{}

func (always) Holds(value.Tree) (bool, error) { return true, nil }
func (always) Refs() []string                  { return []string{} }
func (always) String() string                  { return "always" }

// IsAlways reports whether c is nil or Always.
func IsAlways(c Condition) bool {
	if c == nil {
		return true
	}
	_, ok := c.(always)
	return ok
}

// IsTrue holds when path resolves to boolean true. An unresolved path does
// not hold.
func IsTrue(path string) Condition {
	return isTrue{path: path}
}

type isTrue struct{ path string }

func (c isTrue) Holds(tree value.Tree) (bool, error) {
	v, ok := tree.Get(c.path)
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("condition reads %s as bool, found %s", c.path, value.KindName(v))
	}
	return b, nil
}

func (c isTrue) Refs() []string { return []string{c.path} }
func (c isTrue) String() string { return c.path }

// Equals holds when path resolves to a value equal to want.
func Equals(path string, want any) Condition {
	return equals{path: path, want: value.MustNormalize(want)}
}

type equals struct {
	path string
	want any
}

func (c equals) Holds(tree value.Tree) (bool, error) {
	v, ok := tree.Get(c.path)
	if !ok {
		return false, nil
	}
	return value.Equal(v, c.want), nil
}

func (c equals) Refs() []string { return []string{c.path} }
func (c equals) String() string { return fmt.Sprintf("%s == %v", c.path, c.want) }

// Not negates a condition.
func Not(c Condition) Condition {
	return not{inner: c}
}

type not struct{ inner Condition }

func (c not) Holds(tree value.Tree) (bool, error) {
	ok, err := holds(c.inner, tree)
	return !ok, err
}

func (c not) Refs() []string { return refs(c.inner) }
func (c not) String() string { return "!(" + describe(c.inner) + ")" }

// All holds when every condition holds. Evaluation stops at the first
// condition that does not.
func All(cs ...Condition) Condition {
	return junction{conds: cs, all: true}
}

// Any holds when at least one condition holds.
func Any(cs ...Condition) Condition {
	return junction{conds: cs}
}

type junction struct {
	conds []Condition
	all   bool
}

func (c junction) Holds(tree value.Tree) (bool, error) {
	for _, inner := range c.conds {
		ok, err := holds(inner, tree)
		if err != nil {
			return false, err
		}
		if ok != c.all {
			return ok, nil
		}
	}
	return c.all, nil
}

func (c junction) Refs() []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, inner := range c.conds {
		r := refs(inner)
		if r == nil {
			return nil
		}
		for _, p := range r {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

func (c junction) String() string {
	parts := make([]string, len(c.conds))
	for i, inner := range c.conds {
		parts[i] = describe(inner)
	}
	op := " || "
	if c.all {
		op = " && "
	}
	return "(" + strings.Join(parts, op) + ")"
}

// Func adapts a Go predicate. refs may be nil when unknown.
func Func(name string, fn func(value.Tree) (bool, error), refs ...string) Condition {
	return funcCond{name: name, fn: fn, refs: refs}
}

type funcCond struct {
	name string
	fn   func(value.Tree) (bool, error)
	refs []string
}

func (c funcCond) Holds(tree value.Tree) (bool, error) { return c.fn(tree) }
func (c funcCond) Refs() []string                      { return c.refs }
func (c funcCond) String() string                      { return c.name }

func holds(c Condition, tree value.Tree) (bool, error) {
	if c == nil {
		return true, nil
	}
	return c.Holds(tree)
}

func refs(c Condition) []string {
	if c == nil {
		return []string{}
	}
	return c.Refs()
}

func describe(c Condition) string {
	if c == nil {
		return "always"
	}
	return c.String()
}
