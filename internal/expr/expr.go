// Package expr compiles boolean Lua expressions used as contribution
// conditions and as assertion and warning predicates in module files.
//
// An expression sees two functions:
//
//	opt(path)            -- the current value at path, or nil
//	has(path)            -- whether path is resolved
//	contains(list, v)    -- whether list holds v
//
// Each evaluation runs in a fresh, sandboxed gopher-lua state with only the
// base, table, string and math libraries and a wall-clock budget.
package expr

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/value"
)

// DefaultTimeout bounds a single predicate evaluation.
const DefaultTimeout = time.Second

// ErrNotBoolean is returned when an expression yields a non-boolean value.
var ErrNotBoolean = errors.New("expression did not evaluate to a boolean")

// Predicate is a compiled expression.
type Predicate struct {
	source  string
	proto   *lua.FunctionProto
	refs    []string
	timeout time.Duration
	strict  bool
}

// Option configures compilation.
type Option func(*Predicate)

// WithTimeout sets the evaluation budget.
func WithTimeout(d time.Duration) Option {
	return func(p *Predicate) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// Compile parses source as a single Lua expression.
func Compile(source string, opts ...Option) (*Predicate, error) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return nil, diag.New(diag.KindParse, "", "empty expression")
	}

	chunk, err := parse.Parse(strings.NewReader("return ("+trimmed+")"), trimmed)
	if err != nil {
		return nil, &diag.Error{Kind: diag.KindParse, Message: "expression " + quote(trimmed), Err: err}
	}
	proto, err := lua.Compile(chunk, trimmed)
	if err != nil {
		return nil, &diag.Error{Kind: diag.KindParse, Message: "expression " + quote(trimmed), Err: err}
	}

	p := &Predicate{
		source:  trimmed,
		proto:   proto,
		refs:    scanRefs(trimmed),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// MustCompile is Compile for literals known to be valid.
func MustCompile(source string, opts ...Option) *Predicate {
	p, err := Compile(source, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Strict returns a copy of p whose opt() calls fail with a
// MissingRequiredOptionError on unresolved paths instead of yielding nil.
func (p *Predicate) Strict() *Predicate {
	c := *p
	c.strict = true
	return &c
}

// Holds evaluates the expression against tree.
func (p *Predicate) Holds(tree value.Tree) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	L := newState()
	defer L.Close()
	L.SetContext(ctx)

	var missing string
	b := bridge{L: L}

	L.SetGlobal("opt", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(1)
		v, ok := tree.Get(path)
		if !ok {
			if p.strict {
				missing = path
				L.RaiseError("option %s is not set", path)
				return 0
			}
			L.Push(lua.LNil)
			return 1
		}
		L.Push(b.toLua(v))
		return 1
	}))
	L.SetGlobal("has", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(tree.Has(L.CheckString(1))))
		return 1
	}))
	L.SetGlobal("contains", L.NewFunction(func(L *lua.LState) int {
		list := L.CheckTable(1)
		needle := b.toGo(L.Get(2))
		found := false
		list.ForEach(func(_, v lua.LValue) {
			if !found && value.Equal(b.toGo(v), needle) {
				found = true
			}
		})
		L.Push(lua.LBool(found))
		return 1
	}))

	L.Push(L.NewFunctionFromProto(p.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		if missing != "" {
			return false, diag.New(diag.KindMissingRequiredOption, missing, "required by %s", quote(p.source))
		}
		if ctx.Err() != nil {
			return false, &diag.Error{Kind: diag.KindCondition, Message: quote(p.source) + " exceeded time budget", Err: ctx.Err()}
		}
		return false, &diag.Error{Kind: diag.KindCondition, Message: quote(p.source), Err: err}
	}

	ret := L.Get(-1)
	L.Pop(1)
	result, ok := ret.(lua.LBool)
	if !ok {
		return false, &diag.Error{
			Kind:    diag.KindCondition,
			Message: fmt.Sprintf("%s yielded %s", quote(p.source), ret.Type()),
			Err:     ErrNotBoolean,
		}
	}
	return bool(result), nil
}

// Refs lists the literal option paths the expression reads, or nil when
// it calls opt or has with a computed argument.
func (p *Predicate) Refs() []string {
	if p.refs == nil {
		return nil
	}
	return append([]string{}, p.refs...)
}

// String returns the expression source.
func (p *Predicate) String() string {
	return p.source
}

var (
	literalRef = regexp.MustCompile(`\b(?:opt|has)\s*\(\s*["']([^"']+)["']\s*\)`)
	anyRef     = regexp.MustCompile(`\b(?:opt|has)\s*\(`)
)

func scanRefs(src string) []string {
	matches := literalRef.FindAllStringSubmatch(src, -1)
	if len(matches) != len(anyRef.FindAllString(src, -1)) {
		return nil
	}
	seen := make(map[string]bool)
	refs := []string{}
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			refs = append(refs, m[1])
		}
	}
	return refs
}

func quote(s string) string {
	return "`" + s + "`"
}
