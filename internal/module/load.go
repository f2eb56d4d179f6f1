package module

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/stratum/internal/diag"
)

// Resolver materializes a module from an import reference. from is the ID
// of the importing module, empty for the entry module.
type Resolver interface {
	Resolve(ctx context.Context, from, ref string) (*Module, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, from, ref string) (*Module, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, from, ref string) (*Module, error) {
	return f(ctx, from, ref)
}

// MapResolver resolves references as module IDs in memory.
// It is safe for concurrent use.
type MapResolver struct {
	mu      sync.RWMutex
	modules map[string]*Module
	aliases map[string]string
}

// NewMapResolver creates a resolver over mods.
func NewMapResolver(mods ...*Module) *MapResolver {
	r := &MapResolver{
		modules: make(map[string]*Module),
		aliases: make(map[string]string),
	}
	for _, m := range mods {
		r.Add(m)
	}
	return r
}

// Add registers m under its ID, replacing any previous module.
func (r *MapResolver) Add(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.ID] = m
}

// Alias makes ref from the importer from resolve to id.
func (r *MapResolver) Alias(from, ref, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[from+"\x00"+ref] = id
}

// IDs returns the registered module IDs in sorted order.
func (r *MapResolver) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve implements Resolver.
func (r *MapResolver) Resolve(_ context.Context, from, ref string) (*Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id := ref
	if alias, ok := r.aliases[from+"\x00"+ref]; ok {
		id = alias
	}
	m, ok := r.modules[id]
	if !ok {
		return nil, notFound(from, ref)
	}
	return m, nil
}

func notFound(from, ref string) *diag.Error {
	e := diag.New(diag.KindModuleNotFound, "", "cannot resolve %q", ref)
	if from != "" {
		e.Message = fmt.Sprintf("cannot resolve %q imported by %s", ref, from)
		e.Module = from
	}
	e.Related = []string{ref}
	return e
}

// NotFound returns a ModuleNotFoundError for ref imported by from.
// Resolvers use it so every missing module reports the same way.
func NotFound(from, ref string) error {
	return notFound(from, ref)
}

// Load resolves entry and its transitive imports. Modules are returned
// imports first, each exactly once, so an importer follows everything it
// imports. A cycle fails with CyclicImportError whose Related field lists
// the cycle starting and ending at the same module.
func Load(ctx context.Context, r Resolver, entry string) ([]*Module, error) {
	l := &loader{
		ctx:      ctx,
		resolver: r,
		done:     make(map[string]bool),
		onStack:  make(map[string]int),
	}
	if err := l.visit("", entry); err != nil {
		return nil, err
	}
	return l.order, nil
}

type loader struct {
	ctx      context.Context
	resolver Resolver
	done     map[string]bool
	onStack  map[string]int
	stack    []string
	order    []*Module
}

func (l *loader) visit(from, ref string) error {
	if err := l.ctx.Err(); err != nil {
		return err
	}

	m, err := l.resolver.Resolve(l.ctx, from, ref)
	if err != nil {
		var de *diag.Error
		if errors.As(err, &de) || l.ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("resolve %q from %q: %w", ref, from, err)
	}
	if m == nil {
		return notFound(from, ref)
	}

	if l.done[m.ID] {
		return nil
	}
	if idx, ok := l.onStack[m.ID]; ok {
		cycle := append(append([]string{}, l.stack[idx:]...), m.ID)
		return &diag.Error{
			Kind:    diag.KindCyclicImport,
			Module:  from,
			Message: strings.Join(cycle, " -> "),
			Related: cycle,
		}
	}

	l.onStack[m.ID] = len(l.stack)
	l.stack = append(l.stack, m.ID)

	for _, imp := range m.Imports {
		if err := l.visit(m.ID, imp); err != nil {
			return err
		}
	}

	l.stack = l.stack[:len(l.stack)-1]
	delete(l.onStack, m.ID)
	l.done[m.ID] = true
	l.order = append(l.order, m)
	return nil
}
