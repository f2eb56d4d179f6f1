package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/value"
)

// Registry maintains all declared options.
type Registry struct {
	mu       sync.RWMutex
	options  map[string]*OptionDef
	sections map[string][]*OptionDef // Options grouped by top-level segment
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		options:  make(map[string]*OptionDef),
		sections: make(map[string][]*OptionDef),
	}
}

// Declare adds an option definition.
//
// Redeclaring a path with an identical type succeeds without effect: the
// first declaration is kept as is. Redeclaring with a different type fails
// with a DuplicateOptionError. A path that is a strict prefix of an
// existing path, or extends one, fails with an InvalidOptionPathError.
func (r *Registry) Declare(def OptionDef) error {
	if err := ValidatePath(def.Path); err != nil {
		return err
	}
	if def.Type == nil {
		return diag.New(diag.KindTypeMismatch, def.Path, "option declared without a type")
	}
	if def.HasDefault {
		n, err := value.Normalize(def.Default)
		if err != nil {
			return diag.Wrap(diag.KindTypeMismatch, def.Path, err)
		}
		if err := check(def.Type, n, def.Path); err != nil {
			return diag.Wrap(diag.KindTypeMismatch, def.Path, err).InModule(def.DeclaredBy)
		}
		def.Default = n
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.options[def.Path]; ok {
		if err := existing.compatible(&def); err != nil {
			return &diag.Error{
				Kind:    diag.KindDuplicateOption,
				Path:    def.Path,
				Module:  def.DeclaredBy,
				Message: err.Error(),
			}
		}
		return nil
	}

	if conflict := r.prefixConflict(def.Path); conflict != "" {
		return &diag.Error{
			Kind:    diag.KindInvalidOptionPath,
			Path:    def.Path,
			Module:  def.DeclaredBy,
			Message: "overlaps declared option " + conflict,
		}
	}

	d := def // Copy to heap
	r.options[def.Path] = &d
	section := Section(def.Path)
	r.sections[section] = append(r.sections[section], &d)
	return nil
}

// prefixConflict returns a declared path that overlaps path as a strict
// prefix in either direction (must be called with lock held).
func (r *Registry) prefixConflict(path string) string {
	parts := strings.Split(path, ".")
	for i := 1; i < len(parts); i++ {
		prefix := strings.Join(parts[:i], ".")
		if _, ok := r.options[prefix]; ok {
			return prefix
		}
	}
	extended := path + "."
	for p := range r.options {
		if strings.HasPrefix(p, extended) {
			return p
		}
	}
	return ""
}

// Lookup returns the definition for path or an UnknownOptionError.
// The returned definition must not be modified.
func (r *Registry) Lookup(path string) (*OptionDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.options[path]
	if !ok {
		return nil, diag.New(diag.KindUnknownOption, path, "no such option")
	}
	return def, nil
}

// Has reports whether path is declared.
func (r *Registry) Has(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.options[path]
	return ok
}

// DefaultValue returns a copy of the declared default for path.
// Fails with UnknownOptionError or NoDefaultError.
func (r *Registry) DefaultValue(path string) (any, error) {
	def, err := r.Lookup(path)
	if err != nil {
		return nil, err
	}
	if !def.HasDefault {
		return nil, diag.New(diag.KindNoDefault, path, "option has no default")
	}
	return value.Clone(def.Default), nil
}

// Len returns the number of declared options.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.options)
}

// All returns all definitions sorted by path.
func (r *Registry) All() []*OptionDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*OptionDef, 0, len(r.options))
	for _, d := range r.options {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Path < result[j].Path
	})
	return result
}

// Section returns the definitions under a top-level segment.
func (r *Registry) Section(name string) []*OptionDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := r.sections[name]
	result := make([]*OptionDef, len(defs))
	copy(result, defs)
	return result
}

// Sections returns all top-level segment names.
func (r *Registry) Sections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.sections))
	for s := range r.sections {
		result = append(result, s)
	}
	sort.Strings(result)
	return result
}

// Search finds options whose path or description contains query,
// case-insensitively. Internal options are skipped.
func (r *Registry) Search(query string) []*OptionDef {
	query = strings.ToLower(query)

	var result []*OptionDef
	for _, d := range r.All() {
		if d.Internal {
			continue
		}
		if strings.Contains(strings.ToLower(d.Path), query) ||
			strings.Contains(strings.ToLower(d.Description), query) {
			result = append(result, d)
		}
	}
	return result
}

// Validate checks value against the declared type of path.
func (r *Registry) Validate(path string, v any) error {
	def, err := r.Lookup(path)
	if err != nil {
		return err
	}
	if err := check(def.Type, v, path); err != nil {
		return diag.Wrap(diag.KindTypeMismatch, path, err)
	}
	return nil
}

// Required returns the paths of options declared as required, sorted.
func (r *Registry) Required() []string {
	var result []string
	for _, d := range r.All() {
		if d.Required {
			result = append(result, d.Path)
		}
	}
	return result
}
