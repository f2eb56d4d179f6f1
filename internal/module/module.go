// Package module defines configuration modules and flattens their import
// graph into evaluation order.
package module

import (
	"github.com/dshills/stratum/internal/annotate"
	"github.com/dshills/stratum/internal/assert"
	"github.com/dshills/stratum/internal/registry"
)

// Module is one unit of configuration: option declarations, value
// contributions and checks, plus the modules it imports.
type Module struct {
	// ID uniquely identifies the module within a load.
	ID string

	// Imports are references resolved relative to this module.
	Imports []string

	// Options are the option declarations this module owns.
	Options []registry.OptionDef

	// Definitions are raw value contributions.
	Definitions []Definition

	// Checks are assertions and warnings over the merged tree.
	Checks []assert.Check

	// Requires lists option paths that must be resolved.
	Requires []string

	// Origin is where the module was read from, if anywhere.
	Origin string
}

// Definition is an unannotated contribution.
type Definition struct {
	Path  string
	Value any

	// Priority is the contribution priority. Nil means
	// annotate.PriorityNormal.
	Priority *int

	// Condition withdraws the contribution when false. Nil means always.
	Condition annotate.Condition

	Hint annotate.Hint
}

// At returns d with an explicit priority.
func (d Definition) At(priority int) Definition {
	d.Priority = &priority
	return d
}

// EffectivePriority returns Priority with the unset value resolved.
func (d Definition) EffectivePriority() int {
	if d.Priority == nil {
		return annotate.PriorityNormal
	}
	return *d.Priority
}

// New creates an empty module.
func New(id string, imports ...string) *Module {
	return &Module{ID: id, Imports: imports}
}

// Declare adds an option declaration and returns m for chaining.
func (m *Module) Declare(defs ...registry.OptionDef) *Module {
	for _, d := range defs {
		d.DeclaredBy = m.ID
		m.Options = append(m.Options, d)
	}
	return m
}

// Define adds a contribution and returns m for chaining.
func (m *Module) Define(path string, v any) *Module {
	return m.Add(Definition{Path: path, Value: v})
}

// Add appends full definitions and returns m for chaining.
func (m *Module) Add(defs ...Definition) *Module {
	m.Definitions = append(m.Definitions, defs...)
	return m
}

// Check appends checks, attributing them to m.
func (m *Module) Check(checks ...assert.Check) *Module {
	for _, c := range checks {
		if c.Source == "" {
			c.Source = m.ID
		}
		m.Checks = append(m.Checks, c)
	}
	return m
}

// Require adds required option paths.
func (m *Module) Require(paths ...string) *Module {
	m.Requires = append(m.Requires, paths...)
	return m
}
