// Package merge folds annotated contributions into one resolved
// configuration tree.
//
// Contributions to a path combine by the declared option type: scalars take
// the lowest priority (ties to the earliest declaration), lists concatenate,
// sets concatenate and drop duplicates, attribute sets merge key by key.
// Force contributions, when any survive, exclude all others. Conditional
// contributions are resolved by iterating to a fixed point: the first tree
// is computed with every condition withdrawn, each later tree evaluates
// conditions against its predecessor, and merging stops when two
// consecutive trees are equal.
package merge

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/dshills/stratum/internal/annotate"
	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/registry"
	"github.com/dshills/stratum/internal/value"
)

// DefaultMaxIterations bounds the conditional fixed-point loop.
const DefaultMaxIterations = 32

// DefaultSource is the provenance entry for values taken from the registry.
const DefaultSource = "<default>"

// Requirement is a path some module needs resolved.
type Requirement struct {
	Path   string
	Module string
}

// Result is the outcome of a merge.
type Result struct {
	// Tree is the merged configuration.
	Tree value.Tree

	// Provenance maps each resolved path to the modules whose
	// contributions produced its value, or DefaultSource.
	Provenance map[string][]string

	// Iterations is the number of condition evaluation passes.
	Iterations int
}

// Engine merges contributions against a registry.
type Engine struct {
	reg           *registry.Registry
	maxIterations int
	logger        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxIterations bounds the fixed-point loop. Values below 1 are ignored.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithLogger sets the logger for iteration tracing.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine over a fully populated registry.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:           reg,
		maxIterations: DefaultMaxIterations,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxIterations returns the configured iteration bound.
func (e *Engine) MaxIterations() int {
	return e.maxIterations
}

// Merge resolves contributions into a tree. Every registered option with a
// contribution or a default appears in the result. Missing required
// options and unmet requirements are reported together as
// MissingRequiredOptionError.
//
// Each condition evaluation pass counts as one iteration, including the
// final pass confirming that nothing changed.
func (e *Engine) Merge(contribs []annotate.AnnotatedValue, requires ...Requirement) (*Result, error) {
	groups, conditional, err := e.group(contribs)
	if err != nil {
		return nil, err
	}

	tree, prov, err := e.resolve(groups, withdrawn)
	if err != nil {
		return nil, err
	}

	iterations := 0
	for conditional {
		next, nextProv, err := e.resolve(groups, against(tree))
		if err != nil {
			return nil, err
		}
		iterations++

		changed := tree.ChangedPaths(next)
		e.logger.Debug("merge iteration",
			"iteration", iterations,
			"paths", next.Len(),
			"changed", len(changed))

		tree, prov = next, nextProv
		if len(changed) == 0 {
			break
		}
		if iterations >= e.maxIterations {
			msg := fmt.Sprintf("conditions did not converge after %d iterations; still changing: %s",
				iterations, strings.Join(changed, ", "))
			return nil, &diag.Error{
				Kind:    diag.KindUnresolvableCondition,
				Message: msg,
				Related: changed,
			}
		}
	}

	if err := e.checkRequired(tree, requires); err != nil {
		return nil, err
	}
	return &Result{Tree: tree, Provenance: prov, Iterations: iterations}, nil
}

// selector decides whether a contribution participates in a pass.
type selector func(annotate.AnnotatedValue) (bool, error)

// withdrawn selects only unconditional contributions.
func withdrawn(av annotate.AnnotatedValue) (bool, error) {
	return !av.Conditional(), nil
}

// against evaluates conditions on the previous tree.
func against(prev value.Tree) selector {
	return func(av annotate.AnnotatedValue) (bool, error) {
		if !av.Conditional() {
			return true, nil
		}
		ok, err := av.Condition.Holds(prev)
		if err != nil {
			return false, conditionError(av, err)
		}
		return ok, nil
	}
}

// group buckets contributions by path and reports whether any contribution
// is conditional.
func (e *Engine) group(contribs []annotate.AnnotatedValue) (map[string][]annotate.AnnotatedValue, bool, error) {
	groups := make(map[string][]annotate.AnnotatedValue)
	conditional := false
	var errs diag.List
	for _, av := range contribs {
		if !e.reg.Has(av.Path) {
			errs.Add(diag.New(diag.KindUnknownOption, av.Path, "contributed but never declared").InModule(av.Source))
			continue
		}
		groups[av.Path] = append(groups[av.Path], av)
		if av.Conditional() {
			conditional = true
		}
	}
	if err := errs.Err(); err != nil {
		return nil, false, err
	}
	return groups, conditional, nil
}

// resolve computes one tree using active to select contributions.
func (e *Engine) resolve(groups map[string][]annotate.AnnotatedValue, active selector) (value.Tree, map[string][]string, error) {
	flat := make(map[string]any)
	prov := make(map[string][]string)

	for _, def := range e.reg.All() {
		var live []annotate.AnnotatedValue
		for _, av := range groups[def.Path] {
			ok, err := active(av)
			if err != nil {
				return value.Tree{}, nil, err
			}
			if ok {
				live = append(live, av)
			}
		}
		live = forcePartition(live)

		if len(live) == 0 {
			if def.HasDefault {
				flat[def.Path] = value.Clone(def.Default)
				prov[def.Path] = []string{DefaultSource}
			}
			continue
		}

		v, srcs := combine(def.Type, partsOf(live))
		flat[def.Path] = v
		prov[def.Path] = srcs
	}
	return value.NewTree(flat), prov, nil
}

// forcePartition keeps only force contributions when any exist.
func forcePartition(avs []annotate.AnnotatedValue) []annotate.AnnotatedValue {
	var forced []annotate.AnnotatedValue
	for _, av := range avs {
		if av.IsForce() {
			forced = append(forced, av)
		}
	}
	if len(forced) > 0 {
		return forced
	}
	return avs
}

func (e *Engine) checkRequired(tree value.Tree, requires []Requirement) error {
	var errs diag.List
	seen := make(map[string]bool)
	for _, path := range e.reg.Required() {
		if !tree.Has(path) {
			seen[path] = true
			errs.Add(diag.New(diag.KindMissingRequiredOption, path, "required option has no value"))
		}
	}

	sorted := append([]Requirement(nil), requires...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for _, req := range sorted {
		key := req.Path + "\x00" + req.Module
		if tree.Has(req.Path) || seen[req.Path] || seen[key] {
			continue
		}
		seen[key] = true
		msg := "required by module"
		if !e.reg.Has(req.Path) {
			msg = "required by module but never declared"
		}
		errs.Add(diag.New(diag.KindMissingRequiredOption, req.Path, "%s", msg).InModule(req.Module))
	}
	return errs.Err()
}

func conditionError(av annotate.AnnotatedValue, err error) error {
	var de *diag.Error
	if errors.As(err, &de) && de.Kind == diag.KindCondition {
		c := *de
		if c.Path == "" {
			c.Path = av.Path
		}
		if c.Module == "" {
			c.Module = av.Source
		}
		return &c
	}
	return &diag.Error{
		Kind:    diag.KindCondition,
		Path:    av.Path,
		Module:  av.Source,
		Message: "condition " + av.Condition.String(),
		Err:     err,
	}
}
