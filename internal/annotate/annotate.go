// Package annotate wraps raw contribution values with the metadata the
// merge engine resolves them by: priority, merge hint, condition and origin.
package annotate

import (
	"fmt"

	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/registry"
	"github.com/dshills/stratum/internal/value"
)

// AnnotatedValue is one module's contribution to one option path.
// It is immutable once created.
type AnnotatedValue struct {
	// Path is the option the value is contributed to.
	Path string

	// Value is the normalized, type-checked value.
	Value any

	// Priority orders scalar resolution; lower wins.
	Priority int

	// Condition withdraws the contribution when it does not hold.
	Condition Condition

	// Hint selects the merge strategy.
	Hint Hint

	// Source is the ID of the contributing module.
	Source string

	// Seq is the global declaration order; the lowest Seq wins ties.
	Seq int
}

// IsForce reports whether the contribution is force-tier.
func (a AnnotatedValue) IsForce() bool {
	return a.Hint == HintForce
}

// Conditional reports whether the contribution has a non-trivial condition.
func (a AnnotatedValue) Conditional() bool {
	return !IsAlways(a.Condition)
}

// String describes the contribution for diagnostics.
func (a AnnotatedValue) String() string {
	return fmt.Sprintf("%s=%v (priority %d, %s, from %s)", a.Path, a.Value, a.Priority, a.Hint, a.Source)
}

// Option configures a single annotation.
type Option func(*AnnotatedValue)

// WithPriority sets the priority.
func WithPriority(p int) Option {
	return func(a *AnnotatedValue) {
		a.Priority = p
	}
}

// WithCondition sets the condition. Nil means always.
func WithCondition(c Condition) Option {
	return func(a *AnnotatedValue) {
		a.Condition = c
	}
}

// WithHint sets the merge hint.
func WithHint(h Hint) Option {
	return func(a *AnnotatedValue) {
		a.Hint = h
	}
}

// WithSource records the contributing module.
func WithSource(id string) Option {
	return func(a *AnnotatedValue) {
		a.Source = id
	}
}

// Annotator builds annotated values checked against a registry.
// It is not safe for concurrent use; evaluation annotates sequentially.
type Annotator struct {
	reg  *registry.Registry
	next int
}

// NewAnnotator creates an annotator over a fully populated registry.
func NewAnnotator(reg *registry.Registry) *Annotator {
	return &Annotator{reg: reg}
}

// Annotate wraps v for path. It fails with UnknownOptionError when path is
// not declared and TypeMismatchError when v does not fit the declared type
// or the hint does not fit the declared kind.
func (an *Annotator) Annotate(path string, v any, opts ...Option) (AnnotatedValue, error) {
	def, err := an.reg.Lookup(path)
	if err != nil {
		return AnnotatedValue{}, err
	}

	n, err := value.Normalize(v)
	if err != nil {
		return AnnotatedValue{}, diag.Wrap(diag.KindTypeMismatch, path, err)
	}

	av := AnnotatedValue{
		Path:      path,
		Value:     n,
		Priority:  PriorityNormal,
		Condition: Always,
		Hint:      HintAuto,
		Seq:       an.next,
	}
	for _, opt := range opts {
		opt(&av)
	}
	if av.Condition == nil {
		av.Condition = Always
	}
	an.next++

	if !av.Hint.accepts(def.Type.Kind) {
		return AnnotatedValue{}, &diag.Error{
			Kind:    diag.KindTypeMismatch,
			Path:    path,
			Module:  av.Source,
			Message: fmt.Sprintf("hint %s does not apply to %s option", av.Hint, def.Type),
		}
	}
	if err := registry.CheckType(def.Type, n, path); err != nil {
		return AnnotatedValue{}, diag.Wrap(diag.KindTypeMismatch, path, err).InModule(av.Source)
	}

	return av, nil
}
