// Package assert evaluates cross-module assertions and warnings against a
// merged configuration tree.
package assert

import (
	"errors"
	"fmt"

	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/expr"
	"github.com/dshills/stratum/internal/value"
)

// Severity distinguishes fatal assertions from advisory warnings.
type Severity uint8

const (
	// SeverityError makes a failing check abort emission.
	SeverityError Severity = iota
	// SeverityWarning adds the check message to the warning list.
	SeverityWarning
)

// String returns "error" or "warning".
func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Predicate is evaluated against the merged tree. Both annotate conditions
// and compiled expressions satisfy it.
type Predicate interface {
	Holds(tree value.Tree) (bool, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(value.Tree) (bool, error)

// Holds calls f.
func (f PredicateFunc) Holds(tree value.Tree) (bool, error) {
	return f(tree)
}

// Check is a named predicate over the merged tree. A check passes when its
// predicate holds.
type Check struct {
	// Source is the ID of the declaring module.
	Source string

	// Message is reported when the check fails.
	Message string

	// Severity selects error or warning behaviour.
	Severity Severity

	// Predicate must hold for the check to pass.
	Predicate Predicate
}

// Assertion builds an error-severity check.
func Assertion(source, message string, p Predicate) Check {
	return Check{Source: source, Message: message, Severity: SeverityError, Predicate: p}
}

// Warning builds a warning-severity check.
func Warning(source, message string, p Predicate) Check {
	return Check{Source: source, Message: message, Severity: SeverityWarning, Predicate: p}
}

// Failure is a failed error-severity check.
type Failure struct {
	Check Check

	// Kind is ValidationFailed for a predicate that evaluated to false, or
	// the kind of the error the predicate raised.
	Kind diag.Kind

	// Message is the check message, extended with the raised error if any.
	Message string

	// Err is the error the predicate raised, if any.
	Err error
}

// Error renders the failure as a diag error.
func (f Failure) Error() string {
	return f.AsError().Error()
}

// AsError converts the failure into a *diag.Error attributed to its module.
func (f Failure) AsError() *diag.Error {
	e := &diag.Error{
		Kind:    f.Kind,
		Module:  f.Check.Source,
		Message: f.Check.Message,
		Err:     f.Err,
	}
	var de *diag.Error
	if f.Err != nil && errors.As(f.Err, &de) {
		e.Path = de.Path
	}
	return e
}

// Collector runs checks in declaration order.
type Collector struct {
	checks []Check
}

// NewCollector creates a collector over checks.
func NewCollector(checks ...Check) *Collector {
	c := &Collector{}
	c.Add(checks...)
	return c
}

// Add appends checks.
func (c *Collector) Add(checks ...Check) {
	c.checks = append(c.checks, checks...)
}

// Len returns the number of checks.
func (c *Collector) Len() int {
	return len(c.checks)
}

// Collect evaluates every check against tree. It never stops early: all
// failures and all warnings are reported, each in declaration order.
// A warning check whose predicate raises is reported as a warning too.
//
// An assertion whose predicate lists the paths it reads fails with
// MissingRequiredOption when one of them is unresolved, whatever the
// predicate would return.
func (c *Collector) Collect(tree value.Tree) (failures []Failure, warnings []string) {
	for _, chk := range c.checks {
		if chk.Severity == SeverityError {
			if path := unresolved(chk.Predicate, tree); path != "" {
				err := diag.New(diag.KindMissingRequiredOption, path, "option %s is not set", path)
				failures = append(failures, Failure{
					Check:   chk,
					Kind:    diag.KindMissingRequiredOption,
					Message: fmt.Sprintf("%s: %v", chk.Message, err),
					Err:     err,
				})
				continue
			}
		}

		ok, err := holds(chk, tree)
		if ok && err == nil {
			continue
		}

		if chk.Severity == SeverityWarning {
			msg := chk.Message
			if err != nil {
				msg = fmt.Sprintf("%s (%v)", msg, err)
			}
			warnings = append(warnings, msg)
			continue
		}

		f := Failure{Check: chk, Kind: diag.KindValidationFailed, Message: chk.Message}
		if err != nil {
			f.Err = err
			f.Kind = diag.KindOf(err)
			if f.Kind == diag.KindUnknown {
				f.Kind = diag.KindCondition
			}
			f.Message = fmt.Sprintf("%s: %v", chk.Message, err)
		}
		failures = append(failures, f)
	}
	return failures, warnings
}

func holds(chk Check, tree value.Tree) (ok bool, err error) {
	if chk.Predicate == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, diag.New(diag.KindCondition, "", "check panicked: %v", r)
		}
	}()
	return chk.Predicate.Holds(tree)
}

// unresolved returns the first path p reads that tree lacks. Expressions
// are skipped: has() may test an unresolved path, and strict expressions
// raise on unresolved opt() reads themselves.
func unresolved(p Predicate, tree value.Tree) string {
	if _, ok := p.(*expr.Predicate); ok {
		return ""
	}
	r, ok := p.(interface{ Refs() []string })
	if !ok {
		return ""
	}
	for _, path := range r.Refs() {
		if !tree.Has(path) {
			return path
		}
	}
	return ""
}
