// Package diag defines the error kinds and structured diagnostics produced
// while loading, merging and validating configuration modules.
//
// Every failure in Stratum is fatal to the evaluation run that produced it.
// Errors carry a Kind so callers can match them with errors.Is against the
// sentinel values below, and can be flattened into Diagnostic records for
// CLI or log rendering.
package diag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors, one per Kind.
var (
	ErrDuplicateOption       = errors.New("duplicate option declaration")
	ErrUnknownOption         = errors.New("unknown option")
	ErrTypeMismatch          = errors.New("type mismatch")
	ErrCyclicImport          = errors.New("cyclic import")
	ErrModuleNotFound        = errors.New("module not found")
	ErrUnresolvableCondition = errors.New("unresolvable condition")
	ErrMissingRequiredOption = errors.New("missing required option")
	ErrValidationFailed      = errors.New("validation failed")
	ErrInvalidOptionPath     = errors.New("invalid option path")
	ErrNoDefault             = errors.New("option has no default")
	ErrParse                 = errors.New("parse error")
	ErrCondition             = errors.New("condition error")
)

// Kind categorizes an error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindDuplicateOption
	KindUnknownOption
	KindTypeMismatch
	KindCyclicImport
	KindModuleNotFound
	KindUnresolvableCondition
	KindMissingRequiredOption
	KindValidationFailed
	KindInvalidOptionPath
	KindNoDefault
	KindParse
	KindCondition
)

var kindNames = map[Kind]string{
	KindDuplicateOption:       "DuplicateOptionError",
	KindUnknownOption:         "UnknownOptionError",
	KindTypeMismatch:          "TypeMismatchError",
	KindCyclicImport:          "CyclicImportError",
	KindModuleNotFound:        "ModuleNotFoundError",
	KindUnresolvableCondition: "UnresolvableConditionError",
	KindMissingRequiredOption: "MissingRequiredOptionError",
	KindValidationFailed:      "ValidationFailedError",
	KindInvalidOptionPath:     "InvalidOptionPathError",
	KindNoDefault:             "NoDefaultError",
	KindParse:                 "ParseError",
	KindCondition:             "ConditionError",
}

var kindSentinels = map[Kind]error{
	KindDuplicateOption:       ErrDuplicateOption,
	KindUnknownOption:         ErrUnknownOption,
	KindTypeMismatch:          ErrTypeMismatch,
	KindCyclicImport:          ErrCyclicImport,
	KindModuleNotFound:        ErrModuleNotFound,
	KindUnresolvableCondition: ErrUnresolvableCondition,
	KindMissingRequiredOption: ErrMissingRequiredOption,
	KindValidationFailed:      ErrValidationFailed,
	KindInvalidOptionPath:     ErrInvalidOptionPath,
	KindNoDefault:             ErrNoDefault,
	KindParse:                 ErrParse,
	KindCondition:             ErrCondition,
}

// String returns the error kind name, e.g. "CyclicImportError".
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UnknownError"
}

// Sentinel returns the sentinel error matched by errors of this kind.
func (k Kind) Sentinel() error {
	return kindSentinels[k]
}

// KindOf returns the kind of the first diag error found in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	for k, s := range kindSentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindUnknown
}

// Error is a categorized evaluation error.
type Error struct {
	// Kind categorizes the error.
	Kind Kind

	// Path is the option path involved, if any.
	Path string

	// Module is the ID of the module involved, if any.
	Module string

	// Message describes the failure.
	Message string

	// Related lists additional identifiers, e.g. the modules forming a cycle.
	Related []string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	if e.Module != "" {
		fmt.Fprintf(&b, " (module %s)", e.Module)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.Sentinel()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, path, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

// InModule returns a copy of e attributed to a module.
func (e *Error) InModule(id string) *Error {
	c := *e
	c.Module = id
	return &c
}

// List collects multiple errors from one phase.
type List struct {
	Errors []error
}

// Add appends err if it is non-nil. Nested lists are flattened.
func (l *List) Add(err error) {
	if err == nil {
		return
	}
	var nested *List
	if errors.As(err, &nested) && nested != l {
		l.Errors = append(l.Errors, nested.Errors...)
		return
	}
	l.Errors = append(l.Errors, err)
}

// Len returns the number of errors.
func (l *List) Len() int {
	return len(l.Errors)
}

// Err returns nil when the list is empty, the single error when it holds
// one, and the list itself otherwise.
func (l *List) Err() error {
	switch len(l.Errors) {
	case 0:
		return nil
	case 1:
		return l.Errors[0]
	default:
		return l
	}
}

// Error implements the error interface.
func (l *List) Error() string {
	if len(l.Errors) == 0 {
		return "no errors"
	}
	if len(l.Errors) == 1 {
		return l.Errors[0].Error()
	}
	msgs := make([]string, len(l.Errors))
	for i, err := range l.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors:\n  - %s", len(l.Errors), strings.Join(msgs, "\n  - "))
}

// Unwrap exposes the contained errors to errors.Is and errors.As.
func (l *List) Unwrap() []error {
	return l.Errors
}

// Diagnostic is the structured, render-ready form of an error.
type Diagnostic struct {
	Path    string
	Kind    Kind
	Module  string
	Message string
}

// String formats the diagnostic on one line.
func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.Kind.String())
	if d.Path != "" {
		b.WriteString(" ")
		b.WriteString(d.Path)
	}
	if d.Module != "" {
		fmt.Fprintf(&b, " [%s]", d.Module)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// Collect flattens err into diagnostics. Lists expand into one entry per
// contained error; an error without a Kind becomes a KindUnknown entry.
func Collect(err error) []Diagnostic {
	if err == nil {
		return nil
	}
	var out []Diagnostic
	collect(err, &out)
	return out
}

func collect(err error, out *[]Diagnostic) {
	// Lists, including a ValidationFailed wrapper around a list, expand so
	// every underlying failure gets its own entry.
	var list *List
	if errors.As(err, &list) {
		for _, e := range list.Errors {
			collect(e, out)
		}
		return
	}

	var de *Error
	if !errors.As(err, &de) {
		*out = append(*out, Diagnostic{Kind: KindOf(err), Message: err.Error()})
		return
	}

	msg := de.Message
	if de.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += de.Err.Error()
	}
	if msg == "" && len(de.Related) > 0 {
		msg = strings.Join(de.Related, " -> ")
	}
	*out = append(*out, Diagnostic{
		Path:    de.Path,
		Kind:    de.Kind,
		Module:  de.Module,
		Message: msg,
	})
}

// Sort orders diagnostics by path, then kind, then message.
func Sort(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Path != ds[j].Path {
			return ds[i].Path < ds[j].Path
		}
		if ds[i].Kind != ds[j].Kind {
			return ds[i].Kind < ds[j].Kind
		}
		return ds[i].Message < ds[j].Message
	})
}
