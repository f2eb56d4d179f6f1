package diag

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestError_Is(t *testing.T) {
	err := New(KindCyclicImport, "", "a -> b -> a")
	if !errors.Is(err, ErrCyclicImport) {
		t.Error("error does not match its sentinel")
	}
	if errors.Is(err, ErrModuleNotFound) {
		t.Error("error matches a foreign sentinel")
	}

	wrapped := fmt.Errorf("loading: %w", err)
	if !errors.Is(wrapped, ErrCyclicImport) {
		t.Error("wrapped error lost its kind")
	}
	if KindOf(wrapped) != KindCyclicImport {
		t.Errorf("KindOf() = %s", KindOf(wrapped))
	}
	if KindOf(fmt.Errorf("x: %w", ErrParse)) != KindParse {
		t.Error("KindOf() did not recognize a bare sentinel")
	}
	if KindOf(errors.New("other")) != KindUnknown {
		t.Error("KindOf() misclassified a plain error")
	}
}

func TestError_Error(t *testing.T) {
	cause := errors.New("expected int")
	e := Wrap(KindTypeMismatch, "zram.percent", cause).InModule("host")
	want := "TypeMismatchError at zram.percent (module host): expected int"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(e, cause) {
		t.Error("Unwrap() does not expose the cause")
	}
	if got := Kind(200).String(); got != "UnknownError" {
		t.Errorf("String() = %q", got)
	}
}

func TestList(t *testing.T) {
	var l List
	if l.Err() != nil {
		t.Error("empty list is an error")
	}
	l.Add(nil)
	single := New(KindUnknownOption, "a", "not declared")
	l.Add(single)
	if l.Err() != single {
		t.Error("single-entry list did not return its error")
	}

	var inner List
	inner.Add(New(KindTypeMismatch, "b", "bad"))
	inner.Add(New(KindParse, "", "bad file"))
	l.Add(&inner)
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 after flattening", l.Len())
	}

	err := l.Err()
	for _, s := range []error{ErrUnknownOption, ErrTypeMismatch, ErrParse} {
		if !errors.Is(err, s) {
			t.Errorf("list does not match %v", s)
		}
	}
	if errors.Is(err, ErrCyclicImport) {
		t.Error("list matches a kind it does not hold")
	}
}

func TestCollect(t *testing.T) {
	var failures List
	failures.Add(New(KindValidationFailed, "", "ports must be open").InModule("fw"))
	failures.Add(New(KindMissingRequiredOption, "networking.domain", "required by `x`"))
	err := &Error{Kind: KindValidationFailed, Message: "2 assertions failed", Err: &failures}

	got := Collect(fmt.Errorf("eval: %w", err))
	Sort(got)
	want := []Diagnostic{
		{Kind: KindValidationFailed, Module: "fw", Message: "ports must be open"},
		{Path: "networking.domain", Kind: KindMissingRequiredOption, Message: "required by `x`"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Collect() = %+v\nwant %+v", got, want)
	}

	cycle := &Error{Kind: KindCyclicImport, Related: []string{"a", "b", "a"}}
	if ds := Collect(cycle); ds[0].Message != "a -> b -> a" {
		t.Errorf("cycle message = %q", ds[0].Message)
	}
	if ds := Collect(errors.New("boom")); len(ds) != 1 || ds[0].Kind != KindUnknown {
		t.Errorf("plain error = %+v", ds)
	}
	if Collect(nil) != nil {
		t.Error("Collect(nil) returned diagnostics")
	}
}

func TestDiagnostic_String(t *testing.T) {
	d := Diagnostic{Path: "a.b", Kind: KindUnknownOption, Module: "m", Message: "not declared"}
	if got := d.String(); got != "UnknownOptionError a.b [m]: not declared" {
		t.Errorf("String() = %q", got)
	}
}
