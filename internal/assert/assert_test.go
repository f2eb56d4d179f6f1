package assert

import (
	"errors"
	"reflect"
	"testing"

	"github.com/dshills/stratum/internal/annotate"
	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/expr"
	"github.com/dshills/stratum/internal/value"
)

func is(path string, want any) Predicate {
	return PredicateFunc(func(t value.Tree) (bool, error) {
		v, ok := t.Get(path)
		return ok && value.Equal(v, want), nil
	})
}

func TestCollector_Collect(t *testing.T) {
	tree := value.NewTree(map[string]any{"a": int64(1), "b": int64(2)})

	c := NewCollector(
		Assertion("m1", "a must be 1", is("a", int64(1))),
		Assertion("m1", "b must be 3", is("b", int64(3))),
		Warning("m2", "a is deprecated", is("a", nil)),
		Warning("m2", "b fine", is("b", int64(2))),
		Assertion("m3", "a must be 2", is("a", int64(2))),
		Warning("m3", "second warning", is("c", true)),
	)

	failures, warnings := c.Collect(tree)
	if len(failures) != 2 {
		t.Fatalf("got %d failures, want 2", len(failures))
	}
	if failures[0].Message != "b must be 3" || failures[1].Message != "a must be 2" {
		t.Errorf("failures out of declaration order: %+v", failures)
	}
	for _, f := range failures {
		if f.Kind != diag.KindValidationFailed {
			t.Errorf("Kind = %s, want ValidationFailedError", f.Kind)
		}
	}
	want := []string{"a is deprecated", "second warning"}
	if !reflect.DeepEqual(warnings, want) {
		t.Errorf("warnings = %v, want %v", warnings, want)
	}
}

func TestCollector_AllPass(t *testing.T) {
	c := NewCollector(Assertion("m", "ok", is("a", true)), Check{Source: "m", Message: "nil predicate"})
	failures, warnings := c.Collect(value.NewTree(map[string]any{"a": true}))
	if failures != nil || warnings != nil {
		t.Errorf("Collect() = %v, %v; want nothing", failures, warnings)
	}
}

func TestCollector_RaisingPredicate(t *testing.T) {
	missing := PredicateFunc(func(value.Tree) (bool, error) {
		return false, diag.New(diag.KindMissingRequiredOption, "networking.domain", "not set")
	})
	opaque := PredicateFunc(func(value.Tree) (bool, error) {
		return false, errors.New("boom")
	})
	panicky := PredicateFunc(func(value.Tree) (bool, error) {
		panic("bad")
	})

	c := NewCollector(
		Assertion("net", "domain required", missing),
		Assertion("x", "opaque", opaque),
		Assertion("y", "panics", panicky),
		Warning("z", "warns", opaque),
	)
	failures, warnings := c.Collect(value.Tree{})
	if len(failures) != 3 {
		t.Fatalf("got %d failures, want 3", len(failures))
	}
	if failures[0].Kind != diag.KindMissingRequiredOption {
		t.Errorf("Kind = %s, want MissingRequiredOptionError", failures[0].Kind)
	}
	err := failures[0].AsError()
	if !errors.Is(err, diag.ErrMissingRequiredOption) || err.Path != "networking.domain" || err.Module != "net" {
		t.Errorf("AsError() = %+v", err)
	}
	if failures[1].Kind != diag.KindCondition || failures[2].Kind != diag.KindCondition {
		t.Errorf("opaque kinds = %s, %s; want ConditionError", failures[1].Kind, failures[2].Kind)
	}
	if len(warnings) != 1 || warnings[0] != "warns (boom)" {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestCollector_UnresolvedReads(t *testing.T) {
	tree := value.NewTree(map[string]any{"zram.enable": true})

	c := NewCollector(
		Assertion("net", "net must be on", annotate.IsTrue("net.enable")),
		Assertion("net", "net must be off", annotate.Not(annotate.IsTrue("net.enable"))),
		Assertion("mode", "mode is fast", annotate.Equals("mode", "fast")),
		Assertion("zram", "zram on", annotate.IsTrue("zram.enable")),
		Assertion("net", "domain optional", expr.MustCompile("not has('networking.domain')")),
		Warning("net", "net disabled", annotate.IsTrue("net.enable")),
	)
	failures, warnings := c.Collect(tree)
	if len(failures) != 3 {
		t.Fatalf("got %d failures, want 3: %+v", len(failures), failures)
	}
	wantPaths := []string{"net.enable", "net.enable", "mode"}
	for i, f := range failures {
		if f.Kind != diag.KindMissingRequiredOption {
			t.Errorf("failure %d Kind = %s, want MissingRequiredOptionError", i, f.Kind)
		}
		err := f.AsError()
		if !errors.Is(err, diag.ErrMissingRequiredOption) || err.Path != wantPaths[i] {
			t.Errorf("failure %d AsError() = %+v", i, err)
		}
	}
	if !reflect.DeepEqual(warnings, []string{"net disabled"}) {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestSeverity_String(t *testing.T) {
	if SeverityError.String() != "error" || SeverityWarning.String() != "warning" {
		t.Error("unexpected severity names")
	}
}
