package module

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/registry"
)

func ids(mods []*Module) []string {
	out := make([]string, len(mods))
	for i, m := range mods {
		out[i] = m.ID
	}
	return out
}

func TestLoad_PostOrder(t *testing.T) {
	r := NewMapResolver(
		New("root", "a", "b"),
		New("a", "base"),
		New("b", "base", "c"),
		New("c"),
		New("base"),
	)

	mods, err := Load(context.Background(), r, "root")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []string{"base", "a", "c", "b", "root"}
	if got := ids(mods); !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestLoad_Cycle(t *testing.T) {
	r := NewMapResolver(
		New("root", "a"),
		New("a", "b"),
		New("b", "a"),
	)

	_, err := Load(context.Background(), r, "root")
	if !errors.Is(err, diag.ErrCyclicImport) {
		t.Fatalf("expected CyclicImportError, got %v", err)
	}
	var de *diag.Error
	if !errors.As(err, &de) {
		t.Fatal("expected *diag.Error")
	}
	if want := []string{"a", "b", "a"}; !reflect.DeepEqual(de.Related, want) {
		t.Errorf("cycle = %v, want %v", de.Related, want)
	}
}

func TestLoad_SelfImport(t *testing.T) {
	r := NewMapResolver(New("a", "a"))
	_, err := Load(context.Background(), r, "a")
	if !errors.Is(err, diag.ErrCyclicImport) {
		t.Fatalf("expected CyclicImportError, got %v", err)
	}
}

func TestLoad_NotFound(t *testing.T) {
	r := NewMapResolver(New("root", "missing"))

	_, err := Load(context.Background(), r, "root")
	if !errors.Is(err, diag.ErrModuleNotFound) {
		t.Fatalf("expected ModuleNotFoundError, got %v", err)
	}
	var de *diag.Error
	errors.As(err, &de)
	if de.Module != "root" {
		t.Errorf("importer = %q, want root", de.Module)
	}

	if _, err := Load(context.Background(), r, "nope"); !errors.Is(err, diag.ErrModuleNotFound) {
		t.Errorf("missing entry: got %v", err)
	}
}

func TestLoad_ResolverError(t *testing.T) {
	boom := errors.New("disk on fire")
	r := ResolverFunc(func(context.Context, string, string) (*Module, error) { return nil, boom })
	if _, err := Load(context.Background(), r, "x"); !errors.Is(err, boom) {
		t.Errorf("expected wrapped resolver error, got %v", err)
	}
}

func TestLoad_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Load(ctx, NewMapResolver(New("a")), "a"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMapResolver_Alias(t *testing.T) {
	r := NewMapResolver(New("root", "./zram"), New("modules/zram"))
	r.Alias("root", "./zram", "modules/zram")

	mods, err := Load(context.Background(), r, "root")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := ids(mods); !reflect.DeepEqual(got, []string{"modules/zram", "root"}) {
		t.Errorf("order = %v", got)
	}
	if got := r.IDs(); !reflect.DeepEqual(got, []string{"modules/zram", "root"}) {
		t.Errorf("IDs() = %v", got)
	}
}

func TestModule_Builders(t *testing.T) {
	m := New("net").
		Declare(registry.OptionDef{Path: "networking.hostName", Type: registry.String}).
		Define("networking.hostName", "box").
		Require("networking.hostName")

	if m.Options[0].DeclaredBy != "net" {
		t.Errorf("DeclaredBy = %q", m.Options[0].DeclaredBy)
	}
	if len(m.Definitions) != 1 || m.Definitions[0].EffectivePriority() != 100 {
		t.Errorf("Definitions = %+v", m.Definitions)
	}
	if !reflect.DeepEqual(m.Requires, []string{"networking.hostName"}) {
		t.Errorf("Requires = %v", m.Requires)
	}
}

func TestDefinition_EffectivePriority(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		want int
	}{
		{"unset", Definition{Path: "x", Value: 1}, 100},
		{"zero", Definition{Path: "x", Value: 1}.At(0), 0},
		{"force", Definition{Path: "x", Value: 1}.At(50), 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.def.EffectivePriority(); got != tt.want {
				t.Errorf("EffectivePriority() = %d, want %d", got, tt.want)
			}
		})
	}
}
