package eval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dshills/stratum/internal/annotate"
	checks "github.com/dshills/stratum/internal/assert"
	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/expr"
	"github.com/dshills/stratum/internal/loader"
	"github.com/dshills/stratum/internal/module"
	"github.com/dshills/stratum/internal/registry"
)

func hostModules() *module.MapResolver {
	base := module.New("base").
		Declare(
			registry.OptionDef{Path: "zram.enable", Type: registry.Bool}.WithDefault(false),
			registry.OptionDef{Path: "zram.percent", Type: registry.Int}.WithDefault(50),
			registry.OptionDef{Path: "networking.hostName", Type: registry.String}.WithDefault("nixos"),
			registry.OptionDef{Path: "boot.kernelParams", Type: registry.ListOf(registry.String)}.WithDefault([]any{}),
		).
		Add(module.Definition{
			Path:      "boot.kernelParams",
			Value:     []string{"zswap.enabled=0"},
			Condition: annotate.IsTrue("zram.enable"),
		}).
		Check(checks.Assertion("", "percent out of range", expr.MustCompile("opt('zram.percent') <= 100").Strict()))

	perf := module.New("performance", "base").
		Define("zram.enable", true).
		Define("boot.kernelParams", []string{"quiet"}).
		Check(checks.Warning("", "zram is experimental", expr.MustCompile("not opt('zram.enable')")))

	host := module.New("host", "performance", "base").
		Add(module.Definition{Path: "networking.hostName", Value: "box"}.At(annotate.PriorityDefault)).
		Require("networking.hostName")

	return module.NewMapResolver(base, perf, host)
}

func TestEvaluate(t *testing.T) {
	ev := New(WithRunIDs(func() string { return "run-1" }))
	rep, err := ev.Run(context.Background(), Input{Resolver: hostModules(), Entry: "host"})
	require.NoError(t, err)

	cfg := rep.Config
	assert.Equal(t, "run-1", cfg.RunID())
	assert.Len(t, rep.Modules, 3)
	assert.Equal(t, 4, rep.Registry.Len())
	assert.Equal(t, 2, rep.Iterations)

	params, ok := cfg.Get("boot.kernelParams")
	require.True(t, ok)
	assert.Equal(t, []any{"zswap.enabled=0", "quiet"}, params)

	host, _ := cfg.Get("networking.hostName")
	assert.Equal(t, "box", host)
	assert.Equal(t, []string{"host"}, cfg.Provenance("networking.hostName"))
	assert.Equal(t, []string{"<default>"}, cfg.Provenance("zram.percent"))
	assert.Equal(t, []string{"zram is experimental"}, cfg.Warnings())
	assert.NotEmpty(t, cfg.Digest())
}

func TestEvaluate_Deterministic(t *testing.T) {
	a, err := New().Evaluate(context.Background(), Input{Resolver: hostModules(), Entry: "host"})
	require.NoError(t, err)
	b, err := New().Evaluate(context.Background(), Input{Resolver: hostModules(), Entry: "host"})
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID(), b.RunID())
	assert.Equal(t, a.Digest(), b.Digest())
	assert.Equal(t, a.CBOR(), b.CBOR())
}

func TestEvaluate_Overrides(t *testing.T) {
	overrides, err := ParseOverrides([]string{
		"zram.percent=75",
		"networking.hostName=cli",
		`boot.kernelParams=["only"]`,
	})
	require.NoError(t, err)

	cfg, err := New().Evaluate(context.Background(), Input{Resolver: hostModules(), Entry: "host", Overrides: overrides})
	require.NoError(t, err)

	percent, _ := cfg.Get("zram.percent")
	assert.Equal(t, int64(75), percent)
	host, _ := cfg.Get("networking.hostName")
	assert.Equal(t, "cli", host)
	params, _ := cfg.Get("boot.kernelParams")
	assert.Equal(t, []any{"only"}, params)
	assert.Equal(t, []string{OverrideSource}, cfg.Provenance("zram.percent"))
}

func TestEvaluate_ZeroPriorityWins(t *testing.T) {
	m := module.New("m").
		Declare(registry.OptionDef{Path: "x", Type: registry.String}).
		Add(
			module.Definition{Path: "x", Value: "fifty"}.At(annotate.PriorityForce),
			module.Definition{Path: "x", Value: "zero"}.At(0),
		)

	cfg, err := New().Evaluate(context.Background(), Input{Resolver: module.NewMapResolver(m), Entry: "m"})
	require.NoError(t, err)

	x, _ := cfg.Get("x")
	assert.Equal(t, "zero", x)
}

func TestEvaluate_OverrideErrors(t *testing.T) {
	tests := []struct {
		override string
		want     error
	}{
		{"zram.percent=lots", diag.ErrTypeMismatch},
		{"nope.nothing=1", diag.ErrUnknownOption},
	}
	for _, tt := range tests {
		t.Run(tt.override, func(t *testing.T) {
			o, err := ParseOverride(tt.override)
			require.NoError(t, err)
			_, err = New().Evaluate(context.Background(), Input{Resolver: hostModules(), Entry: "host", Overrides: []Override{o}})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEvaluate_AssertionFailure(t *testing.T) {
	o, err := ParseOverride("zram.percent=150")
	require.NoError(t, err)

	cfg, err := New().Evaluate(context.Background(), Input{Resolver: hostModules(), Entry: "host", Overrides: []Override{o}})
	assert.Nil(t, cfg)
	require.ErrorIs(t, err, diag.ErrValidationFailed)

	ds := diag.Collect(err)
	require.Len(t, ds, 1)
	assert.Equal(t, "base", ds[0].Module)
	assert.Equal(t, "percent out of range", ds[0].Message)
}

func TestEvaluate_MissingRequiredInAssertion(t *testing.T) {
	r := module.NewMapResolver(
		module.New("net").
			Declare(registry.OptionDef{Path: "networking.domain", Type: registry.String}).
			Check(checks.Assertion("", "domain must be set", expr.MustCompile("opt('networking.domain') ~= ''").Strict())),
	)
	_, err := New().Evaluate(context.Background(), Input{Resolver: r, Entry: "net"})
	assert.ErrorIs(t, err, diag.ErrValidationFailed)
	assert.ErrorIs(t, err, diag.ErrMissingRequiredOption)
}

func TestEvaluate_MissingRequiredInCondition(t *testing.T) {
	r := module.NewMapResolver(
		module.New("net").
			Declare(registry.OptionDef{Path: "net.enable", Type: registry.Bool}).
			Check(checks.Assertion("", "net must be on", annotate.IsTrue("net.enable"))),
	)
	_, err := New().Evaluate(context.Background(), Input{Resolver: r, Entry: "net"})
	assert.ErrorIs(t, err, diag.ErrMissingRequiredOption)

	ds := diag.Collect(err)
	require.Len(t, ds, 1)
	assert.Equal(t, "net", ds[0].Module)
	assert.Equal(t, "net.enable", ds[0].Path)
}

func TestEvaluate_PhaseErrors(t *testing.T) {
	tests := []struct {
		name string
		mods []*module.Module
		want error
	}{
		{
			name: "cycle",
			mods: []*module.Module{module.New("host", "a"), module.New("a", "host")},
			want: diag.ErrCyclicImport,
		},
		{
			name: "missing import",
			mods: []*module.Module{module.New("host", "ghost")},
			want: diag.ErrModuleNotFound,
		},
		{
			name: "duplicate option",
			mods: []*module.Module{
				module.New("host", "a").Declare(registry.OptionDef{Path: "x", Type: registry.Int}),
				module.New("a").Declare(registry.OptionDef{Path: "x", Type: registry.String}),
			},
			want: diag.ErrDuplicateOption,
		},
		{
			name: "unknown option",
			mods: []*module.Module{module.New("host").Define("x", 1)},
			want: diag.ErrUnknownOption,
		},
		{
			name: "type mismatch",
			mods: []*module.Module{
				module.New("host").Declare(registry.OptionDef{Path: "x", Type: registry.Int}).Define("x", "one"),
			},
			want: diag.ErrTypeMismatch,
		},
		{
			name: "unmet requirement",
			mods: []*module.Module{
				module.New("host").Declare(registry.OptionDef{Path: "x", Type: registry.Int}).Require("x"),
			},
			want: diag.ErrMissingRequiredOption,
		},
		{
			name: "oscillation",
			mods: []*module.Module{
				module.New("host").
					Declare(registry.OptionDef{Path: "x", Type: registry.Bool}.WithDefault(false)).
					Add(module.Definition{Path: "x", Value: true, Condition: annotate.Not(annotate.IsTrue("x"))}),
			},
			want: diag.ErrUnresolvableCondition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(WithMaxIterations(8)).Evaluate(context.Background(), Input{
				Resolver: module.NewMapResolver(tt.mods...),
				Entry:    "host",
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEvaluate_ErrorsAreCollected(t *testing.T) {
	r := module.NewMapResolver(module.New("host").
		Declare(registry.OptionDef{Path: "x", Type: registry.Int}).
		Define("x", "one").
		Define("y", 1).
		Define("x", true))

	_, err := New().Evaluate(context.Background(), Input{Resolver: r, Entry: "host"})
	require.Error(t, err)
	ds := diag.Collect(err)
	assert.Len(t, ds, 3)
	for _, d := range ds {
		assert.Equal(t, "host", d.Module)
	}
}

func TestEvaluate_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Evaluate(ctx, Input{Resolver: hostModules(), Entry: "host"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEvaluate_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	_, err := New(WithTracerProvider(tp)).Evaluate(context.Background(), Input{Resolver: hostModules(), Entry: "host"})
	require.NoError(t, err)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"stratum.load",
		"stratum.declare",
		"stratum.annotate",
		"stratum.merge",
		"stratum.check",
		"stratum.emit",
		"stratum.evaluate",
	}, names)
}

func TestEvaluate_FromFiles(t *testing.T) {
	fsys := loader.NewMemFS()
	fsys.AddFile("/etc/stratum/host.toml", `
imports = ["./modules"]

[[config]]
path = "services.ssh.port"
value = 2222
`)
	fsys.AddFile("/etc/stratum/modules/default.yaml", `
options:
  - path: services.ssh.enable
    type: bool
    default: true
  - path: services.ssh.port
    type: int
    default: 22
  - path: firewall.allowedTCPPorts
    type: {kind: set, elem: int}
    default: []
config:
  - path: firewall.allowedTCPPorts
    value: [2222]
    when_expr: "opt('services.ssh.enable') and opt('services.ssh.port') == 2222"
assertions:
  - expr: "opt('services.ssh.port') > 0"
    message: port must be positive
`)

	mr, entry, err := loader.Prefetch(context.Background(), fsys, "/etc/stratum", "host.toml", 2)
	require.NoError(t, err)

	cfg, err := New().Evaluate(context.Background(), Input{Resolver: mr, Entry: entry})
	require.NoError(t, err)

	ports, _ := cfg.Get("firewall.allowedTCPPorts")
	assert.Equal(t, []any{int64(2222)}, ports)
	port, _ := cfg.Get("services.ssh.port")
	assert.Equal(t, int64(2222), port)
}

func TestParseOverride(t *testing.T) {
	o, err := ParseOverride(" a.b =x=y")
	require.NoError(t, err)
	assert.Equal(t, Override{Path: "a.b", Raw: "x=y"}, o)
	assert.Equal(t, "a.b=x=y", o.String())

	for _, bad := range []string{"novalue", "=1", "a..b=1", "1a=2"} {
		_, err := ParseOverride(bad)
		assert.Error(t, err, bad)
	}
}
