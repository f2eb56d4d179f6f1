package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/eval"
	"github.com/dshills/stratum/internal/loader"
	"github.com/dshills/stratum/internal/settings"
)

// Exit codes.
const (
	exitOK         = 0
	exitEvaluation = 1
	exitUsage      = 2
)

// errUsage marks command-line mistakes.
var errUsage = errors.New("usage error")

// app holds what every subcommand shares.
type app struct {
	settings settings.Settings
	logger   *slog.Logger
	stdout   io.Writer
	stderr   io.Writer
	fsys     loader.FileSystem

	dir  string
	sets []string
}

func newApp(s settings.Settings, stdout, stderr io.Writer, fsys loader.FileSystem) *app {
	return &app{
		settings: s,
		logger:   s.NewLogger(stderr),
		stdout:   stdout,
		stderr:   stderr,
		fsys:     fsys,
		dir:      ".",
	}
}

// execute runs the command line and maps the outcome to an exit code.
func (a *app) execute(ctx context.Context, args []string) int {
	root := newRootCommand(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	color := isTerminal(a.stderr)
	var de *diag.Error
	var list *diag.List
	if errors.As(err, &de) || errors.As(err, &list) {
		renderDiagnostics(a.stderr, err, color)
		return exitEvaluation
	}
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	if errors.Is(err, errUsage) {
		return exitUsage
	}
	return exitEvaluation
}

// applyFlags lets explicitly set flags override environment settings.
func (a *app) applyFlags(flags *pflag.FlagSet) error {
	s := a.settings
	if flags.Changed("log-level") {
		v, _ := flags.GetString("log-level")
		if err := s.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%w: --log-level: %v", errUsage, err)
		}
	}
	if flags.Changed("log-format") {
		s.LogFormat, _ = flags.GetString("log-format")
	}
	if flags.Changed("max-iterations") {
		s.MaxIterations, _ = flags.GetInt("max-iterations")
	}
	if flags.Changed("workers") {
		s.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("debounce") {
		s.Debounce, _ = flags.GetDuration("debounce")
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	a.settings = s
	a.logger = s.NewLogger(a.stderr)
	return nil
}

// evaluate reads the import graph of entry and runs an evaluation with the
// --set overrides.
func (a *app) evaluate(ctx context.Context, entry string) (*eval.Report, error) {
	overrides, err := eval.ParseOverrides(a.sets)
	if err != nil {
		return nil, fmt.Errorf("%w: --set: %v", errUsage, err)
	}
	resolver, entryID, err := loader.Prefetch(ctx, a.fsys, a.dir, entry, a.settings.Workers)
	if err != nil {
		return nil, err
	}
	ev := eval.New(
		eval.WithLogger(a.logger),
		eval.WithMaxIterations(a.settings.MaxIterations),
	)
	return ev.Run(ctx, eval.Input{Resolver: resolver, Entry: entryID, Overrides: overrides})
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
