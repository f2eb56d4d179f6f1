package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/dshills/stratum/internal/emit"
	"github.com/dshills/stratum/internal/eval"
	"github.com/dshills/stratum/internal/notify"
	"github.com/dshills/stratum/internal/watcher"
)

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "stratum",
		Short: "Compose configuration modules into one resolved configuration",
		Long: `Stratum evaluates a tree of configuration modules. Modules declare typed
options and contribute values with priorities and conditions; stratum merges
every contribution into a single resolved configuration and reports where
each value came from.

Module files may be TOML, YAML or JSONC.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.applyFlags(cmd.Flags())
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&a.dir, "dir", "C", ".", "Directory the entry module is resolved against")
	pf.StringArrayVar(&a.sets, "set", nil, "Override an option as path=value (repeatable)")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("log-format", "", "Log format (text, json)")
	pf.Int("max-iterations", 0, "Bound on conditional merge passes")
	pf.Int("workers", 0, "Concurrent module file reads (0 uses all CPUs)")

	root.AddCommand(
		newEvalCommand(a),
		newQueryCommand(a),
		newOptionsCommand(a),
		newWatchCommand(a),
	)
	return root
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		return nil
	}
}

type evalFlags struct {
	format     string
	compress   bool
	pretty     bool
	output     string
	provenance bool
}

func newEvalCommand(a *app) *cobra.Command {
	flags := &evalFlags{}

	cmd := &cobra.Command{
		Use:   "eval <entry>",
		Short: "Evaluate a module and print the resolved configuration",
		Long: `Evaluate the entry module with everything it imports and write the
resolved configuration.

Examples:
  stratum eval host.toml
  stratum eval host.toml --set networking.hostName=box --pretty
  stratum eval host.toml --format cbor --compress -o host.cbor.zst
  stratum eval host.toml --provenance`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runEval(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.format, "format", "json", "Output format (json, cbor)")
	cmd.Flags().BoolVar(&flags.compress, "compress", false, "Compress output with zstd")
	cmd.Flags().BoolVar(&flags.pretty, "pretty", false, "Indent JSON output")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().BoolVar(&flags.provenance, "provenance", false, "List each path with the modules that set it")
	return cmd
}

func (a *app) runEval(ctx context.Context, entry string, flags *evalFlags) error {
	format, err := emit.ParseFormat(flags.format)
	if err != nil {
		return fmt.Errorf("%w: --format: %v", errUsage, err)
	}

	rep, err := a.evaluate(ctx, entry)
	if err != nil {
		return err
	}
	cfg := rep.Config
	renderWarnings(a.stderr, cfg.Warnings(), isTerminal(a.stderr))

	if flags.provenance {
		fmt.Fprintln(a.stdout, provenanceTable(cfg))
		return nil
	}

	var w io.Writer = a.stdout
	if flags.output != "" {
		f, err := os.Create(flags.output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	_, err = cfg.Encode(w, emit.EncodeOptions{
		Format:   format,
		Compress: flags.compress,
		Pretty:   flags.pretty,
	})
	return err
}

func provenanceTable(cfg *emit.ResolvedConfig) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PATH", "VALUE", "SOURCES")
	for _, p := range cfg.Paths() {
		v, _ := cfg.Get(p)
		t.Row(p, formatValue(v), strings.Join(cfg.Provenance(p), ", "))
	}
	return t.Render()
}

func newQueryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "query <entry> <path>",
		Short: "Print one value of the resolved configuration",
		Long: `Evaluate the entry module and print the value at a path of the nested
document as JSON. The path uses gjson syntax, so "boot.kernelParams.0" and
"boot.kernelParams.#" both work.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := a.evaluate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			v, ok, err := rep.Config.Query(args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no value at %s", args[1])
			}
			fmt.Fprintln(a.stdout, formatValue(v))
			return nil
		},
	}
}

type optionsFlags struct {
	search   string
	section  string
	sections bool
	internal bool
}

func newOptionsCommand(a *app) *cobra.Command {
	flags := &optionsFlags{}

	cmd := &cobra.Command{
		Use:   "options <entry>",
		Short: "List the options declared by a module graph",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := a.evaluate(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if flags.sections {
				for _, s := range rep.Registry.Sections() {
					fmt.Fprintln(a.stdout, s)
				}
				return nil
			}

			defs := rep.Registry.All()
			switch {
			case flags.search != "":
				defs = rep.Registry.Search(flags.search)
			case flags.section != "":
				defs = rep.Registry.Section(flags.section)
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("OPTION", "TYPE", "DEFAULT", "DECLARED BY", "DESCRIPTION")
			for _, d := range defs {
				if d.Internal && !flags.internal {
					continue
				}
				def := "-"
				if d.HasDefault {
					def = formatValue(d.Default)
				}
				if d.Required {
					def = "(required)"
				}
				t.Row(d.Path, d.Type.String(), def, d.DeclaredBy, d.Description)
			}
			fmt.Fprintln(a.stdout, t.Render())
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.search, "search", "", "Only options whose path or description contains this text")
	cmd.Flags().StringVar(&flags.section, "section", "", "Only options under this top-level segment")
	cmd.Flags().BoolVar(&flags.sections, "sections", false, "List top-level option segments only")
	cmd.Flags().BoolVar(&flags.internal, "internal", false, "Include internal options")
	return cmd
}

func newWatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <entry>",
		Short: "Re-evaluate whenever a module file changes",
		Long: `Evaluate the entry module, then watch every module file of the graph and
print the changed paths after each successful re-evaluation. Failed
evaluations are reported and the previous configuration is kept.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := watcher.NewFSNotify()
			if err != nil {
				return err
			}
			return a.runWatch(cmd.Context(), args[0], src)
		},
	}
	cmd.Flags().Duration("debounce", 0, "Quiet period before re-evaluating (default from STRATUM_DEBOUNCE)")
	return cmd
}

func (a *app) runWatch(ctx context.Context, entry string, src watcher.Source) error {
	n := notify.New()
	defer n.Close()
	n.Subscribe(func(c notify.Change) {
		fmt.Fprintln(a.stdout, formatChange(c))
	})

	rep, err := a.evaluate(ctx, entry)
	if err != nil {
		src.Close()
		return err
	}
	n.Publish(rep.Config)

	reload := func(ctx context.Context, changed []string) ([]string, error) {
		rep, err := a.evaluate(ctx, entry)
		if err != nil {
			renderDiagnostics(a.stderr, err, isTerminal(a.stderr))
			return nil, err
		}
		renderWarnings(a.stderr, rep.Config.Warnings(), isTerminal(a.stderr))
		n.Publish(rep.Config)
		return moduleFiles(rep), nil
	}

	w, err := watcher.New(src, moduleFiles(rep), reload,
		watcher.WithDebounce(a.settings.Debounce),
		watcher.WithLogger(a.logger),
	)
	if err != nil {
		src.Close()
		return err
	}
	a.logger.Info("watching", "files", len(w.Files()))
	return w.Run(ctx)
}

func moduleFiles(rep *eval.Report) []string {
	files := make([]string, 0, len(rep.Modules))
	for _, m := range rep.Modules {
		if m.Origin != "" {
			files = append(files, m.Origin)
		}
	}
	return files
}

func formatChange(c notify.Change) string {
	switch c.Type {
	case notify.ChangeAdded:
		return fmt.Sprintf("+ %s = %s", c.Path, formatValue(c.NewValue))
	case notify.ChangeRemoved:
		return fmt.Sprintf("- %s", c.Path)
	case notify.ChangeModified:
		return fmt.Sprintf("~ %s: %s -> %s", c.Path, formatValue(c.OldValue), formatValue(c.NewValue))
	default:
		return fmt.Sprintf("= unchanged (run %s)", c.RunID)
	}
}

// formatValue renders a normalized value as compact JSON.
func formatValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
