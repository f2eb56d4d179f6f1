package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/stratum/internal/diag"
)

type diagStyles struct {
	kind    lipgloss.Style
	path    lipgloss.Style
	module  lipgloss.Style
	warning lipgloss.Style
}

func newDiagStyles(w io.Writer) diagStyles {
	r := lipgloss.NewRenderer(w)
	return diagStyles{
		kind:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		path:    r.NewStyle().Foreground(lipgloss.Color("86")),
		module:  r.NewStyle().Foreground(lipgloss.Color("245")),
		warning: r.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
	}
}

// renderDiagnostics writes one line per diagnostic in err, sorted by path.
// Without color the lines are the plain Diagnostic form.
func renderDiagnostics(w io.Writer, err error, color bool) {
	ds := diag.Collect(err)
	diag.Sort(ds)
	if !color {
		for _, d := range ds {
			fmt.Fprintln(w, d.String())
		}
		return
	}

	st := newDiagStyles(w)
	for _, d := range ds {
		line := st.kind.Render(d.Kind.String())
		if d.Path != "" {
			line += " " + st.path.Render(d.Path)
		}
		if d.Module != "" {
			line += " " + st.module.Render("["+d.Module+"]")
		}
		fmt.Fprintln(w, line+": "+d.Message)
	}
}

func renderWarnings(w io.Writer, warnings []string, color bool) {
	label := "warning:"
	if color {
		label = newDiagStyles(w).warning.Render(label)
	}
	for _, msg := range warnings {
		fmt.Fprintln(w, label, msg)
	}
}
