// Package loader reads configuration modules from TOML, YAML and JSONC
// files and resolves imports between them.
package loader

import (
	"fmt"

	"github.com/dshills/stratum/internal/annotate"
	"github.com/dshills/stratum/internal/assert"
	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/expr"
	"github.com/dshills/stratum/internal/module"
	"github.com/dshills/stratum/internal/registry"
)

// fileModule is the on-disk module layout shared by every format.
type fileModule struct {
	ID         string           `toml:"id" yaml:"id" json:"id"`
	Imports    []string         `toml:"imports" yaml:"imports" json:"imports"`
	Requires   []string         `toml:"requires" yaml:"requires" json:"requires"`
	Options    []fileOption     `toml:"options" yaml:"options" json:"options"`
	Config     []fileDefinition `toml:"config" yaml:"config" json:"config"`
	Assertions []fileCheck      `toml:"assertions" yaml:"assertions" json:"assertions"`
	Warnings   []fileCheck      `toml:"warnings" yaml:"warnings" json:"warnings"`
}

type fileOption struct {
	Path        string `toml:"path" yaml:"path" json:"path"`
	Type        any    `toml:"type" yaml:"type" json:"type"`
	Default     any    `toml:"default" yaml:"default" json:"default"`
	Description string `toml:"description" yaml:"description" json:"description"`
	Required    bool   `toml:"required" yaml:"required" json:"required"`
	Internal    bool   `toml:"internal" yaml:"internal" json:"internal"`
	Example     any    `toml:"example" yaml:"example" json:"example"`
}

type fileDefinition struct {
	Path     string `toml:"path" yaml:"path" json:"path"`
	Value    any    `toml:"value" yaml:"value" json:"value"`
	Priority *int   `toml:"priority" yaml:"priority" json:"priority"`
	Hint     string `toml:"hint" yaml:"hint" json:"hint"`
	When     string `toml:"when" yaml:"when" json:"when"`
	WhenExpr string `toml:"when_expr" yaml:"when_expr" json:"when_expr"`
}

type fileCheck struct {
	Expr    string `toml:"expr" yaml:"expr" json:"expr"`
	Message string `toml:"message" yaml:"message" json:"message"`
}

// Parse decodes a module file. origin names the file in diagnostics and
// becomes the module ID unless the file sets one.
func Parse(origin string, format Format, data []byte) (*module.Module, error) {
	var fm fileModule
	pos, err := decode(format, data, &fm)
	if err != nil {
		e := &diag.Error{Kind: diag.KindParse, Module: origin, Err: err}
		if pos.line > 0 {
			e.Message = fmt.Sprintf("line %d, column %d", pos.line, pos.column)
		}
		return nil, e
	}
	if format == FormatJSONC {
		fm.normalizeNumbers()
	}

	m := &module.Module{
		ID:       fm.ID,
		Imports:  fm.Imports,
		Requires: fm.Requires,
		Origin:   origin,
	}
	if m.ID == "" {
		m.ID = origin
	}

	var errs diag.List
	for i, o := range fm.Options {
		def, err := o.toDef(m.ID)
		if err != nil {
			errs.Add(at(err, m.ID, "options", i))
			continue
		}
		m.Options = append(m.Options, def)
	}
	for i, d := range fm.Config {
		def, err := d.toDefinition()
		if err != nil {
			errs.Add(at(err, m.ID, "config", i))
			continue
		}
		m.Definitions = append(m.Definitions, def)
	}
	for i, c := range fm.Assertions {
		chk, err := c.toCheck(m.ID, assert.SeverityError)
		if err != nil {
			errs.Add(at(err, m.ID, "assertions", i))
			continue
		}
		m.Checks = append(m.Checks, chk)
	}
	for i, c := range fm.Warnings {
		chk, err := c.toCheck(m.ID, assert.SeverityWarning)
		if err != nil {
			errs.Add(at(err, m.ID, "warnings", i))
			continue
		}
		m.Checks = append(m.Checks, chk)
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

func (o fileOption) toDef(owner string) (registry.OptionDef, error) {
	if o.Path == "" {
		return registry.OptionDef{}, diag.New(diag.KindParse, "", "option without path")
	}
	if o.Type == nil {
		return registry.OptionDef{}, diag.New(diag.KindParse, o.Path, "option without type")
	}
	t, err := registry.ParseType(o.Type)
	if err != nil {
		return registry.OptionDef{}, diag.Wrap(diag.KindParse, o.Path, err)
	}
	def := registry.OptionDef{
		Path:        o.Path,
		Type:        t,
		Description: o.Description,
		Required:    o.Required,
		Internal:    o.Internal,
		Example:     o.Example,
		DeclaredBy:  owner,
	}
	if o.Default != nil {
		def = def.WithDefault(o.Default)
	}
	return def, nil
}

func (d fileDefinition) toDefinition() (module.Definition, error) {
	if d.Path == "" {
		return module.Definition{}, diag.New(diag.KindParse, "", "config entry without path")
	}
	if d.Value == nil {
		return module.Definition{}, diag.New(diag.KindParse, d.Path, "config entry without value")
	}
	hint, err := annotate.ParseHint(d.Hint)
	if err != nil {
		return module.Definition{}, diag.Wrap(diag.KindParse, d.Path, err)
	}

	var conds []annotate.Condition
	if d.When != "" {
		conds = append(conds, annotate.IsTrue(d.When))
	}
	if d.WhenExpr != "" {
		p, err := expr.Compile(d.WhenExpr)
		if err != nil {
			return module.Definition{}, withPath(err, d.Path)
		}
		conds = append(conds, p)
	}

	def := module.Definition{
		Path:     d.Path,
		Value:    d.Value,
		Priority: d.Priority,
		Hint:     hint,
	}
	switch len(conds) {
	case 0:
	case 1:
		def.Condition = conds[0]
	default:
		def.Condition = annotate.All(conds...)
	}
	return def, nil
}

func (c fileCheck) toCheck(owner string, sev assert.Severity) (assert.Check, error) {
	if c.Expr == "" {
		return assert.Check{}, diag.New(diag.KindParse, "", "check without expr")
	}
	p, err := expr.Compile(c.Expr)
	if err != nil {
		return assert.Check{}, err
	}
	msg := c.Message
	if msg == "" {
		msg = "check failed: " + p.String()
	}
	if sev == assert.SeverityError {
		return assert.Assertion(owner, msg, p.Strict()), nil
	}
	return assert.Warning(owner, msg, p), nil
}

func (fm *fileModule) normalizeNumbers() {
	for i := range fm.Options {
		fm.Options[i].Type = numbers(fm.Options[i].Type)
		fm.Options[i].Default = numbers(fm.Options[i].Default)
		fm.Options[i].Example = numbers(fm.Options[i].Example)
	}
	for i := range fm.Config {
		fm.Config[i].Value = numbers(fm.Config[i].Value)
	}
}

func at(err error, owner, table string, index int) error {
	e, ok := err.(*diag.Error)
	if !ok {
		e = diag.Wrap(diag.KindParse, "", err)
	}
	e = e.InModule(owner)
	where := fmt.Sprintf("%s[%d]", table, index)
	if e.Message == "" {
		e.Message = where
	} else {
		e.Message = where + ": " + e.Message
	}
	return e
}

func withPath(err error, path string) error {
	if e, ok := err.(*diag.Error); ok {
		c := *e
		c.Path = path
		return &c
	}
	return diag.Wrap(diag.KindParse, path, err)
}
