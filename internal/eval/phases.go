package eval

import (
	"github.com/dshills/stratum/internal/annotate"
	"github.com/dshills/stratum/internal/assert"
	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/merge"
	"github.com/dshills/stratum/internal/module"
	"github.com/dshills/stratum/internal/registry"
)

// declare builds the registry from every module's options in load order.
func declare(mods []*module.Module) (*registry.Registry, error) {
	reg := registry.New()
	var errs diag.List
	for _, m := range mods {
		for _, def := range m.Options {
			if def.DeclaredBy == "" {
				def.DeclaredBy = m.ID
			}
			errs.Add(reg.Declare(def))
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return reg, nil
}

// annotateAll annotates module definitions in load order, then overrides.
// Overrides replace composite values rather than merging into them.
// Every error is collected before failing.
func annotateAll(reg *registry.Registry, mods []*module.Module, overrides []Override) ([]annotate.AnnotatedValue, error) {
	an := annotate.NewAnnotator(reg)
	var out []annotate.AnnotatedValue
	var errs diag.List

	for _, m := range mods {
		for _, d := range m.Definitions {
			av, err := an.Annotate(d.Path, d.Value,
				annotate.WithPriority(d.EffectivePriority()),
				annotate.WithHint(d.Hint),
				annotate.WithCondition(d.Condition),
				annotate.WithSource(m.ID),
			)
			if err != nil {
				errs.Add(attributed(err, m.ID))
				continue
			}
			out = append(out, av)
		}
	}

	for _, o := range overrides {
		v, err := reg.Coerce(o.Path, o.Raw)
		if err != nil {
			errs.Add(attributed(err, OverrideSource))
			continue
		}
		av, err := an.Annotate(o.Path, v,
			annotate.WithPriority(annotate.PriorityCommandLine),
			annotate.WithHint(annotate.HintOverride),
			annotate.WithSource(OverrideSource),
		)
		if err != nil {
			errs.Add(attributed(err, OverrideSource))
			continue
		}
		out = append(out, av)
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func requirements(mods []*module.Module) []merge.Requirement {
	var reqs []merge.Requirement
	for _, m := range mods {
		for _, p := range m.Requires {
			reqs = append(reqs, merge.Requirement{Path: p, Module: m.ID})
		}
	}
	return reqs
}

func collectChecks(mods []*module.Module) []assert.Check {
	var out []assert.Check
	for _, m := range mods {
		for _, c := range m.Checks {
			if c.Source == "" {
				c.Source = m.ID
			}
			out = append(out, c)
		}
	}
	return out
}

// attributed tags err with the module it came from when it lacks one.
func attributed(err error, id string) error {
	if de, ok := err.(*diag.Error); ok && de.Module == "" {
		return de.InModule(id)
	}
	return err
}
