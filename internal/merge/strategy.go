package merge

import (
	"sort"

	"github.com/dshills/stratum/internal/annotate"
	"github.com/dshills/stratum/internal/registry"
	"github.com/dshills/stratum/internal/value"
)

// part is one contribution's view of a (sub)value during merging.
type part struct {
	value    any
	priority int
	seq      int
	source   string
	hint     annotate.Hint
}

func partsOf(avs []annotate.AnnotatedValue) []part {
	ps := make([]part, len(avs))
	for i, av := range avs {
		ps[i] = part{value: av.Value, priority: av.Priority, seq: av.Seq, source: av.Source, hint: av.Hint}
	}
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].seq < ps[j].seq })
	return ps
}

// strategy is how a set of parts combines.
type strategy uint8

const (
	strategyOverride strategy = iota
	strategyList
	strategySet
	strategyAttrs
)

// strategyFor derives the strategy from the declared type, falling back to
// the runtime shape of the values when the type is unknown.
func strategyFor(t *registry.Type, ps []part) strategy {
	if t != nil {
		switch t.Kind {
		case registry.KindList:
			return strategyList
		case registry.KindSet:
			return strategySet
		case registry.KindAttrs, registry.KindSubmodule:
			return strategyAttrs
		default:
			return strategyOverride
		}
	}

	lists, maps := 0, 0
	for _, p := range ps {
		switch p.value.(type) {
		case []any:
			lists++
		case map[string]any:
			maps++
		}
	}
	switch {
	case lists == len(ps):
		return strategyList
	case maps == len(ps):
		return strategyAttrs
	default:
		return strategyOverride
	}
}

// combine merges parts of type t. It returns the merged value and the
// sources that contributed to it in declaration order.
func combine(t *registry.Type, ps []part) (any, []string) {
	st := strategyFor(t, ps)
	if st != strategyOverride {
		// An explicit override on a composite replaces structural merging.
		var overrides []part
		for _, p := range ps {
			if p.hint == annotate.HintOverride {
				overrides = append(overrides, p)
			}
		}
		if len(overrides) > 0 {
			w := winner(overrides)
			return value.Clone(w.value), []string{w.source}
		}
	}

	switch st {
	case strategyList:
		out := []any{}
		for _, p := range ps {
			for _, item := range p.value.([]any) {
				out = append(out, value.Clone(item))
			}
		}
		return out, sources(ps)

	case strategySet:
		out := []any{}
		for _, p := range ps {
			for _, item := range p.value.([]any) {
				if !containsValue(out, item) {
					out = append(out, value.Clone(item))
				}
			}
		}
		return out, sources(ps)

	case strategyAttrs:
		return combineAttrs(t, ps)

	default:
		w := winner(ps)
		return value.Clone(w.value), []string{w.source}
	}
}

func combineAttrs(t *registry.Type, ps []part) (any, []string) {
	byKey := make(map[string][]part)
	for _, p := range ps {
		m := p.value.(map[string]any)
		for k, v := range m {
			sub := p
			sub.value = v
			sub.hint = annotate.HintAuto
			byKey[k] = append(byKey[k], sub)
		}
	}

	out := make(map[string]any, len(byKey))
	used := make(map[string]bool)
	for _, k := range sortedKeys(byKey) {
		v, srcs := combine(fieldType(t, k), byKey[k])
		out[k] = v
		for _, s := range srcs {
			used[s] = true
		}
	}
	if len(byKey) == 0 {
		return out, sources(ps)
	}

	var kept []part
	for _, p := range ps {
		if used[p.source] {
			kept = append(kept, p)
		}
	}
	return out, sources(kept)
}

func fieldType(t *registry.Type, key string) *registry.Type {
	if t == nil {
		return nil
	}
	if t.Kind == registry.KindSubmodule {
		return t.Fields[key]
	}
	return t.Elem
}

// winner selects the lowest priority, then the lowest Seq.
func winner(ps []part) part {
	w := ps[0]
	for _, p := range ps[1:] {
		if p.priority < w.priority || (p.priority == w.priority && p.seq < w.seq) {
			w = p
		}
	}
	return w
}

func sources(ps []part) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.source)
	}
	return dedupe(out)
}

func dedupe(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := ss[:0:0]
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if value.Equal(item, v) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string][]part) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
