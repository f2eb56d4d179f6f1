package annotate

import (
	"fmt"
	"strings"

	"github.com/dshills/stratum/internal/registry"
)

// Hint tells the merge engine how a contribution combines with others.
type Hint uint8

const (
	// HintAuto derives the strategy from the option type: override for
	// scalars, structural merge for lists, sets and attribute sets.
	HintAuto Hint = iota
	// HintOverride replaces other contributions by priority.
	HintOverride
	// HintMergeList concatenates lists.
	HintMergeList
	// HintMergeSet concatenates and deduplicates.
	HintMergeSet
	// HintMergeAttrs merges attribute sets key-wise.
	HintMergeAttrs
	// HintForce wins over every non-force contribution.
	HintForce
)

var hintNames = map[Hint]string{
	HintAuto:       "auto",
	HintOverride:   "override",
	HintMergeList:  "merge-list",
	HintMergeSet:   "merge-set",
	HintMergeAttrs: "merge-attrset",
	HintForce:      "force",
}

// String returns the hint name.
func (h Hint) String() string {
	if name, ok := hintNames[h]; ok {
		return name
	}
	return "unknown"
}

// ParseHint parses a hint name; the empty string is HintAuto.
func ParseHint(s string) (Hint, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return HintAuto, nil
	}
	for h, name := range hintNames {
		if name == s {
			return h, nil
		}
	}
	if s == "merge-attrs" {
		return HintMergeAttrs, nil
	}
	return 0, fmt.Errorf("unknown merge hint %q", s)
}

// accepts reports whether an explicit structural hint fits kind.
func (h Hint) accepts(k registry.Kind) bool {
	switch h {
	case HintMergeList:
		return k == registry.KindList
	case HintMergeSet:
		return k == registry.KindSet
	case HintMergeAttrs:
		return k == registry.KindAttrs || k == registry.KindSubmodule
	default:
		return true
	}
}
