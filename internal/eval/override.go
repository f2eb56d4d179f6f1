package eval

import (
	"fmt"
	"strings"

	"github.com/dshills/stratum/internal/registry"
)

// Override is a "path=value" assignment applied above every module.
type Override struct {
	Path string
	Raw  string
}

// String returns the assignment in path=value form.
func (o Override) String() string {
	return o.Path + "=" + o.Raw
}

// ParseOverride parses "path=value". The value stays textual until it is
// coerced against the declared option type.
func ParseOverride(s string) (Override, error) {
	path, raw, ok := strings.Cut(s, "=")
	path = strings.TrimSpace(path)
	if !ok || path == "" {
		return Override{}, fmt.Errorf("override %q: expected path=value", s)
	}
	if err := registry.ValidatePath(path); err != nil {
		return Override{}, fmt.Errorf("override %q: %w", s, err)
	}
	return Override{Path: path, Raw: raw}, nil
}

// ParseOverrides parses each assignment, stopping at the first error.
func ParseOverrides(ss []string) ([]Override, error) {
	out := make([]Override, 0, len(ss))
	for _, s := range ss {
		o, err := ParseOverride(s)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}
