// Package registry provides the option schema registry.
//
// The registry holds every declared option with its type, default and
// documentation. Exactly one definition exists per path; identical
// redeclarations from several modules are accepted, incompatible ones fail.
package registry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/stratum/internal/diag"
)

// OptionDef declares a typed configuration slot.
type OptionDef struct {
	// Path is the dot-separated option path (e.g., "performance.zram.enable").
	Path string

	// Type describes accepted values.
	Type *Type

	// Default is used when no module contributes a value.
	Default any

	// HasDefault distinguishes a nil or zero default from no default.
	HasDefault bool

	// Description is human-readable documentation.
	Description string

	// Required makes evaluation fail when the option stays unresolved.
	Required bool

	// Internal hides the option from listings.
	Internal bool

	// Example is an illustrative value for documentation.
	Example any

	// DeclaredBy is the module that first declared the option.
	DeclaredBy string
}

// WithDefault returns a copy of d carrying a default value.
func (d OptionDef) WithDefault(v any) OptionDef {
	d.Default = v
	d.HasDefault = true
	return d
}

var segmentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// ValidatePath checks that path is a dotted sequence of identifiers.
func ValidatePath(path string) error {
	if path == "" {
		return diag.New(diag.KindInvalidOptionPath, path, "empty path")
	}
	for _, seg := range strings.Split(path, ".") {
		if !segmentPattern.MatchString(seg) {
			return diag.New(diag.KindInvalidOptionPath, path, "invalid segment %q", seg)
		}
	}
	return nil
}

// Section returns the top-level segment of a path.
func Section(path string) string {
	section, _, _ := strings.Cut(path, ".")
	return section
}

// compatible reports whether two declarations of the same path agree.
func (d *OptionDef) compatible(other *OptionDef) error {
	if !d.Type.Equal(other.Type) {
		return fmt.Errorf("declared as %s by %s, redeclared as %s", d.Type, owner(d), other.Type)
	}
	return nil
}

func owner(d *OptionDef) string {
	if d.DeclaredBy == "" {
		return "<unknown>"
	}
	return d.DeclaredBy
}
