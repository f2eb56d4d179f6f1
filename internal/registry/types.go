package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the shape of an option type.
type Kind uint8

const (
	// KindBool represents a boolean value.
	KindBool Kind = iota
	// KindInt represents an integer value.
	KindInt
	// KindString represents a string value.
	KindString
	// KindEnum represents a string drawn from a fixed set.
	KindEnum
	// KindList represents an ordered list; merged by concatenation.
	KindList
	// KindSet represents a list whose duplicates collapse on merge.
	KindSet
	// KindAttrs represents an attribute set with uniform element type.
	KindAttrs
	// KindSubmodule represents an attribute set with a fixed field schema.
	KindSubmodule
)

var kindNames = map[Kind]string{
	KindBool:      "bool",
	KindInt:       "int",
	KindString:    "string",
	KindEnum:      "enum",
	KindList:      "list",
	KindSet:       "set",
	KindAttrs:     "attrs",
	KindSubmodule: "submodule",
}

// String returns the kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind parses a kind name. "attrset" is accepted as an alias of attrs.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return KindBool, nil
	case "int", "integer":
		return KindInt, nil
	case "string", "str":
		return KindString, nil
	case "enum":
		return KindEnum, nil
	case "list":
		return KindList, nil
	case "set":
		return KindSet, nil
	case "attrs", "attrset":
		return KindAttrs, nil
	case "submodule":
		return KindSubmodule, nil
	}
	return 0, fmt.Errorf("unknown type %q", s)
}

// IsScalar reports whether values of this kind merge by priority override.
func (k Kind) IsScalar() bool {
	switch k {
	case KindBool, KindInt, KindString, KindEnum:
		return true
	}
	return false
}

// Type describes the values an option accepts.
type Type struct {
	// Kind is the value shape.
	Kind Kind

	// Enum lists allowed strings for KindEnum.
	Enum []string

	// Elem is the element type of lists, sets and attrs. Nil means any.
	Elem *Type

	// Fields is the schema of a submodule.
	Fields map[string]*Type
}

// Convenience constructors.
var (
	Bool   = &Type{Kind: KindBool}
	Int    = &Type{Kind: KindInt}
	String = &Type{Kind: KindString}
)

// EnumOf returns an enum type over the given values.
func EnumOf(values ...string) *Type {
	return &Type{Kind: KindEnum, Enum: values}
}

// ListOf returns a list type; elem may be nil.
func ListOf(elem *Type) *Type {
	return &Type{Kind: KindList, Elem: elem}
}

// SetOf returns a set type; elem may be nil.
func SetOf(elem *Type) *Type {
	return &Type{Kind: KindSet, Elem: elem}
}

// AttrsOf returns an attribute set type; elem may be nil.
func AttrsOf(elem *Type) *Type {
	return &Type{Kind: KindAttrs, Elem: elem}
}

// Submodule returns a submodule type with the given fields.
func Submodule(fields map[string]*Type) *Type {
	return &Type{Kind: KindSubmodule, Fields: fields}
}

// Equal compares two types structurally. Enum order does not matter.
func (t *Type) Equal(other *Type) bool {
	if t == nil || other == nil {
		return t == nil && other == nil
	}
	if t.Kind != other.Kind {
		return false
	}

	switch t.Kind {
	case KindEnum:
		if len(t.Enum) != len(other.Enum) {
			return false
		}
		a := append([]string(nil), t.Enum...)
		b := append([]string(nil), other.Enum...)
		sort.Strings(a)
		sort.Strings(b)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	case KindList, KindSet, KindAttrs:
		return t.Elem.Equal(other.Elem)
	case KindSubmodule:
		if len(t.Fields) != len(other.Fields) {
			return false
		}
		for name, ft := range t.Fields {
			ot, ok := other.Fields[name]
			if !ok || !ft.Equal(ot) {
				return false
			}
		}
	}
	return true
}

// String renders the type, e.g. "list of string" or "enum [a b]".
func (t *Type) String() string {
	if t == nil {
		return "any"
	}
	switch t.Kind {
	case KindEnum:
		return fmt.Sprintf("enum %v", t.Enum)
	case KindList, KindSet, KindAttrs:
		if t.Elem == nil {
			return t.Kind.String()
		}
		return fmt.Sprintf("%s of %s", t.Kind, t.Elem)
	case KindSubmodule:
		names := make([]string, 0, len(t.Fields))
		for name := range t.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = name + ": " + t.Fields[name].String()
		}
		return "submodule {" + strings.Join(parts, ", ") + "}"
	default:
		return t.Kind.String()
	}
}

// ParseType builds a Type from its decoded file representation: either a
// kind name ("bool", "list") or a table with "kind" and optional "elem",
// "enum" and "fields" keys.
func ParseType(spec any) (*Type, error) {
	switch s := spec.(type) {
	case string:
		k, err := ParseKind(s)
		if err != nil {
			return nil, err
		}
		if k == KindEnum {
			return nil, fmt.Errorf("enum type requires values")
		}
		return &Type{Kind: k}, nil
	case map[string]any:
		return parseTypeTable(s)
	case nil:
		return nil, fmt.Errorf("missing type")
	default:
		return nil, fmt.Errorf("type must be a string or table, got %T", spec)
	}
}

func parseTypeTable(m map[string]any) (*Type, error) {
	kindName, ok := m["kind"].(string)
	if !ok {
		return nil, fmt.Errorf("type table requires a string \"kind\"")
	}
	k, err := ParseKind(kindName)
	if err != nil {
		return nil, err
	}
	t := &Type{Kind: k}

	if raw, ok := m["elem"]; ok {
		if k != KindList && k != KindSet && k != KindAttrs {
			return nil, fmt.Errorf("%s type does not take an element type", k)
		}
		elem, err := ParseType(raw)
		if err != nil {
			return nil, fmt.Errorf("elem: %w", err)
		}
		t.Elem = elem
	}

	if raw, ok := m["enum"]; ok {
		if k != KindEnum {
			return nil, fmt.Errorf("%s type does not take enum values", k)
		}
		values, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("enum must be a list of strings")
		}
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("enum value %v is not a string", v)
			}
			t.Enum = append(t.Enum, s)
		}
	}
	if k == KindEnum && len(t.Enum) == 0 {
		return nil, fmt.Errorf("enum type requires values")
	}

	if raw, ok := m["fields"]; ok {
		if k != KindSubmodule {
			return nil, fmt.Errorf("%s type does not take fields", k)
		}
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("fields must be a table")
		}
		t.Fields = make(map[string]*Type, len(fields))
		for name, fs := range fields {
			ft, err := ParseType(fs)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			t.Fields[name] = ft
		}
	}

	return t, nil
}
