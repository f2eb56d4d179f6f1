package registry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/value"
)

// CheckType validates a normalized value against t. Errors name the
// offending sub-path below path.
func CheckType(t *Type, v any, path string) error {
	return check(t, v, path)
}

func check(t *Type, v any, path string) error {
	if t == nil {
		return nil
	}

	switch t.Kind {
	case KindBool:
		if _, ok := v.(bool); !ok {
			return mismatch(path, "bool", v)
		}
	case KindInt:
		if _, ok := v.(int64); !ok {
			return mismatch(path, "int", v)
		}
	case KindString:
		if _, ok := v.(string); !ok {
			return mismatch(path, "string", v)
		}
	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return mismatch(path, t.String(), v)
		}
		for _, allowed := range t.Enum {
			if s == allowed {
				return nil
			}
		}
		return fmt.Errorf("%s: value %q is not one of %v", path, s, t.Enum)
	case KindList, KindSet:
		items, ok := v.([]any)
		if !ok {
			return mismatch(path, t.Kind.String(), v)
		}
		for i, item := range items {
			if err := check(t.Elem, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case KindAttrs:
		m, ok := v.(map[string]any)
		if !ok {
			return mismatch(path, "attrs", v)
		}
		for _, k := range value.SortedKeys(m) {
			if err := check(t.Elem, m[k], path+"."+k); err != nil {
				return err
			}
		}
	case KindSubmodule:
		m, ok := v.(map[string]any)
		if !ok {
			return mismatch(path, "submodule", v)
		}
		for _, k := range value.SortedKeys(m) {
			ft, ok := t.Fields[k]
			if !ok {
				return fmt.Errorf("%s.%s: unknown submodule field", path, k)
			}
			if err := check(ft, m[k], path+"."+k); err != nil {
				return err
			}
		}
	}
	return nil
}

func mismatch(path, expected string, got any) error {
	return fmt.Errorf("%s: expected %s, got %s", path, expected, value.KindName(got))
}

// Coerce parses a textual override (e.g. from the command line) into a
// value of the declared type of path. Scalars parse directly; composite
// types take JSON.
func (r *Registry) Coerce(path, raw string) (any, error) {
	def, err := r.Lookup(path)
	if err != nil {
		return nil, err
	}

	v, err := coerce(def.Type, raw)
	if err != nil {
		return nil, diag.Wrap(diag.KindTypeMismatch, path, err)
	}
	if err := check(def.Type, v, path); err != nil {
		return nil, diag.Wrap(diag.KindTypeMismatch, path, err)
	}
	return v, nil
}

func coerce(t *Type, raw string) (any, error) {
	switch t.Kind {
	case KindBool:
		switch strings.ToLower(raw) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0":
			return false, nil
		}
		return nil, fmt.Errorf("cannot parse %q as bool", raw)
	case KindInt:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as int", raw)
		}
		return i, nil
	case KindString, KindEnum:
		return raw, nil
	default:
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, fmt.Errorf("cannot parse %q as %s: %w", raw, t, err)
		}
		return value.Normalize(decoded)
	}
}
