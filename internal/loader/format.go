package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format identifies a module file syntax.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatTOML
	FormatYAML
	FormatJSONC
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatTOML:
		return "toml"
	case FormatYAML:
		return "yaml"
	case FormatJSONC:
		return "jsonc"
	default:
		return "unknown"
	}
}

// Extensions are the module file extensions the loader recognizes.
var Extensions = []string{".toml", ".yaml", ".yml", ".json", ".jsonc"}

// DefaultNames are tried in order when an import names a directory.
var DefaultNames = []string{"default.toml", "default.yaml", "default.yml", "default.jsonc", "default.json"}

// FormatFor returns the format implied by a file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".yaml", ".yml":
		return FormatYAML
	case ".json", ".jsonc":
		return FormatJSONC
	default:
		return FormatUnknown
	}
}

// position is a 1-based source location, zero when unknown.
type position struct {
	line, column int
}

// decode strictly unmarshals data into v. Unknown keys are errors.
func decode(format Format, data []byte, v any) (position, error) {
	switch format {
	case FormatTOML:
		err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(v)
		var de *toml.DecodeError
		if errors.As(err, &de) {
			line, col := de.Position()
			return position{line, col}, err
		}
		return position{}, err

	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return position{}, err
		}
		return position{}, nil

	case FormatJSONC:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		dec.UseNumber()
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
			var se *json.SyntaxError
			if errors.As(err, &se) {
				return offsetPosition(data, se.Offset), err
			}
			return position{}, err
		}
		return position{}, nil

	default:
		return position{}, fmt.Errorf("unsupported module format")
	}
}

// offsetPosition converts a byte offset into a line and column. jsonc
// preserves offsets, so the result points into the original source.
func offsetPosition(data []byte, offset int64) position {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	head := data[:offset]
	line := bytes.Count(head, []byte{'\n'}) + 1
	col := int(offset) - bytes.LastIndexByte(head, '\n')
	return position{line, col}
}

// numbers replaces json.Number values with int64 or float64.
func numbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = numbers(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = numbers(x[k])
		}
		return x
	default:
		return v
	}
}
