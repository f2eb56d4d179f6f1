package emit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/tidwall/gjson"

	"github.com/dshills/stratum/internal/value"
)

// Format selects an output encoding.
type Format uint8

const (
	FormatJSON Format = iota
	FormatCBOR
)

// String returns the format name.
func (f Format) String() string {
	if f == FormatCBOR {
		return "cbor"
	}
	return "json"
}

// ParseFormat parses "json" or "cbor".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "cbor":
		return FormatCBOR, nil
	default:
		return 0, fmt.Errorf("unknown output format %q", s)
	}
}

// EncodeOptions controls Encode.
type EncodeOptions struct {
	Format   Format
	Compress bool
	Pretty   bool
}

// countingWriter tracks bytes written to the underlying writer.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Encode writes the configuration to w and returns the bytes written.
// Compressed output is a zstd frame around the chosen encoding.
func (rc *ResolvedConfig) Encode(w io.Writer, opts EncodeOptions) (int64, error) {
	var payload []byte
	switch opts.Format {
	case FormatCBOR:
		payload = rc.CBOR()
	default:
		doc, err := rc.JSON()
		if err != nil {
			return 0, err
		}
		if opts.Pretty {
			doc = []byte(gjson.GetBytes(doc, "@pretty").Raw)
		} else {
			doc = append(doc, '\n')
		}
		payload = doc
	}

	cw := &countingWriter{w: w}
	if !opts.Compress {
		_, err := cw.Write(payload)
		return cw.n, err
	}

	zw, err := zstd.NewWriter(cw)
	if err != nil {
		return cw.n, fmt.Errorf("creating zstd writer: %w", err)
	}
	if _, err := zw.Write(payload); err != nil {
		zw.Close()
		return cw.n, fmt.Errorf("compressing: %w", err)
	}
	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("compressing: %w", err)
	}
	return cw.n, nil
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Decode reads a document written by Encode. zstd compression is detected
// from the frame magic and JSON from a leading brace; anything else is
// decoded as CBOR.
func Decode(r io.Reader) (map[string]any, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(zstdMagic))

	var src io.Reader = br
	if bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	var doc any
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding json: %w", err)
		}
		doc = jsonNumbers(doc)
	} else {
		var m map[string]any
		if err := cbor.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decoding cbor: %w", err)
		}
		doc = m
	}

	n, err := value.Normalize(doc)
	if err != nil {
		return nil, err
	}
	m, ok := n.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document is %s, not an object", value.KindName(n))
	}
	return m, nil
}

func jsonNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = jsonNumbers(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = jsonNumbers(x[k])
		}
	}
	return v
}
