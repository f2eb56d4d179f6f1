package emit

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/dshills/stratum/internal/assert"
	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/value"
)

func sampleTree() value.Tree {
	return value.NewTree(map[string]any{
		"zram.enable":         true,
		"zram.percent":        int64(50),
		"networking.hostName": "box",
		"boot.kernelParams":   []any{"quiet", "splash"},
		"env.vars":            map[string]any{"PAGER": "less", "EDITOR": "vi"},
	})
}

func mustEmit(t *testing.T, tree value.Tree) *ResolvedConfig {
	t.Helper()
	rc, err := Emit(tree, map[string][]string{"zram.enable": {"zram"}}, nil, []string{"w1"}, WithRunID("run-1"))
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	return rc
}

func TestEmit_Accessors(t *testing.T) {
	rc := mustEmit(t, sampleTree())

	if rc.RunID() != "run-1" || rc.Len() != 5 {
		t.Errorf("RunID, Len = %q, %d", rc.RunID(), rc.Len())
	}
	if got := rc.Provenance("zram.enable"); !reflect.DeepEqual(got, []string{"zram"}) {
		t.Errorf("Provenance = %v", got)
	}
	if got := rc.Warnings(); !reflect.DeepEqual(got, []string{"w1"}) {
		t.Errorf("Warnings = %v", got)
	}

	// Accessors hand out copies.
	v, _ := rc.Get("boot.kernelParams")
	v.([]any)[0] = "mutated"
	rc.Warnings()[0] = "mutated"
	rc.Provenance("zram.enable")[0] = "mutated"
	if again, _ := rc.Get("boot.kernelParams"); !value.Equal(again, []any{"quiet", "splash"}) {
		t.Errorf("Get leaked internal state: %v", again)
	}
	if rc.Warnings()[0] != "w1" || rc.Provenance("zram.enable")[0] != "zram" {
		t.Error("slice accessors leaked internal state")
	}
}

func TestEmit_ValidationFailed(t *testing.T) {
	failures := []assert.Failure{
		{Check: assert.Check{Source: "a", Message: "first"}, Kind: diag.KindValidationFailed, Message: "first"},
		{
			Check:   assert.Check{Source: "b", Message: "second"},
			Kind:    diag.KindMissingRequiredOption,
			Message: "second",
			Err:     diag.New(diag.KindMissingRequiredOption, "networking.domain", "not set"),
		},
	}

	rc, err := Emit(sampleTree(), nil, failures, nil)
	if rc != nil {
		t.Error("expected no config on failure")
	}
	if !errors.Is(err, diag.ErrValidationFailed) {
		t.Fatalf("expected ValidationFailedError, got %v", err)
	}
	if !errors.Is(err, diag.ErrMissingRequiredOption) {
		t.Error("ValidationFailedError should also match MissingRequiredOptionError")
	}

	ds := diag.Collect(err)
	if len(ds) != 2 {
		t.Fatalf("got %d diagnostics, want 2", len(ds))
	}
	if ds[1].Path != "networking.domain" || ds[1].Module != "b" {
		t.Errorf("second diagnostic = %+v", ds[1])
	}
}

func TestJSON_Deterministic(t *testing.T) {
	rc := mustEmit(t, sampleTree())
	doc, err := rc.JSON()
	if err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	want := `{"boot":{"kernelParams":["quiet","splash"]},"env":{"vars":{"EDITOR":"vi","PAGER":"less"}},"networking":{"hostName":"box"},"zram":{"enable":true,"percent":50}}`
	if string(doc) != want {
		t.Errorf("JSON =\n%s\nwant\n%s", doc, want)
	}
}

func TestDigest_Stable(t *testing.T) {
	a := mustEmit(t, sampleTree())
	b := mustEmit(t, value.NewTree(sampleTree().Flat()))
	if a.Digest() != b.Digest() {
		t.Error("equal trees produced different digests")
	}
	if !bytes.Equal(a.CBOR(), b.CBOR()) {
		t.Error("canonical encodings differ")
	}
	if len(a.Digest()) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(a.Digest()))
	}

	flat := sampleTree().Flat()
	flat["zram.percent"] = int64(51)
	c := mustEmit(t, value.NewTree(flat))
	if c.Digest() == a.Digest() {
		t.Error("different trees share a digest")
	}
}

func TestQuery(t *testing.T) {
	rc := mustEmit(t, sampleTree())

	tests := []struct {
		path string
		want any
	}{
		{"zram.percent", int64(50)},
		{"boot.kernelParams.1", "splash"},
		{"boot.kernelParams.#", int64(2)},
		{"env.vars.EDITOR", "vi"},
	}
	for _, tt := range tests {
		got, ok, err := rc.Query(tt.path)
		if err != nil || !ok || !value.Equal(got, tt.want) {
			t.Errorf("Query(%q) = %v, %v, %v; want %v", tt.path, got, ok, err, tt.want)
		}
	}
	if _, ok, _ := rc.Query("nope.nothing"); ok {
		t.Error("Query of a missing path should report not found")
	}
}

func TestEncode_Decode(t *testing.T) {
	rc := mustEmit(t, sampleTree())
	want := sampleTree().Nested()

	for _, opts := range []EncodeOptions{
		{Format: FormatJSON},
		{Format: FormatJSON, Pretty: true},
		{Format: FormatJSON, Compress: true},
		{Format: FormatCBOR},
		{Format: FormatCBOR, Compress: true},
	} {
		var buf bytes.Buffer
		n, err := rc.Encode(&buf, opts)
		if err != nil {
			t.Fatalf("Encode(%+v) failed: %v", opts, err)
		}
		if n != int64(buf.Len()) {
			t.Errorf("Encode(%+v) reported %d bytes, wrote %d", opts, n, buf.Len())
		}
		got, err := Decode(&buf)
		if err != nil {
			t.Fatalf("Decode(%+v) failed: %v", opts, err)
		}
		if !value.Equal(got, want) {
			t.Errorf("Decode(%+v) = %v, want %v", opts, got, want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("CBOR"); err != nil || f != FormatCBOR {
		t.Errorf("ParseFormat(CBOR) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}
