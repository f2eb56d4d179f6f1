// Package emit produces the immutable resolved configuration handed to the
// activation layer, and its canonical encodings.
package emit

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/zeebo/blake3"

	"github.com/dshills/stratum/internal/assert"
	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/value"
)

// ResolvedConfig is a fully merged and validated configuration.
// It is immutable; accessors return copies.
type ResolvedConfig struct {
	tree       value.Tree
	provenance map[string][]string
	warnings   []string
	runID      string
	canonical  []byte
	digest     string

	jsonOnce sync.Once
	json     []byte
	jsonErr  error
}

// Option configures emission.
type Option func(*ResolvedConfig)

// WithRunID tags the configuration with the evaluation that produced it.
func WithRunID(id string) Option {
	return func(rc *ResolvedConfig) {
		rc.runID = id
	}
}

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// Emit builds a ResolvedConfig. Emission is all or nothing: if any failure
// is present the result is nil and the error is a ValidationFailedError
// wrapping every failure, so errors.Is also matches the kinds of failures
// raised by predicates (for example MissingRequiredOptionError).
func Emit(tree value.Tree, provenance map[string][]string, failures []assert.Failure, warnings []string, opts ...Option) (*ResolvedConfig, error) {
	if len(failures) > 0 {
		return nil, validationError(failures)
	}

	canonical, err := encMode.Marshal(tree.Nested())
	if err != nil {
		return nil, fmt.Errorf("encoding canonical form: %w", err)
	}
	sum := blake3.Sum256(canonical)

	rc := &ResolvedConfig{
		tree:       tree,
		provenance: copyProvenance(provenance),
		warnings:   append([]string(nil), warnings...),
		canonical:  canonical,
		digest:     fmt.Sprintf("%x", sum[:]),
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc, nil
}

func validationError(failures []assert.Failure) error {
	var list diag.List
	for _, f := range failures {
		list.Add(f.AsError())
	}
	noun := "assertion"
	if len(failures) > 1 {
		noun = "assertions"
	}
	return &diag.Error{
		Kind:    diag.KindValidationFailed,
		Message: fmt.Sprintf("%d %s failed", len(failures), noun),
		Err:     &list,
	}
}

// Get returns a copy of the value at path.
func (rc *ResolvedConfig) Get(path string) (any, bool) {
	return rc.tree.Lookup(path)
}

// Has reports whether path is resolved.
func (rc *ResolvedConfig) Has(path string) bool {
	return rc.tree.Has(path)
}

// Paths returns every resolved path in sorted order.
func (rc *ResolvedConfig) Paths() []string {
	return rc.tree.Paths()
}

// Len returns the number of resolved paths.
func (rc *ResolvedConfig) Len() int {
	return rc.tree.Len()
}

// Flat returns a copy of the path-keyed values.
func (rc *ResolvedConfig) Flat() map[string]any {
	return rc.tree.Flat()
}

// Nested returns a copy of the values as a nested document.
func (rc *ResolvedConfig) Nested() map[string]any {
	return rc.tree.Nested()
}

// Tree returns a copy of the resolved tree.
func (rc *ResolvedConfig) Tree() value.Tree {
	return value.NewTree(rc.tree.Flat())
}

// Provenance returns the modules that produced the value at path.
func (rc *ResolvedConfig) Provenance(path string) []string {
	return append([]string(nil), rc.provenance[path]...)
}

// Warnings returns the messages of every failed warning check.
func (rc *ResolvedConfig) Warnings() []string {
	return append([]string(nil), rc.warnings...)
}

// RunID identifies the evaluation that produced the configuration.
func (rc *ResolvedConfig) RunID() string {
	return rc.runID
}

// Digest is the hex BLAKE3-256 of the canonical CBOR encoding. Equal
// configurations have equal digests.
func (rc *ResolvedConfig) Digest() string {
	return rc.digest
}

// CBOR returns the RFC 8949 core deterministic encoding.
func (rc *ResolvedConfig) CBOR() []byte {
	return append([]byte(nil), rc.canonical...)
}

// JSON returns the nested document with keys in sorted order.
func (rc *ResolvedConfig) JSON() ([]byte, error) {
	rc.jsonOnce.Do(func() {
		rc.json, rc.jsonErr = buildJSON(rc.tree)
	})
	if rc.jsonErr != nil {
		return nil, rc.jsonErr
	}
	return append([]byte(nil), rc.json...), nil
}

// Query evaluates a gjson path against the JSON document and returns the
// normalized result.
func (rc *ResolvedConfig) Query(path string) (any, bool, error) {
	doc, err := rc.JSON()
	if err != nil {
		return nil, false, err
	}
	res := gjson.GetBytes(doc, path)
	if !res.Exists() {
		return nil, false, nil
	}
	v, err := value.Normalize(res.Value())
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// buildJSON sets every path into an empty document in sorted order, so the
// output is byte-identical for equal trees.
func buildJSON(tree value.Tree) ([]byte, error) {
	doc := []byte("{}")
	for _, p := range tree.Paths() {
		v, _ := tree.Get(p)
		var err error
		doc, err = sjson.SetBytes(doc, p, v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", p, err)
		}
	}
	return doc, nil
}

func copyProvenance(src map[string][]string) map[string][]string {
	out := make(map[string][]string, len(src))
	for k, v := range src {
		out[k] = append([]string(nil), v...)
	}
	return out
}
