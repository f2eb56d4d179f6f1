package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/dshills/stratum/internal/diag"
	"github.com/dshills/stratum/internal/module"
)

// FileResolver resolves imports as file paths relative to the importing
// module's file. Parsed files are cached, so each file is read once. Two
// files declaring the same module ID fail with a ParseError.
//
// FileResolver is safe for concurrent use.
type FileResolver struct {
	fs  FileSystem
	dir string

	mu      sync.Mutex
	byPath  map[string]*module.Module
	origins map[string]string
}

// NewFileResolver creates a resolver reading from fsys. Entry references
// without an importer are resolved against dir.
func NewFileResolver(fsys FileSystem, dir string) *FileResolver {
	if fsys == nil {
		fsys = DefaultFS()
	}
	return &FileResolver{
		fs:      fsys,
		dir:     dir,
		byPath:  make(map[string]*module.Module),
		origins: make(map[string]string),
	}
}

// Resolve implements module.Resolver.
func (r *FileResolver) Resolve(ctx context.Context, from, ref string) (*module.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := r.locate(from, ref)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if m, ok := r.byPath[p]; ok {
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	data, err := r.fs.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, module.NotFound(from, ref)
		}
		return nil, fmt.Errorf("reading module %s: %w", p, err)
	}
	m, err := Parse(p, FormatFor(p), data)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.byPath[p]; ok {
		return cached, nil
	}
	if prev, ok := r.origins[m.ID]; ok && prev != p {
		return nil, &diag.Error{
			Kind:    diag.KindParse,
			Module:  p,
			Message: fmt.Sprintf("module id %q is already defined by %s", m.ID, prev),
			Related: []string{prev, p},
		}
	}
	r.byPath[p] = m
	r.origins[m.ID] = p
	return m, nil
}

// Files returns the paths of every module file read so far.
func (r *FileResolver) Files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.byPath))
	for p := range r.byPath {
		out = append(out, p)
	}
	return out
}

// locate maps an import reference to a module file path.
func (r *FileResolver) locate(from, ref string) (string, error) {
	base := r.dir
	if from != "" {
		r.mu.Lock()
		origin, ok := r.origins[from]
		r.mu.Unlock()
		if ok {
			base = filepath.Dir(origin)
		}
	}

	p := ref
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	p = filepath.Clean(p)

	info, err := r.fs.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", module.NotFound(from, ref)
		}
		return "", fmt.Errorf("stat %s: %w", p, err)
	}
	if info.IsDir() {
		for _, name := range DefaultNames {
			candidate := filepath.Join(p, name)
			if fi, err := r.fs.Stat(candidate); err == nil && !fi.IsDir() {
				return candidate, nil
			}
		}
		e := module.NotFound(from, ref).(*diag.Error)
		e.Message += ": directory has no default module"
		return "", e
	}
	if FormatFor(p) == FormatUnknown {
		return "", diag.New(diag.KindParse, "", "unsupported module file extension %q", filepath.Ext(p)).InModule(p)
	}
	return p, nil
}
