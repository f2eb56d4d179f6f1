package loader

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/stratum/internal/module"
)

// Prefetch reads and parses the whole import graph of entry concurrently,
// one breadth-first level at a time with at most workers files in flight.
// It returns an in-memory resolver holding every reachable module and the
// entry module's ID. Loading from the result never touches fsys again.
func Prefetch(ctx context.Context, fsys FileSystem, dir, entry string, workers int) (*module.MapResolver, string, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	fr := NewFileResolver(fsys, dir)
	out := module.NewMapResolver()

	type edge struct{ from, ref string }
	frontier := []edge{{"", entry}}
	seen := make(map[string]bool)
	entryID := ""

	for len(frontier) > 0 {
		results := make([]*module.Module, len(frontier))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, e := range frontier {
			g.Go(func() error {
				m, err := fr.Resolve(gctx, e.from, e.ref)
				if err != nil {
					return err
				}
				results[i] = m
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, "", err
		}

		var next []edge
		for i, m := range results {
			e := frontier[i]
			if e.from == "" {
				entryID = m.ID
			}
			out.Alias(e.from, e.ref, m.ID)
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			out.Add(m)
			for _, imp := range m.Imports {
				next = append(next, edge{m.ID, imp})
			}
		}
		frontier = next
	}
	return out, entryID, nil
}
