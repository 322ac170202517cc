package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// runPool calls fn for every index in [0, n) with at most workers calls in
// flight. fn owns its own error handling: a failing unit never cancels its
// siblings, so the group is used only for bounded fan-out and joining.
func runPool(ctx context.Context, workers, n int, fn func(ctx context.Context, i int)) {
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}
