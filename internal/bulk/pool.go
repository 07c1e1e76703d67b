package bulk

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
)

// runConcurrent calls work for every index in [0, count) with at most
// nWorkers calls in flight and returns the results in index order. Each call
// writes only its own slot. An error, a panic, or a context cancelled before
// the call starts fills the slot through onFailure instead.
func runConcurrent[T any](
	ctx context.Context,
	nWorkers, count int,
	work func(ctx context.Context, i int) (T, error),
	onFailure func(i int, err error) T,
) []T {
	results := make([]T, count)

	var g errgroup.Group
	g.SetLimit(max(1, nWorkers))
	for i := range count {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i] = onFailure(i, models.NewExportError(models.ErrInternalError, "panic: %v", r))
				}
			}()

			if err := ctx.Err(); err != nil {
				results[i] = onFailure(i, err)
				return nil
			}
			res, err := work(ctx, i)
			if err != nil {
				results[i] = onFailure(i, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	// Workers never return errors; failures live in their slots.
	_ = g.Wait()

	return results
}
