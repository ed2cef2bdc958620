package scraper

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one item of a batch. Exactly one of Value and Err
// is meaningful.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// Pause waits d or until ctx is done, whichever comes first. It returns
// ctx's error in the second case. A non-positive d only checks ctx.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RunBatches processes items [0,n) in consecutive batches of size. Members of
// a batch run concurrently and the batch is a barrier: fold receives the
// batch's results in index order on the calling goroutine once every member
// has returned. The next batch starts delay after fold returns. Per-item
// failures travel in Result.Err and never stop the run; a done ctx stops it
// before the next batch and its error is returned.
func RunBatches[T any](
	ctx context.Context,
	n, size int,
	delay time.Duration,
	work func(ctx context.Context, index int) (T, error),
	fold func(batch []Result[T]),
) error {
	if size <= 0 {
		size = 1
	}

	for start := 0; start < n; start += size {
		if start > 0 {
			if err := Pause(ctx, delay); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		end := start + size
		if end > n {
			end = n
		}
		results := make([]Result[T], end-start)

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				v, err := work(ctx, i)
				results[i-start] = Result[T]{Index: i, Value: v, Err: err}
				return nil
			})
		}
		_ = g.Wait()

		fold(results)
	}
	return nil
}
