// Package workerpool bounds the concurrency of fan-out batches, such
// as creating one EventSub subscription per descriptor.
package workerpool

import (
	"context"
	"sync"
)

// Run applies fn to every item with at most workers running at once.
// Work that has started always finishes; the first error is kept and
// returned after the batch drains. A canceled context stops further
// items from being picked up.
func Run[T any](ctx context.Context, items []T, workers int, fn func(context.Context, T) error) error {
	if len(items) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	sem := make(chan struct{}, workers)

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(it T) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := fn(ctx, it); err != nil {
				once.Do(func() { firstErr = err })
			}
		}(item)
	}

	wg.Wait()
	return firstErr
}
