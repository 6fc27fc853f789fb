package segment

import (
	"context"
	"sync"
)

// runRegions calls fn for every region index in [0, n) on a fixed pool of
// workers and waits for all of them. The first error cancels the regions
// that have not started yet and is returned once every worker is done.
func runRegions(ctx context.Context, n, threads int, fn func(ctx context.Context, k int) error) error {
	if n == 0 {
		return ctx.Err()
	}
	threads = max(1, min(threads, n))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg    sync.WaitGroup
		once  sync.Once
		first error
		jobs  = make(chan int)
	)
	for t := 0; t < threads; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range jobs {
				if runCtx.Err() != nil {
					continue
				}
				if err := fn(runCtx, k); err != nil {
					once.Do(func() {
						first = err
						cancel()
					})
				}
			}
		}()
	}

feed:
	for k := 0; k < n; k++ {
		select {
		case jobs <- k:
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if first != nil {
		return first
	}
	return ctx.Err()
}
