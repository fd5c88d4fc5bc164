// Package par runs indexed jobs on a bounded number of goroutines.
package par

import (
	"sync"
	"sync/atomic"
)

// Each calls f(i) for every i in [0, count) with at most n calls in flight and
// returns the errors indexed by i. n is clamped to [1, count]. Jobs start in
// ascending order of i, so with n == 1 they run sequentially.
func Each(n, count int, f func(i int) error) []error {
	errs := make([]error, count)
	if count == 0 {
		return errs
	}
	n = max(1, min(n, count))

	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1) - 1)
				if i >= count {
					return
				}
				errs[i] = f(i)
			}
		}()
	}
	wg.Wait()
	return errs
}
