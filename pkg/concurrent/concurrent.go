// Package concurrent provides parallel fan-out helpers over sequence
// iterators. The simulation tick uses ParallelMap to compute every agent's
// next state from the same snapshot across a bounded worker set.
package concurrent

import (
	"golang.org/x/sync/errgroup"

	"github.com/flocksim/flocksim/pkg/sequence"
)

// Concurrent runs the action for each element of the iterator in its own
// goroutine and waits for all of them. The first error encountered is
// returned.
func Concurrent[T any](i *sequence.Iterator[T], action func(T) error) error {
	errGroup := errgroup.Group{}
	next, stop := i.Pull()
	defer stop()

	for {
		value, valid := next()
		if !valid {
			break
		}

		errGroup.Go(func() error {
			return action(value)
		})
	}

	return errGroup.Wait()
}

// ParallelMap applies mapFn to each element in parallel, preserving order.
// The workers parameter bounds the number of concurrently running map
// calls; values below 1 mean unbounded. mapFn receives the element index so
// callers can correlate results with the input snapshot.
func ParallelMap[T any, R any](i *sequence.Iterator[T], workers int, mapFn func(int, T) R) []R {
	in := i.Collect()
	out := make([]R, len(in))

	g := errgroup.Group{}
	if workers > 0 {
		g.SetLimit(workers)
	}
	for idx, val := range in {
		g.Go(func() error {
			out[idx] = mapFn(idx, val)
			return nil
		})
	}
	// Map functions cannot fail; Wait only joins the goroutines.
	_ = g.Wait()
	return out
}
