// Package batch runs bounded groups of independent tasks to completion.
package batch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Result is the settled outcome of one item.
type Result[T any] struct {
	Value T
	Err   error
}

// Settle runs fn over items with at most size calls in flight and returns
// one Result per item in input order. A failing item never cancels its
// siblings. Once ctx ends no further items start; they settle with the
// context error.
func Settle[I, O any](ctx context.Context, items []I, size int, fn func(context.Context, I) (O, error)) []Result[O] {
	results := make([]Result[O], len(items))
	if len(items) == 0 {
		return results
	}
	if size <= 0 {
		size = 1
	}

	var g errgroup.Group
	g.SetLimit(size)
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			results[i].Err = fmt.Errorf("not started: %w", err)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = fmt.Errorf("not started: %w", err)
				return nil
			}
			v, err := fn(ctx, item)
			results[i] = Result[O]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
