package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Item holds the outcome of one request. A failed item does not affect the
// others.
type Item[TResult any] struct {
	Result TResult
	Error  error
}

// Processor runs a function over a batch of requests with bounded concurrency.
type Processor[TRequest, TResult any] struct {
	MaxConcurrency int
	Process        func(context.Context, TRequest) (TResult, error)
}

// ProcessBatch processes every request and returns one Item per request,
// in request order. It always runs the whole batch.
func (p *Processor[TRequest, TResult]) ProcessBatch(ctx context.Context, requests []TRequest) []Item[TResult] {
	results := make([]Item[TResult], len(requests))

	limit := p.MaxConcurrency
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			result, err := p.Process(ctx, req)
			results[i] = Item[TResult]{Result: result, Error: err}
			return nil
		})
	}

	_ = g.Wait()
	return results
}
