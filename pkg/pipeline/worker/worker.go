// Package worker runs a function over a slice of items on a bounded pool of
// goroutines with a shared rate limit, per-item timeouts and retries for
// transient failures. Dataset reads and term translations both go through it.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/core"
)

type FailurePolicy int

const (
	// FailurePolicyPartialOutput records per-item errors and keeps going.
	FailurePolicyPartialOutput FailurePolicy = iota
	// FailurePolicyFailFast cancels the run on the first item error.
	FailurePolicyFailFast
)

type Options struct {
	Workers    int
	MaxRetries int
	// RequestTimeout bounds one attempt, not the whole retry sequence.
	RequestTimeout time.Duration

	// RateLimitRPS is shared by all workers. <=0 disables limiting.
	RateLimitRPS float64

	FailurePolicy FailurePolicy

	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// BackoffJitterFrac spreads each sleep by +/- this fraction.
	BackoffJitterFrac float64

	// Progress, when set, is called once per completed item with the running
	// count and the item rendered through fmt.
	Progress core.ProgressFunc
}

// Result pairs one input with its output or error.
type Result[In any, Out any] struct {
	Input  In
	Output Out
	Err    error
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 60 * time.Second
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = 250 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 4 * time.Second
	}
	if o.BackoffJitterFrac <= 0 {
		o.BackoffJitterFrac = 0.2
	}
	return o
}

// ProcessAll runs fn over items and returns results in input order.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	fn func(context.Context, In) (Out, error),
	opts Options,
) ([]Result[In, Out], error) {
	return ProcessAllWithCallback(ctx, items, fn, nil, opts)
}

// ProcessAllWithCallback is ProcessAll with onResult invoked, in completion
// order, as each item finishes. An onResult error stops the run and is
// returned.
func ProcessAllWithCallback[In any, Out any](
	ctx context.Context,
	items []In,
	fn func(context.Context, In) (Out, error),
	onResult func(Result[In, Out]) error,
	opts Options,
) ([]Result[In, Out], error) {
	opts = opts.withDefaults()
	if len(items) == 0 {
		return []Result[In, Out]{}, ctx.Err()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	type indexed struct {
		idx int
		res Result[In, Out]
	}
	queue := make(chan int)
	finished := make(chan indexed, opts.Workers)

	var (
		stopOnce sync.Once
		stopErr  error
	)
	stop := func(err error) {
		stopOnce.Do(func() {
			stopErr = err
			cancel()
		})
	}

	var wg sync.WaitGroup
	for w := 0; w < min(opts.Workers, len(items)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				if runCtx.Err() != nil {
					return
				}
				out, err := attempt(runCtx, items[idx], fn, limiter, opts)
				res := Result[In, Out]{Input: items[idx], Output: out, Err: err}
				select {
				case finished <- indexed{idx: idx, res: res}:
				case <-runCtx.Done():
					return
				}
				if err != nil && opts.FailurePolicy == FailurePolicyFailFast {
					stop(err)
					return
				}
			}
		}()
	}

	go func() {
		defer close(queue)
		for i := range items {
			select {
			case queue <- i:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(finished)
	}()

	results := make([]Result[In, Out], len(items))
	done := 0
	for f := range finished {
		results[f.idx] = f.res
		done++
		if opts.Progress != nil {
			opts.Progress(done, len(items), fmt.Sprint(f.res.Input))
		}
		if onResult != nil {
			if err := onResult(f.res); err != nil {
				stop(err)
			}
		}
	}

	if stopErr != nil {
		return nil, stopErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
