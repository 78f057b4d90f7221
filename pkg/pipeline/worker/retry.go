package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/core"
)

// attempt calls fn until it succeeds, fails permanently, or exhausts the retry
// budget. The limiter is consulted before every call, retries included.
func attempt[In any, Out any](
	ctx context.Context,
	item In,
	fn func(context.Context, In) (Out, error),
	limiter *rate.Limiter,
	opts Options,
) (Out, error) {
	var last Out
	for try := 0; ; try++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return last, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, opts.RequestTimeout)
		out, err := fn(callCtx, item)
		cancel()
		last = out
		if err == nil {
			return out, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return last, ctx.Err()
		}
		if !retryable(err) || try >= retryBudget(opts.MaxRetries, err) {
			return last, err
		}

		timer := time.NewTimer(backoff(opts.BackoffInitial, opts.BackoffMax, opts.BackoffJitterFrac, try))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		}
	}
}

type retryCap interface {
	MaxExtraRetries() int
}

// retryBudget is the pool budget, lowered by an error that carries its own cap.
func retryBudget(pool int, err error) int {
	pool = max(pool, 0)
	var rc retryCap
	if errors.As(err, &rc) {
		return min(pool, max(rc.MaxExtraRetries(), 0))
	}
	return pool
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if core.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// backoff doubles initial per prior attempt up to ceiling, then applies jitter.
func backoff(initial, ceiling time.Duration, jitter float64, try int) time.Duration {
	d := initial
	for i := 0; i < try && d < ceiling; i++ {
		d = min(d*2, ceiling)
	}
	if jitter <= 0 {
		return d
	}
	return time.Duration(float64(d) * (1 + (rand.Float64()*2-1)*jitter))
}
