package translate

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/core"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/redact"
)

// Traced logs every request and response of the wrapped translator at debug
// level, and failures at warn with the retry decision the worker pool will
// make.
type Traced struct {
	next       Translator
	log        zerolog.Logger
	maxRetries int

	mu       sync.Mutex
	attempts map[string]int
}

func NewTraced(next Translator, log zerolog.Logger, maxRetries int) *Traced {
	return &Traced{next: next, log: log, maxRetries: maxRetries, attempts: map[string]int{}}
}

func (t *Traced) Translate(ctx context.Context, req Request) (Result, error) {
	key := CacheKey(req)
	attempt := t.nextAttempt(key)

	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	t.log.Debug().
		Str("text", req.Text).
		Str("dictionary", string(req.Dictionary)).
		Int("attempt", attempt).
		Str("deadline_in", deadlineIn).
		Msg("translate request")

	start := time.Now()
	res, err := t.next.Translate(ctx, req)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		budget := retryBudget(t.maxRetries, err)
		canRetry := retryable(err)
		t.log.Warn().
			Str("text", req.Text).
			Int("attempt", attempt).
			Dur("duration", elapsed).
			Bool("retryable", canRetry).
			Bool("will_retry", canRetry && attempt <= budget).
			Str("error", redact.Secrets(err.Error())).
			Msg("translate failed")
		return res, err
	}

	t.log.Debug().
		Str("text", req.Text).
		Int("attempt", attempt).
		Dur("duration", elapsed).
		Bool("found", res.Found).
		Str("source", res.Source).
		Msg("translate response")
	return res, nil
}

func (t *Traced) nextAttempt(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[key]++
	return t.attempts[key]
}

type retryCap interface {
	MaxExtraRetries() int
}

func retryBudget(defaultMax int, err error) int {
	defaultMax = max(defaultMax, 0)
	var capErr retryCap
	if errors.As(err, &capErr) {
		return min(max(capErr.MaxExtraRetries(), 0), defaultMax)
	}
	return defaultMax
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if core.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
