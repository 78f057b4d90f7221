package translate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Recorder is told where each found translation came from.
type Recorder interface {
	TranslationResolved(source string)
}

// Chain consults Cache, then Dictionary, then LLM and returns the first found
// result. Any stage may be nil. LLM answers are written back to the cache.
type Chain struct {
	Cache      Cache
	CacheTTL   time.Duration
	Dictionary Translator
	LLM        Translator
	Recorder   Recorder
	Log        zerolog.Logger
}

// Translate returns an empty, not-found result for blank text without
// consulting any stage.
func (c *Chain) Translate(ctx context.Context, req Request) (Result, error) {
	req = req.normalized()
	if req.Text == "" {
		return Result{}, nil
	}

	key := CacheKey(req)
	if c.Cache != nil {
		v, err := c.Cache.Get(ctx, key)
		switch {
		case err == nil:
			return c.found(Result{Text: v, Source: SourceCache, Found: true}), nil
		case !errors.Is(err, ErrMiss):
			// A broken cache degrades to a miss.
			c.Log.Warn().Err(err).Msg("translation cache read failed")
		}
	}

	if c.Dictionary != nil {
		res, err := c.Dictionary.Translate(ctx, req)
		if err != nil {
			return Result{}, err
		}
		if res.Found {
			return c.found(res), nil
		}
	}

	if c.LLM == nil {
		return Result{}, nil
	}
	res, err := c.LLM.Translate(ctx, req)
	if err != nil || !res.Found {
		return res, err
	}
	if res.Source == "" {
		res.Source = SourceLLM
	}
	if c.Cache != nil {
		if err := c.Cache.Set(ctx, key, res.Text, c.CacheTTL); err != nil {
			c.Log.Warn().Err(err).Msg("translation cache write failed")
		}
	}
	return c.found(res), nil
}

func (c *Chain) found(res Result) Result {
	if c.Recorder != nil {
		c.Recorder.TranslationResolved(res.Source)
	}
	return res
}
