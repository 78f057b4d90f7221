package main

import (
	"context"
	"fmt"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/app"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/configstore"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/dictionary"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/metrics"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/translate"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/translate/gemini"
)

// resources owns everything opened for one command.
type resources struct {
	session *app.Session
	dict    *dictionary.Store
	metrics *metrics.Recorder
	closers []func() error
}

func (r *resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// open builds a session from configuration. LLM fallback is enabled only when
// GEMINI_API_KEY is set; a configured but unreachable redis degrades to the
// in-memory cache.
func (e *env) open(ctx context.Context) (*resources, error) {
	cfg := e.cfg
	rt := &resources{metrics: metrics.New()}

	dict, err := dictionary.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	rt.dict = dict
	rt.closers = append(rt.closers, dict.Close)

	configs, err := configstore.New(ctx, dict.DB())
	if err != nil {
		rt.Close()
		return nil, err
	}

	var cache translate.Cache = translate.NewMemoryCache()
	if cfg.RedisURL != "" {
		rc, err := translate.NewRedisCacheURL(cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, configErr(fmt.Errorf("REDIS_URL: %w", err))
		}
		if err := rc.Ping(ctx); err != nil {
			e.log.Warn().Err(err).Msg("redis unavailable; using in-memory translation cache")
			_ = rc.Close()
		} else {
			cache = rc
			rt.closers = append(rt.closers, rc.Close)
		}
	}

	var llm translate.Translator
	if cfg.GeminiAPIKey != "" {
		g, err := gemini.New(ctx, gemini.Config{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
		})
		if err != nil {
			rt.Close()
			return nil, configErr(fmt.Errorf("gemini: %w", err))
		}
		llm = g
	} else {
		e.log.Info().Msg("GEMINI_API_KEY not set; LLM fallback disabled")
	}

	rt.session = app.NewSession(app.Deps{
		Log:        e.log,
		Configs:    configs,
		Dictionary: dict,
		Cache:      cache,
		CacheTTL:   cfg.CacheTTL,
		LLM:        llm,
		Observer:   rt.metrics,
		Translation: translate.Options{
			Direction:      cfg.TranslationDirection(),
			Workers:        cfg.Workers,
			MaxRetries:     cfg.MaxRetries,
			RequestTimeout: cfg.RequestTimeout,
			RateLimitRPS:   cfg.RateLimitRPS,
			FailFast:       cfg.FailFast,
		},
		ReadWorkers: cfg.Workers,
	})
	return rt, nil
}

// ingest loads the --dir directory with the configured mode and direction.
func (e *env) ingest(ctx context.Context, rt *resources) error {
	if e.cfg.DataDir == "" {
		return configErr(fmt.Errorf("--dir (or DATA_DIR) is required"))
	}
	_, err := rt.session.Ingest(ctx, app.IngestRequest{
		Path:              e.cfg.DataDir,
		Mode:              e.cfg.IngestMode(),
		Direction:         e.cfg.TranslationDirection(),
		HideSuppInPreview: e.cfg.HideSupp(),
	})
	return err
}
