package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/configstore"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/dictionary"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/sasio"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/sdtm"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/terms"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/translate"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/core"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

// ErrNoDataset is returned by operations that need a loaded directory.
var ErrNoDataset = errors.New("no dataset directory loaded")

// Observer is everything a session reports to; metrics.Recorder satisfies it.
type Observer interface {
	sdtm.Observer
	translate.Recorder
}

// Deps are the collaborators of a Session. Configs, Dictionary, Cache, LLM
// and Observer may be nil.
type Deps struct {
	Log        zerolog.Logger
	Readers    map[string]sasio.Reader
	Configs    *configstore.Store
	Dictionary translate.Translator
	Cache      translate.Cache
	CacheTTL   time.Duration
	LLM        translate.Translator
	Observer   Observer

	// Translation carries pool settings for worklist runs; Direction and
	// Versions are filled per run from the session.
	Translation translate.Options
	ReadWorkers int
}

// Session is one user's working state: a catalog of the loaded directory,
// the translation chain and the saved configs of that directory.
type Session struct {
	ID string

	log     zerolog.Logger
	catalog *sdtm.Catalog
	readers map[string]sasio.Reader
	configs *configstore.Store
	chain   *translate.Chain
	opts    translate.Options
	workers int

	mu       sync.Mutex
	path     string
	roles    terms.RoleConfig
	versions map[terms.Dictionary]string
}

func NewSession(d Deps) *Session {
	id := uuid.NewString()
	log := d.Log.With().Str("run", id).Logger()

	var catOpts []sdtm.Option
	var rec translate.Recorder
	if d.Observer != nil {
		catOpts = append(catOpts, sdtm.WithObserver(d.Observer))
		rec = d.Observer
	}
	if d.Translation.Direction != "" {
		catOpts = append(catOpts, sdtm.WithDirection(d.Translation.Direction))
	}

	readers := d.Readers
	if len(readers) == 0 {
		readers = sasio.DefaultReaders()
	}

	var llm translate.Translator
	if d.LLM != nil {
		llm = translate.NewTraced(d.LLM, log, d.Translation.MaxRetries)
	}

	return &Session{
		ID:      id,
		log:     log,
		catalog: sdtm.NewCatalog(log, catOpts...),
		readers: readers,
		configs: d.Configs,
		chain: &translate.Chain{
			Cache:      d.Cache,
			CacheTTL:   d.CacheTTL,
			Dictionary: d.Dictionary,
			LLM:        llm,
			Recorder:   rec,
			Log:        log,
		},
		opts:     d.Translation,
		workers:  d.ReadWorkers,
		versions: map[terms.Dictionary]string{},
	}
}

// Catalog exposes the session catalog for read-only callers.
func (s *Session) Catalog() *sdtm.Catalog { return s.catalog }

func (s *Session) Log() zerolog.Logger { return s.log }

// Path is the directory of the last successful Ingest.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

type IngestRequest struct {
	Path      string
	Mode      schema.IngestMode
	Direction schema.Direction
	// HideSuppInPreview defaults to true for SDTM mode and false for RAW
	// when nil.
	HideSuppInPreview *bool
	Progress          core.ProgressFunc
}

// Ingest reads every supported file of a directory and replaces the catalog
// with it. A saved translation-library config of the same directory restores
// the session's roles and dictionary versions.
func (s *Session) Ingest(ctx context.Context, req IngestRequest) ([]sdtm.DatasetInfo, error) {
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return nil, errors.New("path is required")
	}
	start := time.Now()

	datasets, err := sasio.ReadDir(ctx, path, sasio.Options{
		Readers:  s.readers,
		Workers:  s.workers,
		Progress: req.Progress,
		Log:      s.log,
	})
	if err != nil {
		return nil, err
	}
	inputs := make([]sdtm.Input, 0, len(datasets))
	for _, ds := range datasets {
		inputs = append(inputs, ds.Input())
	}

	if req.Direction != "" {
		s.catalog.SetDirection(req.Direction)
	}
	hide := schema.NormalizeMode(string(req.Mode)) == schema.IngestModeSDTM
	if req.HideSuppInPreview != nil {
		hide = *req.HideSuppInPreview
	}
	s.catalog.SetHideSuppInPreview(hide)
	s.catalog.Load(inputs, req.Mode)

	s.mu.Lock()
	s.path = path
	s.mu.Unlock()

	if err := s.restoreLibrary(ctx, path); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("saved translation library config not restored")
	}

	s.log.Info().
		Str("path", path).
		Str("mode", string(req.Mode)).
		Int("datasets", len(inputs)).
		Dur("duration", time.Since(start).Round(time.Millisecond)).
		Msg("ingest complete")
	return s.catalog.Info(), nil
}

func (s *Session) restoreLibrary(ctx context.Context, path string) error {
	if s.configs == nil {
		return nil
	}
	cfg, err := s.configs.Library(ctx, path)
	if errors.Is(err, configstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.useLibrary(cfg)
	return nil
}

func (s *Session) Info() []sdtm.DatasetInfo { return s.catalog.Info() }

func (s *Session) Preview(name string, offset, limit int) (sdtm.Preview, error) {
	return s.catalog.Preview(name, offset, limit)
}

func (s *Session) SourceVariables(parent string) ([]string, string, error) {
	return s.catalog.SourceVariables(parent)
}

// ApplyMerge runs a rule batch and, when a directory is loaded and a config
// store is configured, saves the batch as that directory's mapping config.
func (s *Session) ApplyMerge(ctx context.Context, name string, rules []sdtm.MergeRule) (sdtm.MergeReport, error) {
	rep := s.catalog.ApplyMerge(rules)
	s.log.Info().
		Int("applied", len(rep.Applied)).
		Int("skipped", len(rep.Skipped)).
		Msg("merge batch applied")

	path := s.Path()
	if s.configs == nil || path == "" {
		return rep, nil
	}
	flags := s.catalog.Flags()
	err := s.configs.SaveMapping(ctx, configstore.MappingConfig{
		Path:      path,
		Mode:      s.catalog.Mode(),
		Direction: flags.Direction,
		Name:      name,
		Rules:     rules,
	})
	if err != nil {
		return rep, fmt.Errorf("save mapping config: %w", err)
	}
	return rep, nil
}

func (s *Session) SaveMapping(ctx context.Context, cfg configstore.MappingConfig) error {
	if s.configs == nil {
		return errors.New("config store is not configured")
	}
	return s.configs.SaveMapping(ctx, cfg)
}

func (s *Session) Mapping(ctx context.Context, path string) (configstore.MappingConfig, error) {
	if s.configs == nil {
		return configstore.MappingConfig{}, configstore.ErrNotFound
	}
	return s.configs.Mapping(ctx, path)
}

// SaveLibrary stores a translation-library config. When it belongs to the
// loaded directory its roles and versions take effect immediately.
func (s *Session) SaveLibrary(ctx context.Context, cfg configstore.LibraryConfig) error {
	if s.configs == nil {
		return errors.New("config store is not configured")
	}
	cfg.MedDRAVersion = dictionary.NormalizeMedDRAVersion(cfg.MedDRAVersion)
	cfg.WHODrugVersion = dictionary.NormalizeWHODrugVersion(cfg.WHODrugVersion)
	if err := s.configs.SaveLibrary(ctx, cfg); err != nil {
		return err
	}
	if configstore.PathHash(cfg.Path) == configstore.PathHash(s.Path()) {
		s.useLibrary(cfg)
	}
	return nil
}

func (s *Session) Library(ctx context.Context, path string) (configstore.LibraryConfig, error) {
	if s.configs == nil {
		return configstore.LibraryConfig{}, configstore.ErrNotFound
	}
	return s.configs.Library(ctx, path)
}

func (s *Session) useLibrary(cfg configstore.LibraryConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles = cfg.Roles
	s.versions = map[terms.Dictionary]string{
		terms.MedDRA:     cfg.MedDRAVersion,
		terms.WHODrug:    cfg.WHODrugVersion,
		terms.IGDataset:  cfg.IGVersion,
		terms.IGVariable: cfg.IGVersion,
	}
}

// Roles returns the role config currently in effect.
func (s *Session) Roles() terms.RoleConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles
}

// SetRoles replaces the role config in effect without persisting it.
func (s *Session) SetRoles(cfg terms.RoleConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles = cfg
}

// Worklists extracts all four worklists with the given roles, or with the
// session's roles when cfg is nil.
func (s *Session) Worklists(cfg *terms.RoleConfig) terms.Worklists {
	roles := s.Roles()
	if cfg != nil {
		roles = *cfg
	}
	return terms.Build(s.catalog.Domains(), roles)
}

// Translate resolves a single request through the chain. An empty direction
// uses the session's.
func (s *Session) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	if req.Direction == "" {
		req.Direction = s.catalog.Flags().Direction
	}
	if req.Version == "" {
		s.mu.Lock()
		req.Version = s.versions[req.Dictionary]
		s.mu.Unlock()
	}
	return s.chain.Translate(ctx, req)
}

// TranslateWorklists translates every item of wl. Rows of prior with status
// ok are reused; everything else goes through the chain.
func (s *Session) TranslateWorklists(ctx context.Context, wl terms.Worklists, prior []translate.Row, progress core.ProgressFunc) ([]translate.Row, error) {
	opts := s.opts
	opts.Direction = s.catalog.Flags().Direction
	opts.Progress = progress
	s.mu.Lock()
	opts.Versions = make(map[terms.Dictionary]string, len(s.versions))
	for k, v := range s.versions {
		opts.Versions[k] = v
	}
	s.mu.Unlock()

	items := translate.ItemsFromWorklists(wl)
	start := time.Now()
	plan, err := translate.TranslateIncremental(ctx, items, prior, s.chain, opts)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Int("items", len(items)).
		Int("cached", plan.Cached).
		Int("translated", len(plan.Pending)).
		Int("pending_rows", plan.Waiting).
		Msg("incremental plan")

	counts := translate.CountStatuses(plan.Rows)
	s.log.Info().
		Int("produced", len(plan.Rows)).
		Int("ok", counts[translate.StatusOK]).
		Int("miss", counts[translate.StatusMiss]).
		Int("error", counts[translate.StatusError]).
		Dur("duration", time.Since(start).Round(time.Millisecond)).
		Msg("translation complete")
	return plan.Rows, nil
}
