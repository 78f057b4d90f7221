// Package configstore persists per-directory session configuration: the merge
// rules applied to a dataset directory and the dictionary versions and roles
// used to translate it. Rows are keyed by the md5 of the directory path.
package configstore

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/sdtm"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/terms"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

// ErrNotFound is returned when no config is stored for a path.
var ErrNotFound = errors.New("config not found")

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS mapping_configs (
		path_hash TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		mode TEXT NOT NULL,
		translation_direction TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		configs TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS translation_library_configs (
		path_hash TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		mode TEXT NOT NULL,
		translation_direction TEXT NOT NULL,
		meddra_version TEXT NOT NULL DEFAULT '',
		whodrug_version TEXT NOT NULL DEFAULT '',
		ig_version TEXT NOT NULL DEFAULT '',
		meddra_config TEXT NOT NULL DEFAULT '[]',
		whodrug_config TEXT NOT NULL DEFAULT '[]',
		updated_at TEXT NOT NULL
	)`,
}

// MappingConfig is the saved merge-rule batch of a dataset directory.
type MappingConfig struct {
	Path      string            `json:"path"`
	Mode      schema.IngestMode `json:"mode"`
	Direction schema.Direction  `json:"translation_direction"`
	Name      string            `json:"name"`
	Rules     []sdtm.MergeRule  `json:"configs"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// LibraryConfig is the saved translation setup of a dataset directory.
type LibraryConfig struct {
	Path           string            `json:"path"`
	Mode           schema.IngestMode `json:"mode"`
	Direction      schema.Direction  `json:"translation_direction"`
	MedDRAVersion  string            `json:"meddra_version"`
	WHODrugVersion string            `json:"whodrug_version"`
	IGVersion      string            `json:"ig_version"`
	Roles          terms.RoleConfig  `json:"roles"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New ensures the config tables exist on db. The handle is shared, not owned.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create config schema: %w", err)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

// PathHash is the hex md5 of the trimmed path.
func PathHash(path string) string {
	sum := md5.Sum([]byte(strings.TrimSpace(path)))
	return hex.EncodeToString(sum[:])
}

// SaveMapping upserts the mapping config for c.Path. Rules are stored in
// canonical form.
func (s *Store) SaveMapping(ctx context.Context, c MappingConfig) error {
	if strings.TrimSpace(c.Path) == "" {
		return errors.New("mapping config needs a path")
	}
	rules, err := sdtm.MarshalRules(c.Rules)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO mapping_configs
		(path_hash, path, mode, translation_direction, name, configs, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (path_hash) DO UPDATE SET
			path = excluded.path, mode = excluded.mode,
			translation_direction = excluded.translation_direction,
			name = excluded.name, configs = excluded.configs, updated_at = excluded.updated_at`,
		PathHash(c.Path), strings.TrimSpace(c.Path), string(schema.NormalizeMode(string(c.Mode))),
		string(schema.NormalizeDirection(string(c.Direction))), strings.TrimSpace(c.Name),
		string(rules), s.stamp())
	if err != nil {
		return fmt.Errorf("save mapping config: %w", err)
	}
	return nil
}

// Mapping returns the mapping config saved for path.
func (s *Store) Mapping(ctx context.Context, path string) (MappingConfig, error) {
	var (
		c                       MappingConfig
		mode, dir, rules, stamp string
	)
	err := s.db.QueryRowContext(ctx, `SELECT path, mode, translation_direction, name, configs, updated_at
		FROM mapping_configs WHERE path_hash = ?`, PathHash(path)).
		Scan(&c.Path, &mode, &dir, &c.Name, &rules, &stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return MappingConfig{}, ErrNotFound
	}
	if err != nil {
		return MappingConfig{}, fmt.Errorf("get mapping config: %w", err)
	}
	c.Mode = schema.NormalizeMode(mode)
	c.Direction = schema.NormalizeDirection(dir)
	if c.Rules, err = sdtm.ParseRules([]byte(rules)); err != nil {
		return MappingConfig{}, fmt.Errorf("decode saved rules: %w", err)
	}
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, stamp)
	return c, nil
}

// SaveLibrary upserts the translation library config for c.Path.
func (s *Store) SaveLibrary(ctx context.Context, c LibraryConfig) error {
	if strings.TrimSpace(c.Path) == "" {
		return errors.New("translation library config needs a path")
	}
	meddra, err := json.Marshal(nonNil(c.Roles.MedDRA))
	if err != nil {
		return err
	}
	whodrug, err := json.Marshal(nonNil(c.Roles.WHODrug))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO translation_library_configs
		(path_hash, path, mode, translation_direction, meddra_version, whodrug_version, ig_version,
		 meddra_config, whodrug_config, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (path_hash) DO UPDATE SET
			path = excluded.path, mode = excluded.mode,
			translation_direction = excluded.translation_direction,
			meddra_version = excluded.meddra_version, whodrug_version = excluded.whodrug_version,
			ig_version = excluded.ig_version, meddra_config = excluded.meddra_config,
			whodrug_config = excluded.whodrug_config, updated_at = excluded.updated_at`,
		PathHash(c.Path), strings.TrimSpace(c.Path), string(schema.NormalizeMode(string(c.Mode))),
		string(schema.NormalizeDirection(string(c.Direction))),
		strings.TrimSpace(c.MedDRAVersion), strings.TrimSpace(c.WHODrugVersion), strings.TrimSpace(c.IGVersion),
		string(meddra), string(whodrug), s.stamp())
	if err != nil {
		return fmt.Errorf("save translation library config: %w", err)
	}
	return nil
}

// Library returns the translation library config saved for path.
func (s *Store) Library(ctx context.Context, path string) (LibraryConfig, error) {
	var (
		c                                 LibraryConfig
		mode, dir, meddra, whodrug, stamp string
	)
	err := s.db.QueryRowContext(ctx, `SELECT path, mode, translation_direction,
		meddra_version, whodrug_version, ig_version, meddra_config, whodrug_config, updated_at
		FROM translation_library_configs WHERE path_hash = ?`, PathHash(path)).
		Scan(&c.Path, &mode, &dir, &c.MedDRAVersion, &c.WHODrugVersion, &c.IGVersion, &meddra, &whodrug, &stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return LibraryConfig{}, ErrNotFound
	}
	if err != nil {
		return LibraryConfig{}, fmt.Errorf("get translation library config: %w", err)
	}
	c.Mode = schema.NormalizeMode(mode)
	c.Direction = schema.NormalizeDirection(dir)
	if err := json.Unmarshal([]byte(meddra), &c.Roles.MedDRA); err != nil {
		return LibraryConfig{}, fmt.Errorf("decode meddra_config: %w", err)
	}
	if err := json.Unmarshal([]byte(whodrug), &c.Roles.WHODrug); err != nil {
		return LibraryConfig{}, fmt.Errorf("decode whodrug_config: %w", err)
	}
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, stamp)
	return c, nil
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func nonNil(r []terms.Role) []terms.Role {
	if r == nil {
		return []terms.Role{}
	}
	return r
}
