// Package dictionary stores the bundled medical dictionaries (MedDRA, WHODrug),
// SDTM IG label metadata and the curated translation library in SQLite, and
// answers translation lookups from them.
package dictionary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/shpitdev/sdtm-translation-pipeline/internal/terms"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/translate"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS meddra_terms (
		version TEXT NOT NULL,
		code TEXT NOT NULL,
		name_en TEXT NOT NULL DEFAULT '',
		name_cn TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (version, code)
	)`,
	`CREATE TABLE IF NOT EXISTS whodrug_terms (
		version TEXT NOT NULL,
		code TEXT NOT NULL,
		name_en TEXT NOT NULL DEFAULT '',
		name_cn TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (version, code)
	)`,
	`CREATE TABLE IF NOT EXISTS ig_labels (
		version TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		label_en TEXT NOT NULL DEFAULT '',
		label_cn TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (version, kind, name)
	)`,
	`CREATE TABLE IF NOT EXISTS translation_library (
		source_text TEXT NOT NULL,
		target_text TEXT NOT NULL,
		direction TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		verified INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (source_text, direction)
	)`,
	`CREATE INDEX IF NOT EXISTS meddra_terms_cn ON meddra_terms (name_cn)`,
	`CREATE INDEX IF NOT EXISTS whodrug_terms_cn ON whodrug_terms (name_cn)`,
}

// Store is a SQLite dictionary database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "sdtmtrans.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers; lookups are short.
	db.SetMaxOpenConns(1)
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create dictionary schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// DB exposes the handle so other stores can share the file.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Translate looks a request up by code, then by source-language name, in the
// dictionary it names, and finally in the translation library. A miss is not
// an error.
func (s *Store) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return translate.Result{}, nil
	}
	dir := schema.NormalizeDirection(string(req.Direction))
	code := strings.TrimSpace(req.Code)

	var (
		out string
		err error
	)
	switch req.Dictionary {
	case terms.MedDRA, terms.WHODrug:
		version := NormalizeVersion(string(req.Dictionary), req.Version)
		out, err = s.lookupTerm(ctx, string(req.Dictionary)+"_terms", version, code, text, dir)
	case terms.IGDataset, terms.IGVariable:
		kind := "dataset"
		if req.Dictionary == terms.IGVariable {
			kind = "variable"
		}
		out, err = s.lookupLabel(ctx, strings.TrimSpace(req.Version), kind, code, text, dir)
	}
	if err != nil {
		return translate.Result{}, err
	}
	if out != "" {
		return translate.Result{Text: out, Source: translate.SourceDictionary, Found: true}, nil
	}

	out, err = s.lookupLibrary(ctx, text, dir)
	if err != nil || out == "" {
		return translate.Result{}, err
	}
	return translate.Result{Text: out, Source: translate.SourceLibrary, Found: true}, nil
}

// columns returns the source and target name columns for a direction.
func columns(dir schema.Direction, en, cn string) (src, dst string) {
	if dir == schema.DirectionEnToZh {
		return en, cn
	}
	return cn, en
}

func (s *Store) lookupTerm(ctx context.Context, tbl, version, code, text string, dir schema.Direction) (string, error) {
	src, dst := columns(dir, "name_en", "name_cn")
	if code != "" {
		q := `SELECT ` + dst + ` FROM ` + tbl + `
			WHERE code = ? AND (? = '' OR version = ?) AND ` + dst + ` <> ''
			ORDER BY version DESC LIMIT 1`
		out, err := s.first(ctx, q, code, version, version)
		if err != nil || out != "" {
			return out, err
		}
	}
	q := `SELECT ` + dst + ` FROM ` + tbl + `
		WHERE lower(` + src + `) = lower(?) AND (? = '' OR version = ?) AND ` + dst + ` <> ''
		ORDER BY version DESC LIMIT 1`
	return s.first(ctx, q, text, version, version)
}

func (s *Store) lookupLabel(ctx context.Context, version, kind, name, text string, dir schema.Direction) (string, error) {
	src, dst := columns(dir, "label_en", "label_cn")
	if name != "" {
		q := `SELECT ` + dst + ` FROM ig_labels
			WHERE kind = ? AND upper(name) = upper(?) AND (? = '' OR version = ?) AND ` + dst + ` <> ''
			ORDER BY version DESC LIMIT 1`
		out, err := s.first(ctx, q, kind, name, version, version)
		if err != nil || out != "" {
			return out, err
		}
	}
	q := `SELECT ` + dst + ` FROM ig_labels
		WHERE kind = ? AND lower(` + src + `) = lower(?) AND (? = '' OR version = ?) AND ` + dst + ` <> ''
		ORDER BY version DESC LIMIT 1`
	return s.first(ctx, q, kind, text, version, version)
}

func (s *Store) lookupLibrary(ctx context.Context, text string, dir schema.Direction) (string, error) {
	return s.first(ctx, `SELECT target_text FROM translation_library
		WHERE source_text = ? AND direction = ? AND target_text <> ''
		ORDER BY verified DESC, confidence DESC LIMIT 1`, text, string(dir))
}

func (s *Store) first(ctx context.Context, q string, args ...any) (string, error) {
	var out string
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&out)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("dictionary lookup: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Versions lists the distinct versions loaded for meddra, whodrug or ig,
// newest first.
func (s *Store) Versions(ctx context.Context, kind Kind) ([]string, error) {
	tbl, ok := versionTables[kind]
	if !ok {
		return nil, fmt.Errorf("dictionary %q has no versions", kind)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT version FROM `+tbl+` ORDER BY version DESC`)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

var versionTables = map[Kind]string{
	KindMedDRA:  "meddra_terms",
	KindWHODrug: "whodrug_terms",
	KindIG:      "ig_labels",
}
