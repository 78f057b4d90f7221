package dictionary

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/io/local"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

// Kind selects the table an Import loads.
type Kind string

const (
	KindMedDRA  Kind = "meddra"
	KindWHODrug Kind = "whodrug"
	KindIG      Kind = "ig"
	KindLibrary Kind = "library"
)

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindMedDRA, KindWHODrug, KindIG, KindLibrary:
		return k, nil
	}
	return "", fmt.Errorf("unknown dictionary kind %q (want meddra, whodrug, ig or library)", s)
}

type importSpec struct {
	required []string
	optional []string
	stmt     string
}

var importSpecs = map[Kind]importSpec{
	KindMedDRA: {
		required: []string{"code"},
		optional: []string{"name_en", "name_cn"},
		stmt: `INSERT INTO meddra_terms (version, code, name_en, name_cn) VALUES (?, ?, ?, ?)
			ON CONFLICT (version, code) DO UPDATE SET name_en = excluded.name_en, name_cn = excluded.name_cn`,
	},
	KindWHODrug: {
		required: []string{"code"},
		optional: []string{"name_en", "name_cn"},
		stmt: `INSERT INTO whodrug_terms (version, code, name_en, name_cn) VALUES (?, ?, ?, ?)
			ON CONFLICT (version, code) DO UPDATE SET name_en = excluded.name_en, name_cn = excluded.name_cn`,
	},
	KindIG: {
		required: []string{"kind", "name"},
		optional: []string{"label_en", "label_cn"},
		stmt: `INSERT INTO ig_labels (version, kind, name, label_en, label_cn) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (version, kind, name) DO UPDATE SET label_en = excluded.label_en, label_cn = excluded.label_cn`,
	},
	KindLibrary: {
		required: []string{"source_text", "target_text"},
		optional: []string{"direction", "confidence", "verified"},
		stmt: `INSERT INTO translation_library (source_text, target_text, direction, confidence, verified) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (source_text, direction) DO UPDATE SET
				target_text = excluded.target_text, confidence = excluded.confidence, verified = excluded.verified`,
	},
}

// Import loads a CSV with a header row into the table for kind, upserting on
// the table key, and returns the number of rows written. Terms and labels are
// stored under the normalized version; rows missing a required value are
// skipped. The whole file is one transaction.
//
// Columns per kind:
//
//	meddra, whodrug: code, name_en, name_cn
//	ig:              kind (dataset|variable), name, label_en, label_cn
//	library:         source_text, target_text, direction, confidence, verified
func (s *Store) Import(ctx context.Context, kind Kind, version string, r io.Reader) (n int, retErr error) {
	spec, ok := importSpecs[kind]
	if !ok {
		return 0, fmt.Errorf("unknown dictionary kind %q", kind)
	}
	recs, err := local.ReadRecordsCSV(r)
	if err != nil {
		return 0, fmt.Errorf("read %s csv: %w", kind, err)
	}
	idx := map[string]int{}
	for _, c := range spec.required {
		if idx[c] = recs.Index(c); idx[c] < 0 {
			return 0, fmt.Errorf("%s csv: missing required column %q", kind, c)
		}
	}
	for _, c := range spec.optional {
		idx[c] = recs.Index(c)
	}
	get := func(row []string, col string) string {
		if i := idx[col]; i >= 0 {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	version = NormalizeVersion(string(kind), version)
	if kind != KindLibrary && version == "" {
		return 0, fmt.Errorf("%s import needs a version", kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, spec.stmt)
	if err != nil {
		return 0, fmt.Errorf("prepare %s import: %w", kind, err)
	}
	defer func() { _ = stmt.Close() }()

rows:
	for _, row := range recs.Rows {
		for _, c := range spec.required {
			if get(row, c) == "" {
				continue rows
			}
		}
		var args []any
		switch kind {
		case KindMedDRA, KindWHODrug:
			args = []any{version, get(row, "code"), get(row, "name_en"), get(row, "name_cn")}
		case KindIG:
			args = []any{version, strings.ToLower(get(row, "kind")), strings.ToUpper(get(row, "name")), get(row, "label_en"), get(row, "label_cn")}
		case KindLibrary:
			conf, _ := strconv.ParseFloat(get(row, "confidence"), 64)
			verified, _ := strconv.ParseBool(get(row, "verified"))
			args = []any{get(row, "source_text"), get(row, "target_text"), string(schema.NormalizeDirection(get(row, "direction"))), conf, verified}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("import %s row %d: %w", kind, n+1, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s import: %w", kind, err)
	}
	return n, nil
}
