package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/export"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/sdtm"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/terms"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/translate"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/core"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

// LocalRun describes one batch translation of a dataset directory.
type LocalRun struct {
	Dir       string
	Mode      schema.IngestMode
	Direction schema.Direction
	// RulesPath and RolesPath are optional YAML/JSON files.
	RulesPath string
	RolesPath string
	// OutputPath is written as XLSX when it ends in .xlsx, CSV otherwise.
	// Rows of an existing CSV output with status ok are reused.
	OutputPath string
	Progress   core.ProgressFunc
}

// RunLocal ingests a directory, applies an optional merge batch, extracts the
// worklists and writes their translations to a local file.
func RunLocal(ctx context.Context, s *Session, run LocalRun) error {
	if strings.TrimSpace(run.OutputPath) == "" {
		return errors.New("output path is required")
	}
	if _, err := s.Ingest(ctx, IngestRequest{Path: run.Dir, Mode: run.Mode, Direction: run.Direction, Progress: run.Progress}); err != nil {
		return err
	}

	if run.RulesPath != "" {
		rules, err := ReadRules(run.RulesPath)
		if err != nil {
			return err
		}
		if _, err := s.ApplyMerge(ctx, filepath.Base(run.RulesPath), rules); err != nil {
			return err
		}
	}

	var roles *terms.RoleConfig
	if run.RolesPath != "" {
		cfg, err := ReadRoles(run.RolesPath)
		if err != nil {
			return err
		}
		roles = &cfg
	}

	prior, err := ReadPriorRows(run.OutputPath)
	if err != nil {
		return err
	}
	rows, err := s.TranslateWorklists(ctx, s.Worklists(roles), prior, run.Progress)
	if err != nil {
		return err
	}
	return WriteRowsFile(run.OutputPath, rows)
}

func ReadRules(path string) ([]sdtm.MergeRule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return sdtm.ParseRules(b)
}

func ReadRoles(path string) (terms.RoleConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return terms.RoleConfig{}, err
	}
	return terms.ParseRoleConfig(b)
}

// ReadPriorRows loads the rows of a previous CSV output. A missing file or
// an XLSX output yields no rows.
func ReadPriorRows(path string) ([]translate.Row, error) {
	if isXLSX(path) {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	rows, err := translate.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse prior output %s: %w", path, err)
	}
	return rows, nil
}

func WriteRowsFile(path string, rows []translate.Row) error {
	return writeFile(path, func(w io.Writer) error {
		if isXLSX(path) {
			return export.WriteTranslations(w, rows)
		}
		return translate.WriteCSV(w, rows)
	})
}

// WriteWorklistsFile writes the worklist workbook.
func WriteWorklistsFile(path string, wl terms.Worklists) error {
	return writeFile(path, func(w io.Writer) error {
		return export.WriteWorkbook(w, wl)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	if err := write(f); err != nil {
		return err
	}
	return f.Close()
}

func isXLSX(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}
