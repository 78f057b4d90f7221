// Package sasio reads a directory of study datasets into tables for the
// catalog. Files are read concurrently through the worker pool; each format
// is a Reader registered by file extension.
package sasio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/sdtm"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/table"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/core"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/worker"
)

// Meta is the dataset metadata a reader recovers alongside the rows.
type Meta struct {
	// LabelHints holds candidate dataset labels keyed by their source field
	// (table_name, file_label, dataset_label, label, description, title).
	LabelHints   map[string]string
	ColumnLabels map[string]string
}

// Dataset is one file read from disk.
type Dataset struct {
	Stem  string
	Path  string
	Table *table.Table
	Meta  Meta
}

// Label resolves the dataset label from the metadata hints.
func (d Dataset) Label() string {
	return ResolveLabel(d.Stem, d.Meta.LabelHints)
}

// Input converts the dataset for Catalog.Load.
func (d Dataset) Input() sdtm.Input {
	return sdtm.Input{
		Name:         d.Stem,
		Path:         d.Path,
		Table:        d.Table,
		Label:        d.Label(),
		ColumnLabels: d.Meta.ColumnLabels,
	}
}

// Reader reads one dataset file.
type Reader interface {
	Read(ctx context.Context, path string) (Dataset, error)
}

// labelHintOrder is the preference order for dataset labels.
var labelHintOrder = []string{"table_name", "file_label", "dataset_label", "label", "description", "title"}

// ResolveLabel returns the first hint that is non-empty and differs from the
// stem ignoring case, otherwise the stem itself.
func ResolveLabel(stem string, hints map[string]string) string {
	for _, k := range labelHintOrder {
		v := strings.TrimSpace(hints[k])
		if v != "" && !strings.EqualFold(v, stem) {
			return v
		}
	}
	return stem
}

// Options configure ReadDir.
type Options struct {
	// Readers maps a lower-case extension including the dot to its reader.
	// Nil means DefaultReaders.
	Readers  map[string]Reader
	Workers  int
	Progress core.ProgressFunc
	Log      zerolog.Logger
}

// SASExt is the extension of SAS datasets. ReadDir reports them when no
// reader is registered for it.
const SASExt = ".sas7bdat"

// DefaultReaders handles .csv and .xlsx. A .sas7bdat reader can be added to
// the map by callers that have one.
func DefaultReaders() map[string]Reader {
	return map[string]Reader{
		".csv":  CSVReader{},
		".xlsx": XLSXReader{},
	}
}

// ReadDir reads every supported file directly under dir and returns the
// datasets ordered by stem. Files that fail to read are logged and skipped;
// the error return is reserved for an unreadable directory or cancellation.
func ReadDir(ctx context.Context, dir string, opts Options) ([]Dataset, error) {
	readers := opts.Readers
	if readers == nil {
		readers = DefaultReaders()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dataset directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if _, ok := readers[ext]; ok {
			paths = append(paths, filepath.Join(dir, e.Name()))
			continue
		}
		if ext == SASExt {
			opts.Log.Warn().Str("file", e.Name()).Msg("no reader registered for SAS datasets; export to CSV or XLSX or register one in Options.Readers")
		}
	}
	slices.Sort(paths)
	opts.Log.Info().Str("dir", dir).Int("files", len(paths)).Msg("reading datasets")

	read := func(ctx context.Context, path string) (Dataset, error) {
		return readers[strings.ToLower(filepath.Ext(path))].Read(ctx, path)
	}
	results, err := worker.ProcessAll(ctx, paths, read, worker.Options{
		Workers:  opts.Workers,
		Progress: progressByName(opts.Progress),
	})
	if err != nil {
		return nil, err
	}

	out := make([]Dataset, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			opts.Log.Warn().Err(r.Err).Str("path", r.Input).Msg("dataset skipped")
			continue
		}
		out = append(out, r.Output)
	}
	slices.SortFunc(out, func(a, b Dataset) int { return strings.Compare(a.Stem, b.Stem) })
	return out, nil
}

func progressByName(p core.ProgressFunc) core.ProgressFunc {
	if p == nil {
		return nil
	}
	return func(done, total int, path string) {
		p(done, total, "read "+filepath.Base(path))
	}
}

// stem is the dataset name a file maps to: its base name without extension,
// upper-cased.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
}
