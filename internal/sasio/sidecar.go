package sasio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/table"
)

// sidecar is the optional <stem>.meta.yaml next to a text dataset. SAS files
// carry this metadata in their header; CSV and XLSX exports do not.
type sidecar struct {
	TableName    string    `yaml:"table_name"`
	FileLabel    string    `yaml:"file_label"`
	DatasetLabel string    `yaml:"dataset_label"`
	Label        string    `yaml:"label"`
	Description  string    `yaml:"description"`
	Title        string    `yaml:"title"`
	ColumnLabels yaml.Node `yaml:"column_labels"`
	// NumericColumns are parsed as float64; all other cells stay strings.
	NumericColumns []string `yaml:"numeric_columns"`
}

func sidecarPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".meta.yaml"
}

// loadSidecar returns a zero sidecar when none exists.
func loadSidecar(path string) (sidecar, error) {
	b, err := os.ReadFile(sidecarPath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return sidecar{}, nil
	}
	if err != nil {
		return sidecar{}, fmt.Errorf("read metadata: %w", err)
	}
	var sc sidecar
	if err := yaml.Unmarshal(b, &sc); err != nil {
		return sidecar{}, fmt.Errorf("parse metadata %s: %w", filepath.Base(sidecarPath(path)), err)
	}
	return sc, nil
}

// meta resolves the sidecar against the file header. column_labels may be a
// mapping or a list parallel to the header.
func (sc sidecar) meta(header []string) (Meta, error) {
	m := Meta{LabelHints: map[string]string{}, ColumnLabels: map[string]string{}}
	for k, v := range map[string]string{
		"table_name":    sc.TableName,
		"file_label":    sc.FileLabel,
		"dataset_label": sc.DatasetLabel,
		"label":         sc.Label,
		"description":   sc.Description,
		"title":         sc.Title,
	} {
		if v = strings.TrimSpace(v); v != "" {
			m.LabelHints[k] = v
		}
	}

	switch sc.ColumnLabels.Kind {
	case 0:
	case yaml.MappingNode:
		var labels map[string]string
		if err := sc.ColumnLabels.Decode(&labels); err != nil {
			return Meta{}, fmt.Errorf("column_labels: %w", err)
		}
		for col, l := range labels {
			if l = strings.TrimSpace(l); l != "" {
				m.ColumnLabels[strings.TrimSpace(col)] = l
			}
		}
	case yaml.SequenceNode:
		var labels []string
		if err := sc.ColumnLabels.Decode(&labels); err != nil {
			return Meta{}, fmt.Errorf("column_labels: %w", err)
		}
		for i, l := range labels {
			if i >= len(header) {
				break
			}
			if l = strings.TrimSpace(l); l != "" {
				m.ColumnLabels[header[i]] = l
			}
		}
	default:
		return Meta{}, fmt.Errorf("column_labels: want mapping or list")
	}
	return m, nil
}

// buildTable turns string rows into a table. Empty cells are null; numeric
// columns hold float64 and unparseable numeric cells are null.
func buildTable(header []string, rows [][]string, numeric []string) (*table.Table, error) {
	isNum := make(map[string]bool, len(numeric))
	for _, c := range numeric {
		isNum[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	cols := make([][]any, len(header))
	for c := range cols {
		cols[c] = make([]any, len(rows))
	}
	for r, row := range rows {
		for c := range header {
			var s string
			if c < len(row) {
				s = row[c]
			}
			cols[c][r] = cell(s, isNum[strings.ToUpper(header[c])])
		}
	}
	return table.FromColumns(header, cols)
}

func cell(s string, numeric bool) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if !numeric {
		return s
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return f
}
