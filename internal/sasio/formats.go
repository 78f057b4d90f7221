package sasio

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/io/local"
)

// CSVReader reads comma-separated exports with a header row.
type CSVReader struct{}

func (CSVReader) Read(ctx context.Context, path string) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return Dataset{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	recs, err := local.ReadRecordsCSV(f)
	if err != nil {
		return Dataset{}, fmt.Errorf("read %s: %w", path, err)
	}
	return assemble(path, recs.Header, recs.Rows)
}

// XLSXReader reads the first sheet of a workbook; the first row is the header.
type XLSXReader struct{}

func (XLSXReader) Read(ctx context.Context, path string) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return Dataset{}, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return Dataset{}, fmt.Errorf("read %s: workbook has no sheets", path)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Dataset{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return Dataset{}, fmt.Errorf("read %s: sheet %q is empty", path, sheet)
	}

	header := make([]string, 0, len(rows[0]))
	for _, h := range rows[0] {
		header = append(header, strings.TrimSpace(h))
	}
	for len(header) > 0 && header[len(header)-1] == "" {
		header = header[:len(header)-1]
	}
	for i, h := range header {
		if h == "" {
			return Dataset{}, fmt.Errorf("read %s: header column %d is empty", path, i+1)
		}
	}

	body := rows[1:]
	for len(body) > 0 && blankRow(body[len(body)-1]) {
		body = body[:len(body)-1]
	}
	return assemble(path, header, body)
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func assemble(path string, header []string, rows [][]string) (Dataset, error) {
	sc, err := loadSidecar(path)
	if err != nil {
		return Dataset{}, err
	}
	meta, err := sc.meta(header)
	if err != nil {
		return Dataset{}, fmt.Errorf("%s: %w", path, err)
	}
	t, err := buildTable(header, rows, sc.NumericColumns)
	if err != nil {
		return Dataset{}, fmt.Errorf("%s: %w", path, err)
	}
	return Dataset{Stem: stem(path), Path: path, Table: t, Meta: meta}, nil
}
