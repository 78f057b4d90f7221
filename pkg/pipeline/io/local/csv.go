// Package local reads and writes pipeline files on the local filesystem.
package local

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Records is a CSV file split into its header and data rows. Every row has
// exactly len(Header) fields.
type Records struct {
	Header []string
	Rows   [][]string
}

// Index returns the position of a header column, matched case-insensitively
// after trimming, or -1.
func (r Records) Index(name string) int {
	for i, h := range r.Header {
		if strings.EqualFold(h, strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// ReadRecordsCSV reads a header row and all data rows. A UTF-8 BOM on the first
// header cell is dropped, header names are trimmed, short rows are padded with
// empty fields and rows longer than the header are rejected.
func ReadRecordsCSV(r io.Reader) (Records, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Records{}, fmt.Errorf("read header: empty file")
	}
	if err != nil {
		return Records{}, fmt.Errorf("read header: %w", err)
	}
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.TrimSpace(h)
		if h == "" {
			return Records{}, fmt.Errorf("header column %d is empty", i+1)
		}
		key := strings.ToUpper(h)
		if _, dup := seen[key]; dup {
			return Records{}, fmt.Errorf("duplicate header column %q", h)
		}
		seen[key] = struct{}{}
		header[i] = h
	}

	out := Records{Header: header}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Records{}, fmt.Errorf("read row %d: %w", line, err)
		}
		if len(rec) > len(header) {
			return Records{}, fmt.Errorf("row %d has %d columns, header has %d", line, len(rec), len(header))
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		out.Rows = append(out.Rows, rec)
	}
	return out, nil
}

// WriteRecordsCSV writes header and rows and flushes.
func WriteRecordsCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
