package translate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

// RowFields is the output contract of a translation run, in column order.
var RowFields = []schema.Field{
	{Name: "kind", Type: "string"},
	{Name: "domain", Type: "string"},
	{Name: "variable", Type: "string", Nullable: true},
	{Name: "dictionary", Type: "string"},
	{Name: "code", Type: "string", Nullable: true},
	{Name: "source_text", Type: "string"},
	{Name: "target_text", Type: "string", Nullable: true},
	{Name: "source", Type: "string", Nullable: true},
	{Name: "status", Type: "string"},
	{Name: "error", Type: "string", Nullable: true},
}

// Header returns the stable CSV header for Row.
func Header() []string {
	out := make([]string, len(RowFields))
	for i, f := range RowFields {
		out[i] = f.Name
	}
	return out
}

func (r Row) values() []string {
	return []string{
		r.Kind,
		r.Domain,
		r.Variable,
		r.Dictionary,
		r.Code,
		r.SourceText,
		r.TargetText,
		r.Source,
		r.Status,
		r.Error,
	}
}

// WriteCSV writes rows with the Header() ordering.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads rows written by WriteCSV. Extra columns are ignored; every
// Header() column must exist.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, name := range Header() {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		get := func(col string) string {
			i := index[col]
			if i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		rows = append(rows, Row{
			Kind:       get("kind"),
			Domain:     get("domain"),
			Variable:   get("variable"),
			Dictionary: get("dictionary"),
			Code:       get("code"),
			SourceText: get("source_text"),
			TargetText: get("target_text"),
			Source:     get("source"),
			Status:     get("status"),
			Error:      get("error"),
		})
	}
}
