// Package export writes worklists and translation results as XLSX workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/terms"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/translate"
)

// Sheet names of the worklist workbook, in order.
const (
	SheetCoded          = "Coded"
	SheetUncoded        = "Uncoded"
	SheetDatasetLabels  = "DatasetLabels"
	SheetVariableLabels = "VariableLabels"
	SheetTranslations   = "Translations"
)

type sheet struct {
	name   string
	header []string
	rows   [][]any
}

// WriteWorkbook writes one sheet per worklist. Empty worklists still get a
// sheet with its header.
func WriteWorkbook(w io.Writer, wl terms.Worklists) error {
	coded := sheet{name: SheetCoded, header: []string{"Dictionary", "Domain", "Variable", "Value", "Code"}}
	for _, c := range wl.Coded {
		coded.rows = append(coded.rows, []any{string(c.Dictionary), c.Domain, c.Variable, c.Value, c.Code})
	}
	uncoded := sheet{name: SheetUncoded, header: []string{"Domain", "Variable", "Value"}}
	for _, u := range wl.Uncoded {
		uncoded.rows = append(uncoded.rows, []any{u.Domain, u.Variable, u.Value})
	}
	datasets := sheet{name: SheetDatasetLabels, header: []string{"Domain", "Label"}}
	for _, d := range wl.DatasetLabels {
		datasets.rows = append(datasets.rows, []any{d.Domain, d.Label})
	}
	variables := sheet{name: SheetVariableLabels, header: []string{"Domain", "Variable", "Label"}}
	for _, v := range wl.VariableLabels {
		variables.rows = append(variables.rows, []any{v.Domain, v.Variable, v.Label})
	}
	return write(w, coded, uncoded, datasets, variables)
}

// WriteTranslations writes translation rows on a single sheet using the
// translate.Header columns.
func WriteTranslations(w io.Writer, rows []translate.Row) error {
	s := sheet{name: SheetTranslations, header: translate.Header()}
	for _, r := range rows {
		s.rows = append(s.rows, []any{
			r.Kind, r.Domain, r.Variable, r.Dictionary, r.Code,
			r.SourceText, r.TargetText, r.Source, r.Status, r.Error,
		})
	}
	return write(w, s)
}

func write(w io.Writer, sheets ...sheet) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	// The default sheet becomes the first one so no empty sheet is left over.
	if err := f.SetSheetName(f.GetSheetName(0), sheets[0].name); err != nil {
		return fmt.Errorf("name sheet %s: %w", sheets[0].name, err)
	}
	for i, s := range sheets {
		if i > 0 {
			if _, err := f.NewSheet(s.name); err != nil {
				return fmt.Errorf("create sheet %s: %w", s.name, err)
			}
		}
		if err := writeSheet(f, s, headerStyle); err != nil {
			return fmt.Errorf("sheet %s: %w", s.name, err)
		}
	}
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, s sheet, headerStyle int) error {
	widths := make([]float64, len(s.header))
	for col, h := range s.header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(s.name, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(s.name, cell, cell, headerStyle); err != nil {
			return err
		}
		widths[col] = width(h)
	}

	for r, row := range s.rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(s.name, cell, &row); err != nil {
			return err
		}
		for col, v := range row {
			if str, ok := v.(string); ok && col < len(widths) {
				widths[col] = max(widths[col], width(str))
			}
		}
	}

	for i, wdt := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(s.name, col, col, wdt); err != nil {
			return err
		}
	}

	return f.SetPanes(s.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// width estimates a column width; wide runes count double.
func width(s string) float64 {
	n := 0
	for _, r := range s {
		if r > 0x2E80 {
			n += 2
		} else {
			n++
		}
	}
	return float64(min(max(n+2, 10), 80))
}
