package export_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/export"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/terms"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/translate"
)

func TestWriteWorkbook(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, export.WriteWorkbook(&buf, terms.Worklists{
		Coded:         []terms.CodedTerm{{Dictionary: terms.MedDRA, Domain: "AE", Variable: "AEDECOD", Value: "头痛", Code: "10019211"}},
		Uncoded:       []terms.UncodedValue{{Domain: "AE", Variable: "AEOUT", Value: "痊愈"}},
		DatasetLabels: []terms.DatasetLabel{{Domain: "AE", Label: "Adverse Events"}},
	}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{export.SheetCoded, export.SheetUncoded, export.SheetDatasetLabels, export.SheetVariableLabels}, f.GetSheetList())
	assert.Equal(t, export.SheetCoded, f.GetSheetName(f.GetActiveSheetIndex()))

	rows, err := f.GetRows(export.SheetCoded)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Dictionary", "Domain", "Variable", "Value", "Code"},
		{"meddra", "AE", "AEDECOD", "头痛", "10019211"},
	}, rows)

	rows, err = f.GetRows(export.SheetVariableLabels)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Domain", "Variable", "Label"}}, rows)

	panes, err := f.GetPanes(export.SheetUncoded)
	require.NoError(t, err)
	assert.True(t, panes.Freeze)
	assert.Equal(t, 1, panes.YSplit)

	styleID, err := f.GetCellStyle(export.SheetCoded, "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)
}

func TestWriteTranslations(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, export.WriteTranslations(&buf, []translate.Row{
		{Kind: "uncoded", Domain: "AE", Variable: "AEOUT", Dictionary: "free", SourceText: "痊愈", TargetText: "Recovered", Source: "llm", Status: "ok"},
	}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(export.SheetTranslations)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, translate.Header(), rows[0])
	assert.Equal(t, []string{"uncoded", "AE", "AEOUT", "free", "", "痊愈", "Recovered", "llm", "ok"}, rows[1])
}
