package terms_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/sdtm"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/table"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/terms"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

func catalog(t *testing.T) []*sdtm.Domain {
	t.Helper()
	ae := table.MustFromRecords([]string{"STUDYID", "USUBJID", "AESEQ", "AETERM", "AEDECOD", "AEPTCD", "AEOUT", "AESTDTC"},
		[]any{"S1", "P1", 1.0, "头痛", "Headache", 10019211.0, "痊愈", "2024-01-02"},
		[]any{"S1", "P2", 1.0, "头痛", "Headache", 10019211.0, "痊愈", "2024-01-03"},
		[]any{"S1", "P2", 2.0, "恶心", "Nausea", "10028813", nil, "2024-02-01"},
		[]any{"S1", "P3", 1.0, " ", nil, nil, "123", nil},
	)
	cm := table.MustFromRecords([]string{"STUDYID", "USUBJID", "CMSEQ", "CMTRT", "CMDOSE"},
		[]any{"S1", "P1", 1.0, "阿司匹林", 100.0},
	)
	suppae := table.MustFromRecords([]string{"STUDYID", "USUBJID", "RDOMAIN", "IDVAR", "IDVARVAL", "QNAM", "QVAL", "QLABEL"},
		[]any{"S1", "P1", "AE", "AESEQ", "1", "AEOTHSP", "其他说明", "Other Specify"},
	)

	c := sdtm.NewCatalog(zerolog.Nop())
	c.Load([]sdtm.Input{
		{Name: "AE", Table: ae, Label: "Adverse Events", ColumnLabels: map[string]string{"AETERM": "Reported Term", "AEOUT": " "}},
		{Name: "CM", Table: cm, Label: "Concomitant Medications"},
		{Name: "SUPPAE", Table: suppae},
	}, schema.IngestModeSDTM)
	return c.Domains()
}

var roles = terms.RoleConfig{
	MedDRA:  []terms.Role{{NameColumn: "AEDECOD", CodeColumn: "AEPTCD"}, {NameColumn: "AETERM"}},
	WHODrug: []terms.Role{{NameColumn: "CMTRT", CodeColumn: "CMCODE"}, {NameColumn: "AEDECOD", CodeColumn: "AEPTCD"}},
}

func TestExtractCoded(t *testing.T) {
	t.Parallel()

	got := terms.ExtractCoded(catalog(t), roles)
	assert.Equal(t, []terms.CodedTerm{
		{Dictionary: terms.MedDRA, Domain: "AE", Variable: "AEDECOD", Value: "Headache", Code: "10019211"},
		{Dictionary: terms.MedDRA, Domain: "AE", Variable: "AEDECOD", Value: "Nausea", Code: "10028813"},
		{Dictionary: terms.MedDRA, Domain: "AE", Variable: "AETERM", Value: "头痛"},
		{Dictionary: terms.MedDRA, Domain: "AE", Variable: "AETERM", Value: "恶心"},
		{Dictionary: terms.WHODrug, Domain: "CM", Variable: "CMTRT", Value: "阿司匹林"},
	}, got)
}

func TestUncoded(t *testing.T) {
	t.Parallel()

	got := terms.Uncoded(catalog(t), roles)
	assert.Equal(t, []terms.UncodedValue{
		{Domain: "AE", Variable: "AEOTHSP", Value: "其他说明"},
		{Domain: "AE", Variable: "AEOUT", Value: "痊愈"},
	}, got)
}

func TestLabels(t *testing.T) {
	t.Parallel()

	domains := catalog(t)
	assert.Equal(t, []terms.DatasetLabel{
		{Domain: "AE", Label: "Adverse Events"},
		{Domain: "CM", Label: "Concomitant Medications"},
		{Domain: "SUPPAE", Label: "SUPPAE"},
	}, terms.DatasetLabels(domains))

	assert.Equal(t, []terms.VariableLabel{
		{Domain: "AE", Variable: "AETERM", Label: "Reported Term"},
		{Domain: "AE", Variable: "AEOTHSP", Label: "Other Specify"},
	}, terms.VariableLabels(domains))
}

func TestBuildBundlesAll(t *testing.T) {
	t.Parallel()

	w := terms.Build(catalog(t), roles)
	assert.Len(t, w.Coded, 5)
	assert.Len(t, w.Uncoded, 2)
	assert.Len(t, w.DatasetLabels, 3)
	assert.Len(t, w.VariableLabels, 2)
}

func TestParseRoleConfig(t *testing.T) {
	t.Parallel()

	cfg, err := terms.ParseRoleConfig([]byte(`{
  "meddra_config": [{"name_column": " AEDECOD ", "code_column": "AEPTCD"}, {"name_column": ""}],
  "whodrug_config": [{"name_column": "CMTRT"}]
}`))
	require.NoError(t, err)
	assert.Equal(t, []terms.Role{{NameColumn: "AEDECOD", CodeColumn: "AEPTCD"}}, cfg.MedDRA)
	assert.Equal(t, []terms.Role{{NameColumn: "CMTRT"}}, cfg.WHODrug)

	_, err = terms.ParseRoleConfig([]byte("meddra_config: {"))
	assert.Error(t, err)
}

func TestStructural(t *testing.T) {
	t.Parallel()

	for _, col := range []string{"STUDYID", "aeseq", "AESTDTC", "AESTDY", "LBTESTCD", "AEPTCD", "QNAM", "AEGRPID"} {
		assert.True(t, terms.Structural(col), col)
	}
	for _, col := range []string{"AETERM", "AEOUT", "CMTRT", "CD", "DY"} {
		assert.False(t, terms.Structural(col), col)
	}
}
