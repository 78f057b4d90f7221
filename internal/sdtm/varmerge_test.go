package sdtm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/sdtm"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/table"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

func ref(ds, col string) sdtm.ColumnRef { return sdtm.ColumnRef{Dataset: ds, Column: col} }

func TestSameTableMergeHonorsDirection(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		direction schema.Direction
		term      string
		decod     string
		want      string
	}{
		{name: "zh_to_en joins without space", direction: schema.DirectionZhToEn, term: "胸痛", decod: "胸部疼痛", want: "胸痛胸部疼痛"},
		{name: "en_to_zh joins with space", direction: schema.DirectionEnToZh, term: "chest", decod: "pain", want: "chest pain"},
		{name: "blank and nan parts skipped", direction: schema.DirectionEnToZh, term: "nan", decod: "pain", want: "pain"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := table.MustFromRecords([]string{"STUDYID", "USUBJID", "AETERM", "AEDECOD"},
				[]any{"S1", "P1", tc.term, tc.decod},
			)
			c := load(t, schema.IngestModeRaw, []sdtm.Option{sdtm.WithDirection(tc.direction)},
				sdtm.Input{Name: "AE", Table: ae, ColumnLabels: map[string]string{"AETERM": "Reported Term", "AEDECOD": "Dictionary-Derived Term"}},
			)

			rep := c.ApplyMerge([]sdtm.MergeRule{{
				Target:  ref("AE", "AECOMB"),
				Sources: []sdtm.ColumnRef{ref("AE", "AETERM"), ref("AE", "AEDECOD")},
			}})
			require.Len(t, rep.Applied, 1)

			d := domain(t, c, "AE")
			assert.Equal(t, tc.want, d.Data.Value("AECOMB", 0))
			assert.Equal(t, tc.want, d.Raw.Value("AECOMB", 0))
			assert.False(t, d.Data.Has("AEDECOD"))
			assert.False(t, d.Data.Has("AETERM"))
			assert.Equal(t, "Reported Term + Dictionary-Derived Term", d.ColumnLabels["AECOMB"])
			assert.True(t, c.Flags().MergeExecuted)
		})
	}
}

func TestMergeIntoExistingTargetKeepsItFirst(t *testing.T) {
	t.Parallel()

	cm := table.MustFromRecords([]string{"STUDYID", "USUBJID", "CMTRT", "CMTRT2"},
		[]any{"S1", "P1", "aspirin", "100mg"},
		[]any{"S1", "P2", nil, "200mg"},
	)
	c := load(t, schema.IngestModeRaw, []sdtm.Option{sdtm.WithDirection(schema.DirectionEnToZh)},
		sdtm.Input{Name: "CM", Table: cm},
	)
	c.ApplyMerge([]sdtm.MergeRule{{
		Target:  ref("CM", "CMTRT"),
		Sources: []sdtm.ColumnRef{ref("CM", "CMTRT"), ref("CM", "CMTRT2")},
	}})

	d := domain(t, c, "CM")
	// The target is both the first part and a source; it is kept, CMTRT2 is dropped.
	assert.Equal(t, "aspirin aspirin 100mg", d.Data.Value("CMTRT", 0))
	assert.Equal(t, "200mg", d.Data.Value("CMTRT", 1))
	assert.Equal(t, []string{"STUDYID", "USUBJID", "CMTRT"}, d.Data.Columns())
	assert.Equal(t, "merged: CMTRT", d.ColumnLabels["CMTRT"])
}

func TestCrossTableSourceAlignsOnSharedKeys(t *testing.T) {
	t.Parallel()

	ae := table.MustFromRecords([]string{"STUDYID", "USUBJID", "AESEQ", "AETERM"},
		[]any{"S1", "P1", 1.0, "rash"},
		[]any{"S1", "P2", 1.0, "fever"},
		[]any{"S1", "P3", 1.0, "cough"},
	)
	dm := table.MustFromRecords([]string{"STUDYID", "USUBJID", "SEX"},
		[]any{"S1", "P2", "F"},
		[]any{"S1", "P1", "M"},
		[]any{"S1", "P1", "ignored duplicate"},
	)
	c := load(t, schema.IngestModeRaw, []sdtm.Option{sdtm.WithDirection(schema.DirectionEnToZh)},
		sdtm.Input{Name: "AE", Table: ae},
		sdtm.Input{Name: "DM", Table: dm},
	)
	c.ApplyMerge([]sdtm.MergeRule{{
		Target:  ref("AE", "AETERM"),
		Sources: []sdtm.ColumnRef{ref("DM", "SEX")},
	}})

	d := domain(t, c, "AE")
	require.Equal(t, 3, d.Data.Len())
	assert.Equal(t, "rash M", d.Data.Value("AETERM", 0))
	assert.Equal(t, "fever F", d.Data.Value("AETERM", 1))
	assert.Equal(t, "cough", d.Data.Value("AETERM", 2))
	// Cross-table sources are never dropped.
	assert.True(t, domain(t, c, "DM").Data.Has("SEX"))
}

func TestSuppSourceIsConsumed(t *testing.T) {
	t.Parallel()

	ae := table.MustFromRecords([]string{"STUDYID", "USUBJID", "AESEQ", "AETERM"},
		[]any{"S1", "P1", 1.0, "headache"},
		[]any{"S1", "P1", 2.0, "nausea"},
	)
	suppae := table.MustFromRecords(suppCols,
		[]any{"S1", "P1", "AE", "AESEQ", "2", "AETRTEM", "mild", "Treatment Emergent"},
		[]any{"S1", "P1", "AE", "AESEQ", "1", "AESOSP", "other", "Other"},
	)
	c := load(t, schema.IngestModeSDTM, []sdtm.Option{sdtm.WithDirection(schema.DirectionEnToZh)},
		sdtm.Input{Name: "AE", Table: ae},
		sdtm.Input{Name: "SUPPAE", Table: suppae},
	)

	rep := c.ApplyMerge([]sdtm.MergeRule{{
		Target:  ref("AE", "AETERM"),
		Sources: []sdtm.ColumnRef{ref("SUPPAE", "AETRTEM")},
	}})
	assert.Equal(t, map[string][]string{"SUPPAE": {"AETRTEM"}}, rep.ConsumedQNAMs)

	d := domain(t, c, "AE")
	assert.Equal(t, "headache", d.Data.Value("AETERM", 0))
	assert.Equal(t, "nausea mild", d.Data.Value("AETERM", 1))
	assert.False(t, d.View.Has("AETRTEM"))
	assert.False(t, d.Data.Has("AETRTEM"))
	assert.Equal(t, "other", d.View.Value("AESOSP", 0))

	supp := domain(t, c, "SUPPAE")
	assert.Equal(t, 1, supp.Raw.Len())
	assert.Equal(t, 1, supp.Data.Len())
	assert.Equal(t, "AESOSP", supp.Raw.Value("QNAM", 0))
	assert.False(t, supp.PivotForDisplay.Has("AETRTEM"))
}

func TestSuppQNAMTarget(t *testing.T) {
	t.Parallel()

	ae := table.MustFromRecords([]string{"STUDYID", "USUBJID", "AESEQ", "AETERM"},
		[]any{"S1", "P1", 1.0, "headache"},
	)
	suppae := table.MustFromRecords(suppCols,
		[]any{"S1", "P1", "AE", "AESEQ", "1", "NEWQ", "x", "New"},
		[]any{"S1", "P1", "AE", "AESEQ", "1", "QNAM_A", "a", "A"},
		[]any{"S1", "P1", "AE", "AESEQ", "1", "QNAM_B", "b", "B"},
		[]any{"S1", "P1", "AE", "AESEQ", "1", "KEEP", "k", "Keep"},
	)
	c := load(t, schema.IngestModeSDTM, []sdtm.Option{sdtm.WithDirection(schema.DirectionEnToZh)},
		sdtm.Input{Name: "AE", Table: ae},
		sdtm.Input{Name: "SUPPAE", Table: suppae},
	)
	require.True(t, domain(t, c, "AE").View.Has("QNAM_A"))

	rep := c.ApplyMerge([]sdtm.MergeRule{{
		Target:  ref("SUPPAE", "NEWQ"),
		Sources: []sdtm.ColumnRef{ref("SUPPAE", "QNAM_A"), ref("SUPPAE", "QNAM_B"), ref("AE", "AETERM")},
	}})
	require.Len(t, rep.Applied, 1)
	assert.Equal(t, []string{"QNAM_A", "QNAM_B"}, rep.ConsumedQNAMs["SUPPAE"])

	supp := domain(t, c, "SUPPAE")
	require.Equal(t, 2, supp.Raw.Len())
	for i := 0; i < supp.Raw.Len(); i++ {
		assert.NotContains(t, []any{"QNAM_A", "QNAM_B"}, supp.Raw.Value("QNAM", i))
	}
	assert.Equal(t, "x a b headache", supp.Raw.Value("QVAL", 0))

	d := domain(t, c, "AE")
	assert.Equal(t, 1, d.View.Len())
	assert.Equal(t, "x a b headache", d.View.Value("NEWQ", 0))
	assert.Equal(t, "k", d.View.Value("KEEP", 0))
	assert.False(t, d.View.Has("QNAM_A"))
	assert.False(t, d.View.Has("QNAM_B"))
	assert.False(t, d.Data.Has("QNAM_A"))
}

func TestSuppTargetWithoutRowsIsSkipped(t *testing.T) {
	t.Parallel()

	suppae := table.MustFromRecords(suppCols,
		[]any{"S1", "P1", "AE", "AESEQ", "1", "QNAM_A", "a", "A"},
	)
	c := load(t, schema.IngestModeRaw, nil, sdtm.Input{Name: "SUPPAE", Table: suppae})
	rep := c.ApplyMerge([]sdtm.MergeRule{{
		Target:  ref("SUPPAE", "MISSING"),
		Sources: []sdtm.ColumnRef{ref("SUPPAE", "QNAM_A")},
	}})

	assert.Empty(t, rep.Applied)
	assert.Len(t, rep.Skipped, 1)
	assert.Equal(t, 1, domain(t, c, "SUPPAE").Raw.Len())
}

func TestInvalidRulesAreSkipped(t *testing.T) {
	t.Parallel()

	ae := table.MustFromRecords([]string{"STUDYID", "USUBJID", "AETERM"}, []any{"S1", "P1", "x"})
	c := load(t, schema.IngestModeRaw, nil, sdtm.Input{Name: "AE", Table: ae})

	rep := c.ApplyMerge([]sdtm.MergeRule{
		{Target: ref("", "AETERM")},
		{Target: ref("AE", "")},
		{Target: ref("ZZ", "ZZTERM"), Sources: []sdtm.ColumnRef{ref("ZZ", "X")}},
	})
	assert.Empty(t, rep.Applied)
	assert.Len(t, rep.Skipped, 3)

	d := domain(t, c, "AE")
	assert.Equal(t, []string{"STUDYID", "USUBJID", "AETERM"}, d.Data.Columns())
	assert.True(t, c.Flags().MergeExecuted)
}

func TestDisjointRulesCommute(t *testing.T) {
	t.Parallel()

	rows := [][]any{
		{"S1", "P1", "a", "b", "c", "d"},
		{"S1", "P2", "e", nil, "g", "h"},
	}
	names := []string{"STUDYID", "USUBJID", "A1", "A2", "B1", "B2"}
	r1 := sdtm.MergeRule{Target: ref("AE", "AX"), Sources: []sdtm.ColumnRef{ref("AE", "A1"), ref("AE", "A2")}}
	r2 := sdtm.MergeRule{Target: ref("AE", "BX"), Sources: []sdtm.ColumnRef{ref("AE", "B1"), ref("AE", "B2")}}

	run := func(rules ...sdtm.MergeRule) *table.Table {
		c := load(t, schema.IngestModeRaw, nil, sdtm.Input{Name: "AE", Table: table.MustFromRecords(names, rows...)})
		c.ApplyMerge(rules)
		return domain(t, c, "AE").Data
	}
	a, b := run(r1, r2), run(r2, r1)
	for _, col := range []string{"AX", "BX"} {
		assert.Equal(t, a.Col(col), b.Col(col), col)
	}
	assert.ElementsMatch(t, a.Columns(), b.Columns())
}
