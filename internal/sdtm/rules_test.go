package sdtm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/sdtm"
)

func TestParseRulesAcceptsBothShapes(t *testing.T) {
	t.Parallel()

	doc := []byte(`
- dataset: AE
  target: AECOMB
  sources: [AETERM, AEDECOD]
- target: {dataset: SUPPAE, column: NEWQ}
  sources:
    - {dataset: SUPPAE, column: QNAM_A}
    - {column: QNAM_B}
    - {dataset: AE, column: AETERM}
`)
	rules, err := sdtm.ParseRules(doc)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, sdtm.MergeRule{
		Target:  sdtm.ColumnRef{Dataset: "AE", Column: "AECOMB"},
		Sources: []sdtm.ColumnRef{{Dataset: "AE", Column: "AETERM"}, {Dataset: "AE", Column: "AEDECOD"}},
	}, rules[0])
	assert.Equal(t, sdtm.MergeRule{
		Target: sdtm.ColumnRef{Dataset: "SUPPAE", Column: "NEWQ"},
		Sources: []sdtm.ColumnRef{
			{Dataset: "SUPPAE", Column: "QNAM_A"},
			{Dataset: "SUPPAE", Column: "QNAM_B"},
			{Dataset: "AE", Column: "AETERM"},
		},
	}, rules[1])
}

func TestParseRulesJSONWrapper(t *testing.T) {
	t.Parallel()

	rules, err := sdtm.ParseRules([]byte(`{"configs":[{"dataset":"CM","target":"CMTRT","sources":["CMTRT","CMDOSE"]}]}`))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "CM.CMTRT <- [CM.CMTRT, CM.CMDOSE]", rules[0].String())

	one, err := sdtm.ParseRules([]byte(`{"target":{"dataset":"CM","column":"X"},"sources":[]}`))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.True(t, one[0].Valid())

	empty, err := sdtm.ParseRules([]byte("  "))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = sdtm.ParseRules([]byte(`"just a string"`))
	assert.Error(t, err)
}

func TestMarshalRulesIsCanonical(t *testing.T) {
	t.Parallel()

	rules, err := sdtm.ParseRules([]byte(`[{"dataset":"AE","target":"AECOMB","sources":["AETERM"]}]`))
	require.NoError(t, err)

	out, err := sdtm.MarshalRules(rules)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"target":{"dataset":"AE","column":"AECOMB"},"sources":[{"dataset":"AE","column":"AETERM"}]}]`, string(out))

	again, err := sdtm.ParseRules(out)
	require.NoError(t, err)
	assert.Equal(t, rules, again)

	none, err := sdtm.MarshalRules(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(none))
}
