package table_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/table"
)

func sample() *table.Table {
	return table.MustFromRecords([]string{"USUBJID", "AESEQ", "AETERM"},
		[]any{"P1", 1.0, "headache"},
		[]any{"P2", 2.0, "nausea"},
		[]any{"P3", 3.0},
	)
}

func TestFromColumnsValidates(t *testing.T) {
	t.Parallel()

	_, err := table.FromColumns([]string{"A"}, nil)
	assert.Error(t, err)

	_, err = table.FromColumns([]string{"A", "A"}, [][]any{{1}, {2}})
	assert.ErrorContains(t, err, "duplicate")

	_, err = table.FromColumns([]string{"A", "B"}, [][]any{{1, 2}, {3}})
	assert.ErrorContains(t, err, `"B" has 1 rows, want 2`)
}

func TestFromRecordsPadsShortRecords(t *testing.T) {
	t.Parallel()

	tb := sample()
	assert.Equal(t, 3, tb.Len())
	assert.Nil(t, tb.Value("AETERM", 2))

	_, err := table.FromRecords([]string{"A"}, [][]any{{1, 2}})
	assert.Error(t, err)
}

func TestSliceBounds(t *testing.T) {
	t.Parallel()

	tb := sample()
	tests := []struct {
		name          string
		offset, limit int
		want          []any
	}{
		{name: "page", offset: 1, limit: 1, want: []any{"P2"}},
		{name: "limit past end", offset: 1, limit: 10, want: []any{"P2", "P3"}},
		{name: "zero limit is all", offset: 0, limit: 0, want: []any{"P1", "P2", "P3"}},
		{name: "negative offset", offset: -5, limit: 2, want: []any{"P1", "P2"}},
		{name: "offset past end", offset: 9, limit: 2, want: []any{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := tb.Slice(tc.offset, tc.limit)
			assert.Equal(t, len(tc.want), got.Len())
			assert.Equal(t, tc.want, got.Col("USUBJID"))
			assert.Equal(t, tb.Columns(), got.Columns())
		})
	}
}

func TestWithColumn(t *testing.T) {
	t.Parallel()

	tb := sample()

	_, err := tb.WithColumn("AEOUT", []any{"x"})
	assert.Error(t, err, "length must match the row count")

	replaced, err := tb.WithColumn("AESEQ", []any{10.0, 20.0, 30.0})
	require.NoError(t, err)
	assert.Equal(t, []string{"USUBJID", "AESEQ", "AETERM"}, replaced.Columns())
	assert.Equal(t, 20.0, replaced.Value("AESEQ", 1))
	assert.Equal(t, 2.0, tb.Value("AESEQ", 1), "receiver is unchanged")

	added, err := tb.WithColumn("AEOUT", []any{"R", nil, "N"})
	require.NoError(t, err)
	assert.Equal(t, []string{"USUBJID", "AESEQ", "AETERM", "AEOUT"}, added.Columns())
	assert.False(t, tb.Has("AEOUT"))

	empty, err := table.New().WithColumn("A", []any{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, empty.Len())
}

func TestWithout(t *testing.T) {
	t.Parallel()

	tb := sample()
	out := tb.Without("AESEQ", "MISSING")
	assert.Equal(t, []string{"USUBJID", "AETERM"}, out.Columns())
	assert.Equal(t, 3, out.Len())
	assert.True(t, tb.Has("AESEQ"))
}

func TestFilterAndTake(t *testing.T) {
	t.Parallel()

	tb := sample()
	odd := tb.Filter(func(i int) bool { return i%2 == 0 })
	assert.Equal(t, []any{"P1", "P3"}, odd.Col("USUBJID"))

	rev := tb.Take([]int{2, 0})
	assert.Equal(t, []any{"P3", "P1"}, rev.Col("USUBJID"))
	assert.Equal(t, []any{nil, "headache"}, rev.Col("AETERM"))
}

func TestEqualTreatsNullsAlike(t *testing.T) {
	t.Parallel()

	a := table.MustFromRecords([]string{"A", "B"}, []any{math.NaN(), "x"}, []any{1.0, nil})
	b := table.MustFromRecords([]string{"A", "B"}, []any{nil, "x"}, []any{1.0, math.NaN()})
	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(a.Clone()))

	c := table.MustFromRecords([]string{"B", "A"}, []any{"x", math.NaN()}, []any{nil, 1.0})
	assert.False(t, a.Equal(c), "column order matters")

	d := table.MustFromRecords([]string{"A", "B"}, []any{math.NaN(), "y"}, []any{1.0, nil})
	assert.False(t, a.Equal(d))
}

func TestCellHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, table.IsNull(nil))
	assert.True(t, table.IsNull(math.NaN()))
	assert.False(t, table.IsNull(""))

	assert.Equal(t, "1", table.String(1.0))
	assert.Equal(t, "2.5", table.String(2.5))
	assert.Equal(t, "", table.String(math.NaN()))
	assert.Nil(t, table.StringOrNull(math.NaN()))
	assert.Equal(t, "7", table.StringOrNull(int64(7)))

	assert.Nil(t, table.Finite(math.NaN()))
	assert.Nil(t, table.Finite(math.Inf(-1)))
	assert.Nil(t, table.Finite(float32(math.Inf(1))))
	assert.Equal(t, 3.5, table.Finite(3.5))
	assert.Equal(t, "x", table.Finite("x"))

	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, table.SameValue(ts, ts.In(time.FixedZone("X", 3600))))
	assert.False(t, table.SameValue("1", 1.0))
}
