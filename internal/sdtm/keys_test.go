package sdtm_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/sdtm"
)

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want any
	}{
		{in: nil, want: nil},
		{in: math.NaN(), want: nil},
		{in: 1.0, want: "1"},
		{in: float32(3), want: "3"},
		{in: 1.5, want: "1.5"},
		{in: int64(42), want: "42"},
		{in: 7, want: "7"},
		{in: " 1 ", want: "1"},
		{in: "1.0", want: "1"},
		{in: "001", want: "1"},
		{in: "1e2", want: "100"},
		{in: "2.50", want: "2.50"},
		{in: "ABC-001", want: "ABC-001"},
		{in: "  P1  ", want: "P1"},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		got := sdtm.NormalizeKey(tc.in)
		assert.Equal(t, tc.want, got, "NormalizeKey(%#v)", tc.in)
		assert.Equal(t, got, sdtm.NormalizeKey(got), "NormalizeKey must be idempotent for %#v", tc.in)
	}
}

func TestNormalizeCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "10019211", sdtm.NormalizeCode(10019211.0))
	assert.Equal(t, "10019211", sdtm.NormalizeCode(" 10019211 "))
	assert.Equal(t, "1.5", sdtm.NormalizeCode(1.5))
	assert.Nil(t, sdtm.NormalizeCode(nil))
}
