package schema_test

import (
	"testing"

	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

func TestNormalizeMode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want schema.IngestMode
	}{
		{name: "raw default", in: "", want: schema.IngestModeRaw},
		{name: "raw explicit", in: "raw", want: schema.IngestModeRaw},
		{name: "sdtm", in: "SDTM", want: schema.IngestModeSDTM},
		{name: "sdtm lower padded", in: " sdtm ", want: schema.IngestModeSDTM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := schema.NormalizeMode(tt.in); got != tt.want {
				t.Fatalf("NormalizeMode(%q)=%q want=%q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeDirection(t *testing.T) {
	tests := []struct {
		in   string
		want schema.Direction
	}{
		{in: "", want: schema.DirectionZhToEn},
		{in: "zh_to_en", want: schema.DirectionZhToEn},
		{in: "en_to_zh", want: schema.DirectionEnToZh},
		{in: "EN-TO-ZH", want: schema.DirectionEnToZh},
		{in: "en2zh", want: schema.DirectionEnToZh},
		{in: "bogus", want: schema.DirectionZhToEn},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := schema.NormalizeDirection(tt.in); got != tt.want {
				t.Fatalf("NormalizeDirection(%q)=%q want=%q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDirectionSeparator(t *testing.T) {
	if got := schema.DirectionEnToZh.Separator(); got != " " {
		t.Fatalf("en_to_zh separator=%q", got)
	}
	if got := schema.DirectionZhToEn.Separator(); got != "" {
		t.Fatalf("zh_to_en separator=%q", got)
	}
}
