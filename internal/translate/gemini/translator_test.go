package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/terms"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/translate"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/core"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

type tempNetErr struct{}

func (tempNetErr) Error() string   { return "temp net err" }
func (tempNetErr) Timeout() bool   { return false }
func (tempNetErr) Temporary() bool { return true }

func TestClassifyErr(t *testing.T) {
	tests := []struct {
		name          string
		in            error
		wantTransient bool
	}{
		{name: "api_429", in: genai.APIError{Code: 429}, wantTransient: true},
		{name: "api_503", in: genai.APIError{Code: 503}, wantTransient: true},
		{name: "api_400", in: genai.APIError{Code: 400}, wantTransient: false},
		{name: "net_temporary", in: tempNetErr{}, wantTransient: true},
		{name: "plain", in: errors.New("bad request"), wantTransient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyErr(tt.in)
			if core.IsTransient(got) != tt.wantTransient {
				t.Fatalf("transient=%v want=%v (err=%T %v)", core.IsTransient(got), tt.wantTransient, got, got)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt(translate.Request{Text: " 头痛 ", Direction: schema.DirectionZhToEn, Dictionary: terms.MedDRA})
	for _, want := range []string{"from Chinese to English", "MedDRA", "Text: 头痛"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}

	p = buildPrompt(translate.Request{Text: "Headache", Direction: schema.DirectionEnToZh})
	if !strings.Contains(p, "from English to Chinese") {
		t.Fatalf("prompt has wrong direction:\n%s", p)
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(context.Background(), Config{Model: "m"}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
	if _, err := New(context.Background(), Config{APIKey: "k"}); err == nil {
		t.Fatalf("expected error for missing model")
	}
}
