// Package translate resolves worklist items to translations. A Chain consults
// a cache, the bundled dictionaries and finally an LLM; TranslateWorklist runs
// a whole worklist through the worker pool and produces stable output rows.
package translate

import (
	"context"
	"strings"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/terms"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

// Sources a Result can come from.
const (
	SourceCache      = "cache"
	SourceDictionary = "dictionary"
	SourceLibrary    = "library"
	SourceLLM        = "llm"
)

// Request is one text to translate. Code and Version narrow dictionary
// lookups; both may be empty.
type Request struct {
	Text       string           `json:"text"`
	Code       string           `json:"code,omitempty"`
	Direction  schema.Direction `json:"direction"`
	Dictionary terms.Dictionary `json:"dictionary,omitempty"`
	Version    string           `json:"version,omitempty"`
}

// Result is a translation outcome. Found is false when the translator has no
// answer; that is not an error.
type Result struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
	Found  bool   `json:"found"`
}

// Translator translates a single request.
type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// TranslatorFunc adapts a function to Translator.
type TranslatorFunc func(ctx context.Context, req Request) (Result, error)

func (f TranslatorFunc) Translate(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

func (r Request) normalized() Request {
	r.Text = strings.TrimSpace(r.Text)
	r.Code = strings.TrimSpace(r.Code)
	r.Direction = schema.NormalizeDirection(string(r.Direction))
	if r.Dictionary == "" {
		r.Dictionary = terms.Free
	}
	return r
}
