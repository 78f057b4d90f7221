// Package gemini is the LLM fallback of the translation chain.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/terms"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/translate"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/core"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

type Translator struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Translator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Translator{client: client, model: strings.TrimSpace(cfg.Model)}, nil
}

type responseSchema struct {
	Translation string `json:"translation"`
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"translation": {Type: genai.TypeString},
	},
	Required: []string{"translation"},
}

func (t *Translator) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return translate.Result{}, errors.New("empty text")
	}

	temperature := float32(0.1)
	resp, err := t.client.Models.GenerateContent(
		ctx,
		t.model,
		genai.Text(buildPrompt(req)),
		&genai.GenerateContentConfig{
			Temperature:      &temperature,
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   outputSchema,
		},
	)
	if err != nil {
		return translate.Result{}, classifyErr(err)
	}

	var parsed responseSchema
	if err := json.Unmarshal([]byte(resp.Text()), &parsed); err != nil {
		return translate.Result{}, fmt.Errorf("gemini: parse structured json: %w", err)
	}
	out := strings.TrimSpace(parsed.Translation)
	if out == "" {
		return translate.Result{}, nil
	}
	return translate.Result{Text: out, Source: translate.SourceLLM, Found: true}, nil
}

func buildPrompt(req translate.Request) string {
	from, to := "Chinese", "English"
	if req.Direction.SourceLang() == "en" {
		from, to = "English", "Chinese"
	}

	var hint string
	switch req.Dictionary {
	case terms.MedDRA:
		hint = "The text is an adverse event or medical history term that should follow MedDRA terminology."
	case terms.WHODrug:
		hint = "The text is a medication name that should follow WHODrug naming."
	case terms.IGDataset, terms.IGVariable:
		hint = "The text is an SDTM dataset or variable label; keep it short, as a label."
	default:
		hint = "The text is a value from a clinical trial dataset."
	}

	return strings.TrimSpace(`
You are a professional medical translator for clinical trial data (CDISC SDTM).
Translate the text below from ` + from + ` to ` + to + `.
` + hint + `

Return ONLY a single JSON object with one key:
- translation (string)

Rules:
- Use standard medical terminology; do not explain.
- Keep codes, numbers and units unchanged.
- If the text cannot be translated, set translation to an empty string.

Text: ` + strings.TrimSpace(req.Text) + `
`)
}

func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return core.Transient(err)
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return core.Transient(err)
	}
	return err
}
