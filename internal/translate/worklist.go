package translate

import (
	"context"
	"strings"
	"time"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/terms"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/core"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/redact"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/worker"
)

// Worklist item kinds.
const (
	KindCoded         = "coded"
	KindUncoded       = "uncoded"
	KindDatasetLabel  = "dataset_label"
	KindVariableLabel = "variable_label"
)

// Row statuses.
const (
	StatusOK    = "ok"
	StatusMiss  = "miss"
	StatusError = "error"
)

// Item is one entry of a worklist flattened for translation.
type Item struct {
	Kind       string
	Domain     string
	Variable   string
	Dictionary terms.Dictionary
	Code       string
	Text       string
}

// ItemsFromWorklists flattens the four worklists in order: coded terms,
// uncoded values, dataset labels, variable labels. Labels look up SDTM IG
// metadata by dataset or variable name.
func ItemsFromWorklists(w terms.Worklists) []Item {
	out := make([]Item, 0, len(w.Coded)+len(w.Uncoded)+len(w.DatasetLabels)+len(w.VariableLabels))
	for _, c := range w.Coded {
		out = append(out, Item{Kind: KindCoded, Domain: c.Domain, Variable: c.Variable, Dictionary: c.Dictionary, Code: c.Code, Text: c.Value})
	}
	for _, u := range w.Uncoded {
		out = append(out, Item{Kind: KindUncoded, Domain: u.Domain, Variable: u.Variable, Dictionary: terms.Free, Text: u.Value})
	}
	for _, d := range w.DatasetLabels {
		out = append(out, Item{Kind: KindDatasetLabel, Domain: d.Domain, Dictionary: terms.IGDataset, Code: d.Domain, Text: d.Label})
	}
	for _, v := range w.VariableLabels {
		out = append(out, Item{Kind: KindVariableLabel, Domain: v.Domain, Variable: v.Variable, Dictionary: terms.IGVariable, Code: v.Variable, Text: v.Label})
	}
	return out
}

// Row is the stable output contract of a translation run.
type Row struct {
	Kind       string `json:"kind"`
	Domain     string `json:"domain"`
	Variable   string `json:"variable,omitempty"`
	Dictionary string `json:"dictionary"`
	Code       string `json:"code,omitempty"`
	SourceText string `json:"source_text"`
	TargetText string `json:"target_text"`
	Source     string `json:"source,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

type Options struct {
	Direction schema.Direction
	// Versions maps a dictionary to the normalized version used for lookups.
	Versions map[terms.Dictionary]string

	Workers        int
	MaxRetries     int
	RequestTimeout time.Duration
	RateLimitRPS   float64
	FailFast       bool
	Progress       core.ProgressFunc
}

func (o Options) request(it Item) Request {
	return Request{
		Text:       it.Text,
		Code:       it.Code,
		Direction:  o.Direction,
		Dictionary: it.Dictionary,
		Version:    o.Versions[it.Dictionary],
	}
}

// TranslateWorklist runs every item through tr and returns one row per item in
// input order. Translation errors are recorded per row with secrets redacted;
// only cancellation or a fail-fast stop fails the run.
func TranslateWorklist(ctx context.Context, items []Item, tr Translator, opts Options) ([]Row, error) {
	policy := worker.FailurePolicyPartialOutput
	if opts.FailFast {
		policy = worker.FailurePolicyFailFast
	}

	processor := func(reqCtx context.Context, it Item) (Result, error) {
		if strings.TrimSpace(it.Text) == "" {
			return Result{}, nil
		}
		return tr.Translate(reqCtx, opts.request(it))
	}

	var progress core.ProgressFunc
	if opts.Progress != nil {
		total := len(items)
		progress = func(done, _ int, _ string) {
			opts.Progress(done, total, "translated")
		}
	}

	out, err := worker.ProcessAll(ctx, items, processor, worker.Options{
		Workers:           opts.Workers,
		MaxRetries:        opts.MaxRetries,
		RequestTimeout:    opts.RequestTimeout,
		RateLimitRPS:      opts.RateLimitRPS,
		FailurePolicy:     policy,
		BackoffInitial:    200 * time.Millisecond,
		BackoffMax:        2 * time.Second,
		BackoffJitterFrac: 0.2,
		Progress:          progress,
	})
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(out))
	for _, item := range out {
		r := rowFor(item.Input)
		switch {
		case item.Err != nil:
			r.Status = StatusError
			r.Error = redact.Secrets(item.Err.Error())
		case item.Output.Found:
			r.Status = StatusOK
			r.TargetText = item.Output.Text
			r.Source = item.Output.Source
		default:
			r.Status = StatusMiss
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func rowFor(it Item) Row {
	return Row{
		Kind:       it.Kind,
		Domain:     it.Domain,
		Variable:   it.Variable,
		Dictionary: string(it.Dictionary),
		Code:       strings.TrimSpace(it.Code),
		SourceText: strings.TrimSpace(it.Text),
	}
}

// CountStatuses tallies rows by status.
func CountStatuses(rows []Row) map[string]int {
	out := map[string]int{}
	for _, r := range rows {
		out[strings.ToLower(strings.TrimSpace(r.Status))]++
	}
	return out
}
