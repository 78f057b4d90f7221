package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/metrics"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/sdtm"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/translate"
)

var (
	_ sdtm.Observer      = (*metrics.Recorder)(nil)
	_ translate.Recorder = (*metrics.Recorder)(nil)
)

func TestRecorderCounters(t *testing.T) {
	t.Parallel()

	r := metrics.New()
	r.DatasetsLoaded(3)
	r.RuleApplied(sdtm.OutcomeApplied)
	r.RuleApplied(sdtm.OutcomeApplied)
	r.RuleApplied(sdtm.OutcomeSkipped)
	r.TranslationResolved(translate.SourceCache)
	r.ViewsRebuilt(5 * time.Millisecond)
	r.HTTPRequest(http.MethodGet, "/healthz", 200)

	expected := `
# HELP sdtmtrans_merge_rules_total Variable-merge rules processed, by outcome.
# TYPE sdtmtrans_merge_rules_total counter
sdtmtrans_merge_rules_total{outcome="applied"} 2
sdtmtrans_merge_rules_total{outcome="skipped"} 1
# HELP sdtmtrans_datasets_loaded_total Datasets loaded into the catalog.
# TYPE sdtmtrans_datasets_loaded_total counter
sdtmtrans_datasets_loaded_total 3
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected),
		"sdtmtrans_merge_rules_total", "sdtmtrans_datasets_loaded_total"))

	n, err := testutil.GatherAndCount(r.Registry(), "sdtmtrans_view_rebuild_seconds", "sdtmtrans_translations_total", "sdtmtrans_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	r := metrics.New()
	r.TranslationResolved(translate.SourceLLM)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sdtmtrans_translations_total{source="llm"} 1`)
}
