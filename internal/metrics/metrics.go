// Package metrics holds the prometheus collectors of a running session. All
// collectors live on a private registry so tests and embedded uses never
// collide with the global one.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements sdtm.Observer and translate.Recorder.
type Recorder struct {
	reg *prometheus.Registry

	mergeRules     *prometheus.CounterVec
	translations   *prometheus.CounterVec
	datasetsLoaded prometheus.Counter
	viewRebuild    prometheus.Histogram
	httpRequests   *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		mergeRules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sdtmtrans_merge_rules_total",
			Help: "Variable-merge rules processed, by outcome.",
		}, []string{"outcome"}),
		translations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sdtmtrans_translations_total",
			Help: "Translations resolved, by source.",
		}, []string{"source"}),
		datasetsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sdtmtrans_datasets_loaded_total",
			Help: "Datasets loaded into the catalog.",
		}),
		viewRebuild: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sdtmtrans_view_rebuild_seconds",
			Help:    "Time spent rebuilding preview views.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sdtmtrans_http_requests_total",
			Help: "HTTP requests served, by route and status code.",
		}, []string{"method", "route", "code"}),
	}
	r.reg.MustRegister(
		r.mergeRules,
		r.translations,
		r.datasetsLoaded,
		r.viewRebuild,
		r.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry exposes the private registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Recorder) DatasetsLoaded(n int) { r.datasetsLoaded.Add(float64(n)) }

func (r *Recorder) ViewsRebuilt(elapsed time.Duration) { r.viewRebuild.Observe(elapsed.Seconds()) }

func (r *Recorder) RuleApplied(outcome string) { r.mergeRules.WithLabelValues(outcome).Inc() }

func (r *Recorder) TranslationResolved(source string) { r.translations.WithLabelValues(source).Inc() }

// HTTPRequest counts one served request. route is the matched pattern, not
// the raw path, to keep label cardinality bounded.
func (r *Recorder) HTTPRequest(method, route string, code int) {
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
