package sdtm

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/table"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

// Flags are the session switches that change merge and preview behavior.
type Flags struct {
	Direction         schema.Direction `json:"translation_direction"`
	HideSuppInPreview bool             `json:"hide_supp_in_preview"`
	SuppMerged        bool             `json:"supp_merged"`
	MergeExecuted     bool             `json:"merge_executed"`
}

// Input is one dataset handed to Load by a reader.
type Input struct {
	Name         string
	Path         string
	Table        *table.Table
	Label        string
	ColumnLabels map[string]string
}

// Observer receives catalog lifecycle events. Implementations must be cheap;
// they are called with the catalog lock held.
type Observer interface {
	DatasetsLoaded(n int)
	ViewsRebuilt(elapsed time.Duration)
	RuleApplied(outcome string)
}

type nopObserver struct{}

func (nopObserver) DatasetsLoaded(int)         {}
func (nopObserver) ViewsRebuilt(time.Duration) {}
func (nopObserver) RuleApplied(string)         {}

// Option configures a Catalog.
type Option func(*Catalog)

// WithObserver installs an Observer.
func WithObserver(o Observer) Option {
	return func(c *Catalog) {
		if o != nil {
			c.obs = o
		}
	}
}

// WithDirection sets the initial translation direction.
func WithDirection(d schema.Direction) Option {
	return func(c *Catalog) { c.flags.Direction = d }
}

// Catalog is the in-memory collection of domains for one session.
//
// A single mutex serializes every operation, so a merge batch and the view
// rebuild that follows it are never interleaved with a preview read.
type Catalog struct {
	mu      sync.Mutex
	log     zerolog.Logger
	obs     Observer
	mode    schema.IngestMode
	flags   Flags
	domains map[string]*Domain
}

// NewCatalog returns an empty catalog.
func NewCatalog(log zerolog.Logger, opts ...Option) *Catalog {
	c := &Catalog{
		log:     log,
		obs:     nopObserver{},
		mode:    schema.IngestModeRaw,
		flags:   Flags{Direction: schema.DirectionZhToEn},
		domains: map[string]*Domain{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load replaces every domain with the given inputs. In SDTM mode SUPP pivots
// are built, SUPP qualifiers are committed into their parents' data, and
// views are built. Re-loading resets supp_merged and merge_executed.
func (c *Catalog) Load(inputs []Input, mode schema.IngestMode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.domains = make(map[string]*Domain, len(inputs))
	c.mode = mode
	c.flags.SuppMerged = false
	c.flags.MergeExecuted = false

	for _, in := range inputs {
		if in.Table == nil {
			continue
		}
		name := domainKey(in.Name)
		if name == "" {
			continue
		}
		if _, dup := c.domains[name]; dup {
			c.log.Warn().Str("dataset", name).Str("path", in.Path).Msg("duplicate dataset name; keeping first")
			continue
		}
		label := strings.TrimSpace(in.Label)
		if label == "" {
			label = name
		}
		labels := maps.Clone(in.ColumnLabels)
		if labels == nil {
			labels = map[string]string{}
		}
		c.domains[name] = &Domain{
			Name:         name,
			Path:         in.Path,
			Raw:          in.Table,
			Data:         in.Table,
			Label:        label,
			ColumnLabels: labels,
		}
	}
	c.obs.DatasetsLoaded(len(c.domains))
	c.log.Info().Int("datasets", len(c.domains)).Str("mode", string(mode)).Msg("catalog loaded")

	if mode == schema.IngestModeSDTM {
		c.autoMergeLocked()
		c.rebuildViewsLocked()
	}
}

// AutoMergeSupp commits every SUPP's qualifiers into its parents' data. It runs
// once per ingest; later calls are no-ops until the next Load.
func (c *Catalog) AutoMergeSupp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoMergeLocked()
}

func (c *Catalog) autoMergeLocked() {
	if c.flags.SuppMerged {
		return
	}
	c.commitSuppLocked()
	c.flags.SuppMerged = true
}

// commitSuppLocked rebuilds every parent's data from its raw plus all SUPP
// qualifiers.
func (c *Catalog) commitSuppLocked() {
	for _, d := range c.sortedLocked(false) {
		res := c.mergeAllLocked(d, d.Raw)
		d.Data = res.table
		d.Extra.SuppOriginMap = res.origins
		c.absorbLabelsLocked(d, res)
	}
}

// RebuildViews recomputes every SUPP pivot and every parent view from current
// raw tables. It never touches raw or data.
func (c *Catalog) RebuildViews() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebuildViewsLocked()
}

func (c *Catalog) rebuildViewsLocked() {
	start := time.Now()
	for _, d := range c.sortedLocked(true) {
		c.pivotLocked(d)
	}
	for _, d := range c.sortedLocked(false) {
		res := c.mergeAllLocked(d, d.Raw)
		d.View = res.table
		d.Extra.PreviewOriginMap = res.origins
		c.absorbLabelsLocked(d, res)
	}
	elapsed := time.Since(start)
	c.obs.ViewsRebuilt(elapsed)
	c.log.Debug().Dur("elapsed", elapsed).Msg("views rebuilt")
}

func (c *Catalog) pivotLocked(d *Domain) {
	d.View = nil
	p, err := BuildSuppPivot(d.Data)
	if err != nil {
		c.log.Debug().Err(err).Str("dataset", d.Name).Msg("supp pivot unavailable")
		d.PivotForDisplay = nil
		d.UsePivotPreview = false
		return
	}
	d.PivotForDisplay = p
	d.UsePivotPreview = true
}

// mergedResult accumulates the merge of every SUPP into one parent.
type mergedResult struct {
	table   *table.Table
	origins OriginMap
	labels  map[string]string
	qlabels map[string]string
}

func (c *Catalog) mergeAllLocked(parent *Domain, base *table.Table) mergedResult {
	res := mergedResult{
		table:   base,
		origins: OriginMap{},
		labels:  map[string]string{},
		qlabels: map[string]string{},
	}
	for _, s := range c.sortedLocked(true) {
		m := mergeSupp(c.log, parent.Name, res.table, s.Name, s.Data)
		res.table = m.table
		maps.Copy(res.origins, m.origins)
		maps.Copy(res.labels, m.labels)
		for q, l := range m.qlabels {
			if _, ok := res.qlabels[q]; !ok {
				res.qlabels[q] = l
			}
		}
	}
	return res
}

// absorbLabelsLocked fills missing column labels from QLABELs and records the
// QNAM labels on the parent.
func (c *Catalog) absorbLabelsLocked(d *Domain, res mergedResult) {
	for col, l := range res.labels {
		if _, ok := d.ColumnLabels[col]; !ok {
			d.ColumnLabels[col] = l
		}
	}
	if len(res.qlabels) == 0 {
		return
	}
	if d.Extra.SuppVariableLabels == nil {
		d.Extra.SuppVariableLabels = map[string]string{}
	}
	for q, l := range res.qlabels {
		if _, ok := d.Extra.SuppVariableLabels[q]; !ok {
			d.Extra.SuppVariableLabels[q] = l
		}
	}
}

// sortedLocked returns the SUPP (supp=true) or parent domains ordered by name.
func (c *Catalog) sortedLocked(supp bool) []*Domain {
	out := make([]*Domain, 0, len(c.domains))
	for _, d := range c.domains {
		if d.IsSupp() == supp {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b *Domain) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Names returns every dataset name in lexical order.
func (c *Catalog) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.domains))
}

// Domain returns a snapshot of one domain.
func (c *Catalog) Domain(name string) (*Domain, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.domains[domainKey(name)]
	if !ok {
		return nil, false
	}
	return d.snapshot(), true
}

// Domains returns snapshots of every domain ordered by name.
func (c *Catalog) Domains() []*Domain {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Domain, 0, len(c.domains))
	for _, n := range slices.Sorted(maps.Keys(c.domains)) {
		out = append(out, c.domains[n].snapshot())
	}
	return out
}

// Mode returns the ingest mode of the current load.
func (c *Catalog) Mode() schema.IngestMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Flags returns the current session flags.
func (c *Catalog) Flags() Flags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags
}

// SetDirection changes the translation direction used by later merges.
func (c *Catalog) SetDirection(d schema.Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags.Direction = d
}

// SetHideSuppInPreview switches previews between data and merged views.
func (c *Catalog) SetHideSuppInPreview(hide bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags.HideSuppInPreview = hide
}

func (c *Catalog) lookupLocked(name string) (*Domain, error) {
	d, ok := c.domains[domainKey(name)]
	if !ok {
		return nil, fmt.Errorf("dataset %q: %w", name, ErrNotFound)
	}
	return d, nil
}
