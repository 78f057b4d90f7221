package app_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/app"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/configstore"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/dictionary"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/export"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/metrics"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/sdtm"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/terms"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/translate"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

func studyDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"ae.csv":       "STUDYID,USUBJID,AESEQ,AETERM\nS1,P1,1,头痛\nS1,P2,1,恶心\n",
		"ae.meta.yaml": "dataset_label: Adverse Events\nnumeric_columns: [AESEQ]\n",
		"suppae.csv":   "STUDYID,USUBJID,RDOMAIN,IDVAR,IDVARVAL,QNAM,QVAL,QLABEL\nS1,P1,AE,AESEQ,1,AEOTHSP,其他,Other Specify\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

type fixture struct {
	session *app.Session
	dict    *dictionary.Store
	calls   *atomic.Int32
	metrics *metrics.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	dict, err := dictionary.Open(ctx, filepath.Join(t.TempDir(), "dict.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dict.Close() })
	cfgs, err := configstore.New(ctx, dict.DB())
	require.NoError(t, err)

	calls := &atomic.Int32{}
	llm := translate.TranslatorFunc(func(_ context.Context, req translate.Request) (translate.Result, error) {
		calls.Add(1)
		return translate.Result{Text: "EN:" + req.Text, Found: true}, nil
	})
	rec := metrics.New()

	s := app.NewSession(app.Deps{
		Log:         zerolog.Nop(),
		Configs:     cfgs,
		Dictionary:  dict,
		LLM:         llm,
		Observer:    rec,
		Translation: translate.Options{Workers: 2},
	})
	return fixture{session: s, dict: dict, calls: calls, metrics: rec}
}

func TestIngestMergesSuppInSDTMMode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dir := studyDir(t)

	var seen []string
	info, err := f.session.Ingest(context.Background(), app.IngestRequest{
		Path: dir,
		Mode: schema.IngestModeSDTM,
		Progress: func(_, _ int, msg string) {
			seen = append(seen, msg)
		},
	})
	require.NoError(t, err)
	require.Len(t, info, 1, "SUPP datasets are hidden by default in SDTM mode")
	assert.Equal(t, "AE", info[0].Name)
	assert.Equal(t, "Adverse Events", info[0].Label)
	assert.Contains(t, info[0].ColumnNames, "AEOTHSP")
	assert.ElementsMatch(t, []string{"read ae.csv", "read suppae.csv"}, seen)

	assert.Equal(t, dir, f.session.Path())
	assert.True(t, f.session.Catalog().Flags().SuppMerged)
	assert.True(t, f.session.Catalog().Flags().HideSuppInPreview)
	assert.NotEmpty(t, f.session.ID)

	p, err := f.session.Preview("ae", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalRows)
	assert.Len(t, p.Rows, 1)

	_, err = f.session.Preview("LB", 0, 10)
	assert.ErrorIs(t, err, sdtm.ErrNotFound)
}

func TestIngestHideSuppDefaultsFollowMode(t *testing.T) {
	t.Parallel()

	show := false
	tests := []struct {
		name     string
		mode     schema.IngestMode
		hide     *bool
		wantHide bool
		wantInfo int
	}{
		{name: "sdtm default", mode: schema.IngestModeSDTM, wantHide: true, wantInfo: 1},
		{name: "sdtm explicit show", mode: schema.IngestModeSDTM, hide: &show, wantHide: false, wantInfo: 2},
		{name: "raw default", mode: schema.IngestModeRaw, wantHide: false, wantInfo: 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			info, err := f.session.Ingest(context.Background(), app.IngestRequest{
				Path:              studyDir(t),
				Mode:              tc.mode,
				HideSuppInPreview: tc.hide,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.wantHide, f.session.Catalog().Flags().HideSuppInPreview)
			assert.Len(t, info, tc.wantInfo)
		})
	}
}

func TestIngestRequiresPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.session.Ingest(context.Background(), app.IngestRequest{Path: " "})
	assert.Error(t, err)
}

func TestApplyMergeSavesMapping(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	dir := studyDir(t)
	_, err := f.session.Ingest(ctx, app.IngestRequest{Path: dir, Mode: schema.IngestModeSDTM})
	require.NoError(t, err)

	rules, err := sdtm.ParseRules([]byte(`[{dataset: AE, target: AETERM, sources: [AEOTHSP]}]`))
	require.NoError(t, err)
	rep, err := f.session.ApplyMerge(ctx, "batch-1", rules)
	require.NoError(t, err)
	assert.Len(t, append(rep.Applied, rep.Skipped...), 1)
	assert.True(t, f.session.Catalog().Flags().MergeExecuted)

	saved, err := f.session.Mapping(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, "batch-1", saved.Name)
	assert.Equal(t, schema.IngestModeSDTM, saved.Mode)
	assert.Equal(t, rules, saved.Rules)
}

func TestSaveLibraryTakesEffectAndIsRestored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	dir := studyDir(t)
	_, err := f.session.Ingest(ctx, app.IngestRequest{Path: dir, Mode: schema.IngestModeSDTM})
	require.NoError(t, err)

	roles := terms.RoleConfig{MedDRA: []terms.Role{{NameColumn: "AETERM"}}}
	require.NoError(t, f.session.SaveLibrary(ctx, configstore.LibraryConfig{
		Path:          dir,
		MedDRAVersion: "27.1.english",
		Roles:         roles,
	}))
	assert.Equal(t, roles, f.session.Roles())

	got, err := f.session.Library(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, "27.1", got.MedDRAVersion)

	wl := f.session.Worklists(nil)
	require.Len(t, wl.Coded, 2)
	assert.Equal(t, "AETERM", wl.Coded[0].Variable)

	// A fresh ingest of the same directory picks the saved roles back up.
	f.session.SetRoles(terms.RoleConfig{})
	_, err = f.session.Ingest(ctx, app.IngestRequest{Path: dir, Mode: schema.IngestModeSDTM})
	require.NoError(t, err)
	assert.Len(t, f.session.Roles().MedDRA, 1)
}

func TestTranslateUsesDictionaryBeforeLLM(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	n, err := f.dict.Import(ctx, dictionary.KindMedDRA, "27.1",
		strings.NewReader("code,name_en,name_cn\n10019211,Headache,头痛\n"))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	res, err := f.session.Translate(ctx, translate.Request{Text: "头痛", Dictionary: terms.MedDRA})
	require.NoError(t, err)
	assert.Equal(t, translate.Result{Text: "Headache", Source: translate.SourceDictionary, Found: true}, res)
	assert.Zero(t, f.calls.Load())

	res, err = f.session.Translate(ctx, translate.Request{Text: "恶心", Dictionary: terms.MedDRA})
	require.NoError(t, err)
	assert.Equal(t, "EN:恶心", res.Text)
	assert.Equal(t, translate.SourceLLM, res.Source)
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestTranslateWorklistsReusesPriorRows(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	_, err := f.session.Ingest(ctx, app.IngestRequest{Path: studyDir(t), Mode: schema.IngestModeSDTM})
	require.NoError(t, err)

	roles := terms.RoleConfig{MedDRA: []terms.Role{{NameColumn: "AETERM"}}}
	wl := f.session.Worklists(&roles)

	rows, err := f.session.TranslateWorklists(ctx, wl, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, r := range rows {
		assert.Equal(t, translate.StatusOK, r.Status, "%+v", r)
	}
	first := f.calls.Load()
	assert.Positive(t, first)

	again, err := f.session.TranslateWorklists(ctx, wl, rows, nil)
	require.NoError(t, err)
	assert.Equal(t, rows, again)
	assert.Equal(t, first, f.calls.Load())
}

func TestRunLocalWritesCSVAndResumes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	dir := studyDir(t)
	out := filepath.Join(t.TempDir(), "out", "translations.csv")
	rolesPath := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(rolesPath, []byte("meddra_config:\n  - name_column: AETERM\n"), 0o644))

	run := app.LocalRun{Dir: dir, Mode: schema.IngestModeSDTM, RolesPath: rolesPath, OutputPath: out}
	require.NoError(t, app.RunLocal(ctx, f.session, run))
	calls := f.calls.Load()

	rows, err := app.ReadPriorRows(out)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, translate.KindCoded, rows[0].Kind)
	assert.Equal(t, "EN:"+rows[0].SourceText, rows[0].TargetText)

	require.NoError(t, app.RunLocal(ctx, f.session, run))
	assert.Equal(t, calls, f.calls.Load())
}

func TestRunLocalXLSX(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	out := filepath.Join(t.TempDir(), "translations.xlsx")
	require.NoError(t, app.RunLocal(context.Background(), f.session, app.LocalRun{
		Dir: studyDir(t), Mode: schema.IngestModeRaw, OutputPath: out,
	}))

	x, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer func() { _ = x.Close() }()
	rows, err := x.GetRows(export.SheetTranslations)
	require.NoError(t, err)
	assert.Equal(t, translate.Header(), rows[0])
	assert.Greater(t, len(rows), 1)
}

func TestReadPriorRowsMissingFile(t *testing.T) {
	t.Parallel()

	rows, err := app.ReadPriorRows(filepath.Join(t.TempDir(), "none.csv"))
	require.NoError(t, err)
	assert.Nil(t, rows)
}
