package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetforge/internal/assets"
	"git.home.luguber.info/inful/assetforge/internal/bundle"
	"git.home.luguber.info/inful/assetforge/internal/config"
	"git.home.luguber.info/inful/assetforge/internal/defines"
	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
	"git.home.luguber.info/inful/assetforge/internal/preferences"
	"git.home.luguber.info/inful/assetforge/internal/stylesheet"
	"git.home.luguber.info/inful/assetforge/internal/testutil/testutils"
	"git.home.luguber.info/inful/assetforge/internal/versioning"
)

type fakeSource struct {
	commits int
	head    string
	err     error
}

func (f fakeSource) CommitsSince(context.Context, string) (int, error) { return f.commits, f.err }
func (f fakeSource) HeadCommit(context.Context) (string, error)        { return f.head, f.err }

// recordingBundler emits a minimal UMD wrapper for library entries and remembers requests.
type recordingBundler struct {
	mu       sync.Mutex
	requests map[string]bundle.Request
	fail     map[string]error
}

func newRecordingBundler() *recordingBundler {
	return &recordingBundler{requests: map[string]bundle.Request{}, fail: map[string]error{}}
}

func (r *recordingBundler) Bundle(_ context.Context, req bundle.Request) (*bundle.Result, error) {
	r.mu.Lock()
	r.requests[req.Entry.Name] = req
	err := r.fail[req.Entry.Name]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	body := "/* " + req.Entry.Name + " */\n"
	if req.Entry.Kind == defines.KindUMD {
		body = bundle.UMDHeader(req.Entry.AMDName) + body + bundle.UMDFooter
	}
	return &bundle.Result{Code: []byte(req.License + body)}, nil
}

func (r *recordingBundler) request(name string) (bundle.Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[name]
	return req, ok
}

func (r *recordingBundler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func staticPrefs(t Table) preferences.LoaderFunc {
	return func(_ context.Context, modulePath string) (preferences.Table, error) {
		if _, err := os.Stat(modulePath); err != nil {
			return nil, err
		}
		return preferences.Table(t), nil
	}
}

// Table keeps the test tables short.
type Table = map[string]any

func newProject(t *testing.T, files map[string]string) (string, *config.Config) {
	t.Helper()
	root := t.TempDir()
	tree := map[string]string{
		"pdfjs.config":                 `{"baseVersion": "abc", "versionPrefix": "4.0."}`,
		"l10n/en-US/viewer.properties": "hello=Hello\n",
		"l10n/fr/viewer.properties":    "hello=Bonjour\n",
		"l10n/xXx/viewer.properties":   "hello=?\n",
	}
	for k, v := range files {
		tree[k] = v
	}
	testutils.WriteTree(t, root, tree)

	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Assets = assets.Manifest{}
	return root, cfg
}

func newTestSequencer(cfg *config.Config, b bundle.Bundler, opts ...Option) *Sequencer {
	base := []Option{
		WithBundler(b),
		WithLoader(staticPrefs(Table{"enableScripting": true})),
		WithStyleProcessor(stylesheet.Func(func(_ context.Context, src []byte, _ string) ([]byte, error) {
			return append([]byte("/* processed */\n"), src...), nil
		})),
		WithVersionSource(fakeSource{commits: 5, head: "abc1234"}),
		WithGetenv(func(string) string { return "" }),
	}
	return New(cfg, append(base, opts...)...)
}

func TestBuildEndToEnd(t *testing.T) {
	root, cfg := newProject(t, nil)
	cfg.Targets = []config.TargetConfig{{
		Name:    "e2e",
		Defines: map[string]any{"GENERIC": true},
		Entries: []string{"main", "worker"},
	}}

	b := newRecordingBundler()
	report, err := newTestSequencer(cfg, b).Build(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, report)

	out := filepath.Join(root, "build", "e2e")
	pdf := testutils.ReadFile(t, out, "build/pdf.js")
	assert.Contains(t, pdf, "root.pdfjsLib = factory()")
	worker := testutils.ReadFile(t, out, "build/pdf.worker.js")
	assert.Contains(t, worker, "root.pdfjsWorker = factory()")

	index := testutils.ReadFile(t, out, "web/locale/locale.properties")
	assert.Equal(t, "[en-US]\n@import url(en-US/viewer.properties)\n\n[fr]\n@import url(fr/viewer.properties)\n\n", index)
	assert.FileExists(t, filepath.Join(out, "web", "locale", "fr", "viewer.properties"))
	assert.NoDirExists(t, filepath.Join(out, "web", "locale", "xXx"))

	v, err := versioning.Read(filepath.Join(root, "build"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v.Build, 0)
	assert.Equal(t, versioning.Descriptor{Version: "4.0.5", Build: 5, Commit: "abc1234"}, v)

	tr := report.Target("e2e")
	require.NotNil(t, tr)
	assert.Equal(t, OutcomeWarning, tr.Outcome)
	require.Len(t, tr.Issues, 1)
	assert.Equal(t, IssueSkippedLocale, tr.Issues[0].Code)
	assert.Equal(t, []StageName{StageComputeVersion, StageEmitLocale, StageEmitPreferences, StageParsePreferences, StageBundle, StageCollectAssets},
		stageOrder(tr))

	req, ok := b.request("main")
	require.True(t, ok)
	assert.Equal(t, "4.0.5", req.Defines.String(defines.BundleVersion))
	assert.Equal(t, "abc1234", req.Defines.String(defines.BundleBuild))
	assert.True(t, req.SourceMap)
	_, built := b.request("app_options")
	assert.False(t, built, "targets without an app entry skip preferences")

	assert.Empty(t, globDir(t, filepath.Join(root, "build"), "assetforge-*"))
}

func stageOrder(tr *TargetReport) []StageName {
	var out []StageName
	for _, name := range []StageName{StageComputeVersion, StageEmitLocale, StageEmitPreferences, StageParsePreferences, StageBundle, StageCollectAssets} {
		if _, ok := tr.StageResults[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func globDir(t *testing.T, dir, pattern string) []string {
	t.Helper()
	m, err := filepath.Glob(filepath.Join(dir, pattern))
	require.NoError(t, err)
	return m
}

func TestBuildViewerTarget(t *testing.T) {
	root, cfg := newProject(t, map[string]string{
		"src/license_header_libre.js": "/* license */\n",
		"web/viewer.html":             "<html>\n<!-- #if GENERIC -->\n<p>generic</p>\n<!-- #else -->\n<p>other</p>\n<!-- #endif -->\n</html>\n\n\n",
		"web/viewer.css":              ".toolbar { color: red; }\n",
		"LICENSE":                     "Apache\n",
	})
	cfg.Targets = []config.TargetConfig{{Name: "generic"}}
	cfg.Assets = assets.Manifest{{Patterns: []string{"LICENSE"}, Dest: "."}}

	b := newRecordingBundler()
	report, err := newTestSequencer(cfg, b).Build(context.Background(), []string{"generic"})
	require.NoError(t, err)

	out := filepath.Join(root, "build", "generic")
	for _, rel := range []string{"build/pdf.js", "build/pdf.worker.js", "build/pdf.sandbox.js", "web/viewer.js", "LICENSE"} {
		assert.FileExists(t, filepath.Join(out, filepath.FromSlash(rel)))
	}
	assert.Equal(t, "<html>\n<p>generic</p>\n</html>\n", testutils.ReadFile(t, out, "web/viewer.html"))
	assert.True(t, strings.HasPrefix(testutils.ReadFile(t, out, "web/viewer.css"), "/* processed */\n"))
	assert.True(t, strings.HasPrefix(testutils.ReadFile(t, out, "build/pdf.js"), "/* license */\n"))

	prefsReq, ok := b.request("app_options")
	require.True(t, ok)
	assert.True(t, prefsReq.Defines.Bool(defines.Lib))
	assert.Empty(t, prefsReq.License)
	assert.False(t, prefsReq.SourceMap)

	scripting, ok := b.request("scripting")
	require.True(t, ok)
	assert.Empty(t, scripting.License)
	assert.Equal(t, "4.0.5", scripting.Defines.String(defines.BundleVersion))
	assert.False(t, scripting.SourceMap)

	sandbox, ok := b.request("sandbox")
	require.True(t, ok)
	assert.Contains(t, sandbox.Defines.String(defines.ScriptingSource), "/* scripting */")
	assert.Contains(t, sandbox.Defines.String(defines.ScriptingSource), "root.pdfjsScripting = factory()")

	viewer, ok := b.request("viewer")
	require.True(t, ok)
	prefs, _ := viewer.Defines.Get(defines.DefaultPrefs)
	assert.Equal(t, map[string]any{"enableScripting": true}, prefs)

	assert.NoDirExists(t, filepath.Join(root, "build", prefsRoot))
	assert.Empty(t, globDir(t, filepath.Join(root, "build"), "assetforge-*"))

	tr := report.Target("generic")
	require.NotNil(t, tr)
	names := make([]string, 0, len(tr.Artifacts))
	for _, a := range tr.Artifacts {
		names = append(names, a.Name)
	}
	assert.Subset(t, names, []string{"main", "worker", "sandbox", "viewer", "viewer.html", "viewer.css", "LICENSE", "locale.properties"})
}

func TestBuildRejectsInvalidPlanBeforeBundling(t *testing.T) {
	root, cfg := newProject(t, nil)
	cfg.Targets = []config.TargetConfig{{Name: "bare", Entries: []string{"main"}}}

	b := newRecordingBundler()
	seq := newTestSequencer(cfg, b, WithBaseDefines(defines.New(map[string]any{defines.Generic: true})))
	report, err := seq.Build(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
	assert.Zero(t, b.count())
	assert.NoDirExists(t, filepath.Join(root, "build"))
}

func TestBuildUnknownTarget(t *testing.T) {
	_, cfg := newProject(t, nil)
	_, err := newTestSequencer(cfg, newRecordingBundler()).Build(context.Background(), []string{"nope"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestBuildEmptyPreferencesAborts(t *testing.T) {
	root, cfg := newProject(t, map[string]string{"web/viewer.html": "<html>\n", "web/viewer.css": ""})
	cfg.Targets = []config.TargetConfig{{Name: "generic"}}

	b := newRecordingBundler()
	seq := newTestSequencer(cfg, b, WithLoader(staticPrefs(Table{})))
	report, err := seq.Build(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, preferences.ErrEmptyPreferences)

	tr := report.Target("generic")
	require.NotNil(t, tr)
	assert.Equal(t, OutcomeFailed, tr.Outcome)
	assert.Equal(t, StageResultFatal, tr.StageResults[StageParsePreferences])
	assert.NotContains(t, tr.StageResults, StageBundle)
	assert.Equal(t, OutcomeFailed, report.Outcome)

	_, bundled := b.request("viewer")
	assert.False(t, bundled)
	assert.NoFileExists(t, filepath.Join(root, "build", prefsRoot, "generic", preferences.FileName))
	assert.NoFileExists(t, filepath.Join(root, "build", prefsRoot, "generic", "app_options.mjs"))
}

func TestBuildBundleFailureFailsStage(t *testing.T) {
	_, cfg := newProject(t, nil)
	cfg.Targets = []config.TargetConfig{{Name: "lib"}}

	b := newRecordingBundler()
	b.fail["worker"] = errors.New("unexpected token")
	report, err := newTestSequencer(cfg, b).Build(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryExternalTool))

	tr := report.Target("lib")
	require.NotNil(t, tr)
	assert.Equal(t, StageResultFatal, tr.StageResults[StageBundle])
	assert.NotContains(t, tr.StageResults, StageCollectAssets)
	assert.NotContains(t, tr.StageResults, StageEmitLocale, "library targets ship no locale files")
	require.NotEmpty(t, tr.Issues)
	assert.Equal(t, IssueBundleFailure, tr.Issues[len(tr.Issues)-1].Code)
}

func TestBuildDegradedVersion(t *testing.T) {
	root, cfg := newProject(t, nil)
	cfg.Targets = []config.TargetConfig{{Name: "lib"}}

	seq := newTestSequencer(cfg, newRecordingBundler(), WithVersionSource(fakeSource{err: errors.New("not a repository")}))
	report, err := seq.Build(context.Background(), nil)
	require.NoError(t, err)

	v, err := versioning.Read(filepath.Join(root, "build"))
	require.NoError(t, err)
	assert.Equal(t, 0, v.Build)
	assert.Equal(t, "4.0.0", v.Version)
	assert.True(t, report.Version.Degraded)

	tr := report.Target("lib")
	require.NotNil(t, tr)
	assert.Equal(t, OutcomeWarning, tr.Outcome)
	assert.Equal(t, IssueDegradedVersion, tr.Issues[0].Code)
}

func TestBuildDisableVersionInfo(t *testing.T) {
	_, cfg := newProject(t, nil)
	cfg.Targets = []config.TargetConfig{{Name: "lib"}}
	cfg.Build.DisableVersionInfo = true

	b := newRecordingBundler()
	_, err := newTestSequencer(cfg, b).Build(context.Background(), nil)
	require.NoError(t, err)

	req, ok := b.request("main")
	require.True(t, ok)
	v, _ := req.Defines.Get(defines.BundleVersion)
	assert.Equal(t, 0, v)
	c, _ := req.Defines.Get(defines.BundleBuild)
	assert.Equal(t, 0, c)
}

func TestBuildSharesVersionAndScopesPreferences(t *testing.T) {
	root, cfg := newProject(t, map[string]string{
		"web/viewer.html": "<html></html>\n",
		"web/viewer.css":  ".page {}\n",
	})
	cfg.Targets = []config.TargetConfig{{Name: "generic"}}

	b := newRecordingBundler()
	_, err := newTestSequencer(cfg, b).Build(context.Background(), nil)
	require.NoError(t, err)

	for _, name := range []string{"main", "worker", "sandbox", "scripting", "viewer"} {
		req, ok := b.request(name)
		require.True(t, ok, name)
		assert.Equal(t, "4.0.5", req.Defines.String(defines.BundleVersion), name)
		assert.Equal(t, "abc1234", req.Defines.String(defines.BundleBuild), name)

		prefs, _ := req.Defines.Get(defines.DefaultPrefs)
		if name == "viewer" {
			assert.Equal(t, map[string]any{"enableScripting": true}, prefs)
			continue
		}
		assert.Equal(t, map[string]any{}, prefs, name)
	}

	main, _ := b.request("main")
	assert.Equal(t, filepath.Join(root, "build", "generic"), main.OutDir)
}

func TestBuildWipesTargetDirectory(t *testing.T) {
	root, cfg := newProject(t, map[string]string{"build/lib/stale.js": "old"})
	cfg.Targets = []config.TargetConfig{{Name: "lib"}}

	_, err := newTestSequencer(cfg, newRecordingBundler()).Build(context.Background(), nil)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(root, "build", "lib", "stale.js"))
	assert.FileExists(t, filepath.Join(root, "build", "lib", "build", "pdf.js"))
}

func TestBuildCanceled(t *testing.T) {
	_, cfg := newProject(t, nil)
	cfg.Targets = []config.TargetConfig{{Name: "lib"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := newRecordingBundler()
	report, err := newTestSequencer(cfg, b).Build(ctx, nil)
	require.Error(t, err)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageErrorCanceled, se.Kind)
	assert.Equal(t, OutcomeCanceled, report.Outcome)
	assert.Zero(t, b.count())
}

func TestExtractPreferencesKeepsJSON(t *testing.T) {
	root, cfg := newProject(t, nil)

	path, err := newTestSequencer(cfg, newRecordingBundler()).ExtractPreferences(context.Background(), "generic")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "build", prefsRoot, "generic", preferences.FileName), path)
	assert.JSONEq(t, `{"enableScripting": true}`, testutils.ReadFile(t, filepath.Dir(path), preferences.FileName))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(path), "app_options.mjs"))
}

func TestComputeVersionWritesDescriptor(t *testing.T) {
	root, cfg := newProject(t, nil)

	d, path, err := newTestSequencer(cfg, newRecordingBundler()).ComputeVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "build", versioning.FileName), path)
	assert.Equal(t, "4.0.5", d.Version)
	assert.JSONEq(t, `{"version": "4.0.5", "build": 5, "commit": "abc1234"}`, testutils.ReadFile(t, filepath.Join(root, "build"), versioning.FileName))
}

func TestEmitLocale(t *testing.T) {
	root, cfg := newProject(t, nil)

	out := filepath.Join(root, "out")
	c, err := newTestSequencer(cfg, newRecordingBundler()).EmitLocale(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, []string{"en-US", "fr"}, c.Codes())
	assert.Equal(t, []string{"xXx"}, c.Skipped)
	assert.FileExists(t, filepath.Join(out, "locale.properties"))
}
