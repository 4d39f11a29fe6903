package commands

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetforge/internal/assets"
	"git.home.luguber.info/inful/assetforge/internal/bundle"
	"git.home.luguber.info/inful/assetforge/internal/config"
	"git.home.luguber.info/inful/assetforge/internal/defines"
	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
	"git.home.luguber.info/inful/assetforge/internal/pipeline"
	"git.home.luguber.info/inful/assetforge/internal/testutil/testutils"
)

type fixedSource struct{}

func (fixedSource) CommitsSince(context.Context, string) (int, error) { return 12, nil }
func (fixedSource) HeadCommit(context.Context) (string, error)        { return "feedbee", nil }

var umdBundler = bundle.Func(func(_ context.Context, req bundle.Request) (*bundle.Result, error) {
	body := "/* " + req.Entry.Name + " */\n"
	if req.Entry.Kind == defines.KindUMD {
		body = bundle.UMDHeader(req.Entry.AMDName) + body + bundle.UMDFooter
	}
	return &bundle.Result{Code: []byte(body)}, nil
})

func newProject(t *testing.T) (string, *config.Config) {
	t.Helper()
	root := t.TempDir()
	testutils.WriteTree(t, root, map[string]string{
		"pdfjs.config":                 `{"baseVersion": "abc", "versionPrefix": "4.1."}`,
		"l10n/en-US/viewer.properties": "hello=Hello\n",
		"l10n/de/viewer.properties":    "hello=Hallo\n",
	})
	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Assets = assets.Manifest{}
	cfg.Targets = []config.TargetConfig{{
		Name:    "bundle-only",
		Defines: map[string]any{"GENERIC": true},
		Entries: []string{"main", "worker"},
	}}
	return root, cfg
}

func testOptions() []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithBundler(umdBundler),
		pipeline.WithVersionSource(fixedSource{}),
		pipeline.WithGetenv(func(string) string { return "" }),
	}
}

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Name("assetforge"), kong.Vars{"version": "test"}, kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return cli, ctx
}

func TestCLIParsesCommands(t *testing.T) {
	cli, ctx := parse(t, "build", "generic", "lib", "--report", "r.json", "--no-source-maps")
	assert.Equal(t, "build <targets>", ctx.Command())
	assert.Equal(t, []string{"generic", "lib"}, cli.Build.Targets)
	assert.Equal(t, "r.json", cli.Build.Report)
	assert.True(t, cli.Build.NoSourceMaps)
	assert.Equal(t, "assetforge.yaml", cli.Config)

	cli, _ = parse(t, "prefs")
	assert.Equal(t, "generic", cli.Prefs.Target)

	cli, _ = parse(t, "-c", "other.yaml", "watch", "--debounce", "1s", "chrome")
	assert.Equal(t, time.Second, cli.Watch.Debounce)
	assert.Equal(t, []string{"chrome"}, cli.Watch.Targets)
	assert.Equal(t, "other.yaml", cli.Config)

	_, ctx = parse(t, "version")
	assert.Equal(t, "version", ctx.Command())
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", (&CLI{Verbose: true, LogLevel: "error"}).level().String())
	assert.Equal(t, "WARN", (&CLI{LogLevel: "Warning"}).level().String())
	assert.Equal(t, "ERROR", (&CLI{LogLevel: "error"}).level().String())
	assert.Equal(t, "INFO", (&CLI{}).level().String())
}

func TestRunInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assetforge.yaml")
	require.NoError(t, RunInit(path, false))
	assert.FileExists(t, path)

	err := RunInit(path, false)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	require.NoError(t, RunInit(path, true))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.CurrentVersion, cfg.Version)
}

func TestRunVersion(t *testing.T) {
	root, cfg := newProject(t)
	d, err := RunVersion(context.Background(), cfg, testOptions()...)
	require.NoError(t, err)
	assert.Equal(t, "4.1.12", d.Version)
	assert.Equal(t, "feedbee", d.Commit)
	assert.FileExists(t, filepath.Join(root, "build", "version.json"))
}

func TestRunLocale(t *testing.T) {
	_, cfg := newProject(t)
	out := filepath.Join(t.TempDir(), "locale")
	c, err := RunLocale(context.Background(), cfg, out, testOptions()...)
	require.NoError(t, err)
	assert.Equal(t, []string{"de", "en-US"}, c.Codes())
	assert.FileExists(t, filepath.Join(out, "locale.properties"))
}

func TestRunBuildWritesReportAndMetrics(t *testing.T) {
	root, cfg := newProject(t)
	dir := t.TempDir()
	opts := BuildOptions{
		Report:      filepath.Join(dir, "report.json"),
		MetricsFile: filepath.Join(dir, "assetforge.prom"),
	}

	report, err := RunBuild(context.Background(), cfg, nil, opts, testOptions()...)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, pipeline.OutcomeSuccess, report.Outcome)
	assert.FileExists(t, filepath.Join(root, "build", "bundle-only", "build", "pdf.js"))

	b, err := os.ReadFile(opts.Report)
	require.NoError(t, err)
	var got pipeline.BuildReportSerializable
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "success", got.Outcome)
	assert.Equal(t, "4.1.12", got.Version.Version)

	m, err := os.ReadFile(opts.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(m), `assetforge_build_outcomes_total{outcome="success",target="bundle-only"} 1`)
	assert.Contains(t, string(m), "assetforge_stage_duration_seconds")
}

func TestRunBuildUnknownTargetWritesNothing(t *testing.T) {
	_, cfg := newProject(t)
	opts := BuildOptions{Report: filepath.Join(t.TempDir(), "report.json")}

	report, err := RunBuild(context.Background(), cfg, []string{"nope"}, opts, testOptions()...)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.NoFileExists(t, opts.Report)
}

func TestBuildOptionsApply(t *testing.T) {
	cfg := config.Default()
	BuildOptions{KeepTemp: true, NoSourceMaps: true}.apply(cfg)
	assert.True(t, cfg.Build.KeepTemp)
	assert.True(t, cfg.Build.DisableSourceMaps)
}

func TestWatchPaths(t *testing.T) {
	cfg := config.Default()
	cfg.Project.Root = "/project"
	paths := WatchPaths(cfg, "assetforge.yaml")
	assert.Contains(t, paths, filepath.Join("/project", "src"))
	assert.Contains(t, paths, filepath.Join("/project", "l10n"))
	assert.Contains(t, paths, filepath.Join("/project", "pdfjs.config"))
	assert.Contains(t, paths, "assetforge.yaml")
}
