// Package pipeline sequences the per-target build: version, locale, default preferences,
// bundles and static assets, in that order and fail-fast.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/assetforge/internal/bundle"
	"git.home.luguber.info/inful/assetforge/internal/config"
	"git.home.luguber.info/inful/assetforge/internal/defines"
	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
	"git.home.luguber.info/inful/assetforge/internal/locale"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
	"git.home.luguber.info/inful/assetforge/internal/metrics"
	"git.home.luguber.info/inful/assetforge/internal/observability"
	"git.home.luguber.info/inful/assetforge/internal/preferences"
	"git.home.luguber.info/inful/assetforge/internal/stylesheet"
	"git.home.luguber.info/inful/assetforge/internal/versioning"
	"git.home.luguber.info/inful/assetforge/internal/workspace"
)

// Entries with special wiring: the scripting bundle is inlined into the sandbox.
const (
	scriptingEntry = "scripting"
	sandboxEntry   = "sandbox"
)

// prefsRoot holds the per-target intermediate preferences files under the build directory.
const prefsRoot = "default_preferences"

// Sequencer runs target builds for one configuration.
type Sequencer struct {
	cfg      *config.Config
	bundler  bundle.Bundler
	loader   preferences.Loader
	styles   stylesheet.Processor
	versions versioning.Source
	recorder metrics.Recorder
	getenv   func(string) string
	base     defines.Map
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithBundler replaces the in-process esbuild bundler.
func WithBundler(b bundle.Bundler) Option { return func(s *Sequencer) { s.bundler = b } }

// WithLoader replaces the Node.js preferences loader.
func WithLoader(l preferences.Loader) Option { return func(s *Sequencer) { s.loader = l } }

// WithStyleProcessor replaces the esbuild CSS post-processor.
func WithStyleProcessor(p stylesheet.Processor) Option { return func(s *Sequencer) { s.styles = p } }

// WithVersionSource replaces the git-backed version source.
func WithVersionSource(src versioning.Source) Option { return func(s *Sequencer) { s.versions = src } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option { return func(s *Sequencer) { s.recorder = r } }

// WithGetenv sets the environment lookup used for TESTING.
func WithGetenv(fn func(string) string) Option { return func(s *Sequencer) { s.getenv = fn } }

// WithBaseDefines replaces defines.Base() as the table every target starts from.
func WithBaseDefines(m defines.Map) Option { return func(s *Sequencer) { s.base = m } }

// New returns a Sequencer for cfg.
func New(cfg *config.Config, opts ...Option) *Sequencer {
	root := cfg.Path(".")
	s := &Sequencer{
		cfg:      cfg,
		bundler:  bundle.NewESBuild(root, cfg.Build.DefineNamespace),
		loader:   preferences.NodeLoader{Binary: cfg.Preferences.Runtime},
		styles:   stylesheet.ESBuildProcessor{},
		versions: versioning.GitSource{Dir: root},
		recorder: metrics.NoopRecorder{},
		getenv:   os.Getenv,
		base:     defines.Base(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Plan resolves names into validated target plans. Every entry's static defines must carry
// the keys its kind requires; nothing is bundled when one does not.
func (s *Sequencer) Plan(names []string) ([]Plan, error) {
	targets, err := s.cfg.ResolveTargets(names)
	if err != nil {
		return nil, err
	}
	table := s.cfg.EntryTable()
	plans := make([]Plan, 0, len(targets))
	for _, t := range targets {
		p := Plan{
			Target: t,
			Dir:    filepath.Join(s.cfg.BuildDir(), filepath.FromSlash(t.Dir)),
			Static: t.Defines(s.base),
		}
		for _, name := range t.Entries {
			e := table[name]
			if err := defines.ValidateStatic(e.Kind, p.Static); err != nil {
				return nil, withContext(err, "target", t.Name, "entry", name)
			}
			p.Entries = append(p.Entries, e)
		}
		if s.needsPreferences(p) {
			if _, ok := table[s.cfg.Preferences.Entry]; !ok {
				return nil, ferrors.ConfigError("preferences entry is not defined").
					WithContext("entry", s.cfg.Preferences.Entry).
					Build()
			}
		}
		if p.HasEntry(sandboxEntry) {
			if _, ok := table[scriptingEntry]; !ok {
				return nil, ferrors.ConfigError("sandbox entry requires a scripting entry").
					WithContext("target", t.Name).
					Build()
			}
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func withContext(err error, kv ...string) error {
	ce, ok := ferrors.AsClassified(err)
	if !ok {
		return err
	}
	for i := 0; i+1 < len(kv); i += 2 {
		ce = ce.WithContext(kv[i], kv[i+1])
	}
	return ce
}

func (s *Sequencer) needsPreferences(p Plan) bool {
	return !s.cfg.Preferences.Disabled && p.HasApp()
}

// Build runs every named target (the configured ones when names is empty). All plans are
// validated before the first stage. The returned report is non-nil once planning succeeded,
// even when a target failed.
func (s *Sequencer) Build(ctx context.Context, names []string) (*BuildReport, error) {
	plans, err := s.Plan(names)
	if err != nil {
		return nil, err
	}

	buildID := uuid.NewString()
	ctx = observability.WithBuildID(ctx, buildID)
	report := NewBuildReport(buildID)

	resolver, err := s.resolver()
	if err != nil {
		return nil, err
	}
	license, err := s.license()
	if err != nil {
		return nil, err
	}

	ws := s.workspace()
	if err := ws.Create(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "create workspace").Fatal().Build()
	}
	defer func() {
		if cerr := ws.Cleanup(); cerr != nil {
			observability.WarnContext(ctx, "Workspace cleanup failed", logfields.Error(cerr))
		}
	}()

	var buildErr error
	for _, p := range plans {
		tr, err := s.buildTarget(ctx, p, resolver, ws, license)
		report.Targets = append(report.Targets, tr)
		if err != nil {
			buildErr = err
			break
		}
	}
	report.Version = resolver.Descriptor(ctx)
	report.Finish()
	observability.InfoContext(ctx, "Build finished", logfields.Duration(report.End.Sub(report.Start)),
		logfields.Count(len(report.Targets)))
	return report, buildErr
}

func (s *Sequencer) resolver() (*versioning.Resolver, error) {
	project, err := config.LoadProject(s.cfg.Path(s.cfg.Project.VersionFile))
	if err != nil {
		return nil, err
	}
	return versioning.NewResolver(s.versions, project.VersionPrefix, project.BaseVersion), nil
}

// license reads the banner prepended to bundles. A missing file means no banner.
func (s *Sequencer) license() (string, error) {
	if s.cfg.Project.LicenseHeader == "" {
		return "", nil
	}
	path := s.cfg.Path(s.cfg.Project.LicenseHeader)
	// #nosec G304 - path comes from configuration
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("No license header file", logfields.Path(path))
		return "", nil
	}
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "read license header").
			Fatal().
			WithContext("path", path).
			Build()
	}
	return string(b), nil
}

func (s *Sequencer) workspace() *workspace.Manager {
	if s.cfg.Build.KeepTemp {
		return workspace.NewPersistentManager(s.cfg.BuildDir(), "tmp")
	}
	return workspace.NewManager(s.cfg.BuildDir())
}

func (s *Sequencer) prefsDir(targetName string) string {
	return filepath.Join(s.cfg.BuildDir(), prefsRoot, targetName)
}

func (s *Sequencer) buildTarget(ctx context.Context, p Plan, resolver *versioning.Resolver, ws *workspace.Manager, license string) (*TargetReport, error) {
	ctx = observability.WithTarget(ctx, p.Target.Name)
	bs := &BuildState{
		Plan:      p,
		Report:    newTargetReport(p.Target.Name, p.Dir),
		Recorder:  s.recorder,
		prefsDir:  s.prefsDir(p.Target.Name),
		resolver:  resolver,
		workspace: ws,
		license:   license,
	}

	observability.InfoContext(ctx, "Building target", logfields.Path(p.Dir), logfields.Count(len(p.Entries)))

	var err error
	if rerr := workspace.ResetDir(p.Dir); rerr != nil {
		err = ferrors.WrapError(rerr, ferrors.CategoryFileSystem, "reset target directory").
			Fatal().
			WithContext("path", p.Dir).
			Build()
		bs.Report.AddIssue(IssueGenericStage, "", SeverityError, err.Error(), err)
	} else {
		stages := NewPipeline().
			Add(StageComputeVersion, s.computeVersion).
			AddIf(!p.Static.Bool(defines.Lib), StageEmitLocale, s.emitLocale).
			Add(StageEmitPreferences, s.emitPreferences).
			Add(StageParsePreferences, s.parsePreferences).
			Add(StageBundle, s.bundle).
			Add(StageCollectAssets, s.collectAssets).
			Build()
		err = RunStages(ctx, bs, stages)
	}
	bs.cleanup()

	bs.Report.Finish()
	s.recorder.ObserveBuildDuration(p.Target.Name, bs.Report.End.Sub(bs.Report.Start))
	s.recorder.IncBuildOutcome(p.Target.Name, bs.Report.Outcome.metricLabel())
	if err != nil {
		observability.ErrorContext(ctx, "Target build failed", logfields.Error(err))
	}
	return bs.Report, err
}

// entryDefines completes a target's static defines with the computed keys. Only app
// entries receive the parsed preferences table; everything else gets an empty one.
func (s *Sequencer) entryDefines(bs *BuildState, kind defines.Kind) defines.Map {
	d := bs.Plan.Static.WithTestingFromEnv(s.getenv)
	if s.cfg.Build.DisableVersionInfo {
		d = d.With(defines.BundleVersion, 0).With(defines.BundleBuild, 0)
	} else {
		d = d.With(defines.BundleVersion, bs.Version.Version).With(defines.BundleBuild, bs.Version.Commit)
	}
	prefs := map[string]any{}
	if kind == defines.KindApp {
		for k, v := range bs.Preferences {
			prefs[k] = v
		}
	}
	return d.With(defines.DefaultPrefs, prefs)
}

// ComputeVersion computes the descriptor and writes version.json into the build directory.
func (s *Sequencer) ComputeVersion(ctx context.Context) (versioning.Descriptor, string, error) {
	resolver, err := s.resolver()
	if err != nil {
		return versioning.Descriptor{}, "", err
	}
	d := resolver.Descriptor(ctx)
	path, err := versioning.Write(s.cfg.BuildDir(), d)
	if err != nil {
		return d, "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "write version descriptor").Fatal().Build()
	}
	return d, path, nil
}

// EmitLocale collects the localization root into outDir.
func (s *Sequencer) EmitLocale(ctx context.Context, outDir string) (locale.Collection, error) {
	if err := ctx.Err(); err != nil {
		return locale.Collection{}, err
	}
	c, err := locale.Collect(s.cfg.Path(s.cfg.Project.L10nDir))
	if err != nil {
		return c, err
	}
	if len(c.Skipped) > 0 {
		s.recorder.IncSkippedLocales(len(c.Skipped))
	}
	return c, locale.Emit(c, outDir)
}

// ExtractPreferences runs preference extraction for one target and leaves the JSON table in
// place for other tooling. It returns the JSON path.
func (s *Sequencer) ExtractPreferences(ctx context.Context, targetName string) (string, error) {
	plans, err := s.Plan([]string{targetName})
	if err != nil {
		return "", err
	}
	entry, ok := s.cfg.EntryTable()[s.cfg.Preferences.Entry]
	if !ok {
		return "", ferrors.ConfigError("preferences entry is not defined").
			WithContext("entry", s.cfg.Preferences.Entry).
			Build()
	}
	d := preferences.Defines(plans[0].Static, s.getenv)
	return preferences.Extract(ctx, s.bundler, s.loader, entry, d, s.prefsDir(targetName))
}
