package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/assetforge/internal/assets"
	"git.home.luguber.info/inful/assetforge/internal/bundle"
	"git.home.luguber.info/inful/assetforge/internal/defines"
	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
	"git.home.luguber.info/inful/assetforge/internal/locale"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
	"git.home.luguber.info/inful/assetforge/internal/observability"
	"git.home.luguber.info/inful/assetforge/internal/preferences"
	"git.home.luguber.info/inful/assetforge/internal/preprocess"
	"git.home.luguber.info/inful/assetforge/internal/versioning"
)

// localeDir is where a target ships its localization files.
const localeDir = "web/locale"

func (s *Sequencer) computeVersion(ctx context.Context, bs *BuildState) error {
	bs.Version = bs.resolver.Descriptor(ctx)
	if bs.Version.Degraded {
		warn := ferrors.GitError("version metadata degraded; using default build number").Build()
		bs.Report.AddIssue(IssueDegradedVersion, StageComputeVersion, SeverityWarning, warn.Message(), warn)
	}
	path, err := versioning.Write(s.cfg.BuildDir(), bs.Version)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write version descriptor").Fatal().Build()
	}
	observability.DebugContext(ctx, "Wrote version descriptor", logfields.Path(path))
	return nil
}

func (s *Sequencer) emitLocale(ctx context.Context, bs *BuildState) error {
	out := filepath.Join(bs.Plan.Dir, filepath.FromSlash(localeDir))
	c, err := s.EmitLocale(ctx, out)
	if err != nil {
		return err
	}
	for _, name := range c.Skipped {
		warn := ferrors.InvalidLocaleName("skipped invalid locale").WithContext("locale", name).Build()
		bs.Report.AddIssue(IssueSkippedLocale, StageEmitLocale, SeverityWarning, fmt.Sprintf("skipped invalid locale %q", name), warn)
	}
	bs.Report.AddArtifact(Artifact{Name: locale.IndexFile, Path: localeDir + "/" + locale.IndexFile, Bytes: len(locale.Index(c.Entries))})
	return nil
}

// emitPreferences builds the intermediate bundles later stages consume: the preferences
// module for parse_preferences and the scripting bundle inlined into the sandbox.
func (s *Sequencer) emitPreferences(ctx context.Context, bs *BuildState) error {
	table := s.cfg.EntryTable()

	if bs.Plan.HasEntry(sandboxEntry) {
		if err := s.buildScripting(ctx, bs, table[scriptingEntry]); err != nil {
			return err
		}
	}

	if !s.needsPreferences(bs.Plan) {
		observability.DebugContext(ctx, "Target does not consume default preferences")
		return nil
	}
	d := preferences.Defines(bs.Plan.Static, s.getenv)
	h, err := preferences.Build(ctx, s.bundler, table[s.cfg.Preferences.Entry], d, bs.prefsDir)
	if err != nil {
		return err
	}
	bs.prefsHandle = &h
	return nil
}

func (s *Sequencer) buildScripting(ctx context.Context, bs *BuildState, entry bundle.Entry) error {
	d := s.entryDefines(bs, entry.Kind)
	req := bundle.NewRequest(entry, d, "", bundle.Options{DisableSourceMaps: true, DisableLicenseHeader: true})
	res, err := bundle.Build(ctx, s.bundler, req)
	if err != nil {
		return err
	}
	path, err := bs.workspace.TempFile("pdf.scripting-", ".js")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "allocate scripting bundle path").Fatal().Build()
	}
	if err := os.WriteFile(path, res.Code, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write scripting bundle").
			Fatal().
			WithContext("path", path).
			Build()
	}
	bs.scriptingSource = path
	observability.DebugContext(ctx, "Built temporary scripting bundle", logfields.Path(path), logfields.Bytes(len(res.Code)))
	return nil
}

func (s *Sequencer) parsePreferences(ctx context.Context, bs *BuildState) error {
	if bs.prefsHandle == nil {
		bs.Preferences = preferences.Table{}
		return nil
	}
	h := *bs.prefsHandle
	_, err := preferences.Parse(ctx, s.loader, h)
	derr := h.Discard()
	bs.prefsHandle = nil
	if err != nil {
		return err
	}
	if derr != nil {
		return ferrors.WrapError(derr, ferrors.CategoryFileSystem, "remove preferences module").Fatal().Build()
	}

	table, err := preferences.Read(bs.prefsDir)
	if err != nil {
		return err
	}
	bs.Preferences = table
	if err := os.RemoveAll(bs.prefsDir); err != nil {
		observability.WarnContext(ctx, "Could not remove preferences directory", logfields.Path(bs.prefsDir), logfields.Error(err))
	}
	// the shared parent goes away with its last target
	_ = os.Remove(filepath.Dir(bs.prefsDir))
	return nil
}

// bundleTask produces one artifact of the bundle stage.
type bundleTask struct {
	name string
	run  func() (Artifact, error)
}

func (s *Sequencer) bundle(ctx context.Context, bs *BuildState) error {
	tasks := make([]bundleTask, 0, len(bs.Plan.Entries)+2)
	for _, e := range bs.Plan.Entries {
		tasks = append(tasks, bundleTask{name: e.Name, run: func() (Artifact, error) { return s.bundleEntry(ctx, bs, e) }})
	}
	if bs.Plan.HasApp() {
		if s.cfg.Project.HTMLPage != "" {
			tasks = append(tasks, bundleTask{name: "html", run: func() (Artifact, error) { return s.htmlPage(bs) }})
		}
		if s.cfg.Project.Stylesheet != "" {
			tasks = append(tasks, bundleTask{name: "css", run: func() (Artifact, error) { return s.stylesheet(ctx, bs) }})
		}
	}

	results := runOrdered(tasks, s.cfg.Build.Concurrency, func(t bundleTask) (Artifact, error) {
		if err := ctx.Err(); err != nil {
			return Artifact{}, err
		}
		return t.run()
	})
	for i, r := range results {
		if r.Err != nil {
			observability.ErrorContext(ctx, "Bundle task failed", logfields.Entry(tasks[i].name), logfields.Error(r.Err))
			continue
		}
		bs.Report.AddArtifact(r.Value)
		s.recorder.SetArtifactBytes(bs.Plan.Target.Name, r.Value.Name, r.Value.Bytes)
	}
	return firstError(results)
}

func (s *Sequencer) bundleEntry(ctx context.Context, bs *BuildState, e bundle.Entry) (Artifact, error) {
	d := s.entryDefines(bs, e.Kind)
	if e.Name == sandboxEntry && bs.scriptingSource != "" {
		// #nosec G304 - path was allocated inside the workspace
		code, err := os.ReadFile(bs.scriptingSource)
		if err != nil {
			return Artifact{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read scripting bundle").Fatal().Build()
		}
		if err := os.Remove(bs.scriptingSource); err != nil {
			return Artifact{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove scripting bundle").Fatal().Build()
		}
		d = d.With(defines.ScriptingSource, string(code))
	}
	d, err := defines.Resolve(e.Kind, d)
	if err != nil {
		return Artifact{}, err
	}

	req := bundle.NewRequest(e, d, bs.license, bundle.Options{DisableSourceMaps: s.cfg.Build.DisableSourceMaps})
	req.OutDir = bs.Plan.Dir
	res, err := bundle.Build(ctx, s.bundler, req)
	if err != nil {
		return Artifact{}, err
	}
	dest, err := bundle.Write(bs.Plan.Dir, e, res)
	if err != nil {
		return Artifact{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "write bundle").
			Fatal().
			WithContext("entry", e.Name).
			Build()
	}
	slog.Debug("Wrote bundle", logfields.Target(bs.Plan.Target.Name), logfields.Entry(e.Name), logfields.Path(dest),
		logfields.Bytes(len(res.Code)))
	return Artifact{Name: e.Name, Path: e.OutputPath(), Bytes: len(res.Code)}, nil
}

func (s *Sequencer) htmlPage(bs *BuildState) (Artifact, error) {
	src := s.cfg.Path(s.cfg.Project.HTMLPage)
	out, err := preprocess.New(s.entryDefines(bs, "")).HTMLPage(src)
	if err != nil {
		return Artifact{}, err
	}
	return writeWebFile(bs, filepath.Base(src), out)
}

func (s *Sequencer) stylesheet(ctx context.Context, bs *BuildState) (Artifact, error) {
	src := s.cfg.Path(s.cfg.Project.Stylesheet)
	out, err := preprocess.New(s.entryDefines(bs, "")).Stylesheet(src)
	if err != nil {
		return Artifact{}, err
	}
	out, err = s.styles.Process(ctx, out, filepath.Base(src))
	if err != nil {
		return Artifact{}, err
	}
	return writeWebFile(bs, filepath.Base(src), out)
}

func writeWebFile(bs *BuildState, name string, data []byte) (Artifact, error) {
	rel := "web/" + name
	dest := filepath.Join(bs.Plan.Dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return Artifact{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "create web directory").Fatal().Build()
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return Artifact{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "write "+name).
			Fatal().
			WithContext("path", dest).
			Build()
	}
	return Artifact{Name: name, Path: rel, Bytes: len(data)}, nil
}

func (s *Sequencer) collectAssets(ctx context.Context, bs *BuildState) error {
	copied, err := assets.Collect(s.cfg.Assets, s.cfg.Path("."), bs.Plan.Dir)
	if err != nil {
		return err
	}
	for _, c := range copied {
		rel, rerr := filepath.Rel(bs.Plan.Dir, c.Dest)
		if rerr != nil {
			rel = c.Dest
		}
		bs.Report.AddArtifact(Artifact{Name: filepath.Base(c.Dest), Path: filepath.ToSlash(rel), Bytes: int(c.Bytes)})
	}
	observability.InfoContext(ctx, "Collected static assets", logfields.Count(len(copied)))
	return nil
}
