package pipeline

import (
	"os"
	"slices"

	"git.home.luguber.info/inful/assetforge/internal/bundle"
	"git.home.luguber.info/inful/assetforge/internal/defines"
	"git.home.luguber.info/inful/assetforge/internal/metrics"
	"git.home.luguber.info/inful/assetforge/internal/preferences"
	"git.home.luguber.info/inful/assetforge/internal/target"
	"git.home.luguber.info/inful/assetforge/internal/versioning"
	"git.home.luguber.info/inful/assetforge/internal/workspace"
)

// Plan is the validated input of one target build.
type Plan struct {
	Target  target.Target
	Dir     string      // target output directory
	Static  defines.Map // base defines plus target overrides
	Entries []bundle.Entry
}

// HasApp reports whether the plan bundles an application entry; only those consume the
// default preferences and ship the HTML page and stylesheet.
func (p Plan) HasApp() bool {
	return slices.ContainsFunc(p.Entries, func(e bundle.Entry) bool { return e.Kind == defines.KindApp })
}

// HasEntry reports whether the plan bundles the named entry.
func (p Plan) HasEntry(name string) bool {
	return slices.ContainsFunc(p.Entries, func(e bundle.Entry) bool { return e.Name == name })
}

// BuildState carries what one target's stages hand to each other. Stages run strictly in
// order, so no field needs locking; the bundle stage only reads it from its workers.
type BuildState struct {
	Plan     Plan
	Report   *TargetReport
	Recorder metrics.Recorder

	Version     versioning.Descriptor
	Preferences preferences.Table

	// scriptingSource is the temporary scripting bundle consumed by the sandbox entry.
	scriptingSource string
	prefsHandle     *preferences.Handle
	prefsDir        string

	resolver  *versioning.Resolver
	workspace *workspace.Manager
	license   string
}

// cleanup removes transient files a failed build may have left behind.
func (bs *BuildState) cleanup() {
	if bs.scriptingSource != "" {
		_ = os.Remove(bs.scriptingSource)
		bs.scriptingSource = ""
	}
	if bs.prefsHandle != nil {
		_ = bs.prefsHandle.Discard()
		bs.prefsHandle = nil
	}
}
