// Package target describes the distributable variants (generic, chrome, mozcentral, ...) and
// the per-variant module alias tables.
package target

import (
	"maps"
	"slices"

	"git.home.luguber.info/inful/assetforge/internal/defines"
)

// Target is one distributable variant.
type Target struct {
	Name      string
	Dir       string      // output directory relative to the build dir
	Overrides defines.Map // applied on top of defines.Base()
	Entries   []string    // entry names, see bundle.StandardEntries
}

// Defines returns the target's static defines (base plus overrides).
func (t Target) Defines(base defines.Map) defines.Map {
	return base.Merge(t.Overrides)
}

var viewerEntries = []string{"main", "worker", "sandbox", "viewer"}

var builtins = map[string]Target{
	"generic": {
		Name:      "generic",
		Overrides: defines.New(map[string]any{defines.Generic: true}),
		Entries:   viewerEntries,
	},
	"generic-legacy": {
		Name:      "generic-legacy",
		Overrides: defines.New(map[string]any{defines.Generic: true, defines.SkipBabel: false}),
		Entries:   viewerEntries,
	},
	"chrome": {
		Name:      "chrome",
		Overrides: defines.New(map[string]any{defines.Chrome: true, defines.SkipBabel: false}),
		Entries:   viewerEntries,
	},
	"mozcentral": {
		Name:      "mozcentral",
		Overrides: defines.New(map[string]any{defines.MozCentral: true}),
		Entries:   viewerEntries,
	},
	"geckoview": {
		Name:      "geckoview",
		Overrides: defines.New(map[string]any{defines.MozCentral: true, defines.GeckoView: true}),
		Entries:   viewerEntries,
	},
	"lib": {
		Name:      "lib",
		Overrides: defines.New(map[string]any{defines.Generic: true, defines.Lib: true}),
		Entries:   []string{"main", "worker"},
	},
}

// Builtin returns a copy of a predefined target.
func Builtin(name string) (Target, bool) {
	t, ok := builtins[name]
	if !ok {
		return Target{}, false
	}
	t.Dir = name
	t.Entries = slices.Clone(t.Entries)
	return t, true
}

// Names lists predefined targets in sorted order.
func Names() []string {
	names := slices.Collect(maps.Keys(builtins))
	slices.Sort(names)
	return names
}
