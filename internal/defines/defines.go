// Package defines models the build-time feature-flag table handed to the bundler and the
// HTML/CSS preprocessor.
//
// A Map is an immutable value: every merge returns a fresh copy, so one base table can be
// shared by every target and entry of an invocation without coordination.
package defines

import (
	"maps"
	"slices"
	"strings"

	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
)

// Well-known keys.
const (
	SkipBabel       = "SKIP_BABEL"
	Testing         = "TESTING"
	Generic         = "GENERIC"
	MozCentral      = "MOZCENTRAL"
	GeckoView       = "GECKOVIEW"
	Chrome          = "CHROME"
	Minified        = "MINIFIED"
	Components      = "COMPONENTS"
	Lib             = "LIB"
	ImageDecoders   = "IMAGE_DECODERS"
	BundleVersion   = "BUNDLE_VERSION"
	BundleBuild     = "BUNDLE_BUILD"
	DefaultPrefs    = "DEFAULT_PREFERENCES"
	ScriptingSource = "PDF_SCRIPTING_JS_SOURCE"
)

// Map is an immutable flag-name to value table. Values are bool, string, numbers,
// nested map[string]any, or nil for "undefined".
type Map struct {
	values map[string]any
}

// New copies values into a Map.
func New(values map[string]any) Map {
	return Map{values: maps.Clone(values)}
}

// Base returns the static base configuration shared by all targets.
func Base() Map {
	return New(map[string]any{
		SkipBabel:     true,
		Testing:       nil,
		Generic:       false,
		MozCentral:    false,
		GeckoView:     false,
		Chrome:        false,
		Minified:      false,
		Components:    false,
		Lib:           false,
		ImageDecoders: false,
	})
}

// Get returns the raw value for key.
func (m Map) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present, even when its value is nil.
func (m Map) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Bool reports whether key holds boolean true.
func (m Map) Bool(key string) bool {
	b, ok := m.values[key].(bool)
	return ok && b
}

// String returns the string value for key, or "".
func (m Map) String(key string) string {
	s, _ := m.values[key].(string)
	return s
}

// Len returns the number of keys.
func (m Map) Len() int { return len(m.values) }

// Keys returns the keys in sorted order.
func (m Map) Keys() []string {
	keys := slices.Collect(maps.Keys(m.values))
	slices.Sort(keys)
	return keys
}

// Values returns a copy of the underlying table.
func (m Map) Values() map[string]any {
	return maps.Clone(m.values)
}

// Merge returns a copy of m with overrides applied in order; later overrides win.
func (m Map) Merge(overrides ...Map) Map {
	out := make(map[string]any, len(m.values))
	maps.Copy(out, m.values)
	for _, o := range overrides {
		maps.Copy(out, o.values)
	}
	return Map{values: out}
}

// With returns a copy of m with a single key set.
func (m Map) With(key string, value any) Map {
	return m.Merge(New(map[string]any{key: value}))
}

// WithTestingFromEnv resolves an undefined TESTING flag from the TESTING environment
// variable ("true" enables it). An explicit value is kept.
func (m Map) WithTestingFromEnv(getenv func(string) string) Map {
	if v, ok := m.values[Testing]; ok && v != nil {
		return m
	}
	return m.With(Testing, getenv("TESTING") == "true")
}

// Kind is the library-wrapper kind of an artifact; it decides which keys must be defined.
type Kind string

const (
	KindUMD    Kind = "umd"    // library exposed under CommonJS, AMD and a global
	KindModule Kind = "module" // ES module output
	KindApp    Kind = "app"    // plain application script (viewer)
)

var targetFlags = []string{Generic, MozCentral, Chrome, Lib, Testing}

// computed keys are filled in by the pipeline right before bundling.
var computed = []string{BundleVersion, BundleBuild, DefaultPrefs, Testing}

// RequiredKeys lists the keys a bundle of the given kind consumes.
func RequiredKeys(kind Kind) []string {
	keys := slices.Clone(targetFlags)
	switch kind {
	case KindUMD:
		keys = append(keys, BundleVersion, BundleBuild)
	case KindApp:
		keys = append(keys, BundleVersion, BundleBuild, DefaultPrefs)
	}
	return keys
}

// Resolve merges overrides onto base (later overrides win) and fails with a ConfigError
// when the result lacks a key required by kind.
func Resolve(kind Kind, base Map, overrides ...Map) (Map, error) {
	merged := base.Merge(overrides...)
	if missing := missingKeys(merged, RequiredKeys(kind), nil); len(missing) > 0 {
		return Map{}, missingError(kind, missing)
	}
	return merged, nil
}

// ValidateStatic checks the keys a plan must carry before any computed value exists.
// Keys the pipeline computes itself are not required here.
func ValidateStatic(kind Kind, m Map) error {
	if missing := missingKeys(m, RequiredKeys(kind), computed); len(missing) > 0 {
		return missingError(kind, missing)
	}
	return nil
}

func missingKeys(m Map, required, skip []string) []string {
	var missing []string
	for _, k := range required {
		if slices.Contains(skip, k) {
			continue
		}
		if !m.Has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

func missingError(kind Kind, missing []string) error {
	return ferrors.ConfigError("defines map lacks required keys").
		WithContext("kind", string(kind)).
		WithContext("missing", strings.Join(missing, ",")).
		Build()
}
