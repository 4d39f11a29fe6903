package defines

import (
	"testing"

	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeLaterOverridesWin(t *testing.T) {
	base := Base()
	a := New(map[string]any{Generic: true, "EXTRA": "a"})
	b := New(map[string]any{"EXTRA": "b"})

	merged := base.Merge(a, b)
	assert.True(t, merged.Bool(Generic))
	assert.Equal(t, "b", merged.String("EXTRA"))

	// base is untouched
	assert.False(t, base.Bool(Generic))
	assert.False(t, base.Has("EXTRA"))
}

func TestNewCopiesInput(t *testing.T) {
	src := map[string]any{Chrome: true}
	m := New(src)
	src[Chrome] = false
	assert.True(t, m.Bool(Chrome))

	out := m.Values()
	out[Chrome] = false
	assert.True(t, m.Bool(Chrome))
}

func TestUnknownKeysPassThrough(t *testing.T) {
	m, err := Resolve(KindModule, Base(), New(map[string]any{"CUSTOM_FLAG": 42, Testing: false}))
	require.NoError(t, err)
	v, ok := m.Get("CUSTOM_FLAG")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestResolveRejectsMissingRequiredKey(t *testing.T) {
	base := Base().With(Testing, false)
	_, err := Resolve(KindUMD, base)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))

	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	missing, _ := ce.Context().GetString("missing")
	assert.Equal(t, "BUNDLE_VERSION,BUNDLE_BUILD", missing)

	m, err := Resolve(KindUMD, base, New(map[string]any{BundleVersion: "1.0.3", BundleBuild: "abc"}))
	require.NoError(t, err)
	assert.Equal(t, "1.0.3", m.String(BundleVersion))
}

func TestResolveAppNeedsDefaultPreferences(t *testing.T) {
	base := Base().Merge(New(map[string]any{Testing: false, BundleVersion: "1", BundleBuild: "c"}))
	_, err := Resolve(KindApp, base)
	require.Error(t, err)

	_, err = Resolve(KindApp, base, New(map[string]any{DefaultPrefs: map[string]any{"a": 1}}))
	require.NoError(t, err)
}

func TestValidateStaticIgnoresComputedKeys(t *testing.T) {
	require.NoError(t, ValidateStatic(KindApp, Base()))

	broken := New(map[string]any{Generic: true})
	err := ValidateStatic(KindUMD, broken)
	require.Error(t, err)
	ce, _ := ferrors.AsClassified(err)
	missing, _ := ce.Context().GetString("missing")
	assert.Equal(t, "MOZCENTRAL,CHROME,LIB", missing)
}

func TestWithTestingFromEnv(t *testing.T) {
	env := func(v string) func(string) string {
		return func(string) string { return v }
	}
	assert.True(t, Base().WithTestingFromEnv(env("true")).Bool(Testing))
	assert.False(t, Base().WithTestingFromEnv(env("1")).Bool(Testing))

	explicit := Base().With(Testing, false)
	assert.False(t, explicit.WithTestingFromEnv(env("true")).Bool(Testing))
}

func TestKeysSorted(t *testing.T) {
	m := New(map[string]any{"B": 1, "A": 2, "C": 3})
	assert.Equal(t, []string{"A", "B", "C"}, m.Keys())
	assert.Equal(t, 3, m.Len())
}
