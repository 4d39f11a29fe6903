package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "assetforge.yaml").
			Build()

		assert.Equal(t, CategoryConfig, err.Category())
		assert.Equal(t, SeverityFatal, err.Severity())
		assert.Equal(t, "invalid configuration", err.Message())

		file, exists := err.Context().GetString("file")
		require.True(t, exists)
		assert.Equal(t, "assetforge.yaml", file)
	})

	t.Run("Error detection", func(t *testing.T) {
		err := ConfigError("test error").Build()

		assert.True(t, IsClassified(err))
		assert.True(t, HasCategory(err, CategoryConfig))
		assert.True(t, HasSeverity(err, SeverityFatal))
	})

	t.Run("Locale names only warn", func(t *testing.T) {
		err := InvalidLocaleName("skipping invalid locale").Build()
		assert.Equal(t, SeverityWarning, err.Severity())
		assert.True(t, HasSeverity(fmt.Errorf("scan: %w", err), SeverityWarning))
		assert.False(t, HasSeverity(errors.New("plain"), SeverityWarning))
	})
}

func TestErrorBuilder_Wrap(t *testing.T) {
	original := errors.New("exit status 1")
	err := WrapError(original, CategoryExternalTool, "node failed").
		Fatal().
		WithContext("binary", "node").
		Build()

	assert.ErrorIs(t, err, original)
	assert.Contains(t, err.Error(), "exit status 1")
	bin, _ := err.Context().GetString("binary")
	assert.Equal(t, "node", bin)
}

func TestClassifiedError_SentinelMatching(t *testing.T) {
	sentinel := EmptyPreferencesError("no default preferences found").Build()
	got := EmptyPreferencesError("no default preferences found").WithContext("path", "/tmp/x").Build()
	wrapped := fmt.Errorf("parse: %w", got)

	assert.ErrorIs(t, wrapped, sentinel)
	assert.NotErrorIs(t, ConfigError("no default preferences found").Build(), sentinel)

	found, ok := AsClassified(wrapped)
	require.True(t, ok)
	assert.Equal(t, CategoryPreferences, found.Category())
	assert.False(t, HasCategory(errors.New("plain"), CategoryInternal))
}

func TestClassifiedError_WithContextDoesNotMutate(t *testing.T) {
	base := BuildError("bundle failed").Build()
	derived := base.WithContext("entry", "main")

	_, inBase := base.Context().Get("entry")
	assert.False(t, inBase)
	entry, _ := derived.Context().GetString("entry")
	assert.Equal(t, "main", entry)
}
