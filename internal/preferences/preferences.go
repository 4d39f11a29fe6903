// Package preferences extracts the viewer's default preference table.
//
// Extraction is two-phase. Build bundles the preferences-declaration module in isolation and
// returns a Handle to the intermediate module. Parse hands that module to a Loader, which
// queries its preference-kind options, and serializes the result to JSON. Read consumes the
// JSON exactly once.
package preferences

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/assetforge/internal/bundle"
	"git.home.luguber.info/inful/assetforge/internal/defines"
	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
)

// FileName is the serialized preferences table.
const FileName = "default_preferences.json"

// ErrEmptyPreferences is returned when the preference module declares no preference options.
var ErrEmptyPreferences = ferrors.EmptyPreferencesError("no default preferences found").Build()

// Table maps option names to their default values.
type Table map[string]any

// Loader loads a built preferences module and returns its preference-kind options.
type Loader interface {
	Load(ctx context.Context, modulePath string) (Table, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, modulePath string) (Table, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, modulePath string) (Table, error) {
	return f(ctx, modulePath)
}

// Handle points at the intermediate module produced by Build.
type Handle struct {
	Dir    string
	Module string
}

// Discard removes the intermediate module.
func (h Handle) Discard() error {
	if h.Module == "" {
		return nil
	}
	if err := os.Remove(h.Module); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", h.Module, err)
	}
	return nil
}

// Defines derives the isolated-build defines from a target's defines: LIB is forced on,
// TESTING falls back to the environment, version info is disabled and no preferences are
// inlined.
func Defines(d defines.Map, getenv func(string) string) defines.Map {
	return d.
		With(defines.Lib, true).
		WithTestingFromEnv(getenv).
		With(defines.BundleVersion, 0).
		With(defines.BundleBuild, 0).
		With(defines.DefaultPrefs, map[string]any{})
}

// Build bundles entry with d (already passed through Defines) into dir.
func Build(ctx context.Context, b bundle.Bundler, entry bundle.Entry, d defines.Map, dir string) (Handle, error) {
	req := bundle.NewRequest(entry, d, "", bundle.Options{DisableSourceMaps: true, DisableLicenseHeader: true})
	res, err := bundle.Build(ctx, b, req)
	if err != nil {
		return Handle{}, err
	}
	module := filepath.Join(dir, filepath.Base(entry.Output))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Handle{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "create preferences directory").
			Fatal().
			WithContext("dir", dir).
			Build()
	}
	if err := os.WriteFile(module, res.Code, 0o600); err != nil {
		return Handle{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "write preferences module").
			Fatal().
			WithContext("path", module).
			Build()
	}
	slog.Debug("Built default preferences module", logfields.Path(module), logfields.Bytes(len(res.Code)))
	return Handle{Dir: dir, Module: module}, nil
}

// Parse loads the module behind h and writes the preference table to h.Dir. An empty table
// fails with ErrEmptyPreferences and leaves no JSON behind.
func Parse(ctx context.Context, l Loader, h Handle) (string, error) {
	table, err := l.Load(ctx, h.Module)
	if err != nil {
		if ferrors.IsClassified(err) {
			return "", err
		}
		return "", ferrors.WrapError(err, ferrors.CategoryExternalTool, "load preferences module").
			Fatal().
			WithContext("path", h.Module).
			Build()
	}
	if len(table) == 0 {
		return "", ErrEmptyPreferences
	}
	b, err := json.Marshal(table)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryPreferences, "encode preferences").Fatal().Build()
	}
	dest := filepath.Join(h.Dir, FileName)
	if err := os.WriteFile(dest, b, 0o600); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "write preferences").
			Fatal().
			WithContext("path", dest).
			Build()
	}
	slog.Info("Parsed default preferences", logfields.Path(dest), logfields.Count(len(table)))
	return dest, nil
}

// Read decodes dir's preference table and deletes the file. Numbers keep their literal form.
func Read(dir string) (Table, error) {
	path := filepath.Join(dir, FileName)
	// #nosec G304 - path is under the build directory
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryPreferences, "read preferences").
			Fatal().
			WithContext("path", path).
			Build()
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var t Table
	if err := dec.Decode(&t); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryPreferences, "decode preferences").
			Fatal().
			WithContext("path", path).
			Build()
	}
	if err := os.Remove(path); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove consumed preferences").
			Fatal().
			WithContext("path", path).
			Build()
	}
	return t, nil
}

// Extract runs both phases and removes the intermediate module. The returned path is the
// JSON artifact; callers read it with Read.
func Extract(ctx context.Context, b bundle.Bundler, l Loader, entry bundle.Entry, d defines.Map, dir string) (string, error) {
	h, err := Build(ctx, b, entry, d, dir)
	if err != nil {
		return "", err
	}
	path, err := Parse(ctx, l, h)
	if derr := h.Discard(); derr != nil && err == nil {
		err = ferrors.WrapError(derr, ferrors.CategoryFileSystem, "remove preferences module").Fatal().Build()
	}
	return path, err
}
