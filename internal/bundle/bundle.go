// Package bundle turns an entry descriptor plus a resolved defines map into a patched artifact.
//
// The bundler itself is an opaque collaborator behind the Bundler interface; ESBuild is the
// in-process implementation. Everything here that is not the Bundler call is deterministic text
// plumbing: request assembly, the per-kind post-processing passes and writing artifacts.
package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/assetforge/internal/defines"
	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
	"git.home.luguber.info/inful/assetforge/internal/patch"
	"git.home.luguber.info/inful/assetforge/internal/target"
)

// Options tune a single bundle request.
type Options struct {
	DisableSourceMaps    bool
	DisableLicenseHeader bool
}

// Request is everything the bundler needs for one artifact.
type Request struct {
	Entry     Entry
	Defines   defines.Map
	Alias     map[string]string // logical module name -> root-relative path
	SourceMap bool
	License   string // banner text, empty for none
	Legacy    bool   // lower syntax for older engines
	// OutDir is the target directory the artifact is written to. Source map paths are
	// relative to the artifact's place in it.
	OutDir string
}

// Result is the raw bundler output.
type Result struct {
	Code      []byte
	SourceMap []byte
}

// Bundler is the external bundling/transpilation service.
type Bundler interface {
	Bundle(ctx context.Context, req Request) (*Result, error)
}

// Func adapts a function to Bundler.
type Func func(ctx context.Context, req Request) (*Result, error)

// Bundle implements Bundler.
func (f Func) Bundle(ctx context.Context, req Request) (*Result, error) { return f(ctx, req) }

// NewRequest assembles a request for entry. Source maps are produced unless the defines mark
// an embedded, library or test build, or opts disables them. The alias table follows the
// variant encoded in d.
func NewRequest(entry Entry, d defines.Map, license string, opts Options) Request {
	sourceMaps := !d.Bool(defines.MozCentral) &&
		!d.Bool(defines.Chrome) &&
		!d.Bool(defines.Lib) &&
		!d.Bool(defines.Testing) &&
		!opts.DisableSourceMaps
	if opts.DisableLicenseHeader {
		license = ""
	}
	return Request{
		Entry:     entry,
		Defines:   d,
		Alias:     target.AliasTable(target.VariantOf(d)),
		SourceMap: sourceMaps,
		License:   license,
		Legacy:    !d.Bool(defines.SkipBabel),
	}
}

// Passes returns the post-processing sequence for an entry kind.
func Passes(e Entry) []patch.Pass {
	switch e.Kind {
	case defines.KindUMD:
		return patch.LibraryPasses(e.AMDName, e.Global)
	case defines.KindApp:
		return patch.AppPasses()
	default:
		return nil
	}
}

// Build runs the bundler and applies the entry's post-processing passes.
func Build(ctx context.Context, b Bundler, req Request) (*Result, error) {
	res, err := b.Bundle(ctx, req)
	if err != nil {
		if ferrors.IsClassified(err) {
			return nil, err
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryExternalTool, "bundler failed").
			Fatal().
			WithContext("entry", req.Entry.Name).
			Build()
	}
	out := &Result{
		Code:      patch.Chain(res.Code, Passes(req.Entry)...),
		SourceMap: res.SourceMap,
	}
	return out, nil
}

// Write stores the artifact (and its source map, when present) under dir.
// It returns the path of the code file.
func Write(dir string, e Entry, res *Result) (string, error) {
	dest := filepath.Join(dir, filepath.FromSlash(e.OutputPath()))
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(dest, res.Code, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", e.Output, err)
	}
	if len(res.SourceMap) > 0 {
		if err := os.WriteFile(dest+".map", res.SourceMap, 0o600); err != nil {
			return "", fmt.Errorf("write %s.map: %w", e.Output, err)
		}
	}
	return dest, nil
}
