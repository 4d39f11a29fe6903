package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/assetforge/internal/defines"
	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
)

// umdExports is the variable the IIFE stores the entry's exports in before the UMD factory
// returns them.
const umdExports = "__umd_exports__"

// LegacyEngines is the browser/runtime floor for targets that lower syntax.
var LegacyEngines = []api.Engine{
	{Name: api.EngineChrome, Version: "92"},
	{Name: api.EngineFirefox, Version: "115"},
	{Name: api.EngineSafari, Version: "15.4"},
	{Name: api.EngineNode, Version: "18"},
}

// ESBuild bundles entries in-process with esbuild.
type ESBuild struct {
	// Root is the absolute project root; entry sources and alias paths are relative to it.
	Root string
	// DefineNamespace prefixes every define key, e.g. "PDFJSDev" turns GENERIC into
	// PDFJSDev.GENERIC. Empty means bare identifiers.
	DefineNamespace string
	// Engines overrides LegacyEngines for legacy requests.
	Engines []api.Engine
}

// NewESBuild returns an esbuild-backed Bundler rooted at root.
func NewESBuild(root, defineNamespace string) *ESBuild {
	return &ESBuild{Root: root, DefineNamespace: defineNamespace}
}

// UMDHeader returns the universal module definition preamble for amdName. The four factory
// call sites are the shapes the export patcher rewrites.
func UMDHeader(amdName string) string {
	return fmt.Sprintf(`(function universalModuleDefinition(root, factory) {
	if(typeof exports === 'object' && typeof module === 'object')
		module.exports = factory();
	else if(typeof define === 'function' && define.amd)
		define(%[1]q, [], factory);
	else if(typeof exports === 'object')
		exports[%[1]q] = factory();
	else
		root[%[1]q] = factory();
})(globalThis, () => {
`, amdName)
}

// UMDFooter closes UMDHeader.
const UMDFooter = "return " + umdExports + ";\n});"

// Bundle implements Bundler.
func (e *ESBuild) Bundle(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defs, err := ESBuildDefines(req.Defines, e.DefineNamespace)
	if err != nil {
		return nil, err
	}

	alias := make(map[string]string, len(req.Alias))
	for name, rel := range req.Alias {
		alias[name] = filepath.Join(e.Root, filepath.FromSlash(rel))
	}

	opts := api.BuildOptions{
		EntryPoints:   []string{filepath.Join(e.Root, filepath.FromSlash(req.Entry.Source))},
		AbsWorkingDir: e.Root,
		Outfile:       e.outfile(req),
		Bundle:        true,
		Write:         false,
		Define:        defs,
		Alias:         alias,
		Charset:       api.CharsetUTF8,
		LogLevel:      api.LogLevelSilent,
		Platform:      api.PlatformBrowser,
	}
	if req.Legacy {
		opts.Engines = e.engines()
	} else {
		opts.Target = api.ESNext
	}
	if req.SourceMap {
		opts.Sourcemap = api.SourceMapLinked
	}

	switch req.Entry.Kind {
	case defines.KindUMD:
		opts.Format = api.FormatIIFE
		opts.GlobalName = umdExports
		opts.Banner = map[string]string{"js": req.License + UMDHeader(req.Entry.AMDName)}
		opts.Footer = map[string]string{"js": UMDFooter}
	case defines.KindModule:
		opts.Format = api.FormatESModule
		opts.Platform = api.PlatformNeutral
		if req.License != "" {
			opts.Banner = map[string]string{"js": req.License}
		}
	default:
		opts.Format = api.FormatIIFE
		if req.License != "" {
			opts.Banner = map[string]string{"js": req.License}
		}
	}

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return nil, ferrors.ExternalToolError("esbuild failed").
			WithContext("entry", req.Entry.Name).
			WithContext("errors", len(result.Errors)).
			WithCause(errors.New(strings.Join(msgs, ""))).
			Build()
	}

	res := &Result{}
	for _, f := range result.OutputFiles {
		if strings.HasSuffix(f.Path, ".map") {
			res.SourceMap = f.Contents
			continue
		}
		res.Code = f.Contents
	}
	return res, nil
}

// outfile is where the artifact will live. esbuild never writes it, but source map paths are
// computed relative to it.
func (e *ESBuild) outfile(req Request) string {
	if req.OutDir == "" {
		return filepath.Join(e.Root, "out", req.Entry.Output)
	}
	out := filepath.Join(req.OutDir, filepath.FromSlash(req.Entry.OutputPath()))
	if abs, err := filepath.Abs(out); err == nil {
		return abs
	}
	return out
}

func (e *ESBuild) engines() []api.Engine {
	if len(e.Engines) > 0 {
		return e.Engines
	}
	return LegacyEngines
}

// ESBuildDefines converts a defines map to esbuild define expressions. Values are JSON
// encoded; nil becomes undefined.
func ESBuildDefines(d defines.Map, namespace string) (map[string]string, error) {
	out := make(map[string]string, d.Len())
	for _, key := range d.Keys() {
		v, _ := d.Get(key)
		expr := "undefined"
		if v != nil {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, ferrors.ConfigError("define value is not serializable").
					WithContext("key", key).
					WithCause(err).
					Build()
			}
			expr = string(b)
		}
		name := key
		if namespace != "" {
			name = namespace + "." + key
		}
		out[name] = expr
	}
	return out, nil
}
