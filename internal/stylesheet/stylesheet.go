// Package stylesheet post-processes the viewer stylesheet: nesting is flattened and vendor
// prefixes are added for the target engines.
package stylesheet

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/assetforge/internal/bundle"
	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
)

// Processor is the CSS post-processing chain.
type Processor interface {
	Process(ctx context.Context, src []byte, name string) ([]byte, error)
}

// Func adapts a function to Processor.
type Func func(ctx context.Context, src []byte, name string) ([]byte, error)

// Process implements Processor.
func (f Func) Process(ctx context.Context, src []byte, name string) ([]byte, error) {
	return f(ctx, src, name)
}

// ESBuildProcessor lowers CSS with esbuild's transform API.
type ESBuildProcessor struct {
	// Engines defaults to bundle.LegacyEngines.
	Engines []api.Engine
}

// Process implements Processor. A leading comment block (the license header) is kept verbatim.
func (p ESBuildProcessor) Process(ctx context.Context, src []byte, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	header, body := splitHeader(src)

	engines := p.Engines
	if len(engines) == 0 {
		engines = bundle.LegacyEngines
	}
	result := api.Transform(string(body), api.TransformOptions{
		Loader:     api.LoaderCSS,
		Engines:    engines,
		Sourcefile: name,
		Charset:    api.CharsetUTF8,
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return nil, ferrors.ExternalToolError("css post-processing failed").
			WithContext("file", name).
			WithCause(errors.New(strings.Join(msgs, ""))).
			Build()
	}

	var out bytes.Buffer
	out.Grow(len(header) + len(result.Code))
	out.Write(header)
	out.Write(result.Code)
	return out.Bytes(), nil
}

// splitHeader separates a leading /* ... */ block (plus its trailing newline) from the rest.
func splitHeader(src []byte) ([]byte, []byte) {
	if !bytes.HasPrefix(src, []byte("/*")) {
		return nil, src
	}
	end := bytes.Index(src[2:], []byte("*/"))
	if end < 0 {
		return nil, src
	}
	end += 4
	if end < len(src) && src[end] == '\n' {
		end++
	}
	return src[:end], src[end:]
}
