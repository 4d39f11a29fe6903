// Package preprocess expands the conditional directives embedded in the viewer's HTML and CSS
// sources.
//
// Directives live alone on a line inside the language's comment syntax:
//
//	<!--#if GENERIC-->          /*#if GENERIC && !CHROME*/
//	<!--#include extra.html-->  /*#elif MOZCENTRAL*/
//	<!--#expand __BUNDLE_VERSION__-->
//	<!--#else-->  <!--#endif-->
//
// #include paths are relative to the including file. #expand emits its argument with every
// __KEY__ placeholder replaced by the define's value.
package preprocess

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/assetforge/internal/defines"
	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
)

// Lang selects the comment syntax directives are written in.
type Lang int

const (
	HTML Lang = iota
	CSS
)

var (
	htmlDirective = regexp.MustCompile(`^\s*<!--\s*#(\w+)(?:\s+(.*?))?\s*-->\s*$`)
	cssDirective  = regexp.MustCompile(`^\s*/\*\s*#(\w+)(?:\s+(.*?))?\s*\*/\s*$`)
	placeholder   = regexp.MustCompile(`__(\w+)__`)

	// Copyright headers after the first one, left behind by #include.
	nestedLicense = regexp.MustCompile(`(?s)\n/\* Copyright.*?Mozilla Foundation.*?\*/`)
)

const maxIncludeDepth = 16

// LangFor picks the language from a file extension.
func LangFor(path string) (Lang, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return HTML, nil
	case ".css":
		return CSS, nil
	default:
		return 0, ferrors.ValidationError("unsupported preprocess source").WithContext("path", path).Build()
	}
}

// Processor expands directives against one defines map.
type Processor struct {
	defines defines.Map
	eval    *Evaluator
}

// New returns a Processor for d.
func New(d defines.Map) *Processor {
	return &Processor{defines: d, eval: NewEvaluator(d)}
}

type frame struct {
	parentActive bool
	active       bool
	taken        bool
	seenElse     bool
}

// File preprocesses the file at path.
func (p *Processor) File(path string) ([]byte, error) {
	lang, err := LangFor(path)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := p.file(&out, path, lang, 0); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (p *Processor) file(out *bytes.Buffer, path string, lang Lang, depth int) error {
	if depth > maxIncludeDepth {
		return p.fail(path, 0, "includes nested too deeply")
	}
	// #nosec G304 - sources come from the project tree
	src, err := os.ReadFile(path)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "read preprocess source").
			Fatal().
			WithContext("path", path).
			Build()
	}
	return p.expand(out, src, path, lang, depth)
}

func (p *Processor) expand(out *bytes.Buffer, src []byte, path string, lang Lang, depth int) error {
	directive := htmlDirective
	if lang == CSS {
		directive = cssDirective
	}

	var stack []frame
	active := func() bool {
		if len(stack) == 0 {
			return true
		}
		return stack[len(stack)-1].active
	}

	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		m := directive.FindStringSubmatch(line)
		if m == nil {
			if active() {
				out.WriteString(line)
				out.WriteByte('\n')
			}
			continue
		}

		name, arg := m[1], m[2]
		switch name {
		case "if":
			parent := active()
			f := frame{parentActive: parent}
			if parent {
				ok, err := p.eval.Eval(arg)
				if err != nil {
					return p.fail(path, lineNo, err.Error())
				}
				f.active, f.taken = ok, ok
			}
			stack = append(stack, f)
		case "elif":
			if len(stack) == 0 {
				return p.fail(path, lineNo, "#elif without #if")
			}
			f := &stack[len(stack)-1]
			if f.seenElse {
				return p.fail(path, lineNo, "#elif after #else")
			}
			f.active = false
			if f.parentActive && !f.taken {
				ok, err := p.eval.Eval(arg)
				if err != nil {
					return p.fail(path, lineNo, err.Error())
				}
				f.active, f.taken = ok, ok
			}
		case "else":
			if len(stack) == 0 {
				return p.fail(path, lineNo, "#else without #if")
			}
			f := &stack[len(stack)-1]
			if f.seenElse {
				return p.fail(path, lineNo, "duplicate #else")
			}
			f.seenElse = true
			f.active = f.parentActive && !f.taken
			f.taken = true
		case "endif":
			if len(stack) == 0 {
				return p.fail(path, lineNo, "#endif without #if")
			}
			stack = stack[:len(stack)-1]
		case "include":
			if !active() {
				continue
			}
			if arg == "" {
				return p.fail(path, lineNo, "#include needs a path")
			}
			inc := filepath.Join(filepath.Dir(path), filepath.FromSlash(strings.Trim(arg, `"'`)))
			if err := p.file(out, inc, lang, depth+1); err != nil {
				return err
			}
		case "expand":
			if active() {
				out.WriteString(p.expandPlaceholders(arg))
				out.WriteByte('\n')
			}
		default:
			return p.fail(path, lineNo, fmt.Sprintf("unknown directive #%s", name))
		}
	}
	if err := sc.Err(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryBuild, "scan preprocess source").
			Fatal().
			WithContext("path", path).
			Build()
	}
	if len(stack) > 0 {
		return p.fail(path, lineNo, "unterminated #if")
	}
	return nil
}

func (p *Processor) expandPlaceholders(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		key := m[2 : len(m)-2]
		v, ok := p.defines.Get(key)
		if !ok {
			return m
		}
		if v == nil {
			return ""
		}
		return fmt.Sprint(v)
	})
}

func (p *Processor) fail(path string, line int, msg string) error {
	return ferrors.BuildError("preprocess: "+msg).
		WithContext("path", path).
		WithContext("line", line).
		Build()
}

// HTMLPage preprocesses an HTML page and normalizes it to end with exactly one newline.
func (p *Processor) HTMLPage(path string) ([]byte, error) {
	out, err := p.File(path)
	if err != nil {
		return nil, err
	}
	return append(bytes.TrimRight(out, " \t\r\n"), '\n'), nil
}

// Stylesheet preprocesses a stylesheet and drops every license header except the leading one.
func (p *Processor) Stylesheet(path string) ([]byte, error) {
	out, err := p.File(path)
	if err != nil {
		return nil, err
	}
	return StripNestedLicenses(out), nil
}

// StripNestedLicenses removes copyright blocks that do not start the file.
func StripNestedLicenses(src []byte) []byte {
	return nestedLicense.ReplaceAll(src, nil)
}
