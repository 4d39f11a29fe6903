// Package assets copies static files (fonts, character maps, images, license texts) into a
// target's output tree verbatim.
package assets

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
)

// Rule copies every file matched by Patterns into Dest. Patterns are root-relative and may
// contain glob metacharacters and one {a,b} alternation. A pattern without metacharacters
// names a required file.
type Rule struct {
	Patterns []string `yaml:"patterns"`
	Dest     string   `yaml:"dest"` // relative to the target directory
}

// Manifest is an ordered list of copy rules.
type Manifest []Rule

// DefaultManifest mirrors the viewer distribution layout.
func DefaultManifest() Manifest {
	return Manifest{
		{Patterns: []string{"LICENSE"}, Dest: "."},
		{Patterns: []string{"web/images/*.{png,svg,gif}", "web/debugger.{css,js}", "web/compressed.*.pdf"}, Dest: "web"},
		{Patterns: []string{"external/bcmaps/*.bcmap", "external/bcmaps/LICENSE"}, Dest: "web/cmaps"},
		{Patterns: []string{
			"external/standard_fonts/*.pfb",
			"external/standard_fonts/*.ttf",
			"external/standard_fonts/LICENSE_FOXIT",
			"external/standard_fonts/LICENSE_LIBERATION",
		}, Dest: "web/standard_fonts"},
	}
}

// Copied is one file placed by Collect.
type Copied struct {
	Source string
	Dest   string
	Bytes  int64
}

// ExpandBraces expands a single {a,b,c} alternation.
func ExpandBraces(pattern string) []string {
	open := strings.IndexByte(pattern, '{')
	if open < 0 {
		return []string{pattern}
	}
	closing := strings.IndexByte(pattern[open:], '}')
	if closing < 0 {
		return []string{pattern}
	}
	closing += open
	prefix, suffix := pattern[:open], pattern[closing+1:]
	alts := strings.Split(pattern[open+1:closing], ",")
	out := make([]string, 0, len(alts))
	for _, alt := range alts {
		out = append(out, ExpandBraces(prefix+alt+suffix)...)
	}
	return out
}

func isLiteral(pattern string) bool {
	return !strings.ContainsAny(pattern, `*?[\`)
}

// Resolve returns the root-relative files a rule selects, sorted and without duplicates.
// A literal file that does not exist is an error; an unmatched glob is not.
func (r Rule) Resolve(root string) ([]string, error) {
	seen := map[string]struct{}{}
	var files []string
	for _, p := range r.Patterns {
		for _, pattern := range ExpandBraces(p) {
			full := filepath.Join(root, filepath.FromSlash(pattern))
			if isLiteral(pattern) {
				fi, err := os.Stat(full)
				if err != nil || !fi.Mode().IsRegular() {
					return nil, ferrors.FileSystemError("static asset not found").
						WithContext("path", pattern).
						Build()
				}
				if _, ok := seen[full]; !ok {
					seen[full] = struct{}{}
					files = append(files, full)
				}
				continue
			}
			matches, err := filepath.Glob(full)
			if err != nil {
				return nil, ferrors.ConfigError("invalid asset pattern").
					WithContext("pattern", pattern).
					WithCause(err).
					Build()
			}
			for _, m := range matches {
				fi, err := os.Stat(m)
				if err != nil || !fi.Mode().IsRegular() {
					continue
				}
				if _, ok := seen[m]; !ok {
					seen[m] = struct{}{}
					files = append(files, m)
				}
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// Collect copies every file selected by m from root into targetDir. All rules are resolved
// before the first copy so a missing required file leaves the tree untouched.
func Collect(m Manifest, root, targetDir string) ([]Copied, error) {
	plans := make([][]string, len(m))
	for i, r := range m {
		files, err := r.Resolve(root)
		if err != nil {
			return nil, err
		}
		plans[i] = files
	}

	var copied []Copied
	for i, r := range m {
		destDir := filepath.Join(targetDir, filepath.FromSlash(r.Dest))
		if err := os.MkdirAll(destDir, 0o750); err != nil {
			return copied, ferrors.WrapError(err, ferrors.CategoryFileSystem, "create asset directory").
				Fatal().
				WithContext("path", destDir).
				Build()
		}
		for _, src := range plans[i] {
			dst := filepath.Join(destDir, filepath.Base(src))
			n, err := copyFile(src, dst)
			if err != nil {
				return copied, ferrors.WrapError(err, ferrors.CategoryFileSystem, "copy static asset").
					Fatal().
					WithContext("path", src).
					Build()
			}
			copied = append(copied, Copied{Source: src, Dest: dst, Bytes: n})
		}
	}
	slog.Debug("Copied static assets", logfields.Path(targetDir), logfields.Count(len(copied)))
	return copied, nil
}

func copyFile(src, dst string) (int64, error) {
	// #nosec G304 - src is resolved from the asset manifest under the project root
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return n, err
	}
	return n, out.Close()
}
