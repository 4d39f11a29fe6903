// Package locale validates localization directories and assembles the viewer's locale index.
package locale

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
)

const (
	// ViewerStrings is the per-locale string file.
	ViewerStrings = "viewer.properties"
	// IndexFile aggregates every locale's string file.
	IndexFile = "locale.properties"
)

var codePattern = regexp.MustCompile(`^[a-z][a-z]([a-z])?(-[A-Z][A-Z])?$`)

// ValidCode reports whether name is a locale code of the form xx, xxx or xx-YY.
func ValidCode(name string) bool {
	return codePattern.MatchString(name)
}

// Entry is one accepted locale directory.
type Entry struct {
	Code             string
	Dir              string
	HasViewerStrings bool
}

// Collection is the result of scanning a localization root.
type Collection struct {
	Entries []Entry
	// Skipped lists directory names rejected by ValidCode.
	Skipped []string
}

// Codes returns the accepted locale codes in order.
func (c Collection) Codes() []string {
	out := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = e.Code
	}
	return out
}

// Collect lists the subdirectories of root in sorted order. Names that are not locale codes
// are skipped with a warning; they never fail the scan.
func Collect(root string) (Collection, error) {
	dirents, err := os.ReadDir(root)
	if err != nil {
		return Collection{}, ferrors.WrapError(err, ferrors.CategoryLocale, "read localization root").
			Fatal().
			WithContext("path", root).
			Build()
	}

	names := make([]string, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() {
			names = append(names, d.Name())
		}
	}
	sort.Strings(names)

	var c Collection
	for _, name := range names {
		if !ValidCode(name) {
			warn := ferrors.InvalidLocaleName("Skipping invalid locale").WithContext("locale", name).Build()
			slog.Warn(warn.Message(), logfields.Locale(name))
			c.Skipped = append(c.Skipped, name)
			continue
		}
		dir := filepath.Join(root, name)
		c.Entries = append(c.Entries, Entry{
			Code:             name,
			Dir:              dir,
			HasViewerStrings: isFile(filepath.Join(dir, ViewerStrings)),
		})
	}
	return c, nil
}

// Index renders the aggregate index: one import block per locale that has viewer strings.
func Index(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		if !e.HasViewerStrings {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n@import url(%s/%s)\n\n", e.Code, e.Code, ViewerStrings)
	}
	return b.String()
}

// Emit writes the index to outDir and copies each locale's string file to outDir/<code>/.
// outDir is recreated from scratch.
func Emit(c Collection, outDir string) error {
	if err := os.RemoveAll(outDir); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "clear locale output").Fatal().Build()
	}
	for _, e := range c.Entries {
		dest := filepath.Join(outDir, e.Code)
		if err := os.MkdirAll(dest, 0o750); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create locale directory").
				Fatal().
				WithContext("locale", e.Code).
				Build()
		}
		if !e.HasViewerStrings {
			continue
		}
		if err := copyFile(filepath.Join(e.Dir, ViewerStrings), filepath.Join(dest, ViewerStrings)); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "copy locale strings").
				Fatal().
				WithContext("locale", e.Code).
				Build()
		}
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create locale output").Fatal().Build()
	}
	index := filepath.Join(outDir, IndexFile)
	if err := os.WriteFile(index, []byte(Index(c.Entries)), 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write locale index").
			Fatal().
			WithContext("path", index).
			Build()
	}
	slog.Info("Built localization files", logfields.Path(outDir), logfields.Count(len(c.Entries)))
	return nil
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

func copyFile(src, dst string) error {
	// #nosec G304 - src is inside the configured localization root
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
