// Package patch rewrites bundler output so artifacts stay usable outside the module system
// that produced them.
//
// The rewrite rules form a closed table of literal (pattern, replacement) pairs. Nothing here
// parses JavaScript: a wrapper shape that is not listed is left untouched.
package patch

import (
	"bytes"
	"fmt"
)

const (
	requireHelper        = "__webpack_require__"
	requireReplacement   = "__w_pdfjs_require__"
	nonBundlerImport     = "__non_webpack_import__"
	nonBundlerImportRepl = "import"
)

// Rule is one literal substitution.
type Rule struct {
	Pattern     string
	Replacement string
}

// Pass is a single text transform over a whole artifact.
type Pass func([]byte) []byte

// GlobalExportRules returns the four UMD wrapper substitutions that additionally bind the
// factory result to root.<globalAlias>. amdName is the library name the wrapper was generated
// with.
func GlobalExportRules(amdName, globalAlias string) []Rule {
	return []Rule{
		{
			Pattern:     "module.exports = factory();",
			Replacement: fmt.Sprintf("module.exports = root.%s = factory();", globalAlias),
		},
		{
			Pattern:     fmt.Sprintf(`define(%q, [], factory);`, amdName),
			Replacement: fmt.Sprintf(`define(%q, [], () => { return (root.%s = factory()); });`, amdName, globalAlias),
		},
		{
			Pattern:     fmt.Sprintf(`exports[%q] = factory();`, amdName),
			Replacement: fmt.Sprintf(`exports[%q] = root.%s = factory();`, amdName, globalAlias),
		},
		{
			Pattern:     fmt.Sprintf(`root[%q] = factory();`, amdName),
			Replacement: fmt.Sprintf(`root[%q] = root.%s = factory();`, amdName, globalAlias),
		},
	}
}

// Apply performs every rule in a single left-to-right scan. At each position the first rule
// whose pattern matches wins, and replaced text is never rescanned, so already-patched output
// is left as is.
func Apply(src []byte, rules []Rule) []byte {
	if len(rules) == 0 {
		return src
	}
	var out bytes.Buffer
	out.Grow(len(src))
	i := 0
	last := 0
	for i < len(src) {
		matched := false
		for _, r := range rules {
			if r.Pattern == "" {
				continue
			}
			if bytes.HasPrefix(src[i:], []byte(r.Pattern)) {
				out.Write(src[last:i])
				out.WriteString(r.Replacement)
				i += len(r.Pattern)
				last = i
				matched = true
				break
			}
		}
		if !matched {
			i++
		}
	}
	if last == 0 {
		return src
	}
	out.Write(src[last:])
	return out.Bytes()
}

// RenameRequireHelper renames the bundler's module-require helper so the artifact can be
// bundled again by a consumer without colliding with the consumer's own helper.
func RenameRequireHelper(src []byte) []byte {
	return bytes.ReplaceAll(src, []byte(requireHelper), []byte(requireReplacement))
}

// RestoreNativeImport turns the placeholder for runtime import() back into the native form.
func RestoreNativeImport(src []byte) []byte {
	return bytes.ReplaceAll(src, []byte(nonBundlerImport), []byte(nonBundlerImportRepl))
}

// Patch applies the global-export rules for one artifact.
func Patch(src []byte, amdName, globalAlias string) []byte {
	return Apply(src, GlobalExportRules(amdName, globalAlias))
}

// GlobalExports returns Patch as a Pass.
func GlobalExports(amdName, globalAlias string) Pass {
	rules := GlobalExportRules(amdName, globalAlias)
	return func(src []byte) []byte { return Apply(src, rules) }
}

// Chain runs passes in order.
func Chain(src []byte, passes ...Pass) []byte {
	for _, p := range passes {
		src = p(src)
	}
	return src
}

// LibraryPasses is the fixed post-processing sequence for UMD library artifacts.
func LibraryPasses(amdName, globalAlias string) []Pass {
	return []Pass{RenameRequireHelper, RestoreNativeImport, GlobalExports(amdName, globalAlias)}
}

// AppPasses is the post-processing sequence for application scripts.
func AppPasses() []Pass {
	return []Pass{RestoreNativeImport}
}
