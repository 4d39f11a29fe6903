package bundle

import (
	"maps"
	"path"

	"git.home.luguber.info/inful/assetforge/internal/defines"
)

// Entry is a named source-to-output mapping for one build artifact.
type Entry struct {
	Name    string       `yaml:"name"`
	Source  string       `yaml:"source"`   // root-relative entry module
	Output  string       `yaml:"output"`   // output file name
	OutDir  string       `yaml:"out_dir"`  // directory relative to the target dir
	AMDName string       `yaml:"amd_name"` // UMD library name
	Global  string       `yaml:"global"`   // stable global alias bound by the patcher
	Kind    defines.Kind `yaml:"kind"`
}

// OutputPath returns the artifact path relative to the target directory.
func (e Entry) OutputPath() string {
	return path.Join(e.OutDir, e.Output)
}

var standardEntries = map[string]Entry{
	"main": {
		Name:    "main",
		Source:  "src/pdf.js",
		Output:  "pdf.js",
		OutDir:  "build",
		AMDName: "pdfjs-dist/build/pdf",
		Global:  "pdfjsLib",
		Kind:    defines.KindUMD,
	},
	"worker": {
		Name:    "worker",
		Source:  "src/pdf.worker.js",
		Output:  "pdf.worker.js",
		OutDir:  "build",
		AMDName: "pdfjs-dist/build/pdf.worker",
		Global:  "pdfjsWorker",
		Kind:    defines.KindUMD,
	},
	"sandbox": {
		Name:    "sandbox",
		Source:  "src/pdf.sandbox.js",
		Output:  "pdf.sandbox.js",
		OutDir:  "build",
		AMDName: "pdfjs-dist/build/pdf.sandbox",
		Global:  "pdfjsSandbox",
		Kind:    defines.KindUMD,
	},
	"scripting": {
		Name:    "scripting",
		Source:  "src/pdf.scripting.js",
		Output:  "pdf.scripting.js",
		OutDir:  "build",
		AMDName: "pdfjs-dist/build/pdf.scripting",
		Global:  "pdfjsScripting",
		Kind:    defines.KindUMD,
	},
	"viewer": {
		Name:   "viewer",
		Source: "web/viewer.js",
		Output: "viewer.js",
		OutDir: "web",
		Kind:   defines.KindApp,
	},
	"app_options": {
		Name:   "app_options",
		Source: "web/app_options.js",
		Output: "app_options.mjs",
		Kind:   defines.KindModule,
	},
}

// StandardEntries returns a copy of the built-in entry descriptors keyed by name.
func StandardEntries() map[string]Entry {
	return maps.Clone(standardEntries)
}

// LookupEntry returns a built-in entry descriptor.
func LookupEntry(name string) (Entry, bool) {
	e, ok := standardEntries[name]
	return e, ok
}
