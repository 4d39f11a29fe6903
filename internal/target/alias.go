package target

import (
	"maps"

	"git.home.luguber.info/inful/assetforge/internal/defines"
)

// Variant selects which implementation files logical module names resolve to.
type Variant string

const (
	VariantLibrary    Variant = "library" // no viewer integration; network and node modules stubbed
	VariantGeneric    Variant = "generic"
	VariantChrome     Variant = "chrome"
	VariantMozCentral Variant = "mozcentral"
	VariantGeckoView  Variant = "geckoview"
)

// VariantOf derives the alias variant from a defines map. CHROME wins over GENERIC, which
// wins over MOZCENTRAL.
func VariantOf(d defines.Map) Variant {
	switch {
	case d.Bool(defines.Chrome):
		return VariantChrome
	case d.Bool(defines.Generic):
		return VariantGeneric
	case d.Bool(defines.MozCentral) && d.Bool(defines.GeckoView):
		return VariantGeckoView
	case d.Bool(defines.MozCentral):
		return VariantMozCentral
	default:
		return VariantLibrary
	}
}

const displayStubs = "src/display/stubs.js"

var basicAlias = map[string]string{
	"pdfjs":     "src",
	"pdfjs-web": "web",
	"pdfjs-lib": "web/pdfjs",
}

var libraryAlias = map[string]string{
	"display-fetch_stream": displayStubs,
	"display-l10n_utils":   displayStubs,
	"display-network":      displayStubs,
	"display-node_stream":  displayStubs,
	"display-node_utils":   displayStubs,
	"display-svg":          displayStubs,
}

var viewerAlias = map[string]string{
	"web-alt_text_manager":         "web/alt_text_manager.js",
	"web-annotation_editor_params": "web/annotation_editor_params.js",
	"web-com":                      "",
	"web-pdf_attachment_viewer":    "web/pdf_attachment_viewer.js",
	"web-pdf_cursor_tools":         "web/pdf_cursor_tools.js",
	"web-pdf_document_properties":  "web/pdf_document_properties.js",
	"web-pdf_find_bar":             "web/pdf_find_bar.js",
	"web-pdf_layer_viewer":         "web/pdf_layer_viewer.js",
	"web-pdf_outline_viewer":       "web/pdf_outline_viewer.js",
	"web-pdf_presentation_mode":    "web/pdf_presentation_mode.js",
	"web-pdf_sidebar":              "web/pdf_sidebar.js",
	"web-pdf_thumbnail_viewer":     "web/pdf_thumbnail_viewer.js",
	"web-print_service":            "",
	"web-secondary_toolbar":        "web/secondary_toolbar.js",
	"web-toolbar":                  "web/toolbar.js",
}

// per-variant overlays on libraryAlias
var libraryOverlay = map[Variant]map[string]string{
	VariantChrome: {
		"display-fetch_stream": "src/display/fetch_stream.js",
		"display-network":      "src/display/network.js",
	},
	VariantGeneric: {
		"display-fetch_stream": "src/display/fetch_stream.js",
		"display-l10n_utils":   "web/l10n_utils.js",
		"display-network":      "src/display/network.js",
		"display-node_stream":  "src/display/node_stream.js",
		"display-node_utils":   "src/display/node_utils.js",
		"display-svg":          "src/display/svg.js",
	},
}

// per-variant overlays on viewerAlias
var viewerOverlay = map[Variant]map[string]string{
	VariantChrome: {
		"web-com":           "web/chromecom.js",
		"web-print_service": "web/pdf_print_service.js",
	},
	VariantGeneric: {
		"web-com":           "web/genericcom.js",
		"web-print_service": "web/pdf_print_service.js",
	},
	VariantMozCentral: {
		"web-com":           "web/firefoxcom.js",
		"web-print_service": "web/firefox_print_service.js",
	},
}

const geckoViewStubs = "web/stubs-geckoview.js"

var geckoViewKeep = map[string]string{
	"web-toolbar": "web/toolbar-geckoview.js",
}

// AliasTable returns the logical-name to root-relative path table for a variant.
// Names mapped to an empty path are omitted, so the bundler reports them as unresolved.
func AliasTable(v Variant) map[string]string {
	lib := maps.Clone(libraryAlias)
	maps.Copy(lib, libraryOverlay[v])

	viewer := maps.Clone(viewerAlias)
	if v == VariantGeckoView {
		for k := range viewer {
			if keep, ok := geckoViewKeep[k]; ok {
				viewer[k] = keep
			} else {
				viewer[k] = geckoViewStubs
			}
		}
		maps.Copy(viewer, viewerOverlay[VariantMozCentral])
	} else {
		maps.Copy(viewer, viewerOverlay[v])
	}

	out := make(map[string]string, len(basicAlias)+len(lib)+len(viewer))
	for _, m := range []map[string]string{basicAlias, lib, viewer} {
		for k, path := range m {
			if path == "" {
				continue
			}
			out[k] = path
		}
	}
	return out
}
