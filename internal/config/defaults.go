package config

import (
	"git.home.luguber.info/inful/assetforge/internal/assets"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// ProjectDefaultApplier handles Project configuration defaults.
type ProjectDefaultApplier struct{}

func (p *ProjectDefaultApplier) Domain() string { return "project" }

func (p *ProjectDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Project.Root == "" {
		cfg.Project.Root = "."
	}
	if cfg.Project.VersionFile == "" {
		cfg.Project.VersionFile = "pdfjs.config"
	}
	if cfg.Project.L10nDir == "" {
		cfg.Project.L10nDir = "l10n"
	}
	if cfg.Project.LicenseHeader == "" {
		cfg.Project.LicenseHeader = "src/license_header_libre.js"
	}
	if cfg.Project.HTMLPage == "" {
		cfg.Project.HTMLPage = "web/viewer.html"
	}
	if cfg.Project.Stylesheet == "" {
		cfg.Project.Stylesheet = "web/viewer.css"
	}
	return nil
}

// BuildDefaultApplier handles Build configuration defaults.
type BuildDefaultApplier struct{}

func (b *BuildDefaultApplier) Domain() string { return "build" }

func (b *BuildDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	if cfg.Build.Dir == "" {
		cfg.Build.Dir = "build"
	}
	if cfg.Build.Concurrency <= 0 {
		cfg.Build.Concurrency = 4
	}
	if cfg.Build.DefineNamespace == "" {
		cfg.Build.DefineNamespace = "PDFJSDev"
	}
	return nil
}

// TargetDefaultApplier selects the generic target when none is configured.
type TargetDefaultApplier struct{}

func (t *TargetDefaultApplier) Domain() string { return "targets" }

func (t *TargetDefaultApplier) ApplyDefaults(cfg *Config) error {
	if len(cfg.Targets) == 0 {
		cfg.Targets = []TargetConfig{{Name: "generic"}}
	}
	return nil
}

// PreferencesDefaultApplier handles Preferences configuration defaults.
type PreferencesDefaultApplier struct{}

func (p *PreferencesDefaultApplier) Domain() string { return "preferences" }

func (p *PreferencesDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Preferences.Entry == "" {
		cfg.Preferences.Entry = "app_options"
	}
	if cfg.Preferences.Runtime == "" {
		cfg.Preferences.Runtime = "node"
	}
	return nil
}

// AssetDefaultApplier installs the standard static asset manifest.
type AssetDefaultApplier struct{}

func (a *AssetDefaultApplier) Domain() string { return "assets" }

func (a *AssetDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Assets == nil {
		cfg.Assets = assets.DefaultManifest()
	}
	return nil
}

func defaultAppliers() []DefaultApplier {
	return []DefaultApplier{
		&ProjectDefaultApplier{},
		&BuildDefaultApplier{},
		&TargetDefaultApplier{},
		&PreferencesDefaultApplier{},
		&AssetDefaultApplier{},
	}
}

func applyDefaults(cfg *Config) error {
	for _, a := range defaultAppliers() {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}
