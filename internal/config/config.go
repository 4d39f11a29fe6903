// Package config loads assetforge's build configuration.
//
// Two files are involved. The project file (pdfjs.config, JSON) carries the version base and
// prefix shared with other tooling. assetforge.yaml describes directories, targets, entries and
// the static asset manifest; it is environment-expanded before decoding, and .env files are
// loaded first without overriding the process environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/assetforge/internal/assets"
	"git.home.luguber.info/inful/assetforge/internal/bundle"
	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
	"git.home.luguber.info/inful/assetforge/internal/target"
)

// CurrentVersion is the configuration schema version.
const CurrentVersion = "1"

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "assetforge.yaml"

// Config is the assetforge.yaml document.
type Config struct {
	Version     string            `yaml:"version"`
	Project     ProjectConfig     `yaml:"project"`
	Build       BuildConfig       `yaml:"build"`
	Targets     []TargetConfig    `yaml:"targets"`
	Entries     []bundle.Entry    `yaml:"entries,omitempty"` // added to or replacing the standard entries
	Preferences PreferencesConfig `yaml:"preferences"`
	Assets      assets.Manifest   `yaml:"assets,omitempty"`
}

// ProjectConfig locates the sources.
type ProjectConfig struct {
	Root          string `yaml:"root"`           // project root, other paths are relative to it
	VersionFile   string `yaml:"version_file"`   // JSON file with baseVersion / versionPrefix
	L10nDir       string `yaml:"l10n_dir"`       // localization root
	LicenseHeader string `yaml:"license_header"` // banner prepended to bundles
	HTMLPage      string `yaml:"html_page"`      // preprocessed into <target>/web/
	Stylesheet    string `yaml:"stylesheet"`     // preprocessed and post-processed into <target>/web/
}

// BuildConfig tunes the build itself.
type BuildConfig struct {
	Dir                string `yaml:"dir"`                  // build directory, relative to the root
	Concurrency        int    `yaml:"concurrency"`          // bundle tasks running at once
	DefineNamespace    string `yaml:"define_namespace"`     // prefix for define identifiers in sources
	DisableSourceMaps  bool   `yaml:"disable_source_maps"`  // never emit .map files
	KeepTemp           bool   `yaml:"keep_temp"`            // keep <dir>/tmp after the build
	DisableVersionInfo bool   `yaml:"disable_version_info"` // bundle version 0 / commit 0
}

// TargetConfig selects and customizes a build variant. A name matching a built-in target
// starts from its settings.
type TargetConfig struct {
	Name    string         `yaml:"name"`
	Dir     string         `yaml:"dir,omitempty"`
	Defines map[string]any `yaml:"defines,omitempty"`
	Entries []string       `yaml:"entries,omitempty"`
}

// PreferencesConfig controls default-preferences extraction.
type PreferencesConfig struct {
	Entry    string `yaml:"entry"`    // entry name of the preferences-declaration module
	Runtime  string `yaml:"runtime"`  // JavaScript runtime used to query it
	Disabled bool   `yaml:"disabled"` // skip extraction; DEFAULT_PREFERENCES stays empty
}

// Load reads path, expands environment references and applies defaults and validation.
func Load(path string) (*Config, error) {
	// #nosec G304 - path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ferrors.NewError(ferrors.CategoryNotFound, "configuration file not found").
				WithContext("path", path).
				Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "read configuration").
			Fatal().
			WithContext("path", path).
			Build()
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, ferrors.ConfigError("failed to parse configuration").
			WithContext("path", path).
			WithCause(err).
			Build()
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	slog.Debug("Loaded configuration", logfields.Path(path), logfields.Count(len(cfg.Targets)))
	return &cfg, nil
}

// LoadOrDefault behaves like Load but returns Default when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil && ferrors.HasCategory(err, ferrors.CategoryNotFound) {
		slog.Debug("No configuration file; using defaults", logfields.Path(path))
		return Default(), nil
	}
	return cfg, err
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	// the default appliers never fail on an empty config
	_ = applyDefaults(cfg)
	return cfg
}

// Init writes a default configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).
			Build()
	}

	cfg := Default()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	content := initHeader() + string(data)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write configuration").
			Fatal().
			WithContext("path", path).
			Build()
	}
	return nil
}

func initHeader() string {
	return `# assetforge configuration.
#
# Paths are relative to project.root. ${VAR} references are expanded from the
# environment (including .env and .env.local) before parsing.
#
# Targets: ` + strings.Join(target.Names(), ", ") + `, or any
# custom name that supplies its own defines.
`
}
