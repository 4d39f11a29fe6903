package config

import (
	"fmt"

	"git.home.luguber.info/inful/assetforge/internal/defines"
	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
)

// ValidateConfig validates the complete configuration structure.
func ValidateConfig(cfg *Config) error {
	validator := newConfigurationValidator(cfg)
	return validator.validate()
}

// configurationValidator coordinates validation across all configuration domains.
type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

func (cv *configurationValidator) validate() error {
	if cv.config.Version != CurrentVersion {
		return ferrors.ConfigError(fmt.Sprintf("unsupported configuration version %q (expected %s)", cv.config.Version, CurrentVersion)).Build()
	}
	if err := cv.validateBuild(); err != nil {
		return err
	}
	if err := cv.validateEntries(); err != nil {
		return err
	}
	if err := cv.validateTargets(); err != nil {
		return err
	}
	return cv.validateAssets()
}

func (cv *configurationValidator) validateBuild() error {
	if cv.config.Build.Concurrency <= 0 {
		return ferrors.ConfigError("build.concurrency must be positive").Build()
	}
	return nil
}

func (cv *configurationValidator) validateEntries() error {
	seen := map[string]bool{}
	for i, e := range cv.config.Entries {
		if e.Name == "" {
			return ferrors.ConfigError("entry needs a name").WithContext("index", i).Build()
		}
		if seen[e.Name] {
			return ferrors.ConfigError("duplicate entry").WithContext("entry", e.Name).Build()
		}
		seen[e.Name] = true
		if e.Source == "" || e.Output == "" {
			return ferrors.ConfigError("entry needs source and output").WithContext("entry", e.Name).Build()
		}
		switch e.Kind {
		case defines.KindUMD:
			if e.AMDName == "" || e.Global == "" {
				return ferrors.ConfigError("umd entry needs amd_name and global").WithContext("entry", e.Name).Build()
			}
		case defines.KindModule, defines.KindApp:
		default:
			return ferrors.ConfigError("unknown entry kind").
				WithContext("entry", e.Name).
				WithContext("kind", string(e.Kind)).
				Build()
		}
	}
	return nil
}

func (cv *configurationValidator) validateTargets() error {
	seen := map[string]bool{}
	for i, t := range cv.config.Targets {
		if t.Name == "" {
			return ferrors.ConfigError("target needs a name").WithContext("index", i).Build()
		}
		if seen[t.Name] {
			return ferrors.ConfigError("duplicate target").WithContext("target", t.Name).Build()
		}
		seen[t.Name] = true
	}
	return nil
}

func (cv *configurationValidator) validateAssets() error {
	for i, r := range cv.config.Assets {
		if len(r.Patterns) == 0 {
			return ferrors.ConfigError("asset rule has no patterns").WithContext("index", i).Build()
		}
	}
	return nil
}
