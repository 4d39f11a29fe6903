package config

import (
	"encoding/json"
	"os"

	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
)

// Project is the JSON project file shared with the rest of the toolchain.
type Project struct {
	BaseVersion   string `json:"baseVersion"`
	VersionPrefix string `json:"versionPrefix"`
}

// LoadProject reads the project file at path.
func LoadProject(path string) (Project, error) {
	var p Project
	// #nosec G304 - path comes from configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return p, ferrors.WrapError(err, ferrors.CategoryConfig, "read project file").
			Fatal().
			WithContext("path", path).
			Build()
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, ferrors.ConfigError("failed to parse project file").
			WithContext("path", path).
			WithCause(err).
			Build()
	}
	return p, nil
}
