package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/assetforge/internal/logfields"
)

// envFiles are tried in order; earlier files win because nothing is overwritten.
var envFiles = []string{".env.local", ".env"}

// LoadEnv loads .env.local and .env from dir into the process environment. Variables that are
// already set keep their value. It returns the files that were loaded.
func LoadEnv(dir string) ([]string, error) {
	var loaded []string
	for _, name := range envFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, err
		}
		slog.Debug("Loaded environment variables", logfields.File(path))
		loaded = append(loaded, path)
	}
	return loaded, nil
}
