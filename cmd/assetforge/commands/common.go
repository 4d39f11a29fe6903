package commands

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/assetforge/internal/config"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config   string           `short:"c" help:"Configuration file path" default:"assetforge.yaml" env:"ASSETFORGE_CONFIG"`
	Verbose  bool             `short:"v" help:"Enable verbose logging"`
	LogLevel string           `name:"log-level" help:"Log level (debug, info, warn, error)" env:"ASSETFORGE_LOG_LEVEL"`
	Version  kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build        BuildCmd   `cmd:"" help:"Build one or more targets (all configured targets by default)"`
	Locale       LocaleCmd  `cmd:"" help:"Collect localization files and write the locale index"`
	BuildVersion VersionCmd `cmd:"" name:"version" help:"Compute the version descriptor and write version.json"`
	Prefs        PrefsCmd   `cmd:"" help:"Extract the default preferences table of a target"`
	Init         InitCmd    `cmd:"" help:"Initialize a new configuration file"`
	Watch        WatchCmd   `cmd:"" help:"Rebuild targets whenever sources change"`
}

// AfterApply runs after flag parsing; sets up logging and loads .env files once.
func (c *CLI) AfterApply() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.level()})))

	if _, err := config.LoadEnv(filepath.Dir(c.Config)); err != nil {
		slog.Warn("Failed to load .env files", logfields.Error(err))
	}
	return nil
}

// level resolves the log level: -v wins, then --log-level / ASSETFORGE_LOG_LEVEL.
func (c *CLI) level() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig reads the configuration file, falling back to defaults when it is absent.
func (c *CLI) loadConfig() (*config.Config, error) {
	return config.LoadOrDefault(c.Config)
}
