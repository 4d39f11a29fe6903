package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/assetforge/internal/config"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
	"git.home.luguber.info/inful/assetforge/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Targets  []string      `arg:"" optional:"" help:"Targets to rebuild (default: configured targets)"`
	Debounce time.Duration `help:"Quiet period before a rebuild starts" default:"300ms"`
	BuildOptions
}

func (w *WatchCmd) Run(_ *Global, root *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	// the configuration is reloaded on every rebuild so edits to it take effect
	rebuild := func(ctx context.Context) error {
		cfg, err := root.loadConfig()
		if err != nil {
			return err
		}
		w.apply(cfg)
		_, err = RunBuild(ctx, cfg, w.Targets, w.BuildOptions)
		return err
	}

	if err := rebuild(ctx); err != nil {
		slog.Error("Initial build failed", logfields.Error(err))
	}

	watcher, err := watch.New(WatchPaths(cfg, root.Config), rebuild,
		watch.WithDebounce(w.Debounce),
		watch.WithIgnore(cfg.BuildDir()))
	if err != nil {
		return err
	}
	return watcher.Run(ctx)
}

// WatchPaths lists the sources a build reads from.
func WatchPaths(cfg *config.Config, configPath string) []string {
	return []string{
		cfg.Path("src"),
		cfg.Path("web"),
		cfg.Path("external"),
		cfg.Path(cfg.Project.L10nDir),
		cfg.Path(cfg.Project.VersionFile),
		configPath,
	}
}
