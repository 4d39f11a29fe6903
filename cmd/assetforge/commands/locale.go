package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"git.home.luguber.info/inful/assetforge/internal/config"
	"git.home.luguber.info/inful/assetforge/internal/locale"
	"git.home.luguber.info/inful/assetforge/internal/pipeline"
)

// LocaleCmd implements the 'locale' command.
type LocaleCmd struct {
	Out string `short:"o" help:"Output directory (default: <build>/locale)"`
}

func (l *LocaleCmd) Run(_ *Global, root *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	_, err = RunLocale(ctx, cfg, l.Out)
	return err
}

// RunLocale emits the localization root into out.
func RunLocale(ctx context.Context, cfg *config.Config, out string, seqOpts ...pipeline.Option) (locale.Collection, error) {
	if out == "" {
		out = filepath.Join(cfg.BuildDir(), "locale")
	}
	c, err := pipeline.New(cfg, seqOpts...).EmitLocale(ctx, out)
	if err != nil {
		return c, err
	}
	fmt.Printf("Wrote %d locales to %s\n", len(c.Entries), out)
	for _, name := range c.Skipped {
		fmt.Printf("Skipped invalid locale %q\n", name)
	}
	return c, nil
}
