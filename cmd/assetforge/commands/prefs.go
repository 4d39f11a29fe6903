package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/assetforge/internal/config"
	"git.home.luguber.info/inful/assetforge/internal/pipeline"
)

// PrefsCmd implements the 'prefs' command.
type PrefsCmd struct {
	Target string `arg:"" optional:"" help:"Target whose default preferences are extracted" default:"generic"`
}

func (p *PrefsCmd) Run(_ *Global, root *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	_, err = RunPrefs(ctx, cfg, p.Target)
	return err
}

// RunPrefs extracts the default preferences of target and returns the JSON path.
func RunPrefs(ctx context.Context, cfg *config.Config, target string, seqOpts ...pipeline.Option) (string, error) {
	path, err := pipeline.New(cfg, seqOpts...).ExtractPreferences(ctx, target)
	if err != nil {
		return "", err
	}
	fmt.Printf("Wrote default preferences to %s\n", path)
	return path, nil
}
