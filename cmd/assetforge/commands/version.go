package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/assetforge/internal/config"
	"git.home.luguber.info/inful/assetforge/internal/pipeline"
	"git.home.luguber.info/inful/assetforge/internal/versioning"
)

// VersionCmd implements the 'version' command.
type VersionCmd struct{}

func (v *VersionCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	_, err = RunVersion(context.Background(), cfg)
	return err
}

// RunVersion computes the version descriptor, writes version.json and prints the result.
func RunVersion(ctx context.Context, cfg *config.Config, seqOpts ...pipeline.Option) (versioning.Descriptor, error) {
	d, path, err := pipeline.New(cfg, seqOpts...).ComputeVersion(ctx)
	if err != nil {
		return d, err
	}
	fmt.Printf("version %s (build %d, commit %s)\n", d.Version, d.Build, d.Commit)
	if d.Degraded {
		fmt.Println("warning: source-control metadata unavailable; build number defaulted")
	}
	fmt.Printf("Wrote %s\n", path)
	return d, nil
}
