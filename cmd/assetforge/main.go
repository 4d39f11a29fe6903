package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/assetforge/cmd/assetforge/commands"
	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
	"git.home.luguber.info/inful/assetforge/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("assetforge"),
		kong.Description("Builds the pdf.js distribution targets: bundles, locales, preferences and static assets."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	global := &commands.Global{Logger: slog.Default()}
	if err := parser.Run(global, cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
