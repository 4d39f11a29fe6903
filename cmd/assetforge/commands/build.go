package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/assetforge/internal/config"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
	"git.home.luguber.info/inful/assetforge/internal/metrics"
	"git.home.luguber.info/inful/assetforge/internal/pipeline"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Targets []string `arg:"" optional:"" help:"Targets to build (default: configured targets)"`
	BuildOptions
}

// BuildOptions are the flags shared by build and watch.
type BuildOptions struct {
	Report       string `name:"report" help:"Write the build report as JSON to this path"`
	MetricsFile  string `name:"metrics-file" help:"Write Prometheus metrics in textfile format to this path"`
	KeepTemp     bool   `name:"keep-temp" help:"Keep the temporary workspace under <build>/tmp"`
	NoSourceMaps bool   `name:"no-source-maps" help:"Never emit source maps"`
}

// apply folds command-line overrides into cfg.
func (o BuildOptions) apply(cfg *config.Config) {
	if o.KeepTemp {
		cfg.Build.KeepTemp = true
	}
	if o.NoSourceMaps {
		cfg.Build.DisableSourceMaps = true
	}
}

func (b *BuildCmd) Run(_ *Global, root *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	b.apply(cfg)
	_, err = RunBuild(ctx, cfg, b.Targets, b.BuildOptions)
	return err
}

// RunBuild builds targets and writes the optional report and metrics files. The report is
// returned whenever planning succeeded.
func RunBuild(ctx context.Context, cfg *config.Config, targets []string, opts BuildOptions, seqOpts ...pipeline.Option) (*pipeline.BuildReport, error) {
	var prom *metrics.PrometheusRecorder
	if opts.MetricsFile != "" {
		prom = metrics.NewPrometheusRecorder(nil)
		seqOpts = append(seqOpts, pipeline.WithRecorder(prom))
	}

	report, err := pipeline.New(cfg, seqOpts...).Build(ctx, targets)
	if report != nil {
		fmt.Println(report.Summary())
		if opts.Report != "" {
			if perr := report.Persist(opts.Report); perr != nil {
				slog.Error("Failed to write build report", logfields.Path(opts.Report), logfields.Error(perr))
			} else {
				slog.Info("Wrote build report", logfields.Path(opts.Report))
			}
		}
	}
	if prom != nil {
		if merr := prom.WriteTextfile(opts.MetricsFile); merr != nil {
			slog.Error("Failed to write metrics", logfields.Path(opts.MetricsFile), logfields.Error(merr))
		}
	}
	return report, err
}
