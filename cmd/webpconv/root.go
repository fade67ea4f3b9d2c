package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-webp/internal/bus"
	"github.com/tendant/simple-webp/internal/config"
	"github.com/tendant/simple-webp/internal/convert"
	"github.com/tendant/simple-webp/internal/img"
	"github.com/tendant/simple-webp/internal/logging"
	"github.com/tendant/simple-webp/internal/storage"
	"github.com/tendant/simple-webp/pkg/schema"
)

type flags struct {
	dryRun     bool
	prefix     string
	quality    int
	maxWorkers int
	verbose    bool
	report     string
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "webpconv",
		Short: "Convert images in a bucket to WebP",
		Long: `List every JPEG, PNG, GIF, BMP and TIFF object under a prefix and write a WebP
copy of each one. Existing WebP copies are skipped, so a run can be repeated safely.
Settings come from the environment (or a .env file); flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("configuration: %w", err)
			}
			cfg, err = cfg.Apply(overridesFrom(cmd, f))
			if err != nil {
				return fmt.Errorf("configuration: %w", err)
			}
			return run(cmd.Context(), cmd.OutOrStdout(), cfg, f)
		},
	}

	fs := cmd.Flags()
	fs.BoolVar(&f.dryRun, "dry-run", false, "Show what would be converted without actually converting")
	fs.StringVar(&f.prefix, "prefix", "", "Override S3 prefix from config")
	fs.IntVar(&f.quality, "quality", 0, "Override WebP quality from config")
	fs.IntVar(&f.maxWorkers, "max-workers", 0, "Override max workers from config")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Enable verbose logging")
	fs.StringVar(&f.report, "report", "", "Write a run report to this file (.json or .yaml)")

	return cmd
}

// overridesFrom only carries flags the user actually set, so an explicit
// --prefix "" still overrides.
func overridesFrom(cmd *cobra.Command, f flags) config.Overrides {
	o := config.Overrides{Verbose: f.verbose}
	if cmd.Flags().Changed("prefix") {
		o.Prefix = &f.prefix
	}
	if cmd.Flags().Changed("quality") {
		o.Quality = &f.quality
	}
	if cmd.Flags().Changed("max-workers") {
		o.MaxWorkers = &f.maxWorkers
	}
	return o
}

func run(ctx context.Context, out io.Writer, cfg config.Config, f flags) error {
	logger, closer, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
		MaxBytes:    cfg.LogMaxBytes,
		BackupCount: cfg.LogBackupCount,
	})
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	defer closer.Close()

	logConfig(logger, cfg)

	store, err := storage.New(ctx, cfg.StorageOptions())
	if err != nil {
		return err
	}
	if err := store.Check(ctx); err != nil {
		logger.Error("storage check failed", "err", err)
		return err
	}

	var notifier convert.Notifier
	if cfg.NATSURL != "" {
		client, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect nats %s: %w", cfg.NATSURL, err)
		}
		defer client.Close()
		notifier = bus.NewEventPublisher(client, cfg.ConvertedSubject, cfg.DoneSubject)
		logger.Info("connected to NATS", "nats_url", cfg.NATSURL, "subject", cfg.ConvertedSubject)
	}

	conv := convert.New(convert.Options{
		Bucket:              cfg.Bucket,
		Prefix:              cfg.Prefix,
		DestinationPrefix:   cfg.DestinationPrefix,
		Quality:             cfg.Quality,
		DeleteOriginal:      cfg.DeleteOriginal,
		MaxWorkers:          cfg.MaxWorkers,
		ProceedOnProbeError: cfg.ProbeErrorPolicy == config.ProbePolicyProceed,
	}, store, img.NewWebPTranscoder(), logger, notifier)

	base := schema.Report{
		Bucket:            cfg.Bucket,
		Prefix:            cfg.Prefix,
		DestinationPrefix: cfg.DestinationPrefix,
		Quality:           cfg.Quality,
		DeleteOriginal:    cfg.DeleteOriginal,
		DryRun:            f.dryRun,
	}

	if f.dryRun {
		mappings, err := conv.Plan(ctx)
		if err != nil {
			logger.Error("conversion error", "err", err)
			return err
		}
		logPlan(logger, mappings)
		if f.report != "" {
			base.Mappings = mappings
			return writeReport(f.report, base)
		}
		return nil
	}

	res, err := conv.ConvertAll(ctx)
	if err != nil {
		logger.Error("conversion error", "err", err)
		return err
	}
	printSummary(out, res.Summary())

	if f.report != "" {
		if err := writeReport(f.report, res.Report(base)); err != nil {
			return err
		}
		logger.Info("report written", "path", f.report)
	}
	return nil
}

func logConfig(logger *slog.Logger, cfg config.Config) {
	logger.Info("converter starting")
	logger.Info("configuration",
		"provider", cfg.StorageProvider,
		"bucket", cfg.Bucket,
		"prefix", cfg.Prefix,
		"destination", cfg.DestinationPrefix,
		"quality", cfg.Quality,
		"max_workers", cfg.MaxWorkers,
		"delete_original", cfg.DeleteOriginal,
		"probe_error_policy", cfg.ProbeErrorPolicy,
	)
}
