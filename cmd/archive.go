package cmd

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-archiver/internal/archive"
	"github.com/JakeFAU/paper-archiver/internal/clock/system"
	"github.com/JakeFAU/paper-archiver/internal/config"
	"github.com/JakeFAU/paper-archiver/internal/converter/headless"
	"github.com/JakeFAU/paper-archiver/internal/failurelog"
	runid "github.com/JakeFAU/paper-archiver/internal/id/uuid"
	collyfetcher "github.com/JakeFAU/paper-archiver/internal/fetcher/colly"
	"github.com/JakeFAU/paper-archiver/internal/instapaper"
	"github.com/JakeFAU/paper-archiver/internal/logging"
	"github.com/JakeFAU/paper-archiver/internal/metrics"
	"github.com/JakeFAU/paper-archiver/internal/storage/gcs"
	"github.com/JakeFAU/paper-archiver/internal/storage/local"
)

// converter is an archive.Converter holding a browser for the whole run.
type converter interface {
	archive.Converter
	Close()
}

// newConverter and newStorageClient are variables so tests can replace the
// browser and the GCS endpoint.
var (
	newConverter = func(cfg headless.Config) (converter, error) {
		return headless.NewChromedp(cfg)
	}
	newStorageClient = func(ctx context.Context) (*storage.Client, error) {
		return storage.NewClient(ctx)
	}
)

type archiveOptions struct {
	categories []string
	skipHome   bool
}

// newArchiveCmd creates and configures the 'archive' subcommand.
func newArchiveCmd() *cobra.Command {
	opts := &archiveOptions{}
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archives every new article as a PDF",
		Long: `Logs in to Instapaper, then walks the home list followed by each
configured folder page by page. Articles that already have a PDF in the
output folder are skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runArchive(cmd, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.categories, "category", nil, "only archive the named categories (repeatable)")
	cmd.Flags().BoolVar(&opts.skipHome, "skip-home", false, "do not archive the unfiled home list")
	return cmd
}

func runArchive(cmd *cobra.Command, opts *archiveOptions) error {
	ctx := cmd.Context()
	cfg, err := resolveConfig(ctx)
	if err != nil {
		return err
	}
	if err := cfg.RequireCredentials(); err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), config.MissingCredentialsMessage)
		return errors.Join(errReported, err)
	}
	categories, err := cfg.SelectCategories(opts.categories)
	if err != nil {
		return err
	}

	baseLogger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer baseLogger.Sync() //nolint:errcheck // best-effort flush
	runID, err := runid.NewRunID()
	if err != nil {
		return err
	}
	logger := logging.WithRun(baseLogger, runID)

	session, err := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	})
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}
	client, err := instapaper.New(session, cfg.Instapaper.BaseURL, logger.Named("instapaper"))
	if err != nil {
		return fmt.Errorf("init instapaper client: %w", err)
	}
	if err := client.Login(ctx, cfg.Instapaper.Username, cfg.Instapaper.Password); err != nil {
		return err
	}

	conv, err := newConverter(headless.Config{
		PageSize:   cfg.Render.PageSize,
		Margin:     cfg.Render.Margin,
		Stylesheet: cfg.Render.Stylesheet,
		Timeout:    cfg.Render.Timeout,
		ExecPath:   cfg.Render.ExecPath,
	})
	if err != nil {
		return fmt.Errorf("init converter: %w", err)
	}
	defer conv.Close()

	fs := afero.NewOsFs()
	store, err := local.New(fs, local.Config{Root: cfg.Output.Root, ArtifactExt: headless.ArtifactExt})
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	failures, err := failurelog.New(fs, cfg.Output.FailureLog)
	if err != nil {
		return fmt.Errorf("init failure log: %w", err)
	}
	logger.Info("archive run starting",
		zap.String("output_root", store.Root()),
		zap.String("failure_log", failures.Path()),
		zap.Bool("mirror", cfg.Storage.GCSBucket != ""),
	)

	pipelineOpts := []archive.Option{archive.WithProgress(cmd.OutOrStdout())}
	if cfg.Storage.GCSBucket != "" {
		gcsClient, err := newStorageClient(ctx)
		if err != nil {
			return fmt.Errorf("init storage client: %w", err)
		}
		defer func() {
			if cerr := gcsClient.Close(); cerr != nil {
				logger.Warn("failed to close storage client", zap.Error(cerr))
			}
		}()
		mirror, err := gcs.New(gcsClient, fs, gcs.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix})
		if err != nil {
			return fmt.Errorf("init mirror: %w", err)
		}
		pipelineOpts = append(pipelineOpts, archive.WithMirror(mirror))
	}

	pipeline := archive.New(
		client,
		client,
		store,
		conv,
		failures,
		system.New(),
		archive.Config{
			MinInterval:        cfg.Pipeline.MinInterval,
			MaxConvertAttempts: cfg.Pipeline.MaxConvertAttempts,
		},
		logger.Named("pipeline"),
		pipelineOpts...,
	)

	collections := client.Collections(cfg.Instapaper.IncludeHome && !opts.skipHome, categories)
	stats, runErr := pipeline.Run(ctx, collections)

	totals := stats.Totals()
	logger.Info("archive run finished",
		zap.Int("collections", len(stats.Collections)),
		zap.Int("collection_errors", len(stats.Errors)),
		zap.Int("pages", totals.Pages),
		zap.Int("done", totals.Done),
		zap.Int("skipped", totals.Skipped),
		zap.Int("failed", totals.Failed),
	)
	if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn("failed to export metrics", zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
	}
	if runErr != nil {
		return runErr
	}
	return nil
}
