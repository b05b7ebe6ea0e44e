package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/PauloBoaventura/lightly/internal/api"
	"github.com/PauloBoaventura/lightly/internal/config"
	"github.com/PauloBoaventura/lightly/internal/dispatcher"
	"github.com/PauloBoaventura/lightly/internal/journal"
	"github.com/PauloBoaventura/lightly/internal/logging"
	"github.com/PauloBoaventura/lightly/internal/metrics"
	"github.com/PauloBoaventura/lightly/internal/upload"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	envFile    string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		var exitErr *dispatcher.ExitError
		if errors.As(err, &exitErr) {
			// already reported by the dispatcher
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lightly-upload [key=value ...]",
		Short: "Upload images and embeddings to a Lightly dataset",
		Long: `Upload a folder of images and/or an embeddings CSV to a dataset on the
Lightly platform. Settings come from the config file, LIGHTLY_* environment
variables, flags and key=value arguments, later sources winning.

Images are uploaded before embeddings.`,
		Example: `  # upload thumbnails
  lightly-upload input_dir=data/ token='123' dataset_id='XYZ'

  # upload full images
  lightly-upload input_dir=data/ token='123' dataset_id='XYZ' upload='full'

  # upload metadata only
  lightly-upload input_dir=data/ token='123' dataset_id='XYZ' upload='metadata'

  # upload embeddings under a custom name
  lightly-upload embeddings=embeddings.csv token='123' dataset_id='XYZ' embedding_name='simclr'`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Args:          validateOverrides,
		RunE:          runUpload,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "lightly.toml", "Path to configuration file (optional unless given explicitly)")
	flags.StringVar(&envFile, "env-file", ".env", "Path to environment file")
	flags.String("input-dir", "", "Folder of images to upload")
	flags.String("embeddings", "", "Embeddings CSV to upload")
	flags.String("token", "", "Platform access token (or LIGHTLY_TOKEN)")
	flags.String("dataset-id", "", "Target dataset id")
	flags.String("upload", "", "What to upload per image: full, thumbnails or metadata")
	flags.Int("emb-upload-bsz", config.DefaultEmbUploadBsz, "Maximum embedding rows per request")
	flags.String("embedding-name", config.DefaultEmbeddingName, "Name of the embedding on the platform")
	flags.String("journal", "", "Resume journal path for image uploads")
	flags.Bool("strict-exit", false, "Exit with a non-zero code when the image upload reports an error")
	flags.String("metrics-addr", "", "Serve prometheus metrics on this address (e.g. :9090)")
	flags.String("log-file", "", "Also write JSON logs to this file")
	flags.BoolP("quiet", "q", false, "Hide progress bars")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(newJournalCmd())
	return rootCmd
}

// validateOverrides accepts only key=value arguments with known keys
func validateOverrides(_ *cobra.Command, args []string) error {
	for _, arg := range args {
		if _, _, err := config.ParseOverride(arg); err != nil {
			return err
		}
	}
	return nil
}

// flagOverrides turns every flag set on the command line that names a
// configuration key into a key=value override
func flagOverrides(cmd *cobra.Command) []string {
	var overrides []string
	cmd.Flags().Visit(func(f *pflag.Flag) {
		arg := f.Name + "=" + f.Value.String()
		if _, _, err := config.ParseOverride(arg); err == nil {
			overrides = append(overrides, arg)
		}
	})
	return overrides
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoadOptions{
		ConfigPath:     configPath,
		ConfigRequired: cmd.Flags().Changed("config"),
		EnvFile:        envFile,
		Overrides:      append(flagOverrides(cmd), args...),
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, logCloser, err := logging.Setup(os.Stderr, logging.Level(cfg.Verbose), cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := logCloser.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	}()

	ctx := cmd.Context()
	logger.Debug("Configuration loaded",
		"config", configPath,
		"api_url", cfg.APIURL,
		"upload", cfg.Upload,
		"workers", cfg.UploadWorkers,
		"token_set", cfg.Token != "")

	var collector *metrics.Collector
	if cfg.MetricsAddr != "" {
		collector = metrics.NewCollector(logger)
		go func() {
			if err := collector.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("Metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	client := api.NewClient(api.Options{
		BaseURL:           cfg.APIURL,
		UserAgent:         "lightly-upload/" + Version,
		MaxRetries:        cfg.MaxRetries,
		Timeout:           time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Metrics:           collector,
	}, logger)

	uploader := upload.NewUploader(client, upload.Options{
		Workers:         cfg.UploadWorkers,
		ThumbnailSize:   cfg.ThumbnailSize,
		JournalPath:     cfg.Journal,
		JournalInterval: journal.DefaultInterval,
		Quiet:           quietProgress(cfg.Quiet, os.Stderr),
		Metrics:         collector,
	}, logger)

	d := dispatcher.New(uploader, uploader, dispatcher.Options{
		Out:            cmd.OutOrStdout(),
		NormalizePaths: true,
		StrictExit:     cfg.StrictExit,
	}, logger)

	if err := d.Run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Upload interrupted")
		}
		return err
	}
	return nil
}

// quietProgress reports whether progress bars should be hidden. They are
// drawn on stderr, so they are also hidden when stderr is not a terminal.
func quietProgress(quiet bool, stderr *os.File) bool {
	return quiet || !term.IsTerminal(int(stderr.Fd()))
}
