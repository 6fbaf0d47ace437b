package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/loadforecast/internal/config"
	"github.com/rewired-gh/loadforecast/internal/engine"
	"github.com/rewired-gh/loadforecast/internal/forecaster"
	"github.com/rewired-gh/loadforecast/internal/holidays"
	"github.com/rewired-gh/loadforecast/internal/logger"
	"github.com/rewired-gh/loadforecast/internal/metrics"
	"github.com/rewired-gh/loadforecast/internal/storage"
	"github.com/rewired-gh/loadforecast/internal/telegram"
)

// app carries the collaborators built from configuration.
type app struct {
	configPath string
	cfg        *config.Config
	ctx        context.Context
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	forecaster *forecaster.Forecaster
	files      *storage.FileStore
	models     *storage.Registry
	telegram   *telegram.Client
}

func main() {
	if err := execute(&app{}, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// execute runs one command. Teardown runs whether or not the command
// failed, so failure metrics are still written and the registry closed.
func execute(a *app, args []string) error {
	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	if tdErr := a.teardown(); tdErr != nil {
		if err == nil {
			return tdErr
		}
		logger.Error("%v", tdErr)
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "loadforecast",
		Short: "Fit, persist and run electrical load forecasting models",
		Long: `Fits seasonal load forecasting models on metered load history, saves them
as portable JSON documents, warm-starts refits from saved models and writes
day-ahead forecasts as CSV or JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(a.configPath)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to configuration file")

	rootCmd.AddCommand(fitCmd(a))
	rootCmd.AddCommand(forecastCmd(a))
	rootCmd.AddCommand(refitCmd(a))
	rootCmd.AddCommand(modelsCmd(a))
	return rootCmd
}

func (a *app) setup(path string) error {
	// Load configuration
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if path != "" {
		logger.Info("Configuration loaded from %s", path)
	}

	// Cancel long fits on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()
	a.ctx = ctx

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)

	a.forecaster = forecaster.New(
		engine.New(holidays.Source{}),
		forecaster.WithMetrics(a.metrics),
		forecaster.WithSuppressedOutput(cfg.Logging.SuppressFitOutput),
	)

	a.files = storage.NewFileStore(cfg.Storage.ModelPath, cfg.Storage.DoubleEncode, cfg.Storage.FileMode(), cfg.Storage.DirMode())

	if cfg.Storage.RegistryPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.RegistryPath), cfg.Storage.DirMode()); err != nil {
			return fmt.Errorf("failed to create registry directory: %w", err)
		}
		reg, err := storage.OpenRegistry(cfg.Storage.RegistryPath, cfg.Storage.CacheSize)
		if err != nil {
			return err
		}
		a.models = reg
	}

	if cfg.Telegram.Enabled {
		client, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		a.telegram = client
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}
	return nil
}

func (a *app) teardown() error {
	if a.models != nil {
		if err := a.models.Close(); err != nil {
			logger.Error("Failed to close model registry: %v", err)
		}
	}
	if a.cfg != nil && a.registry != nil && a.cfg.Metrics.TextfilePath != "" {
		if err := metrics.WriteTextfile(a.cfg.Metrics.TextfilePath, a.registry); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		logger.Debug("Metrics written to %s", a.cfg.Metrics.TextfilePath)
	}
	return nil
}
