package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/loadforecast/internal/forecaster"
	"github.com/rewired-gh/loadforecast/internal/loaddata"
	"github.com/rewired-gh/loadforecast/internal/logger"
	"github.com/rewired-gh/loadforecast/internal/models"
	"github.com/rewired-gh/loadforecast/internal/serialize"
	"github.com/rewired-gh/loadforecast/internal/storage"
)

func fitCmd(a *app) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a new model on load history and save it",
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := a.readHistory(input)
			if err != nil {
				return err
			}
			opts, err := a.options()
			if err != nil {
				return err
			}
			m, err := forecaster.Configure(opts)
			if err != nil {
				return err
			}

			logger.Info("Fitting model on %d rows", history.Rows())
			if err := a.forecaster.Fit(a.ctx, m, history, nil); err != nil {
				return fmt.Errorf("fit failed: %w", err)
			}
			logOptimizer(m)
			return a.persist(m)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Load history CSV (overrides input.path)")
	return cmd
}

func refitCmd(a *app) *cobra.Command {
	var input, id string

	cmd := &cobra.Command{
		Use:   "refit",
		Short: "Fit a new model warm-started from the saved one",
		RunE: func(cmd *cobra.Command, args []string) error {
			previous, err := a.loadModel(id)
			if err != nil {
				return err
			}
			history, err := a.readHistory(input)
			if err != nil {
				return err
			}
			opts, err := a.options()
			if err != nil {
				return err
			}

			logger.Info("Refitting model on %d rows", history.Rows())
			m, err := a.forecaster.Refit(a.ctx, previous, opts, history)
			if err != nil {
				return fmt.Errorf("refit failed: %w", err)
			}
			logOptimizer(m)
			return a.persist(m)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Load history CSV (overrides input.path)")
	cmd.Flags().StringVar(&id, "id", "", "Registry model ID to warm-start from (default: model file or latest)")
	return cmd
}

func forecastCmd(a *app) *cobra.Command {
	var (
		id      string
		output  string
		format  string
		periods int
		notify  bool
	)

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast from a saved model",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("unsupported format %q (use csv or json)", format)
			}
			if !cmd.Flags().Changed("periods") {
				periods = a.cfg.Forecast.Periods
			}

			summary, err := a.forecast(id, periods, output, format)
			if err != nil {
				if notify && a.telegram != nil {
					if sendErr := a.telegram.SendError(err); sendErr != nil {
						logger.Error("Failed to send error notification: %v", sendErr)
					}
				}
				return err
			}

			logger.Info("Forecast %s to %s: peak %.1f at %s, mean %.1f",
				summary.From.Format(time.RFC3339), summary.To.Format(time.RFC3339),
				summary.Peak, summary.PeakAt.Format(time.RFC3339), summary.Mean)

			if notify && a.telegram != nil {
				if err := a.telegram.SendForecast(summary); err != nil {
					logger.Error("Failed to send forecast notification: %v", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Registry model ID (default: model file or latest)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "Output format: csv or json")
	cmd.Flags().IntVarP(&periods, "periods", "p", 0, "Number of future periods (default: forecast.periods)")
	cmd.Flags().BoolVar(&notify, "notify", true, "Send the summary to Telegram when enabled")
	return cmd
}

func modelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models in the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.models == nil {
				return errors.New("no model registry configured (set storage.registry_path)")
			}
			entries, err := a.models.List(a.ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCOUNTRY\tCREATED\tSIZE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", e.ID, e.Name, e.Country, e.CreatedAt.Format(time.RFC3339), e.Size)
			}
			return w.Flush()
		},
	}
}

func (a *app) options() (forecaster.Options, error) {
	f := a.cfg.Forecast
	yearly, weekly, daily, err := f.Seasonalities()
	if err != nil {
		return forecaster.Options{}, err
	}
	return forecaster.Options{
		Country:               f.Country,
		YearlySeasonality:     yearly,
		WeeklySeasonality:     weekly,
		DailySeasonality:      daily,
		SeasonalityMode:       f.SeasonalityMode,
		SeasonalityPriorScale: f.SeasonalityPriorScale,
		HolidaysPriorScale:    f.HolidaysPriorScale,
		ChangepointPriorScale: f.ChangepointPriorScale,
		NChangepoints:         f.NChangepoints,
		IntervalWidth:         f.IntervalWidth,
		UncertaintySamples:    f.UncertaintySamples,
	}, nil
}

func (a *app) readHistory(path string) (*models.Table, error) {
	in := a.cfg.Input
	if path == "" {
		path = in.Path
	}
	if path == "" {
		return nil, errors.New("no input file (set input.path or --input)")
	}

	loc, err := in.LoadLocation()
	if err != nil {
		return nil, err
	}
	before, err := in.BeforeTime()
	if err != nil {
		return nil, err
	}
	opts := loaddata.DefaultReadOptions()
	if in.TimestampColumn != "" {
		opts.TimestampColumn = in.TimestampColumn
	}
	if in.ValueColumn != "" {
		opts.ValueColumn = in.ValueColumn
	}
	opts.Layout = in.Layout
	opts.Location = loc
	opts.Before = before

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	history, err := loaddata.ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return history, nil
}

// persist writes the model file and, when configured, a registry entry.
func (a *app) persist(m *models.Model) error {
	doc, err := serialize.Serialize(m)
	if err != nil {
		a.metrics.ObserveModelIO("save", 0, err)
		return fmt.Errorf("failed to save model: %w", err)
	}
	err = a.files.Save(doc)
	a.metrics.ObserveModelIO("save", len(doc), err)
	if err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	logger.Info("Model saved to %s (%d bytes)", a.files.Path(), len(doc))

	if a.models == nil {
		return nil
	}
	country := ""
	if m.CountryHolidays != nil {
		country = *m.CountryHolidays
	}
	id, err := a.models.Save(a.ctx, a.cfg.Storage.ModelName, country, doc)
	if err != nil {
		return err
	}
	logger.Info("Model registered as %s/%s", a.cfg.Storage.ModelName, id)
	return nil
}

// loadModel resolves a model by registry ID, then the model file, then the
// latest registry entry.
func (a *app) loadModel(id string) (*models.Model, error) {
	if id != "" {
		if a.models == nil {
			return nil, errors.New("--id requires storage.registry_path")
		}
		doc, err := a.models.Get(a.ctx, id)
		if err != nil {
			a.metrics.ObserveModelIO("load", 0, err)
			return nil, err
		}
		return a.decode(doc, "registry "+id)
	}

	m, size, err := a.files.LoadModel()
	if err == nil {
		a.metrics.ObserveModelIO("load", size, nil)
		logger.Debug("Model loaded from %s (%d bytes)", a.files.Path(), size)
		return m, nil
	}
	if a.models == nil || !errors.Is(err, storage.ErrModelNotFound) {
		a.metrics.ObserveModelIO("load", 0, err)
		return nil, err
	}

	entry, doc, err := a.models.Latest(a.ctx, a.cfg.Storage.ModelName)
	if err != nil {
		a.metrics.ObserveModelIO("load", 0, err)
		return nil, err
	}
	return a.decode(doc, "registry "+entry.ID)
}

func (a *app) decode(doc []byte, source string) (*models.Model, error) {
	m, err := serialize.Deserialize(doc)
	a.metrics.ObserveModelIO("load", len(doc), err)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", source, err)
	}
	logger.Debug("Model loaded from %s (%d bytes)", source, len(doc))
	return m, nil
}

func (a *app) forecast(id string, periods int, output, format string) (*models.ForecastSummary, error) {
	m, err := a.loadModel(id)
	if err != nil {
		return nil, err
	}

	opts := forecaster.DefaultForecastOptions()
	opts.Periods = periods
	opts.Frequency = a.cfg.Forecast.Frequency
	opts.Floor = a.cfg.Forecast.Floor

	forecast, err := a.forecaster.Forecast(m, opts)
	if err != nil {
		return nil, fmt.Errorf("forecast failed: %w", err)
	}

	if err := writeForecast(output, format, forecast, a.cfg.Storage.DirMode()); err != nil {
		return nil, err
	}
	if output != "" {
		logger.Info("Forecast written to %s", output)
	}

	country := ""
	if m.CountryHolidays != nil {
		country = *m.CountryHolidays
	}
	return forecaster.Summarize(forecast, periods, country, m.IntervalWidth)
}

func logOptimizer(m *models.Model) {
	if run := m.Optimizer; run != nil {
		logger.Info("Optimizer %s finished with %s after %d iterations (objective %.4f, warm start %v, %s)",
			run.Method, run.Status, run.Iterations, run.Objective, run.WarmStart, run.Duration.Round(time.Millisecond))
	}
}

// writeForecast writes to path, or stdout when path is empty. The file is
// closed before returning so a failed flush is reported.
func writeForecast(path, format string, forecast *models.Table, dirMode os.FileMode) error {
	write := loaddata.WriteCSV
	if format == "json" {
		write = loaddata.WriteJSON
	}
	if path == "" {
		if err := write(os.Stdout, forecast); err != nil {
			return fmt.Errorf("failed to write forecast: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := write(f, forecast); err != nil {
		f.Close()
		return fmt.Errorf("failed to write forecast: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	return nil
}
