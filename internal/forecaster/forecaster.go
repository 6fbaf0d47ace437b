package forecaster

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/loadforecast/internal/engine"
	"github.com/rewired-gh/loadforecast/internal/logger"
	"github.com/rewired-gh/loadforecast/internal/metrics"
	"github.com/rewired-gh/loadforecast/internal/models"
	"github.com/rewired-gh/loadforecast/internal/serialize"
)

// Engine fits and evaluates models. The forecaster only ever reaches a
// model's internals through it or through the serialize package.
type Engine interface {
	Fit(ctx context.Context, m *models.Model, history *models.Table, seed *models.ParameterSeed) error
	Predict(m *models.Model, future *models.Table) (*models.Table, error)
	ExtendHistory(m *models.Model, periods int, freq time.Duration) (*models.Table, error)
}

// Forecaster drives an Engine.
type Forecaster struct {
	engine   Engine
	metrics  *metrics.Metrics
	suppress bool
}

// Option configures a Forecaster.
type Option func(*Forecaster)

// WithMetrics records fit and predict observations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Forecaster) { f.metrics = m }
}

// WithSuppressedOutput silences standard output, standard error and logging
// while the engine fits.
func WithSuppressedOutput(on bool) Option {
	return func(f *Forecaster) { f.suppress = on }
}

// New creates a Forecaster around e.
func New(e Engine, opts ...Option) *Forecaster {
	f := &Forecaster{engine: e}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fit fits m on history. A non-nil seed warm-starts the optimizer.
func (f *Forecaster) Fit(ctx context.Context, m *models.Model, history *models.Table, seed *models.ParameterSeed) error {
	fit := func() error {
		return f.engine.Fit(ctx, m, history, seed)
	}

	started := time.Now()
	var err error
	if f.suppress {
		err = logger.Suppress(fit)
	} else {
		err = fit()
	}
	f.metrics.ObserveFit(time.Since(started), seed != nil, err)
	if err != nil {
		return fmt.Errorf("failed to fit model: %w", err)
	}

	logger.Info("Model fit on %d rows (warm start: %v) in %v", history.Rows(), seed != nil, time.Since(started).Round(time.Millisecond))
	return nil
}

// Refit fits a new model configured from opts on history, warm-started from
// the parameters of previous. Custom seasonalities and extra regressors
// declared on previous carry over so the coefficient layout stays the same.
func (f *Forecaster) Refit(ctx context.Context, previous *models.Model, opts Options, history *models.Table) (*models.Model, error) {
	seed, err := serialize.ExtractWarmStartParameters(previous)
	if err != nil {
		return nil, err
	}
	m, err := Configure(opts)
	if err != nil {
		return nil, err
	}
	if previous.Seasonalities != nil {
		for name, s := range previous.Seasonalities.All() {
			if builtinSeasonalities[name] {
				continue
			}
			if err := AddSeasonality(m, name, s.Period, s.FourierOrder, s.PriorScale, s.Mode); err != nil {
				return nil, err
			}
		}
	}
	if previous.ExtraRegressors != nil {
		for name, r := range previous.ExtraRegressors.All() {
			if err := AddRegressor(m, name, r.PriorScale, r.Standardize, r.Mode); err != nil {
				return nil, err
			}
		}
	}
	if err := f.Fit(ctx, m, history, seed); err != nil {
		return nil, err
	}
	return m, nil
}

// ForecastOptions control the forecast horizon.
type ForecastOptions struct {
	Periods   int
	Frequency string
	// Floor is a per-row lower bound handed to the engine. It only binds
	// under bounded growth.
	Floor float64
	// Regressors holds Periods future values for every extra regressor.
	Regressors map[string][]float64
}

// DefaultForecastOptions returns one day ahead at quarter-hour cadence.
func DefaultForecastOptions() ForecastOptions {
	return ForecastOptions{
		Periods:   96,
		Frequency: "15 minutes",
	}
}

// Forecast predicts over the training dates followed by opts.Periods future
// dates spaced by opts.Frequency. The engine's output columns are returned
// unchanged.
func (f *Forecaster) Forecast(m *models.Model, opts ForecastOptions) (*models.Table, error) {
	if m == nil || !m.Fitted() {
		return nil, fmt.Errorf("cannot forecast: %w", models.ErrNotFitted)
	}
	if opts.Periods <= 0 {
		return nil, fmt.Errorf("%w: periods must be positive, got %d", models.ErrConfiguration, opts.Periods)
	}
	freq, err := models.ParseFrequency(opts.Frequency)
	if err != nil {
		return nil, err
	}

	future, err := f.engine.ExtendHistory(m, opts.Periods, freq)
	if err != nil {
		return nil, err
	}
	floor := make([]float64, future.Rows())
	for i := range floor {
		floor[i] = opts.Floor
	}
	if err := future.AddColumn(models.NewFloatColumn(engine.ColumnFloor, floor)); err != nil {
		return nil, err
	}
	if err := addRegressors(m, future, opts); err != nil {
		return nil, err
	}

	started := time.Now()
	out, err := f.engine.Predict(m, future)
	rows := 0
	if out != nil {
		rows = out.Rows()
	}
	f.metrics.ObservePredict(time.Since(started), rows, err)
	if err != nil {
		return nil, fmt.Errorf("failed to predict: %w", err)
	}

	logger.Debug("Forecast %d periods at %v (%d rows)", opts.Periods, freq, rows)
	return out, nil
}

// addRegressors joins the stored history values of each extra regressor with
// the caller's future values.
func addRegressors(m *models.Model, future *models.Table, opts ForecastOptions) error {
	if m.ExtraRegressors == nil {
		return nil
	}
	for _, name := range m.ExtraRegressors.Keys() {
		var past []float64
		if m.History != nil {
			if col := m.History.Column(name); col != nil {
				past = col.Floats
			}
		}
		ahead, ok := opts.Regressors[name]
		if !ok {
			return fmt.Errorf("%w: no future values for regressor %q", models.ErrConfiguration, name)
		}
		if len(ahead) != opts.Periods {
			return fmt.Errorf("%w: regressor %q has %d future values, need %d", models.ErrConfiguration, name, len(ahead), opts.Periods)
		}
		values := append(append([]float64{}, past...), ahead...)
		if err := future.AddColumn(models.NewFloatColumn(name, values)); err != nil {
			return fmt.Errorf("regressor %q: %w", name, err)
		}
	}
	return nil
}
