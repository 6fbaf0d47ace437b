// Package forecaster configures load forecasting models, fits them (cold or
// warm-started from a previous fit) and produces forecasts over a future
// horizon.
package forecaster

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/loadforecast/internal/holidays"
	"github.com/rewired-gh/loadforecast/internal/models"
)

// Options are the hyperparameters of a new model.
type Options struct {
	Country               string
	YearlySeasonality     models.Setting
	WeeklySeasonality     models.Setting
	DailySeasonality      models.Setting
	SeasonalityMode       string
	SeasonalityPriorScale float64
	HolidaysPriorScale    float64
	ChangepointPriorScale float64
	NChangepoints         int
	IntervalWidth         float64
	UncertaintySamples    int
}

// DefaultOptions returns the tuning used for quarter-hourly load data: 28
// weekly Fourier terms for sub-weekly cycles, daily seasonality on, and
// dampened changepoint and holiday priors.
func DefaultOptions() Options {
	return Options{
		Country:               "BE",
		YearlySeasonality:     models.Auto(),
		WeeklySeasonality:     models.Terms(28),
		DailySeasonality:      models.On(),
		SeasonalityMode:       models.ModeAdditive,
		SeasonalityPriorScale: 10,
		HolidaysPriorScale:    0.1,
		ChangepointPriorScale: 0.001,
		NChangepoints:         25,
		IntervalWidth:         0.8,
		UncertaintySamples:    1000,
	}
}

// Validate checks the options without building a model.
func (o Options) Validate() error {
	for name, s := range map[string]models.Setting{
		"yearly_seasonality": o.YearlySeasonality,
		"weekly_seasonality": o.WeeklySeasonality,
		"daily_seasonality":  o.DailySeasonality,
	} {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for name, v := range map[string]float64{
		"seasonality_prior_scale": o.SeasonalityPriorScale,
		"holidays_prior_scale":    o.HolidaysPriorScale,
		"changepoint_prior_scale": o.ChangepointPriorScale,
	} {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", models.ErrConfiguration, name, v)
		}
	}
	if o.SeasonalityMode != models.ModeAdditive && o.SeasonalityMode != models.ModeMultiplicative {
		return fmt.Errorf("%w: seasonality mode must be additive or multiplicative, got %q", models.ErrConfiguration, o.SeasonalityMode)
	}
	if o.NChangepoints < 0 {
		return fmt.Errorf("%w: n_changepoints must not be negative, got %d", models.ErrConfiguration, o.NChangepoints)
	}
	if o.IntervalWidth <= 0 || o.IntervalWidth >= 1 {
		return fmt.Errorf("%w: interval width must be in (0, 1), got %v", models.ErrConfiguration, o.IntervalWidth)
	}
	if o.UncertaintySamples < 0 {
		return fmt.Errorf("%w: uncertainty samples must not be negative, got %d", models.ErrConfiguration, o.UncertaintySamples)
	}
	return nil
}

// Configure returns an unfitted model with the options applied and the
// country holiday calendar registered.
func Configure(opts Options) (*models.Model, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	m := models.NewModel()
	m.YearlySeasonality = opts.YearlySeasonality
	m.WeeklySeasonality = opts.WeeklySeasonality
	m.DailySeasonality = opts.DailySeasonality
	m.SeasonalityMode = opts.SeasonalityMode
	m.SeasonalityPriorScale = opts.SeasonalityPriorScale
	m.HolidaysPriorScale = opts.HolidaysPriorScale
	m.ChangepointPriorScale = opts.ChangepointPriorScale
	m.NChangepoints = opts.NChangepoints
	m.IntervalWidth = opts.IntervalWidth
	m.UncertaintySamples = opts.UncertaintySamples

	if err := AddCountryHolidays(m, opts.Country); err != nil {
		return nil, err
	}
	return m, nil
}

// AddCountryHolidays registers a country holiday calendar. A model holds at
// most one calendar and it must be set before fit.
func AddCountryHolidays(m *models.Model, country string) error {
	if m.Fitted() {
		return fmt.Errorf("%w: country holidays must be added before fit", models.ErrAlreadyFitted)
	}
	if m.CountryHolidays != nil {
		return fmt.Errorf("%w: country holidays already set to %s", models.ErrConfiguration, *m.CountryHolidays)
	}
	cal, err := holidays.Lookup(country)
	if err != nil {
		return err
	}
	code := cal.Country
	m.CountryHolidays = &code
	return nil
}

// builtinSeasonalities are resolved by the engine at fit from the model's
// seasonality settings.
var builtinSeasonalities = map[string]bool{"yearly": true, "weekly": true, "daily": true}

// reserved names clash with engine columns or component groups.
var reserved = map[string]bool{
	"ds": true, "y": true, "t": true, "y_scaled": true, "floor": true, "cap": true,
	"trend": true, "yhat": true, "yhat_lower": true, "yhat_upper": true,
	"holidays": true, "zeros": true,
	"additive_terms": true, "multiplicative_terms": true,
	"extra_regressors_additive": true, "extra_regressors_multiplicative": true,
}

func checkName(m *models.Model, name string) error {
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", models.ErrConfiguration)
	}
	if strings.Contains(name, "_delim_") {
		return fmt.Errorf("%w: name %q must not contain \"_delim_\"", models.ErrConfiguration, name)
	}
	base := strings.TrimSuffix(strings.TrimSuffix(name, "_lower"), "_upper")
	if reserved[name] || reserved[base] {
		return fmt.Errorf("%w: name %q is reserved", models.ErrConfiguration, name)
	}
	if m.Seasonalities != nil && m.Seasonalities.Has(name) {
		return fmt.Errorf("%w: name %q already used by a seasonality", models.ErrConfiguration, name)
	}
	if m.ExtraRegressors != nil && m.ExtraRegressors.Has(name) {
		return fmt.Errorf("%w: name %q already used by a regressor", models.ErrConfiguration, name)
	}
	return nil
}

// AddSeasonality adds a custom seasonality of the given period in days.
// A zero prior scale or empty mode inherits the model default.
func AddSeasonality(m *models.Model, name string, period float64, fourierOrder int, priorScale float64, mode string) error {
	if m.Fitted() {
		return fmt.Errorf("%w: seasonalities must be added before fit", models.ErrAlreadyFitted)
	}
	if err := checkName(m, name); err != nil {
		return err
	}
	if period <= 0 {
		return fmt.Errorf("%w: period must be positive, got %v", models.ErrConfiguration, period)
	}
	if fourierOrder <= 0 {
		return fmt.Errorf("%w: fourier order must be positive, got %d", models.ErrConfiguration, fourierOrder)
	}
	if priorScale == 0 {
		priorScale = m.SeasonalityPriorScale
	}
	if priorScale < 0 {
		return fmt.Errorf("%w: prior scale must be positive, got %v", models.ErrConfiguration, priorScale)
	}
	if mode == "" {
		mode = m.SeasonalityMode
	}
	if mode != models.ModeAdditive && mode != models.ModeMultiplicative {
		return fmt.Errorf("%w: mode must be additive or multiplicative, got %q", models.ErrConfiguration, mode)
	}

	if m.Seasonalities == nil {
		m.Seasonalities = models.NewOrderedMap[models.Seasonality]()
	}
	m.Seasonalities.Set(name, models.Seasonality{
		Period:       period,
		FourierOrder: fourierOrder,
		PriorScale:   priorScale,
		Mode:         mode,
	})
	return nil
}

// AddRegressor declares an extra regressor column that history and every
// forecast must provide.
func AddRegressor(m *models.Model, name string, priorScale float64, standardize models.Setting, mode string) error {
	if m.Fitted() {
		return fmt.Errorf("%w: regressors must be added before fit", models.ErrAlreadyFitted)
	}
	if err := checkName(m, name); err != nil {
		return err
	}
	if priorScale == 0 {
		priorScale = m.HolidaysPriorScale
	}
	if priorScale < 0 {
		return fmt.Errorf("%w: prior scale must be positive, got %v", models.ErrConfiguration, priorScale)
	}
	if standardize.Mode == models.SettingTerms {
		return fmt.Errorf("%w: standardize must be auto, true or false", models.ErrConfiguration)
	}
	if mode == "" {
		mode = m.SeasonalityMode
	}
	if mode != models.ModeAdditive && mode != models.ModeMultiplicative {
		return fmt.Errorf("%w: mode must be additive or multiplicative, got %q", models.ErrConfiguration, mode)
	}

	if m.ExtraRegressors == nil {
		m.ExtraRegressors = models.NewOrderedMap[models.Regressor]()
	}
	m.ExtraRegressors.Set(name, models.Regressor{
		PriorScale:  priorScale,
		Standardize: standardize,
		Std:         1,
		Mode:        mode,
	})
	return nil
}
