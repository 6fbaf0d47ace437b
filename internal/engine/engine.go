// Package engine is the forecasting engine the forecaster drives: an additive
// regression of a piecewise-linear trend, Fourier seasonalities, holiday
// indicators and extra regressors, fit to a MAP point estimate with L-BFGS.
//
// The engine reads and writes the fixed attribute set of models.Model and
// nothing else, so a deserialized model predicts exactly like the fitted one
// it was saved from.
package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rewired-gh/loadforecast/internal/logger"
	"github.com/rewired-gh/loadforecast/internal/models"
)

// Column names shared with callers.
const (
	ColumnDS      = "ds"
	ColumnY       = "y"
	ColumnT       = "t"
	ColumnYScaled = "y_scaled"
	ColumnFloor   = "floor"

	ColumnTrend     = "trend"
	ColumnYhat      = "yhat"
	ColumnYhatLower = "yhat_lower"
	ColumnYhatUpper = "yhat_upper"
)

const day = 24 * time.Hour

// HolidaySource expands a country calendar into a holiday table with ds,
// holiday, lower_window and upper_window columns.
type HolidaySource interface {
	Table(country string, from, to int) (*models.Table, error)
}

// Additive is the reference engine.
type Additive struct {
	holidays      HolidaySource
	maxIterations int
}

// New creates an engine that reads country holidays from src.
func New(src HolidaySource) *Additive {
	return &Additive{holidays: src, maxIterations: 5000}
}

// Fit estimates the model parameters on history and fills every fitted
// attribute of m in place. A non-nil seed initializes the optimizer.
func (e *Additive) Fit(ctx context.Context, m *models.Model, history *models.Table, seed *models.ParameterSeed) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Params != nil {
		return fmt.Errorf("%w: create a new model to fit on new data", models.ErrAlreadyFitted)
	}
	if err := validate(m); err != nil {
		return err
	}

	hist, ds, err := e.setupHistory(m, history)
	if err != nil {
		return err
	}
	e.setChangepoints(m, ds)
	if err := e.setSeasonalities(m, ds); err != nil {
		return err
	}
	if err := e.setHolidayNames(m, ds); err != nil {
		return err
	}

	d, err := e.design(m, ds, hist)
	if err != nil {
		return err
	}
	m.TrainComponentCols, m.ComponentModes = componentTable(m, d)

	yScaled := hist.Column(ColumnYScaled).Floats
	t := hist.Column(ColumnT).Floats
	p := newProblem(m, d, t, yScaled)

	init, err := p.initial(seed)
	if err != nil {
		return err
	}

	started := time.Now()
	run, theta, err := p.minimize(init, e.maxIterations)
	if err != nil {
		return err
	}
	run.WarmStart = seed != nil
	run.Duration = time.Since(started)

	k, mm, delta, beta := p.split(theta)
	sigma := p.sigma(theta)
	m.Params = models.Params{
		models.ParamK:        {{k}},
		models.ParamM:        {{mm}},
		models.ParamDelta:    {delta},
		models.ParamSigmaObs: {{sigma}},
		models.ParamBeta:     {beta},
	}
	m.Optimizer = run

	logger.Debug("Fit finished: status=%s iterations=%d objective=%.6g sigma_obs=%.4g (%v)",
		run.Status, run.Iterations, run.Objective, sigma, run.Duration)
	return nil
}

// Predict evaluates the fitted model on future, which must carry a ds column
// and one column per extra regressor. A floor column is accepted but has no
// effect under linear or flat growth.
func (e *Additive) Predict(m *models.Model, future *models.Table) (*models.Table, error) {
	if !m.Fitted() {
		return nil, models.ErrNotFitted
	}
	dsCol := future.Column(ColumnDS)
	if dsCol == nil || dsCol.Type != models.ColumnDatetime {
		return nil, fmt.Errorf("future must have a datetime %q column", ColumnDS)
	}
	ds := dsCol.Times

	k, err := m.Params.Scalar(models.ParamK)
	if err != nil {
		return nil, err
	}
	offset, err := m.Params.Scalar(models.ParamM)
	if err != nil {
		return nil, err
	}
	delta, err := m.Params.Chain(models.ParamDelta)
	if err != nil {
		return nil, err
	}
	beta, err := m.Params.Chain(models.ParamBeta)
	if err != nil {
		return nil, err
	}
	sigma, err := m.Params.Scalar(models.ParamSigmaObs)
	if err != nil {
		return nil, err
	}

	d, err := e.design(m, ds, future)
	if err != nil {
		return nil, err
	}
	if d.cols != len(beta) {
		return nil, fmt.Errorf("design has %d features but model has %d coefficients", d.cols, len(beta))
	}

	n := len(ds)
	trend := make([]float64, n)
	for i, ts := range ds {
		t := scaledTime(m, ts)
		trend[i] = piecewiseLinear(m.Growth, t, k, offset, delta, m.ChangepointsT) * m.YScale
	}

	additive := map[string]bool{}
	if m.ComponentModes != nil {
		for _, c := range m.ComponentModes.Additive {
			additive[c] = true
		}
	}

	out, _ := models.NewTable(models.NewTimeColumn(ColumnDS, append([]time.Time{}, ds...)))
	_ = out.AddColumn(models.NewFloatColumn(ColumnTrend, trend))

	components := map[string][]float64{}
	var componentCols []*models.Column
	for _, c := range m.TrainComponentCols.Columns {
		if len(c.Ints) != d.cols {
			return nil, fmt.Errorf("component %q covers %d features, design has %d", c.Name, len(c.Ints), d.cols)
		}
		values := make([]float64, n)
		for i := 0; i < n; i++ {
			row := d.x[i*d.cols : (i+1)*d.cols]
			var v float64
			for j, on := range c.Ints {
				if on != 0 {
					v += row[j] * beta[j]
				}
			}
			if additive[c.Name] {
				v *= m.YScale
			}
			values[i] = v
		}
		components[c.Name] = values
		componentCols = append(componentCols, models.NewFloatColumn(c.Name, values))
	}

	yhat := make([]float64, n)
	add, mult := components["additive_terms"], components["multiplicative_terms"]
	for i := range yhat {
		yhat[i] = trend[i]
		if mult != nil {
			yhat[i] *= 1 + mult[i]
		}
		if add != nil {
			yhat[i] += add[i]
		}
	}

	if m.UncertaintySamples > 0 {
		z := distuv.UnitNormal.Quantile(0.5 + m.IntervalWidth/2)
		half := z * sigma * m.YScale
		lower := make([]float64, n)
		upper := make([]float64, n)
		for i, v := range yhat {
			lower[i] = v - half
			upper[i] = v + half
		}
		_ = out.AddColumn(models.NewFloatColumn(ColumnYhatLower, lower))
		_ = out.AddColumn(models.NewFloatColumn(ColumnYhatUpper, upper))
	}
	for _, c := range componentCols {
		_ = out.AddColumn(c)
	}
	_ = out.AddColumn(models.NewFloatColumn(ColumnYhat, yhat))
	return out, nil
}

// ExtendHistory returns the history dates followed by periods stamps spaced
// by freq after the last history date.
func (e *Additive) ExtendHistory(m *models.Model, periods int, freq time.Duration) (*models.Table, error) {
	if m.HistoryDates == nil {
		return nil, models.ErrNotFitted
	}
	if periods < 0 {
		return nil, fmt.Errorf("periods must not be negative, got %d", periods)
	}
	if freq <= 0 {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidFrequency, freq)
	}

	dates := append([]time.Time{}, m.HistoryDates.Times...)
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: empty history", models.ErrNotFitted)
	}
	last := dates[0]
	for _, d := range dates {
		if d.After(last) {
			last = d
		}
	}
	for i := 1; i <= periods; i++ {
		dates = append(dates, last.Add(time.Duration(i)*freq))
	}
	return models.NewTable(models.NewTimeColumn(ColumnDS, dates))
}

func validate(m *models.Model) error {
	switch m.Growth {
	case models.GrowthLinear, models.GrowthFlat:
	case models.GrowthLogistic:
		return fmt.Errorf("%w: logistic growth is not supported", models.ErrConfiguration)
	default:
		return fmt.Errorf("%w: unknown growth %q", models.ErrConfiguration, m.Growth)
	}
	if m.MCMCSamples > 0 {
		return fmt.Errorf("%w: mcmc sampling is not supported", models.ErrConfiguration)
	}
	if m.NChangepoints < 0 {
		return fmt.Errorf("%w: n_changepoints must not be negative", models.ErrConfiguration)
	}
	if m.ChangepointRange <= 0 || m.ChangepointRange > 1 {
		return fmt.Errorf("%w: changepoint_range must be in (0, 1]", models.ErrConfiguration)
	}
	if m.SeasonalityMode != models.ModeAdditive && m.SeasonalityMode != models.ModeMultiplicative {
		return fmt.Errorf("%w: seasonality_mode must be additive or multiplicative", models.ErrConfiguration)
	}
	for name, prior := range map[string]float64{
		"seasonality_prior_scale": m.SeasonalityPriorScale,
		"changepoint_prior_scale": m.ChangepointPriorScale,
		"holidays_prior_scale":    m.HolidaysPriorScale,
	} {
		if prior <= 0 {
			return fmt.Errorf("%w: %s must be positive", models.ErrConfiguration, name)
		}
	}
	if m.IntervalWidth <= 0 || m.IntervalWidth >= 1 {
		return fmt.Errorf("%w: interval_width must be in (0, 1)", models.ErrConfiguration)
	}
	for _, s := range []models.Setting{m.YearlySeasonality, m.WeeklySeasonality, m.DailySeasonality} {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// setupHistory sorts history, drops rows without y and fills the scaling
// attributes. It returns the stored history table and its dates.
func (e *Additive) setupHistory(m *models.Model, history *models.Table) (*models.Table, []time.Time, error) {
	if history == nil {
		return nil, nil, fmt.Errorf("history must not be nil")
	}
	dsCol := history.Column(ColumnDS)
	if dsCol == nil || dsCol.Type != models.ColumnDatetime {
		return nil, nil, fmt.Errorf("history must have a datetime %q column", ColumnDS)
	}
	yCol := history.Column(ColumnY)
	if yCol == nil {
		return nil, nil, fmt.Errorf("history must have a %q column", ColumnY)
	}
	y, err := yCol.AsFloats()
	if err != nil {
		return nil, nil, err
	}

	rows := make([]int, 0, len(y))
	for i, v := range y {
		if !math.IsNaN(v) && !dsCol.Times[i].IsZero() {
			rows = append(rows, i)
		}
	}
	sort.SliceStable(rows, func(a, b int) bool {
		return dsCol.Times[rows[a]].Before(dsCol.Times[rows[b]])
	})
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("history has less than 2 non-NaN rows")
	}

	ds := dsCol.Select(rows).Times
	ys := make([]float64, len(rows))
	for i, r := range rows {
		ys[i] = y[r]
	}

	hist, _ := models.NewTable(models.NewTimeColumn(ColumnDS, ds), models.NewFloatColumn(ColumnY, ys))

	if m.ExtraRegressors != nil {
		for name, r := range m.ExtraRegressors.All() {
			col := history.Column(name)
			if col == nil {
				return nil, nil, fmt.Errorf("regressor %q missing from history", name)
			}
			raw, err := col.AsFloats()
			if err != nil {
				return nil, nil, err
			}
			values := make([]float64, len(rows))
			for i, row := range rows {
				if math.IsNaN(raw[row]) {
					return nil, nil, fmt.Errorf("regressor %q has NaN at row %d", name, row)
				}
				values[i] = raw[row]
			}
			r.Mu, r.Std = standardization(r.Standardize, values)
			m.ExtraRegressors.Set(name, r)
			if err := hist.AddColumn(models.NewFloatColumn(name, values)); err != nil {
				return nil, nil, err
			}
		}
	}

	m.Start = ds[0]
	m.TScale = ds[len(ds)-1].Sub(ds[0])
	if m.TScale <= 0 {
		return nil, nil, fmt.Errorf("history must span a positive time range")
	}

	m.YScale = 0
	for _, v := range ys {
		m.YScale = math.Max(m.YScale, math.Abs(v))
	}
	if m.YScale == 0 {
		m.YScale = 1
	}
	m.LogisticFloor = false

	t := make([]float64, len(ds))
	scaled := make([]float64, len(ds))
	for i := range ds {
		t[i] = scaledTime(m, ds[i])
		scaled[i] = ys[i] / m.YScale
	}
	_ = hist.AddColumn(models.NewFloatColumn(ColumnT, t))
	_ = hist.AddColumn(models.NewFloatColumn(ColumnYScaled, scaled))

	m.History = hist
	m.HistoryDates = models.NewTimeColumn(ColumnDS, append([]time.Time{}, ds...))
	return hist, ds, nil
}

// standardization returns the centering and scaling of a regressor. Binary
// regressors are left alone under auto.
func standardization(s models.Setting, values []float64) (mu, std float64) {
	switch s.Mode {
	case models.SettingOff:
		return 0, 1
	case models.SettingAuto:
		binary := true
		for _, v := range values {
			if v != 0 && v != 1 {
				binary = false
				break
			}
		}
		if binary {
			return 0, 1
		}
	}
	mu, std = stat.MeanStdDev(values, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	return mu, std
}

// setChangepoints spreads the changepoints evenly over the first
// changepoint_range of history. Without changepoints a single dummy one at
// t=0 keeps the delta parameter non-empty.
func (e *Additive) setChangepoints(m *models.Model, ds []time.Time) {
	histSize := int(math.Floor(float64(len(ds)) * m.ChangepointRange))
	if m.NChangepoints+1 > histSize {
		n := histSize - 1
		if n < 0 {
			n = 0
		}
		logger.Info("n_changepoints greater than number of observations. Using %d.", n)
		m.NChangepoints = n
	}

	var cps []time.Time
	if m.NChangepoints > 0 {
		step := float64(histSize-1) / float64(m.NChangepoints)
		for i := 1; i <= m.NChangepoints; i++ {
			cps = append(cps, ds[int(math.Round(float64(i)*step))])
		}
	}
	m.Changepoints = models.NewTimeColumn(ColumnDS, cps)
	m.SpecifiedChangepoints = false

	if len(cps) == 0 {
		m.ChangepointsT = []float64{0}
		return
	}
	m.ChangepointsT = make([]float64, len(cps))
	for i, cp := range cps {
		m.ChangepointsT[i] = scaledTime(m, cp)
	}
	sort.Float64s(m.ChangepointsT)
}

type builtinSeasonality struct {
	name    string
	setting models.Setting
	disable bool
	order   int
	period  float64
}

// setSeasonalities resolves the yearly, weekly and daily toggles against the
// history span and spacing, appending enabled ones after any custom entries.
func (e *Additive) setSeasonalities(m *models.Model, ds []time.Time) error {
	if m.Seasonalities == nil {
		m.Seasonalities = models.NewOrderedMap[models.Seasonality]()
	}

	span := ds[len(ds)-1].Sub(ds[0])
	minDt := time.Duration(math.MaxInt64)
	for i := 1; i < len(ds); i++ {
		if dt := ds[i].Sub(ds[i-1]); dt > 0 && dt < minDt {
			minDt = dt
		}
	}

	builtins := []builtinSeasonality{
		{"yearly", m.YearlySeasonality, span < 730*day, 10, 365.25},
		{"weekly", m.WeeklySeasonality, span < 14*day || minDt >= 7*day, 3, 7},
		{"daily", m.DailySeasonality, span < 2*day || minDt >= day, 4, 1},
	}
	for _, b := range builtins {
		if m.Seasonalities.Has(b.name) {
			continue
		}
		order := 0
		switch b.setting.Mode {
		case models.SettingAuto:
			if b.disable {
				logger.Info("Disabling %s seasonality. Run with %s_seasonality=true to override this.", b.name, b.name)
			} else {
				order = b.order
			}
		case models.SettingOn:
			order = b.order
		case models.SettingTerms:
			order = b.setting.Terms
		}
		if order > 0 {
			m.Seasonalities.Set(b.name, models.Seasonality{
				Period:       b.period,
				FourierOrder: order,
				PriorScale:   m.SeasonalityPriorScale,
				Mode:         m.SeasonalityMode,
			})
		}
	}
	return nil
}

// setHolidayNames records every holiday name known for the training years.
func (e *Additive) setHolidayNames(m *models.Model, ds []time.Time) error {
	events, err := e.holidayEvents(m, ds[0].Year(), ds[len(ds)-1].Year())
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	var names []string
	for _, ev := range events {
		if !seen[ev.name] {
			seen[ev.name] = true
			names = append(names, ev.name)
		}
	}
	if len(names) == 0 {
		m.TrainHolidayNames = nil
		return nil
	}
	sort.Strings(names)
	m.TrainHolidayNames = models.NewStringColumn("holiday", names)
	return nil
}

func scaledTime(m *models.Model, ts time.Time) float64 {
	return ts.Sub(m.Start).Seconds() / m.TScale.Seconds()
}

// piecewiseLinear evaluates the scaled trend at scaled time t.
func piecewiseLinear(growth string, t, k, offset float64, delta, changepoints []float64) float64 {
	if growth == models.GrowthFlat {
		return offset
	}
	g := offset + k*t
	for j, s := range changepoints {
		if t > s && j < len(delta) {
			g += delta[j] * (t - s)
		}
	}
	return g
}
