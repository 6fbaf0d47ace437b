// Package models defines the fitted forecasting model and the typed building
// blocks its attributes are made of.
//
// A Model is plain data: one field per fixed attribute. It is created either
// by an engine fit on history or by the deserializer, and is otherwise only
// touched by configuration calls that run before fit.
package models

import (
	"fmt"
	"time"
)

// Growth modes.
const (
	GrowthLinear   = "linear"
	GrowthFlat     = "flat"
	GrowthLogistic = "logistic"
)

// Component modes.
const (
	ModeAdditive       = "additive"
	ModeMultiplicative = "multiplicative"
)

// Fitted parameter names.
const (
	ParamK        = "k"
	ParamM        = "m"
	ParamDelta    = "delta"
	ParamSigmaObs = "sigma_obs"
	ParamBeta     = "beta"
)

// Seasonality describes one periodic component.
type Seasonality struct {
	Period       float64 `json:"period"` // days
	FourierOrder int     `json:"fourier_order"`
	PriorScale   float64 `json:"prior_scale"`
	Mode         string  `json:"mode"`
}

// Regressor describes one extra regressor column.
type Regressor struct {
	PriorScale  float64 `json:"prior_scale"`
	Standardize Setting `json:"standardize"`
	Mu          float64 `json:"mu"`
	Std         float64 `json:"std"`
	Mode        string  `json:"mode"`
}

// ComponentModes lists component names by how they combine with the trend.
type ComponentModes struct {
	Additive       []string `json:"additive"`
	Multiplicative []string `json:"multiplicative"`
}

// Params maps a parameter name to its estimate. The leading axis is the
// sampling chain; only chain 0 is ever read.
type Params map[string][][]float64

// Chain returns chain 0 of the named parameter.
func (p Params) Chain(name string) ([]float64, error) {
	v, ok := p[name]
	if !ok || len(v) == 0 {
		return nil, fmt.Errorf("%w: parameter %q", ErrMissingParameters, name)
	}
	return v[0], nil
}

// Scalar returns element [0][0] of the named parameter.
func (p Params) Scalar(name string) (float64, error) {
	v, err := p.Chain(name)
	if err != nil {
		return 0, err
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("%w: parameter %q is empty", ErrMissingParameters, name)
	}
	return v[0], nil
}

// ParameterSeed holds point estimates used to initialize a new fit.
type ParameterSeed struct {
	K        float64
	M        float64
	SigmaObs float64
	Delta    []float64
	Beta     []float64
}

// OptimizerRun is the engine handle left on a model by fit. It is never
// serialized; a deserialized model has none.
type OptimizerRun struct {
	Method     string
	Status     string
	Iterations int
	Objective  float64
	WarmStart  bool
	Duration   time.Duration
}

// Model is the fitted forecasting model attribute set.
type Model struct {
	// Scalar configuration.
	Growth                string
	NChangepoints         int
	SpecifiedChangepoints bool
	ChangepointRange      float64
	YearlySeasonality     Setting
	WeeklySeasonality     Setting
	DailySeasonality      Setting
	SeasonalityMode       string
	SeasonalityPriorScale float64
	ChangepointPriorScale float64
	HolidaysPriorScale    float64
	MCMCSamples           int
	IntervalWidth         float64
	UncertaintySamples    int
	YScale                float64
	LogisticFloor         bool
	CountryHolidays       *string
	ComponentModes        *ComponentModes

	// Labeled series.
	Changepoints      *Column
	HistoryDates      *Column
	TrainHolidayNames *Column

	Start  time.Time
	TScale time.Duration

	// Tables.
	Holidays           *Table
	History            *Table
	TrainComponentCols *Table

	ChangepointsT []float64

	Seasonalities   *OrderedMap[Seasonality]
	ExtraRegressors *OrderedMap[Regressor]

	Params Params

	// Optimizer is set by fit and nil otherwise.
	Optimizer *OptimizerRun
}

// NewModel returns a default-constructed, unfitted model.
func NewModel() *Model {
	return &Model{
		Growth:                GrowthLinear,
		NChangepoints:         25,
		ChangepointRange:      0.8,
		YearlySeasonality:     Auto(),
		WeeklySeasonality:     Auto(),
		DailySeasonality:      Auto(),
		SeasonalityMode:       ModeAdditive,
		SeasonalityPriorScale: 10,
		ChangepointPriorScale: 0.05,
		HolidaysPriorScale:    10,
		IntervalWidth:         0.8,
		UncertaintySamples:    1000,
		YScale:                1,
		Seasonalities:         NewOrderedMap[Seasonality](),
	}
}

// Fitted reports whether the model carries fitted parameters and history.
func (m *Model) Fitted() bool {
	return m.Params != nil && m.HistoryDates != nil && m.TrainComponentCols != nil
}
