// Package serialize converts a fitted model to and from a portable JSON
// document and extracts warm-start parameters from it.
//
// The document has one key per model attribute. Each attribute belongs to a
// category that fixes its encoding:
//
//	scalar            JSON primitive (or object for component_modes)
//	series            typed column {name, type, data}, or null
//	timestamp         integer seconds since the Unix epoch, UTC
//	duration          floating-point seconds
//	tabular           {index_name, columns: [column...]}, or null
//	numeric array     flat array of numbers
//	ordered key-value [orderedKeys, keyToValue], or null
//	fitted parameters {name: [[chain 0 values...]]}
//
// The attribute set is closed: decoding rejects documents that miss an
// attribute or carry one that is not listed.
package serialize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rewired-gh/loadforecast/internal/models"
)

// Category selects the encoding rule of an attribute.
type Category int

const (
	Scalar Category = iota
	Series
	Timestamp
	Duration
	Tabular
	NumericArray
	OrderedKeyValue
	FittedParams
)

func (c Category) String() string {
	switch c {
	case Scalar:
		return "scalar"
	case Series:
		return "series"
	case Timestamp:
		return "timestamp"
	case Duration:
		return "duration"
	case Tabular:
		return "tabular"
	case NumericArray:
		return "numeric array"
	case OrderedKeyValue:
		return "ordered key-value"
	case FittedParams:
		return "fitted parameters"
	}
	return "unknown"
}

type attribute struct {
	name     string
	category Category
	nullable bool
	encode   func(m *models.Model) (any, error)
	decode   func(m *models.Model, raw json.RawMessage) error
}

// scalar binds a plain JSON value to a model field.
func scalar[T any](name string, nullable bool, field func(*models.Model) *T) attribute {
	return attribute{
		name:     name,
		category: Scalar,
		nullable: nullable,
		encode:   func(m *models.Model) (any, error) { return *field(m), nil },
		decode: func(m *models.Model, raw json.RawMessage) error {
			return json.Unmarshal(raw, field(m))
		},
	}
}

func series(name string, field func(*models.Model) **models.Column) attribute {
	return attribute{
		name:     name,
		category: Series,
		nullable: true,
		encode:   func(m *models.Model) (any, error) { return *field(m), nil },
		decode: func(m *models.Model, raw json.RawMessage) error {
			var c models.Column
			if err := json.Unmarshal(unwrapString(raw), &c); err != nil {
				return err
			}
			if err := coerceDates(&c); err != nil {
				return err
			}
			*field(m) = &c
			return nil
		},
	}
}

func table(name string, field func(*models.Model) **models.Table) attribute {
	return attribute{
		name:     name,
		category: Tabular,
		nullable: true,
		encode:   func(m *models.Model) (any, error) { return *field(m), nil },
		decode: func(m *models.Model, raw json.RawMessage) error {
			var t models.Table
			if err := json.Unmarshal(unwrapString(raw), &t); err != nil {
				return err
			}
			for _, c := range t.Columns {
				if err := coerceDates(c); err != nil {
					return err
				}
			}
			*field(m) = &t
			return nil
		},
	}
}

func ordered[V any](name string, field func(*models.Model) **models.OrderedMap[V]) attribute {
	return attribute{
		name:     name,
		category: OrderedKeyValue,
		nullable: true,
		encode:   func(m *models.Model) (any, error) { return *field(m), nil },
		decode: func(m *models.Model, raw json.RawMessage) error {
			om := models.NewOrderedMap[V]()
			if err := json.Unmarshal(raw, om); err != nil {
				return err
			}
			*field(m) = om
			return nil
		},
	}
}

// attributes is the fixed attribute table. Order here is the order of
// decoding; the document itself is a JSON object.
var attributes = []attribute{
	scalar("growth", false, func(m *models.Model) *string { return &m.Growth }),
	scalar("n_changepoints", false, func(m *models.Model) *int { return &m.NChangepoints }),
	scalar("specified_changepoints", false, func(m *models.Model) *bool { return &m.SpecifiedChangepoints }),
	scalar("changepoint_range", false, func(m *models.Model) *float64 { return &m.ChangepointRange }),
	scalar("yearly_seasonality", false, func(m *models.Model) *models.Setting { return &m.YearlySeasonality }),
	scalar("weekly_seasonality", false, func(m *models.Model) *models.Setting { return &m.WeeklySeasonality }),
	scalar("daily_seasonality", false, func(m *models.Model) *models.Setting { return &m.DailySeasonality }),
	scalar("seasonality_mode", false, func(m *models.Model) *string { return &m.SeasonalityMode }),
	scalar("seasonality_prior_scale", false, func(m *models.Model) *float64 { return &m.SeasonalityPriorScale }),
	scalar("changepoint_prior_scale", false, func(m *models.Model) *float64 { return &m.ChangepointPriorScale }),
	scalar("holidays_prior_scale", false, func(m *models.Model) *float64 { return &m.HolidaysPriorScale }),
	scalar("mcmc_samples", false, func(m *models.Model) *int { return &m.MCMCSamples }),
	scalar("interval_width", false, func(m *models.Model) *float64 { return &m.IntervalWidth }),
	scalar("uncertainty_samples", false, func(m *models.Model) *int { return &m.UncertaintySamples }),
	scalar("y_scale", false, func(m *models.Model) *float64 { return &m.YScale }),
	scalar("logistic_floor", false, func(m *models.Model) *bool { return &m.LogisticFloor }),
	scalar("country_holidays", true, func(m *models.Model) **string { return &m.CountryHolidays }),
	scalar("component_modes", true, func(m *models.Model) **models.ComponentModes { return &m.ComponentModes }),

	series("changepoints", func(m *models.Model) **models.Column { return &m.Changepoints }),
	series("history_dates", func(m *models.Model) **models.Column { return &m.HistoryDates }),
	series("train_holiday_names", func(m *models.Model) **models.Column { return &m.TrainHolidayNames }),

	{
		name:     "start",
		category: Timestamp,
		encode:   func(m *models.Model) (any, error) { return m.Start.Unix(), nil },
		decode: func(m *models.Model, raw json.RawMessage) error {
			var sec int64
			if err := json.Unmarshal(raw, &sec); err != nil {
				return err
			}
			m.Start = time.Unix(sec, 0).UTC()
			return nil
		},
	},
	{
		name:     "t_scale",
		category: Duration,
		encode:   func(m *models.Model) (any, error) { return m.TScale.Seconds(), nil },
		decode: func(m *models.Model, raw json.RawMessage) error {
			var sec float64
			if err := json.Unmarshal(raw, &sec); err != nil {
				return err
			}
			m.TScale = time.Duration(math.Round(sec * float64(time.Second)))
			return nil
		},
	},

	table("holidays", func(m *models.Model) **models.Table { return &m.Holidays }),
	table("history", func(m *models.Model) **models.Table { return &m.History }),
	table("train_component_cols", func(m *models.Model) **models.Table { return &m.TrainComponentCols }),

	{
		name:     "changepoints_t",
		category: NumericArray,
		encode:   func(m *models.Model) (any, error) { return nonNil(m.ChangepointsT), nil },
		decode: func(m *models.Model, raw json.RawMessage) error {
			values := []float64{}
			if err := json.Unmarshal(raw, &values); err != nil {
				return err
			}
			m.ChangepointsT = values
			return nil
		},
	},

	ordered("seasonalities", func(m *models.Model) **models.OrderedMap[models.Seasonality] { return &m.Seasonalities }),
	ordered("extra_regressors", func(m *models.Model) **models.OrderedMap[models.Regressor] { return &m.ExtraRegressors }),

	{
		name:     "params",
		category: FittedParams,
		encode:   func(m *models.Model) (any, error) { return m.Params, nil },
		decode: func(m *models.Model, raw json.RawMessage) error {
			var params map[string][][]float64
			if err := json.Unmarshal(raw, &params); err != nil {
				return err
			}
			if len(params) == 0 {
				return errors.New("no parameters")
			}
			out := make(models.Params, len(params))
			for name, chains := range params {
				if len(chains) == 0 {
					return fmt.Errorf("parameter %q has no chains", name)
				}
				out[name] = chains
			}
			m.Params = out
			return nil
		},
	},
}

// Attributes returns the attribute names of the document in decode order.
func Attributes() []string {
	names := make([]string, len(attributes))
	for i, a := range attributes {
		names[i] = a.name
	}
	return names
}

// CategoryOf returns the category of a named attribute.
func CategoryOf(name string) (Category, bool) {
	for _, a := range attributes {
		if a.name == name {
			return a.category, true
		}
	}
	return 0, false
}

// Serialize encodes a fitted model as a JSON document.
func Serialize(m *models.Model) ([]byte, error) {
	if m == nil || !m.Fitted() || m.Seasonalities == nil || m.History == nil || m.Changepoints == nil {
		return nil, fmt.Errorf("cannot serialize: %w", models.ErrNotFitted)
	}

	doc := make(map[string]json.RawMessage, len(attributes))
	for _, a := range attributes {
		v, err := a.encode(m)
		if err != nil {
			return nil, fmt.Errorf("encode %s attribute %q: %w", a.category, a.name, err)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s attribute %q: %w", a.category, a.name, err)
		}
		doc[a.name] = raw
	}
	return json.Marshal(doc)
}

// Deserialize rebuilds a model from a document produced by Serialize. A
// document wrapped in a JSON string literal is unwrapped first. The result is
// either fully populated or not returned at all.
func Deserialize(document []byte) (*models.Model, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(unwrapString(document), &doc); err != nil {
		return nil, &models.DeserializationError{Attribute: "", Err: err}
	}

	known := make(map[string]bool, len(attributes))
	for _, a := range attributes {
		known[a.name] = true
	}
	var unknown []string
	for name := range doc {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &models.DeserializationError{Attribute: unknown[0], Err: errors.New("unknown attribute")}
	}

	m := models.NewModel()
	for _, a := range attributes {
		raw, ok := doc[a.name]
		if !ok {
			return nil, &models.DeserializationError{Attribute: a.name, Err: errors.New("missing attribute")}
		}
		if isNull(raw) {
			if !a.nullable {
				return nil, &models.DeserializationError{Attribute: a.name, Err: fmt.Errorf("%s attribute must not be null", a.category)}
			}
			unset(m, a.name)
			continue
		}
		if err := a.decode(m, raw); err != nil {
			return nil, &models.DeserializationError{Attribute: a.name, Err: err}
		}
	}

	if m.TrainComponentCols != nil {
		m.TrainComponentCols.IndexName = "col"
		m.TrainComponentCols.ColumnsName = "component"
	}
	m.Optimizer = nil
	return m, nil
}

// unset sets a nullable attribute to its absence sentinel.
func unset(m *models.Model, name string) {
	switch name {
	case "country_holidays":
		m.CountryHolidays = nil
	case "component_modes":
		m.ComponentModes = nil
	case "changepoints":
		m.Changepoints = nil
	case "history_dates":
		m.HistoryDates = nil
	case "train_holiday_names":
		m.TrainHolidayNames = nil
	case "holidays":
		m.Holidays = nil
	case "history":
		m.History = nil
	case "train_component_cols":
		m.TrainComponentCols = nil
	case "seasonalities":
		m.Seasonalities = nil
	case "extra_regressors":
		m.ExtraRegressors = nil
	}
}

// coerceDates gives date columns their datetime type even when they are
// empty and were written without a type tag.
func coerceDates(c *models.Column) error {
	if c.Name != "ds" {
		if c.Type == "" {
			// Untyped columns are always empty; default them to float.
			*c = *models.NewFloatColumn(c.Name, nil)
		}
		return nil
	}
	switch c.Type {
	case models.ColumnDatetime:
		return nil
	case "":
		*c = *models.NewTimeColumn(c.Name, nil)
	case models.ColumnString:
		times := make([]time.Time, len(c.Strings))
		for i, s := range c.Strings {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return fmt.Errorf("column %q row %d: %w", c.Name, i, err)
			}
			times[i] = t
		}
		*c = *models.NewTimeColumn(c.Name, times)
	default:
		if c.Len() > 0 {
			return fmt.Errorf("column %q of type %s cannot hold dates", c.Name, c.Type)
		}
		*c = *models.NewTimeColumn(c.Name, nil)
	}
	return nil
}

// unwrapString returns the JSON text held by a JSON string literal, or raw
// unchanged when it is not a string.
func unwrapString(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return raw
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return raw
	}
	return []byte(inner)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func nonNil(values []float64) []float64 {
	if values == nil {
		return []float64{}
	}
	return values
}
