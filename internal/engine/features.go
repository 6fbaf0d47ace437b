package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rewired-gh/loadforecast/internal/models"
)

// Group component names.
const (
	componentHolidays         = "holidays"
	componentAdditiveTerms    = "additive_terms"
	componentMultiplicative   = "multiplicative_terms"
	componentRegressorsAdd    = "extra_regressors_additive"
	componentRegressorsMult   = "extra_regressors_multiplicative"
	holidayFeatureNameFormat  = "%s_delim_%+d"
	seasonalFeatureNameFormat = "%s_delim_%d"
)

type feature struct {
	name      string
	component string
	mode      string
	prior     float64
}

// design is a dense row-major feature matrix.
type design struct {
	rows, cols int
	x          []float64
	features   []feature
}

type holidayEvent struct {
	name         string
	date         time.Time
	lower, upper int
}

// design builds seasonal, holiday and regressor features for ds, in that
// order. data supplies regressor columns.
func (e *Additive) design(m *models.Model, ds []time.Time, data *models.Table) (*design, error) {
	var features []feature
	var columns [][]float64

	if m.Seasonalities != nil {
		days := make([]float64, len(ds))
		for i, ts := range ds {
			days[i] = float64(ts.Unix())/86400 + float64(ts.Nanosecond())/86400e9
		}
		for name, s := range m.Seasonalities.All() {
			for i := 1; i <= s.FourierOrder; i++ {
				sin := make([]float64, len(ds))
				cos := make([]float64, len(ds))
				for r, d := range days {
					x := 2 * math.Pi * float64(i) * d / s.Period
					sin[r] = math.Sin(x)
					cos[r] = math.Cos(x)
				}
				features = append(features,
					feature{fmt.Sprintf(seasonalFeatureNameFormat, name, 2*i-1), name, s.Mode, s.PriorScale},
					feature{fmt.Sprintf(seasonalFeatureNameFormat, name, 2*i), name, s.Mode, s.PriorScale},
				)
				columns = append(columns, sin, cos)
			}
		}
	}

	holidayFeatures, holidayColumns, err := e.holidayDesign(m, ds)
	if err != nil {
		return nil, err
	}
	features = append(features, holidayFeatures...)
	columns = append(columns, holidayColumns...)

	if m.ExtraRegressors != nil {
		for name, r := range m.ExtraRegressors.All() {
			col := data.Column(name)
			if col == nil {
				return nil, fmt.Errorf("regressor %q missing from data", name)
			}
			raw, err := col.AsFloats()
			if err != nil {
				return nil, err
			}
			if len(raw) != len(ds) {
				return nil, fmt.Errorf("regressor %q has %d rows, expected %d", name, len(raw), len(ds))
			}
			values := make([]float64, len(raw))
			for i, v := range raw {
				if math.IsNaN(v) {
					return nil, fmt.Errorf("regressor %q has NaN at row %d", name, i)
				}
				values[i] = (v - r.Mu) / r.Std
			}
			features = append(features, feature{name, name, r.Mode, r.PriorScale})
			columns = append(columns, values)
		}
	}

	d := &design{rows: len(ds), cols: len(features), features: features}
	d.x = make([]float64, d.rows*d.cols)
	for j, col := range columns {
		for i, v := range col {
			d.x[i*d.cols+j] = v
		}
	}
	return d, nil
}

// holidayDesign builds one indicator per training holiday name and window
// offset. Names outside the training set are ignored; training names that do
// not occur in ds give all-zero columns.
func (e *Additive) holidayDesign(m *models.Model, ds []time.Time) ([]feature, [][]float64, error) {
	if m.TrainHolidayNames == nil || len(m.TrainHolidayNames.Strings) == 0 || len(ds) == 0 {
		return nil, nil, nil
	}

	minYear, maxYear := ds[0].Year(), ds[0].Year()
	for _, ts := range ds {
		minYear = min(minYear, ts.Year())
		maxYear = max(maxYear, ts.Year())
	}
	events, err := e.holidayEvents(m, minYear-1, maxYear+1)
	if err != nil {
		return nil, nil, err
	}

	index := map[string]int{}
	var features []feature
	for _, name := range m.TrainHolidayNames.Strings {
		lo, hi := holidayWindow(m, name)
		for off := lo; off <= hi; off++ {
			key := fmt.Sprintf(holidayFeatureNameFormat, name, off)
			index[key] = len(features)
			features = append(features, feature{key, name, m.SeasonalityMode, m.HolidaysPriorScale})
		}
	}

	byDay := map[int][]int{}
	for _, ev := range events {
		lo, hi := holidayWindow(m, ev.name)
		for off := max(ev.lower, lo); off <= min(ev.upper, hi); off++ {
			j, ok := index[fmt.Sprintf(holidayFeatureNameFormat, ev.name, off)]
			if !ok {
				continue
			}
			k := dayKey(ev.date.AddDate(0, 0, off))
			byDay[k] = append(byDay[k], j)
		}
	}

	columns := make([][]float64, len(features))
	for j := range columns {
		columns[j] = make([]float64, len(ds))
	}
	for i, ts := range ds {
		for _, j := range byDay[dayKey(ts)] {
			columns[j][i] = 1
		}
	}
	return features, columns, nil
}

// holidayEvents lists user and country holidays for years [from, to].
func (e *Additive) holidayEvents(m *models.Model, from, to int) ([]holidayEvent, error) {
	var events []holidayEvent
	if m.Holidays != nil {
		user, err := tableEvents(m.Holidays)
		if err != nil {
			return nil, err
		}
		events = append(events, user...)
	}
	if m.CountryHolidays != nil {
		if e.holidays == nil {
			return nil, fmt.Errorf("%w: no holiday source for country %q", models.ErrConfiguration, *m.CountryHolidays)
		}
		table, err := e.holidays.Table(*m.CountryHolidays, from, to)
		if err != nil {
			return nil, err
		}
		country, err := tableEvents(table)
		if err != nil {
			return nil, err
		}
		events = append(events, country...)
	}
	return events, nil
}

func tableEvents(t *models.Table) ([]holidayEvent, error) {
	ds := t.Column(ColumnDS)
	names := t.Column("holiday")
	if ds == nil || ds.Type != models.ColumnDatetime || names == nil || names.Type != models.ColumnString {
		return nil, fmt.Errorf("holiday table needs a datetime ds and a string holiday column")
	}
	lower := windowValues(t.Column("lower_window"), t.Rows())
	upper := windowValues(t.Column("upper_window"), t.Rows())

	events := make([]holidayEvent, t.Rows())
	for i := range events {
		events[i] = holidayEvent{
			name:  names.Strings[i],
			date:  ds.Times[i],
			lower: int(lower[i]),
			upper: int(upper[i]),
		}
	}
	return events, nil
}

func windowValues(c *models.Column, rows int) []float64 {
	if c == nil {
		return make([]float64, rows)
	}
	v, err := c.AsFloats()
	if err != nil {
		return make([]float64, rows)
	}
	return v
}

// holidayWindow returns the widest window of a holiday name across the user
// holiday table. Names only known from the country calendar use [0, 0].
func holidayWindow(m *models.Model, name string) (int, int) {
	lo, hi, found := 0, 0, false
	if m.Holidays != nil {
		events, err := tableEvents(m.Holidays)
		if err == nil {
			for _, ev := range events {
				if ev.name != name {
					continue
				}
				if !found {
					lo, hi, found = ev.lower, ev.upper, true
					continue
				}
				lo = min(lo, ev.lower)
				hi = max(hi, ev.upper)
			}
		}
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}

func dayKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// componentTable maps every feature to the components it contributes to.
// Rows are feature positions, columns are component names in sorted order.
func componentTable(m *models.Model, d *design) (*models.Table, *models.ComponentModes) {
	membership := map[string][]int64{}
	mark := func(component string, j int) {
		col, ok := membership[component]
		if !ok {
			col = make([]int64, d.cols)
			membership[component] = col
		}
		col[j] = 1
	}
	membership[componentAdditiveTerms] = make([]int64, d.cols)
	membership[componentMultiplicative] = make([]int64, d.cols)

	modes := map[string]string{
		componentAdditiveTerms:  models.ModeAdditive,
		componentMultiplicative: models.ModeMultiplicative,
	}

	regressors := map[string]bool{}
	if m.ExtraRegressors != nil {
		for name := range m.ExtraRegressors.All() {
			regressors[name] = true
		}
	}
	holidays := map[string]bool{}
	if m.TrainHolidayNames != nil {
		for _, name := range m.TrainHolidayNames.Strings {
			holidays[name] = true
		}
	}

	for j, f := range d.features {
		mark(f.component, j)
		modes[f.component] = f.mode
		if f.mode == models.ModeMultiplicative {
			mark(componentMultiplicative, j)
		} else {
			mark(componentAdditiveTerms, j)
		}
		if holidays[f.component] {
			mark(componentHolidays, j)
			modes[componentHolidays] = f.mode
		}
		if regressors[f.component] {
			if f.mode == models.ModeMultiplicative {
				mark(componentRegressorsMult, j)
				modes[componentRegressorsMult] = models.ModeMultiplicative
			} else {
				mark(componentRegressorsAdd, j)
				modes[componentRegressorsAdd] = models.ModeAdditive
			}
		}
	}

	names := make([]string, 0, len(membership))
	for name := range membership {
		names = append(names, name)
	}
	sort.Strings(names)

	table := &models.Table{IndexName: "col", ColumnsName: "component"}
	cm := &models.ComponentModes{Additive: []string{}, Multiplicative: []string{}}
	for _, name := range names {
		_ = table.AddColumn(models.NewIntColumn(name, membership[name]))
		if modes[name] == models.ModeMultiplicative {
			cm.Multiplicative = append(cm.Multiplicative, name)
		} else {
			cm.Additive = append(cm.Additive, name)
		}
	}
	return table, cm
}
