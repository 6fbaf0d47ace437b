package forecaster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/loadforecast/internal/models"
)

func TestConfigureDefaults(t *testing.T) {
	m, err := Configure(DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, models.Auto(), m.YearlySeasonality)
	assert.Equal(t, models.Terms(28), m.WeeklySeasonality)
	assert.Equal(t, models.On(), m.DailySeasonality)
	assert.Equal(t, 0.001, m.ChangepointPriorScale)
	assert.Equal(t, 0.1, m.HolidaysPriorScale)
	assert.Equal(t, 10.0, m.SeasonalityPriorScale)
	require.NotNil(t, m.CountryHolidays)
	assert.Equal(t, "BE", *m.CountryHolidays)
	assert.False(t, m.Fitted())
}

func TestConfigureCountryName(t *testing.T) {
	opts := DefaultOptions()
	opts.Country = "Belgium"

	m, err := Configure(opts)
	require.NoError(t, err)
	assert.Equal(t, "BE", *m.CountryHolidays)
}

func TestConfigureErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Options)
	}{
		{"unknown country", func(o *Options) { o.Country = "Atlantis" }},
		{"zero weekly terms", func(o *Options) { o.WeeklySeasonality = models.Terms(0) }},
		{"negative daily terms", func(o *Options) { o.DailySeasonality = models.Terms(-2) }},
		{"zero changepoint prior", func(o *Options) { o.ChangepointPriorScale = 0 }},
		{"negative holidays prior", func(o *Options) { o.HolidaysPriorScale = -1 }},
		{"unknown mode", func(o *Options) { o.SeasonalityMode = "additive-ish" }},
		{"negative changepoints", func(o *Options) { o.NChangepoints = -1 }},
		{"interval width", func(o *Options) { o.IntervalWidth = 1 }},
		{"negative samples", func(o *Options) { o.UncertaintySamples = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			_, err := Configure(opts)
			assert.ErrorIs(t, err, models.ErrConfiguration)
		})
	}
}

func TestAddCountryHolidaysOnce(t *testing.T) {
	m, err := Configure(DefaultOptions())
	require.NoError(t, err)

	err = AddCountryHolidays(m, "NL")
	assert.ErrorIs(t, err, models.ErrConfiguration)
	assert.Equal(t, "BE", *m.CountryHolidays)
}

func TestAddAfterFit(t *testing.T) {
	m := fitDefault(t, newTestForecaster(), 3)

	assert.ErrorIs(t, AddCountryHolidays(m, "NL"), models.ErrAlreadyFitted)
	assert.ErrorIs(t, AddSeasonality(m, "monthly", 30.5, 5, 0, ""), models.ErrAlreadyFitted)
	assert.ErrorIs(t, AddRegressor(m, "temperature", 0, models.Auto(), ""), models.ErrAlreadyFitted)
}

func TestAddSeasonality(t *testing.T) {
	m := models.NewModel()

	require.NoError(t, AddSeasonality(m, "monthly", 30.5, 5, 0, ""))
	require.NoError(t, AddSeasonality(m, "quarterly", 91.3, 3, 2, models.ModeMultiplicative))
	assert.Equal(t, []string{"monthly", "quarterly"}, m.Seasonalities.Keys())

	monthly, _ := m.Seasonalities.Get("monthly")
	assert.Equal(t, m.SeasonalityPriorScale, monthly.PriorScale)
	assert.Equal(t, m.SeasonalityMode, monthly.Mode)

	tests := []struct {
		name   string
		season string
		period float64
		order  int
		prior  float64
		mode   string
	}{
		{"duplicate", "monthly", 30.5, 5, 0, ""},
		{"reserved", "trend", 7, 3, 0, ""},
		{"reserved bound", "yhat_upper", 7, 3, 0, ""},
		{"delimiter", "a_delim_b", 7, 3, 0, ""},
		{"empty name", "", 7, 3, 0, ""},
		{"zero period", "fortnightly", 0, 3, 0, ""},
		{"zero order", "fortnightly", 14, 0, 0, ""},
		{"negative prior", "fortnightly", 14, 3, -1, ""},
		{"bad mode", "fortnightly", 14, 3, 0, "sideways"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AddSeasonality(m, tt.season, tt.period, tt.order, tt.prior, tt.mode)
			assert.ErrorIs(t, err, models.ErrConfiguration)
		})
	}
}

func TestAddRegressor(t *testing.T) {
	m := models.NewModel()
	require.NoError(t, AddSeasonality(m, "monthly", 30.5, 5, 0, ""))

	require.NoError(t, AddRegressor(m, "temperature", 0, models.Auto(), ""))
	r, ok := m.ExtraRegressors.Get("temperature")
	require.True(t, ok)
	assert.Equal(t, m.HolidaysPriorScale, r.PriorScale)
	assert.Equal(t, 1.0, r.Std)
	assert.Equal(t, models.ModeAdditive, r.Mode)

	assert.ErrorIs(t, AddRegressor(m, "temperature", 0, models.Auto(), ""), models.ErrConfiguration)
	assert.ErrorIs(t, AddRegressor(m, "monthly", 0, models.Auto(), ""), models.ErrConfiguration)
	assert.ErrorIs(t, AddRegressor(m, "holidays", 0, models.Auto(), ""), models.ErrConfiguration)
	assert.ErrorIs(t, AddRegressor(m, "price", 0, models.Terms(3), ""), models.ErrConfiguration)
	assert.ErrorIs(t, AddRegressor(m, "price", -1, models.Auto(), ""), models.ErrConfiguration)
}
