package serialize

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/loadforecast/internal/engine"
	"github.com/rewired-gh/loadforecast/internal/holidays"
	"github.com/rewired-gh/loadforecast/internal/models"
)

func TestExtractWarmStartParameters(t *testing.T) {
	e := engine.New(holidays.Source{})
	m := models.NewModel()
	m.NChangepoints = 5
	m.YearlySeasonality = models.Off()
	m.WeeklySeasonality = models.Off()
	m.DailySeasonality = models.Terms(4)
	require.NoError(t, e.Fit(context.Background(), m, hourlyLoad(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), 72), nil))

	seed, err := ExtractWarmStartParameters(m)
	require.NoError(t, err)
	assert.Len(t, seed.Delta, 5)
	assert.Len(t, seed.Beta, 8)
	assert.Equal(t, m.Params[models.ParamK][0][0], seed.K)
	assert.Equal(t, m.Params[models.ParamM][0][0], seed.M)
	assert.Equal(t, m.Params[models.ParamSigmaObs][0][0], seed.SigmaObs)

	// The seed owns its slices.
	seed.Delta[0] = 42
	assert.NotEqual(t, 42.0, m.Params[models.ParamDelta][0][0])

	// A warm-started fit on the same data accepts the seed.
	next := models.NewModel()
	next.NChangepoints = 5
	next.YearlySeasonality = models.Off()
	next.WeeklySeasonality = models.Off()
	next.DailySeasonality = models.Terms(4)
	seed, err = ExtractWarmStartParameters(m)
	require.NoError(t, err)
	require.NoError(t, e.Fit(context.Background(), next, hourlyLoad(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), 96), seed))
	assert.True(t, next.Optimizer.WarmStart)
}

func TestExtractWarmStartParametersErrors(t *testing.T) {
	_, err := ExtractWarmStartParameters(models.NewModel())
	assert.ErrorIs(t, err, models.ErrMissingParameters)

	m := models.NewModel()
	m.Params = models.Params{models.ParamK: {{1}}, models.ParamM: {{0}}}
	_, err = ExtractWarmStartParameters(m)
	assert.ErrorIs(t, err, models.ErrMissingParameters)

	seedless := models.NewModel()
	seedless.Params = models.Params{
		models.ParamK:        {{1}},
		models.ParamM:        {{0}},
		models.ParamSigmaObs: {{0.1}},
		models.ParamDelta:    {{0, 0}},
		models.ParamBeta:     {},
	}
	_, err = ExtractWarmStartParameters(seedless)
	assert.ErrorIs(t, err, models.ErrMissingParameters)
}
