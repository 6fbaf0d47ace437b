package forecaster

import (
	"fmt"

	"github.com/rewired-gh/loadforecast/internal/engine"
	"github.com/rewired-gh/loadforecast/internal/models"
)

// Summarize condenses the last periods rows of a forecast.
func Summarize(forecast *models.Table, periods int, country string, interval float64) (*models.ForecastSummary, error) {
	ds := forecast.Column(engine.ColumnDS)
	yhat := forecast.Column(engine.ColumnYhat)
	if ds == nil || yhat == nil || yhat.Type != models.ColumnFloat {
		return nil, fmt.Errorf("forecast needs %q and %q columns", engine.ColumnDS, engine.ColumnYhat)
	}
	n := forecast.Rows()
	if periods <= 0 || periods > n {
		return nil, fmt.Errorf("periods must be in [1, %d], got %d", n, periods)
	}

	first := n - periods
	s := &models.ForecastSummary{
		Country:  country,
		From:     ds.Times[first],
		To:       ds.Times[n-1],
		Periods:  periods,
		Peak:     yhat.Floats[first],
		PeakAt:   ds.Times[first],
		Minimum:  yhat.Floats[first],
		MinAt:    ds.Times[first],
		Interval: interval,
	}
	var sum float64
	for i := first; i < n; i++ {
		v := yhat.Floats[i]
		sum += v
		if v > s.Peak {
			s.Peak, s.PeakAt = v, ds.Times[i]
		}
		if v < s.Minimum {
			s.Minimum, s.MinAt = v, ds.Times[i]
		}
	}
	s.Mean = sum / float64(periods)
	return s, nil
}
