package models

import "time"

// ForecastSummary condenses the future part of a forecast.
type ForecastSummary struct {
	Country  string
	From     time.Time
	To       time.Time
	Periods  int
	Peak     float64
	PeakAt   time.Time
	Minimum  float64
	MinAt    time.Time
	Mean     float64
	Interval float64
}
