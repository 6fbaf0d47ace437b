// Package holidays resolves country codes to holiday calendars and expands
// them into the holiday table the engine builds features from.
package holidays

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/be"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/fr"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/nl"
	"github.com/rickar/cal/v2/us"

	"github.com/rewired-gh/loadforecast/internal/models"
)

// Column names of the holiday table.
const (
	ColumnDate        = "ds"
	ColumnHoliday     = "holiday"
	ColumnLowerWindow = "lower_window"
	ColumnUpperWindow = "upper_window"
)

// Calendar is a named set of country holidays.
type Calendar struct {
	Country  string
	holidays []*cal.Holiday
}

var calendars = map[string]struct {
	code     string
	holidays []*cal.Holiday
}{
	"BE":            {"BE", be.Holidays},
	"BELGIUM":       {"BE", be.Holidays},
	"DE":            {"DE", de.Holidays},
	"GERMANY":       {"DE", de.Holidays},
	"FR":            {"FR", fr.Holidays},
	"FRANCE":        {"FR", fr.Holidays},
	"GB":            {"GB", gb.Holidays},
	"UK":            {"GB", gb.Holidays},
	"UNITEDKINGDOM": {"GB", gb.Holidays},
	"NL":            {"NL", nl.Holidays},
	"NETHERLANDS":   {"NL", nl.Holidays},
	"US":            {"US", us.Holidays},
	"UNITEDSTATES":  {"US", us.Holidays},
}

// Lookup resolves a country code or name, case and space insensitive.
func Lookup(country string) (*Calendar, error) {
	key := strings.ToUpper(strings.Join(strings.Fields(country), ""))
	entry, ok := calendars[key]
	if !ok {
		return nil, fmt.Errorf("%w: no holiday calendar for country %q", models.ErrConfiguration, country)
	}
	return &Calendar{Country: entry.code, holidays: entry.holidays}, nil
}

// Supported returns the canonical country codes.
func Supported() []string {
	seen := map[string]bool{}
	var codes []string
	for _, entry := range calendars {
		if !seen[entry.code] {
			seen[entry.code] = true
			codes = append(codes, entry.code)
		}
	}
	sort.Strings(codes)
	return codes
}

// Dates returns the holidays falling in years [from, to], sorted by date.
func (c *Calendar) Dates(from, to int) []Event {
	var events []Event
	for year := from; year <= to; year++ {
		for _, h := range c.holidays {
			actual, _ := h.Calc(year)
			if actual.IsZero() {
				continue
			}
			events = append(events, Event{
				Name: h.Name,
				Date: time.Date(actual.Year(), actual.Month(), actual.Day(), 0, 0, 0, 0, time.UTC),
			})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})
	return events
}

// Event is a single dated holiday.
type Event struct {
	Name string
	Date time.Time
}

// Source expands country calendars into holiday tables.
type Source struct{}

// Table returns the holiday table for a country over years [from, to]. Country
// holidays carry a zero-day window on both sides.
func (Source) Table(country string, from, to int) (*models.Table, error) {
	c, err := Lookup(country)
	if err != nil {
		return nil, err
	}
	events := c.Dates(from, to)

	dates := make([]time.Time, len(events))
	names := make([]string, len(events))
	windows := make([]int64, len(events))
	for i, e := range events {
		dates[i] = e.Date
		names[i] = e.Name
	}
	return models.NewTable(
		models.NewTimeColumn(ColumnDate, dates),
		models.NewStringColumn(ColumnHoliday, names),
		models.NewIntColumn(ColumnLowerWindow, windows),
		models.NewIntColumn(ColumnUpperWindow, append([]int64{}, windows...)),
	)
}
