// Package loaddata reads load history from CSV and writes forecast tables as
// CSV or JSON records.
package loaddata

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/loadforecast/internal/models"
)

// layouts tried in order when ReadOptions.Layout is empty.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04",
	"2006-01-02",
}

// ReadOptions select and parse the history columns.
type ReadOptions struct {
	TimestampColumn string
	ValueColumn     string
	// Layout is a time layout; empty tries common layouts.
	Layout string
	// Location applies to timestamps without a zone. Nil means UTC.
	Location *time.Location
	// Before drops rows at or after this instant when set.
	Before time.Time
}

// DefaultReadOptions match the metering export: DateTime and Load columns.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{
		TimestampColumn: "DateTime",
		ValueColumn:     "Load",
	}
}

// ReadCSV reads a header-led CSV into a table with ds and y columns. Empty or
// non-numeric values become NaN so the engine drops them.
func ReadCSV(r io.Reader, opts ReadOptions) (*models.Table, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	tsIdx, valIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case opts.TimestampColumn:
			tsIdx = i
		case opts.ValueColumn:
			valIdx = i
		}
	}
	if tsIdx < 0 {
		return nil, fmt.Errorf("column %q not found in header", opts.TimestampColumn)
	}
	if valIdx < 0 {
		return nil, fmt.Errorf("column %q not found in header", opts.ValueColumn)
	}

	var ds []time.Time
	var y []float64
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ts, err := parseTime(record[tsIdx], opts.Layout, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !opts.Before.IsZero() && !ts.Before(opts.Before) {
			continue
		}
		ds = append(ds, ts)
		y = append(y, parseValue(record[valIdx]))
	}

	return models.NewTable(models.NewTimeColumn("ds", ds), models.NewFloatColumn("y", y))
}

func parseTime(v, layout string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if layout != "" {
		t, err := time.ParseInLocation(layout, v, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", v, err)
		}
		return t, nil
	}
	for _, l := range layouts {
		if t, err := time.ParseInLocation(l, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", v)
}

func parseValue(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// exportColumns are written when present, in this order.
var exportColumns = []string{"yhat", "yhat_lower", "yhat_upper"}

func exported(forecast *models.Table) (*models.Column, []*models.Column, error) {
	ds := forecast.Column("ds")
	if ds == nil || ds.Type != models.ColumnDatetime {
		return nil, nil, fmt.Errorf("forecast has no datetime ds column")
	}
	var cols []*models.Column
	for _, name := range exportColumns {
		c := forecast.Column(name)
		if c == nil {
			continue
		}
		if c.Type != models.ColumnFloat {
			return nil, nil, fmt.Errorf("forecast column %q is not numeric", name)
		}
		cols = append(cols, c)
	}
	if len(cols) == 0 {
		return nil, nil, fmt.Errorf("forecast has no yhat column")
	}
	return ds, cols, nil
}

// WriteCSV writes ds and the point and interval forecasts.
func WriteCSV(w io.Writer, forecast *models.Table) error {
	ds, cols, err := exported(forecast)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"ds"}
	for _, c := range cols {
		header = append(header, c.Name)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for i, ts := range ds.Times {
		record[0] = ts.Format("2006-01-02 15:04:05")
		for j, c := range cols {
			record[j+1] = strconv.FormatFloat(c.Floats[i], 'f', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes one object per row. NaN values are written as null.
func WriteJSON(w io.Writer, forecast *models.Table) error {
	ds, cols, err := exported(forecast)
	if err != nil {
		return err
	}

	records := make([]map[string]any, len(ds.Times))
	for i, ts := range ds.Times {
		rec := map[string]any{"ds": ts.Format(time.RFC3339)}
		for _, c := range cols {
			if v := c.Floats[i]; !math.IsNaN(v) {
				rec[c.Name] = v
			} else {
				rec[c.Name] = nil
			}
		}
		records[i] = rec
	}
	enc := json.NewEncoder(w)
	return enc.Encode(records)
}
