package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ColumnType tags the element type of a Column so it survives serialization.
type ColumnType string

const (
	ColumnDatetime ColumnType = "datetime"
	ColumnFloat    ColumnType = "float"
	ColumnInteger  ColumnType = "integer"
	ColumnString   ColumnType = "string"
	ColumnBoolean  ColumnType = "boolean"
)

// Column is a named, typed sequence of values. Exactly one of the value slices
// is in use, selected by Type. A Column on its own is a labeled series.
type Column struct {
	Name    string
	Type    ColumnType
	Times   []time.Time
	Floats  []float64
	Ints    []int64
	Strings []string
	Bools   []bool
}

// NewTimeColumn returns a datetime column.
func NewTimeColumn(name string, values []time.Time) *Column {
	if values == nil {
		values = []time.Time{}
	}
	return &Column{Name: name, Type: ColumnDatetime, Times: values}
}

// NewFloatColumn returns a float column.
func NewFloatColumn(name string, values []float64) *Column {
	if values == nil {
		values = []float64{}
	}
	return &Column{Name: name, Type: ColumnFloat, Floats: values}
}

// NewIntColumn returns an integer column.
func NewIntColumn(name string, values []int64) *Column {
	if values == nil {
		values = []int64{}
	}
	return &Column{Name: name, Type: ColumnInteger, Ints: values}
}

// NewStringColumn returns a string column.
func NewStringColumn(name string, values []string) *Column {
	if values == nil {
		values = []string{}
	}
	return &Column{Name: name, Type: ColumnString, Strings: values}
}

// NewBoolColumn returns a boolean column.
func NewBoolColumn(name string, values []bool) *Column {
	if values == nil {
		values = []bool{}
	}
	return &Column{Name: name, Type: ColumnBoolean, Bools: values}
}

// Len returns the number of elements.
func (c *Column) Len() int {
	switch c.Type {
	case ColumnDatetime:
		return len(c.Times)
	case ColumnFloat:
		return len(c.Floats)
	case ColumnInteger:
		return len(c.Ints)
	case ColumnString:
		return len(c.Strings)
	case ColumnBoolean:
		return len(c.Bools)
	}
	return 0
}

// Clone returns a deep copy.
func (c *Column) Clone() *Column {
	out := &Column{Name: c.Name, Type: c.Type}
	switch c.Type {
	case ColumnDatetime:
		out.Times = append([]time.Time{}, c.Times...)
	case ColumnFloat:
		out.Floats = append([]float64{}, c.Floats...)
	case ColumnInteger:
		out.Ints = append([]int64{}, c.Ints...)
	case ColumnString:
		out.Strings = append([]string{}, c.Strings...)
	case ColumnBoolean:
		out.Bools = append([]bool{}, c.Bools...)
	}
	return out
}

// Select returns a new column holding the elements at the given positions.
func (c *Column) Select(rows []int) *Column {
	out := &Column{Name: c.Name, Type: c.Type}
	switch c.Type {
	case ColumnDatetime:
		out.Times = make([]time.Time, len(rows))
		for i, r := range rows {
			out.Times[i] = c.Times[r]
		}
	case ColumnFloat:
		out.Floats = make([]float64, len(rows))
		for i, r := range rows {
			out.Floats[i] = c.Floats[r]
		}
	case ColumnInteger:
		out.Ints = make([]int64, len(rows))
		for i, r := range rows {
			out.Ints[i] = c.Ints[r]
		}
	case ColumnString:
		out.Strings = make([]string, len(rows))
		for i, r := range rows {
			out.Strings[i] = c.Strings[r]
		}
	case ColumnBoolean:
		out.Bools = make([]bool, len(rows))
		for i, r := range rows {
			out.Bools[i] = c.Bools[r]
		}
	}
	return out
}

// AsFloats returns the values as float64 for numeric and boolean columns.
func (c *Column) AsFloats() ([]float64, error) {
	switch c.Type {
	case ColumnFloat:
		return c.Floats, nil
	case ColumnInteger:
		out := make([]float64, len(c.Ints))
		for i, v := range c.Ints {
			out[i] = float64(v)
		}
		return out, nil
	case ColumnBoolean:
		out := make([]float64, len(c.Bools))
		for i, v := range c.Bools {
			if v {
				out[i] = 1
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("column %q of type %s is not numeric", c.Name, c.Type)
}

// columnJSON is the wire form of a Column. Datetimes are RFC 3339 strings with
// nanoseconds, NaN floats are null.
type columnJSON struct {
	Name string          `json:"name"`
	Type ColumnType      `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes the column with its name and type tag.
func (c *Column) MarshalJSON() ([]byte, error) {
	var data any
	switch c.Type {
	case ColumnDatetime:
		values := make([]string, len(c.Times))
		for i, t := range c.Times {
			values[i] = t.Format(time.RFC3339Nano)
		}
		data = values
	case ColumnFloat:
		values := make([]*float64, len(c.Floats))
		for i := range c.Floats {
			if !math.IsNaN(c.Floats[i]) {
				values[i] = &c.Floats[i]
			}
		}
		data = values
	case ColumnInteger:
		data = nonNil(c.Ints)
	case ColumnString:
		data = nonNil(c.Strings)
	case ColumnBoolean:
		data = nonNil(c.Bools)
	default:
		return nil, fmt.Errorf("column %q has unknown type %q", c.Name, c.Type)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(columnJSON{Name: c.Name, Type: c.Type, Data: raw})
}

// UnmarshalJSON decodes a column. An untyped column is accepted only when it
// has no elements; callers decide which type it should carry.
func (c *Column) UnmarshalJSON(b []byte) error {
	var wire columnJSON
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	if len(wire.Data) == 0 || bytes.Equal(wire.Data, []byte("null")) {
		wire.Data = []byte("[]")
	}

	out := Column{Name: wire.Name, Type: wire.Type}
	switch wire.Type {
	case ColumnDatetime:
		var values []string
		if err := json.Unmarshal(wire.Data, &values); err != nil {
			return fmt.Errorf("column %q: %w", wire.Name, err)
		}
		out.Times = make([]time.Time, len(values))
		for i, v := range values {
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return fmt.Errorf("column %q row %d: %w", wire.Name, i, err)
			}
			out.Times[i] = t
		}
	case ColumnFloat:
		var values []*float64
		if err := json.Unmarshal(wire.Data, &values); err != nil {
			return fmt.Errorf("column %q: %w", wire.Name, err)
		}
		out.Floats = make([]float64, len(values))
		for i, v := range values {
			if v == nil {
				out.Floats[i] = math.NaN()
			} else {
				out.Floats[i] = *v
			}
		}
	case ColumnInteger:
		out.Ints = []int64{}
		if err := json.Unmarshal(wire.Data, &out.Ints); err != nil {
			return fmt.Errorf("column %q: %w", wire.Name, err)
		}
	case ColumnString:
		out.Strings = []string{}
		if err := json.Unmarshal(wire.Data, &out.Strings); err != nil {
			return fmt.Errorf("column %q: %w", wire.Name, err)
		}
	case ColumnBoolean:
		out.Bools = []bool{}
		if err := json.Unmarshal(wire.Data, &out.Bools); err != nil {
			return fmt.Errorf("column %q: %w", wire.Name, err)
		}
	case "":
		var values []json.RawMessage
		if err := json.Unmarshal(wire.Data, &values); err != nil {
			return fmt.Errorf("column %q: %w", wire.Name, err)
		}
		if len(values) > 0 {
			return fmt.Errorf("column %q: %w", wire.Name, errors.New("missing type tag"))
		}
	default:
		return fmt.Errorf("column %q has unknown type %q", wire.Name, wire.Type)
	}

	*c = out
	return nil
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
