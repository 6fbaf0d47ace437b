package models

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		spec     string
		expected time.Duration
		wantErr  bool
	}{
		{"15 minutes", 15 * time.Minute, false},
		{"15min", 15 * time.Minute, false},
		{"15T", 15 * time.Minute, false},
		{"H", time.Hour, false},
		{"1D", 24 * time.Hour, false},
		{"2 weeks", 14 * 24 * time.Hour, false},
		{"90s", 90 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"", 0, true},
		{"MS", 0, true},
		{"3 fortnights", 0, true},
		{"0 minutes", 0, true},
		{"-5m", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseFrequency(tt.spec)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidFrequency) {
				t.Errorf("ParseFrequency(%q) expected ErrInvalidFrequency, got %v", tt.spec, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFrequency(%q) unexpected error: %v", tt.spec, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseFrequency(%q) = %v, expected %v", tt.spec, got, tt.expected)
		}
	}
}

func TestSettingJSON(t *testing.T) {
	tests := []struct {
		setting Setting
		json    string
	}{
		{Auto(), `"auto"`},
		{On(), `true`},
		{Off(), `false`},
		{Terms(28), `28`},
	}

	for _, tt := range tests {
		b, err := json.Marshal(tt.setting)
		if err != nil {
			t.Fatalf("Marshal(%v) failed: %v", tt.setting, err)
		}
		if string(b) != tt.json {
			t.Errorf("Marshal(%v) = %s, expected %s", tt.setting, b, tt.json)
		}
		var back Setting
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", b, err)
		}
		if back != tt.setting {
			t.Errorf("Unmarshal(%s) = %v, expected %v", b, back, tt.setting)
		}
	}

	for _, bad := range []string{`"sometimes"`, `2.5`, `0`, `-3`, `[1]`} {
		var s Setting
		if err := json.Unmarshal([]byte(bad), &s); err == nil {
			t.Errorf("Unmarshal(%s) expected error", bad)
		}
	}
}

func TestParseSetting(t *testing.T) {
	tests := []struct {
		in       string
		expected Setting
		wantErr  bool
	}{
		{"auto", Auto(), false},
		{"", Auto(), false},
		{"TRUE", On(), false},
		{"off", Off(), false},
		{" 14 ", Terms(14), false},
		{"0", Setting{}, true},
		{"many", Setting{}, true},
	}

	for _, tt := range tests {
		got, err := ParseSetting(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("ParseSetting(%q) expected ErrConfiguration, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.expected {
			t.Errorf("ParseSetting(%q) = %v, %v; expected %v", tt.in, got, err, tt.expected)
		}
		if s, _ := ParseSetting(got.String()); s != got {
			t.Errorf("String() of %v does not parse back", got)
		}
	}
}

func TestOrderedMapKeepsInsertionOrder(t *testing.T) {
	m := NewOrderedMap[int]()
	m.Set("yearly", 1)
	m.Set("weekly", 2)
	m.Set("daily", 3)
	m.Set("yearly", 10)

	want := []string{"yearly", "weekly", "daily"}
	if got := m.Keys(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Keys() = %v, expected %v", got, want)
	}
	if v, _ := m.Get("yearly"); v != 10 {
		t.Errorf("Expected replaced value 10, got %d", v)
	}

	var seen []string
	for k := range m.All() {
		seen = append(seen, k)
		if k == "weekly" {
			break
		}
	}
	if len(seen) != 2 {
		t.Errorf("Expected iteration to stop after 2 keys, got %v", seen)
	}

	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	back := NewOrderedMap[int]()
	if err := json.Unmarshal(b, back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got := back.Keys(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Unmarshalled keys = %v, expected %v", got, want)
	}
}

func TestOrderedMapUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not a pair", `[["a"]]`},
		{"key without value", `[["a","b"],{"a":1,"c":2}]`},
		{"value without key", `[["a"],{"a":1,"b":2}]`},
		{"repeated key", `[["a","a"],{"a":1,"b":2}]`},
		{"object", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewOrderedMap[int]()
			if err := json.Unmarshal([]byte(tt.doc), m); err == nil {
				t.Errorf("Expected error for %s", tt.doc)
			}
		})
	}
}

func TestColumnJSON(t *testing.T) {
	ts := time.Date(2019, 6, 20, 0, 15, 0, 0, time.UTC)
	columns := []*Column{
		NewTimeColumn("ds", []time.Time{ts, ts.Add(15 * time.Minute)}),
		NewFloatColumn("y", []float64{1.5, math.NaN()}),
		NewIntColumn("n", []int64{3, -4}),
		NewStringColumn("holiday", []string{"Christmas", ""}),
		NewBoolColumn("flag", []bool{true, false}),
	}

	for _, c := range columns {
		b, err := json.Marshal(c)
		if err != nil {
			t.Fatalf("Marshal(%s) failed: %v", c.Name, err)
		}
		var back Column
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", b, err)
		}
		if back.Name != c.Name || back.Type != c.Type || back.Len() != c.Len() {
			t.Errorf("Column %s did not survive: %+v", c.Name, back)
		}
	}

	var y Column
	if err := json.Unmarshal([]byte(`{"name":"y","type":"float","data":[1,null]}`), &y); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !math.IsNaN(y.Floats[1]) {
		t.Errorf("Expected null to decode as NaN, got %v", y.Floats[1])
	}

	var ds Column
	if err := json.Unmarshal([]byte(`{"name":"ds","type":"datetime","data":["2019-06-20T00:15:00.5+02:00"]}`), &ds); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !ds.Times[0].Equal(time.Date(2019, 6, 19, 22, 15, 0, 5e8, time.UTC)) {
		t.Errorf("Unexpected datetime %v", ds.Times[0])
	}
}

func TestColumnUntyped(t *testing.T) {
	var empty Column
	if err := json.Unmarshal([]byte(`{"name":"ds","data":[]}`), &empty); err != nil {
		t.Fatalf("Expected empty untyped column to decode, got %v", err)
	}
	if empty.Type != "" || empty.Len() != 0 {
		t.Errorf("Unexpected column %+v", empty)
	}

	var full Column
	if err := json.Unmarshal([]byte(`{"name":"ds","data":[1]}`), &full); err == nil {
		t.Error("Expected error for untyped column with values")
	}
	if err := json.Unmarshal([]byte(`{"name":"ds","type":"decimal","data":[]}`), &full); err == nil {
		t.Error("Expected error for unknown column type")
	}
}

func TestTable(t *testing.T) {
	ds := NewTimeColumn("ds", []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC),
	})
	tbl, err := NewTable(ds, NewFloatColumn("y", []float64{1, 2, 3}))
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	if tbl.Rows() != 3 {
		t.Errorf("Expected 3 rows, got %d", tbl.Rows())
	}

	if err := tbl.AddColumn(NewFloatColumn("short", []float64{1})); err == nil {
		t.Error("Expected error for mismatched column length")
	}
	if err := tbl.AddColumn(NewFloatColumn("y", []float64{1, 2, 3})); err == nil {
		t.Error("Expected error for duplicate column")
	}
	if err := tbl.SetColumn(NewFloatColumn("y", []float64{4, 5, 6})); err != nil {
		t.Fatalf("SetColumn failed: %v", err)
	}

	sel := tbl.Select([]int{2, 0})
	if got := sel.Column("y").Floats; got[0] != 6 || got[1] != 4 {
		t.Errorf("Select returned %v", got)
	}

	clone := tbl.Clone()
	clone.Column("y").Floats[0] = 100
	if tbl.Column("y").Floats[0] != 4 {
		t.Error("Clone shares storage with the original")
	}

	tbl.IndexName = "row"
	b, err := json.Marshal(tbl)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var back Table
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back.IndexName != "row" || strings.Join(back.Names(), ",") != "ds,y" || back.Rows() != 3 {
		t.Errorf("Table did not survive: %+v", back)
	}

	if err := json.Unmarshal([]byte(`{"columns":[{"name":"a","type":"integer","data":[1,2]},{"name":"b","type":"integer","data":[1]}]}`), &back); err == nil {
		t.Error("Expected error for ragged table")
	}
}

func TestParams(t *testing.T) {
	p := Params{
		ParamK:     {{0.5}},
		ParamDelta: {{0.1, -0.2}},
		"empty":    {{}},
	}

	if k, err := p.Scalar(ParamK); err != nil || k != 0.5 {
		t.Errorf("Scalar(k) = %v, %v", k, err)
	}
	if d, err := p.Chain(ParamDelta); err != nil || len(d) != 2 {
		t.Errorf("Chain(delta) = %v, %v", d, err)
	}
	if _, err := p.Scalar(ParamM); !errors.Is(err, ErrMissingParameters) {
		t.Errorf("Expected ErrMissingParameters for m, got %v", err)
	}
	if _, err := p.Scalar("empty"); !errors.Is(err, ErrMissingParameters) {
		t.Errorf("Expected ErrMissingParameters for empty, got %v", err)
	}
}

func TestDeserializationError(t *testing.T) {
	err := error(&DeserializationError{Attribute: "history", Err: errors.New("bad column")})
	if !errors.Is(err, ErrDeserialization) {
		t.Error("Expected DeserializationError to match ErrDeserialization")
	}
	if !strings.Contains(err.Error(), `"history"`) {
		t.Errorf("Expected attribute in message, got %s", err)
	}
}

func TestNewModelUnfitted(t *testing.T) {
	m := NewModel()
	if m.Fitted() {
		t.Error("Expected new model to be unfitted")
	}
	if m.Seasonalities == nil || m.Seasonalities.Len() != 0 {
		t.Error("Expected empty seasonalities")
	}
}
