package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/loadforecast/internal/engine"
	"github.com/rewired-gh/loadforecast/internal/holidays"
	"github.com/rewired-gh/loadforecast/internal/models"
)

func fittedModel(t *testing.T) *models.Model {
	t.Helper()
	start := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
	ds := make([]time.Time, 96)
	y := make([]float64, 96)
	for i := range ds {
		ds[i] = start.Add(time.Duration(i) * time.Hour)
		y[i] = 300 + 40*math.Sin(2*math.Pi*float64(i%24)/24)
	}
	history, err := models.NewTable(models.NewTimeColumn("ds", ds), models.NewFloatColumn("y", y))
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}

	m := models.NewModel()
	m.NChangepoints = 3
	if err := engine.New(holidays.Source{}).Fit(context.Background(), m, history, nil); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	return m
}

func TestFileStore_SaveAndLoadModel(t *testing.T) {
	tests := []struct {
		name         string
		doubleEncode bool
	}{
		{"single-level", false},
		{"doubly encoded", true},
	}

	m := fittedModel(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "model.json")
			s := NewFileStore(path, tt.doubleEncode, 0644, 0755)

			size, err := s.SaveModel(m)
			if err != nil {
				t.Fatalf("SaveModel failed: %v", err)
			}
			if size == 0 {
				t.Error("Expected non-zero document size")
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile failed: %v", err)
			}
			if isString := bytes.HasPrefix(raw, []byte(`"`)); isString != tt.doubleEncode {
				t.Errorf("Expected string literal layout %v, got %v", tt.doubleEncode, isString)
			}
			if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
				t.Error("Expected temp file to be renamed away")
			}

			loaded, _, err := s.LoadModel()
			if err != nil {
				t.Fatalf("LoadModel failed: %v", err)
			}
			if len(loaded.ChangepointsT) != len(m.ChangepointsT) {
				t.Errorf("Expected %d changepoints, got %d", len(m.ChangepointsT), len(loaded.ChangepointsT))
			}
			if loaded.Optimizer != nil {
				t.Error("Expected optimizer handle to be unset after load")
			}
		})
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "absent.json"), false, 0644, 0755)
	if _, err := s.Load(); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Expected ErrModelNotFound, got %v", err)
	}
}

func TestFileStore_StaleTempCleanup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	s := NewFileStore(path, false, 0644, 0755)

	if err := s.Save([]byte(`{"growth":"linear"}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := os.WriteFile(path+".tmp", []byte("partial"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != `{"growth":"linear"}` {
		t.Errorf("Unexpected document %s", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Expected stale temp file to be removed")
	}
}

func TestFileStore_RejectsInvalidJSON(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "model.json"), false, 0644, 0755)
	if err := s.Save([]byte("{not json")); err == nil {
		t.Error("Expected error for invalid document")
	}
}

func TestFileStore_SaveUnfitted(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "model.json"), false, 0644, 0755)
	if _, err := s.SaveModel(models.NewModel()); !errors.Is(err, models.ErrNotFitted) {
		t.Errorf("Expected ErrNotFitted, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	r, err := OpenRegistry(filepath.Join(t.TempDir(), "registry.db"), 2)
	if err != nil {
		t.Fatalf("OpenRegistry failed: %v", err)
	}
	defer func() { _ = r.Close() }()

	first, err := r.Save(ctx, "be-load", "BE", []byte(`{"v":1}`))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	second, err := r.Save(ctx, "be-load", "BE", []byte(`{"v":2}`))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := r.Save(ctx, "nl-load", "NL", []byte(`{"v":3}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if first == second {
		t.Fatal("Expected distinct IDs")
	}

	// first has been evicted from the two-entry cache and is read from disk.
	doc, err := r.Get(ctx, first)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(doc) != `{"v":1}` {
		t.Errorf("Expected first document, got %s", doc)
	}

	entry, doc, err := r.Latest(ctx, "be-load")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if entry.ID != second {
		t.Errorf("Expected latest ID %s, got %s", second, entry.ID)
	}
	var v map[string]int
	if err := json.Unmarshal(doc, &v); err != nil || v["v"] != 2 {
		t.Errorf("Expected second document, got %s", doc)
	}

	entries, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[0].Name != "nl-load" || entries[0].Country != "NL" {
		t.Errorf("Expected newest entry first, got %+v", entries[0])
	}

	if _, err := r.Get(ctx, "missing"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Expected ErrModelNotFound, got %v", err)
	}
	if _, _, err := r.Latest(ctx, "fr-load"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Expected ErrModelNotFound, got %v", err)
	}
	if _, err := r.Save(ctx, "", "BE", []byte(`{}`)); err == nil {
		t.Error("Expected error for empty name")
	}
}
