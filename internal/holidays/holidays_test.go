package holidays

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/loadforecast/internal/models"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		country string
		want    string
		wantErr bool
	}{
		{"BE", "BE", false},
		{"be", "BE", false},
		{"Belgium", "BE", false},
		{"United States", "US", false},
		{"UK", "GB", false},
		{"XX", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.country, func(t *testing.T) {
			c, err := Lookup(tt.country)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, models.ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Country)
		})
	}
}

func TestSourceTable(t *testing.T) {
	table, err := Source{}.Table("BE", 2019, 2020)
	require.NoError(t, err)
	require.Greater(t, table.Rows(), 10)

	ds := table.Column(ColumnDate)
	require.NotNil(t, ds)
	assert.Equal(t, models.ColumnDatetime, ds.Type)
	for i := 1; i < len(ds.Times); i++ {
		assert.False(t, ds.Times[i].Before(ds.Times[i-1]), "dates must be sorted")
	}

	var newYear bool
	for _, d := range ds.Times {
		if d.Year() == 2020 && d.Month() == 1 && d.Day() == 1 {
			newYear = true
		}
	}
	assert.True(t, newYear, "expected 1 January 2020 in the Belgian calendar")

	assert.Equal(t, models.ColumnInteger, table.Column(ColumnLowerWindow).Type)
	assert.Equal(t, models.ColumnInteger, table.Column(ColumnUpperWindow).Type)
}

func TestSupported(t *testing.T) {
	assert.Equal(t, []string{"BE", "DE", "FR", "GB", "NL", "US"}, Supported())
}
