package climate_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadplan/internal/climate"
	"loadplan/internal/config"
	"loadplan/internal/domain"
)

func TestStaticSource_KnownLocation(t *testing.T) {
	source := climate.NewStaticSource()

	data, err := source.DesignConditions(context.Background(), "Denver, CO")

	require.NoError(t, err)
	assert.Equal(t, "Denver, CO", data.Location)
	assert.Equal(t, 6.0, data.HeatingDesignTemp)
	assert.Equal(t, 90.0, data.CoolingDesignTemp)
	assert.Equal(t, "5B", data.ClimateZone)
	assert.Equal(t, 0.0, data.DesignGrains)
}

func TestStaticSource_SpellingVariants(t *testing.T) {
	source := climate.NewStaticSource()

	for _, spelling := range []string{"denver-co", "DENVER, CO", "  denver ,  co  ", "Denver CO"} {
		t.Run(spelling, func(t *testing.T) {
			data, err := source.DesignConditions(context.Background(), spelling)
			require.NoError(t, err)
			assert.Equal(t, "Denver, CO", data.Location)
		})
	}
}

func TestStaticSource_UnknownLocation(t *testing.T) {
	source := climate.NewStaticSource()

	data, err := source.DesignConditions(context.Background(), "Gotham, NJ")

	assert.Nil(t, data)
	assert.ErrorIs(t, err, domain.ErrClimateLocationUnknown)
}

func TestNormalizeLocation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Denver, CO", "denver-co"},
		{"denver-co", "denver-co"},
		{"  Salt   Lake City , UT ", "salt-lake-city-ut"},
		{"St. Paul, MN", "st-paul-mn"},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, climate.NormalizeLocation(tc.in))
	}
}

func TestClient_DesignConditions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/design-conditions", r.URL.Path)
		assert.Equal(t, "Boise, ID", r.URL.Query().Get("location"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"location": "Boise, ID",
			"heating_design_temp_f": 10,
			"cooling_design_temp_f": 96,
			"heating_degree_days": 5658,
			"cooling_degree_days": 805,
			"climate_zone": "5B",
			"design_grains": 0
		}`))
	}))
	defer srv.Close()

	client := climate.NewClient(config.ClimateConfig{Endpoint: srv.URL, TimeoutSecs: 5})

	data, err := client.DesignConditions(context.Background(), "Boise, ID")

	require.NoError(t, err)
	assert.Equal(t, "Boise, ID", data.Location)
	assert.Equal(t, 10.0, data.HeatingDesignTemp)
	assert.Equal(t, 96.0, data.CoolingDesignTemp)
	assert.Equal(t, "5B", data.ClimateZone)
}

func TestClient_FillsMissingLocationFromRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"heating_design_temp_f": 1, "cooling_design_temp_f": 91}`))
	}))
	defer srv.Close()

	client := climate.NewClient(config.ClimateConfig{Endpoint: srv.URL})

	data, err := client.DesignConditions(context.Background(), "Laramie, WY")

	require.NoError(t, err)
	assert.Equal(t, "Laramie, WY", data.Location)
}

func TestClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such location", http.StatusNotFound)
	}))
	defer srv.Close()

	client := climate.NewClient(config.ClimateConfig{Endpoint: srv.URL})

	data, err := client.DesignConditions(context.Background(), "Atlantis")

	assert.Nil(t, data)
	assert.ErrorIs(t, err, domain.ErrClimateLocationUnknown)
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := climate.NewClient(config.ClimateConfig{Endpoint: srv.URL})

	_, err := client.DesignConditions(context.Background(), "Denver, CO")

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrClimateLocationUnknown)
	assert.Contains(t, err.Error(), "status 500")
}

func TestClient_EmptyLocation(t *testing.T) {
	client := climate.NewClient(config.ClimateConfig{Endpoint: "http://localhost:0"})

	_, err := client.DesignConditions(context.Background(), "   ")

	assert.ErrorIs(t, err, domain.ErrClimateLocationUnknown)
}

func TestNewSource(t *testing.T) {
	t.Run("endpoint configured", func(t *testing.T) {
		source := climate.NewSource(config.ClimateConfig{Endpoint: "http://climate.internal"})
		_, ok := source.(*climate.Client)
		assert.True(t, ok)
	})

	t.Run("no endpoint falls back to bundled table", func(t *testing.T) {
		source := climate.NewSource(config.ClimateConfig{})
		_, ok := source.(*climate.StaticSource)
		assert.True(t, ok)
	})
}
