package openei

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltquery/voltquery/internal/resilience"
)

func TestRatesByZip_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("api_key"))
		assert.Equal(t, "7", q.Get("version"))
		assert.Equal(t, "94103", q.Get("zipcode"))
		assert.Equal(t, "residential", q.Get("sector"))
		assert.Equal(t, "100", q.Get("limit"))

		_, _ = w.Write([]byte(`{"items": [
			{"name": "E-1 Residential", "utility": "Pacific Gas & Electric Co",
			 "sector": "Residential",
			 "energyratestructure": [[{"rate": 0.31, "adj": 0.01}], [{"rate": 0.38}]],
			 "fixedchargefirstmeter": 10.0, "fixedchargeunits": "$/month"}
		]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	plans, err := client.RatesByZip(context.Background(), "94103", "residential", 0)

	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "E-1 Residential", plans[0].Name)
	assert.Equal(t, "Pacific Gas & Electric Co", plans[0].Utility)
	assert.InDelta(t, 0.35, plans[0].AverageEnergyRate(), 1e-6)
}

func TestRatesByZip_LegacyRatesKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rates": [{"name": "Flat A"}]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	plans, err := client.RatesByZip(context.Background(), "94103", "", 10)

	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "Flat A", plans[0].Name)
}

func TestRatesByCoordinates_Params(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "39.7392", q.Get("latitude"))
		assert.Equal(t, "-104.9903", q.Get("longitude"))
		assert.Empty(t, q.Get("zipcode"))

		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	plans, err := client.RatesByCoordinates(context.Background(), 39.7392, -104.9903, "commercial", 25)

	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestRatesByZip_ServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.RatesByZip(context.Background(), "94103", "", 0)

	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestAverageEnergyRate_Empty(t *testing.T) {
	t.Parallel()

	var p RatePlan
	assert.Zero(t, p.AverageEnergyRate())
}
