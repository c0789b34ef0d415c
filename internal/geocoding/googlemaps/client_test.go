package googlemaps_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexxeth/tourist-safety-shield/internal/geocoding"
	"github.com/dexxeth/tourist-safety-shield/internal/geocoding/googlemaps"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

const reverseBody = `{
  "status": "OK",
  "results": [{
    "formatted_address": "Baga Beach, Goa, India",
    "address_components": [
      {"long_name": "Baga", "short_name": "Baga", "types": ["sublocality_level_1", "sublocality", "political"]},
      {"long_name": "Calangute", "short_name": "Calangute", "types": ["locality", "political"]},
      {"long_name": "North Goa", "short_name": "North Goa", "types": ["administrative_area_level_2", "political"]}
    ],
    "geometry": {"location": {"lat": 15.5553, "lng": 73.7517}}
  }]
}`

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := googlemaps.NewClient(googlemaps.ClientConfig{})
	assert.ErrorIs(t, err, googlemaps.ErrMissingAPIKey)
}

func TestReverse_UsesAddressComponents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/maps/api/geocode/json", r.URL.Path)
		assert.Equal(t, "15.5553,73.7517", r.URL.Query().Get("latlng"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reverseBody))
	}))
	defer server.Close()

	client, err := googlemaps.NewClient(googlemaps.ClientConfig{APIKey: "AIza-test", BaseURL: server.URL})
	require.NoError(t, err)

	place, err := client.Reverse(context.Background(), geo.Coordinate{Lat: 15.5553, Lng: 73.7517})
	require.NoError(t, err)
	assert.Equal(t, "Baga", *place.Area)
	assert.Equal(t, "Calangute", *place.City)
	assert.Equal(t, "Baga Beach, Goa, India", *place.DisplayName)
}

func TestSearch_MapsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "baga beach", r.URL.Query().Get("address"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reverseBody))
	}))
	defer server.Close()

	client, err := googlemaps.NewClient(googlemaps.ClientConfig{APIKey: "AIza-test", BaseURL: server.URL})
	require.NoError(t, err)

	results, err := client.Search(context.Background(), "baga beach", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 15.5553, results[0].Lat, 1e-9)
	assert.InDelta(t, 73.7517, results[0].Lng, 1e-9)
}

func TestSearch_ProviderErrorIsWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "REQUEST_DENIED", "error_message": "bad key", "results": []}`))
	}))
	defer server.Close()

	client, err := googlemaps.NewClient(googlemaps.ClientConfig{APIKey: "AIza-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Search(context.Background(), "x", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, geocoding.ErrProviderUnavailable))
}
