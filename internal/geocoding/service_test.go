package geocoding_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dexxeth/tourist-safety-shield/internal/geocoding"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

type stubGeocoder struct {
	place       geocoding.Place
	results     []geocoding.Result
	err         error
	searchCalls int
	reverseHits int
}

func (s *stubGeocoder) Reverse(context.Context, geo.Coordinate) (geocoding.Place, error) {
	s.reverseHits++
	return s.place, s.err
}

func (s *stubGeocoder) Search(context.Context, string, int) ([]geocoding.Result, error) {
	s.searchCalls++
	return s.results, s.err
}

func (s *stubGeocoder) Name() string { return "stub" }

func strPtr(s string) *string { return &s }

func TestReverseGeocode_FailureReturnsAllNil(t *testing.T) {
	stub := &stubGeocoder{err: errors.New("network down")}
	svc := geocoding.NewService(stub, geocoding.ServiceConfig{})

	place := svc.ReverseGeocode(context.Background(), 12.9, 77.6)

	assert.Nil(t, place.City)
	assert.Nil(t, place.Area)
	assert.Nil(t, place.DisplayName)
	assert.Equal(t, 1, stub.reverseHits)
}

func TestReverseGeocode_InvalidCoordinateSkipsProvider(t *testing.T) {
	stub := &stubGeocoder{}
	svc := geocoding.NewService(stub, geocoding.ServiceConfig{})

	place := svc.ReverseGeocode(context.Background(), math.NaN(), 0)

	assert.True(t, place.IsEmpty())
	assert.Equal(t, 0, stub.reverseHits)
}

func TestReverseGeocode_Success(t *testing.T) {
	stub := &stubGeocoder{place: geocoding.Place{City: strPtr("Jaipur"), Area: strPtr("Pink City")}}
	svc := geocoding.NewService(stub, geocoding.ServiceConfig{})

	place := svc.ReverseGeocode(context.Background(), 26.9, 75.8)

	assert.Equal(t, "Pink City", place.Label())
	assert.Equal(t, "Jaipur", *place.City)
}

func TestForwardGeocode_EmptyQuery(t *testing.T) {
	stub := &stubGeocoder{}
	svc := geocoding.NewService(stub, geocoding.ServiceConfig{})

	for _, q := range []string{"", "   ", "\t\n"} {
		results := svc.ForwardGeocode(context.Background(), q, 5)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	}
	assert.Equal(t, 0, stub.searchCalls)
}

func TestForwardGeocode_FiltersAndLimits(t *testing.T) {
	stub := &stubGeocoder{results: []geocoding.Result{
		{DisplayName: "a", Lat: 1, Lng: 1},
		{DisplayName: "nan", Lat: math.NaN(), Lng: 1},
		{DisplayName: "b", Lat: 2, Lng: 2},
		{DisplayName: "c", Lat: 3, Lng: 3},
	}}
	svc := geocoding.NewService(stub, geocoding.ServiceConfig{})

	results := svc.ForwardGeocode(context.Background(), "fort", 2)

	assert.Len(t, results, 2)
	assert.Equal(t, "a", results[0].DisplayName)
	assert.Equal(t, "b", results[1].DisplayName)
}

func TestForwardGeocode_FailureReturnsEmpty(t *testing.T) {
	stub := &stubGeocoder{err: errors.New("boom")}
	svc := geocoding.NewService(stub, geocoding.ServiceConfig{})

	results := svc.ForwardGeocode(context.Background(), "fort", 2)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestPlace_Label(t *testing.T) {
	assert.Equal(t, "", geocoding.Place{}.Label())
	assert.Equal(t, "Goa", geocoding.Place{City: strPtr("Goa")}.Label())
	assert.Equal(t, "Goa", geocoding.Place{City: strPtr("Goa"), Area: strPtr("")}.Label())
}
