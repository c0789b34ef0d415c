package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexxeth/tourist-safety-shield/internal/api/models"
)

func fields(errs []models.FieldError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestValidate_LocationSample(t *testing.T) {
	var req models.LocationSampleRequest
	require.NoError(t, json.Unmarshal([]byte(`{"lat":0,"lng":0}`), &req))
	assert.Empty(t, models.Validate(&req), "zero is a valid coordinate")

	req = models.LocationSampleRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"lat":91,"accuracy":-1}`), &req))
	errs := models.Validate(&req)
	assert.ElementsMatch(t, []string{"lat", "lng", "accuracy"}, fields(errs))
	for _, e := range errs {
		if e.Field == "lat" {
			assert.Equal(t, "lte", e.Code)
			assert.Equal(t, "lat must be at most 90", e.Message)
		}
	}
}

func TestValidate_SaferRoute(t *testing.T) {
	var req models.SaferRouteRequest
	require.NoError(t, json.Unmarshal([]byte(`{"origin":{"lat":10,"lng":200}}`), &req))

	errs := models.Validate(&req)
	assert.ElementsMatch(t, []string{"origin.lng", "destination"}, fields(errs))
}

func TestTimestamp_RoundTripUTC(t *testing.T) {
	var ts models.Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2026-03-01T10:00:00+02:00"`), &ts))

	out, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2026-03-01T08:00:00Z"`, string(out))

	var empty models.Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &empty))
}
