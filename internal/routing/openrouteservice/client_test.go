package openrouteservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/routing"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

var (
	origin      = geo.Coordinate{Lat: 15.4909, Lng: 73.8278}
	destination = geo.Coordinate{Lat: 15.5553, Lng: 73.7517}
)

const twoFeatures = `{
  "type": "FeatureCollection",
  "features": [
    {"geometry": {"type": "LineString", "coordinates": [[73.8278, 15.4909], [73.7517, 15.5553]]},
     "properties": {"summary": {"distance": 14230.5, "duration": 1710.2}}},
    {"geometry": {"type": "LineString", "coordinates": [[73.8278, 15.4909], [73.79, 15.52], [73.7517, 15.5553]]},
     "properties": {"summary": {"distance": 15890.0, "duration": 1902.0}}}
  ]
}`

func newTestClient(url string) *Client {
	return NewClient(ClientConfig{
		APIKey:     "ors-key",
		BaseURL:    url,
		HTTPClient: http.DefaultClient,
		Logger:     zerolog.Nop(),
	})
}

func TestClient_Alternatives_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v2/directions/driving-car/geojson" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "ors-key" {
			t.Errorf("expected Authorization header 'ors-key', got %q", r.Header.Get("Authorization"))
		}

		var req directionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.AlternativeRoutes == nil || req.AlternativeRoutes.TargetCount != routing.MaxAlternatives {
			t.Errorf("expected alternative_routes.target_count=%d", routing.MaxAlternatives)
		}
		if req.Coordinates[0][0] != origin.Lng || req.Coordinates[0][1] != origin.Lat {
			t.Errorf("expected [lng, lat] order, got %v", req.Coordinates[0])
		}

		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(twoFeatures))
	}))
	defer server.Close()

	alts, err := newTestClient(server.URL).Alternatives(context.Background(), origin, destination)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alts) != 2 {
		t.Fatalf("expected 2 alternatives, got %d", len(alts))
	}
	if alts[0].DistanceKm != 14.2305 {
		t.Errorf("expected 14.2305 km, got %f", alts[0].DistanceKm)
	}
	if alts[0].DurationMinutes != 29 {
		t.Errorf("expected 29 minutes, got %d", alts[0].DurationMinutes)
	}
	if len(alts[1].Geometry) != 3 || alts[1].Geometry[1].Lat != 15.52 {
		t.Errorf("unexpected geometry %v", alts[1].Geometry)
	}
}

func TestClient_Alternatives_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"route not found", http.StatusBadRequest, `{"error": {"code": 2009, "message": "Route could not be found"}}`, routing.ErrNoRouteFound},
		{"point not found", http.StatusNotFound, `{"error": {"code": 2010, "message": "Could not find routable point"}}`, routing.ErrNoRouteFound},
		{"bad request", http.StatusBadRequest, `{"error": {"code": 2003, "message": "Parameter invalid"}}`, routing.ErrInvalidCoordinates},
		{"rate limited", http.StatusTooManyRequests, `{}`, routing.ErrRateLimitExceeded},
		{"forbidden", http.StatusForbidden, `{}`, routing.ErrProviderUnavailable},
		{"server error", http.StatusServiceUnavailable, `oops`, routing.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).Alternatives(context.Background(), origin, destination)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestClient_Alternatives_InvalidCoordinates(t *testing.T) {
	client := newTestClient("http://unused.invalid")

	_, err := client.Alternatives(context.Background(), geo.Coordinate{Lat: -91}, destination)
	var rErr *routing.Error
	if !errors.As(err, &rErr) || rErr.Code != "INVALID_ORIGIN" {
		t.Errorf("expected INVALID_ORIGIN, got %v", err)
	}

	_, err = client.Alternatives(context.Background(), origin, geo.Coordinate{Lng: 200})
	if !errors.As(err, &rErr) || rErr.Code != "INVALID_DESTINATION" {
		t.Errorf("expected INVALID_DESTINATION, got %v", err)
	}
}

func TestClient_Name(t *testing.T) {
	if got := newTestClient("").Name(); got != ProviderName {
		t.Errorf("expected %s, got %s", ProviderName, got)
	}
}
