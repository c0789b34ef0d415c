package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexxeth/tourist-safety-shield/internal/activity"
	"github.com/dexxeth/tourist-safety-shield/internal/alerts"
	"github.com/dexxeth/tourist-safety-shield/internal/api"
	"github.com/dexxeth/tourist-safety-shield/internal/api/handler"
	"github.com/dexxeth/tourist-safety-shield/internal/api/middleware"
	"github.com/dexxeth/tourist-safety-shield/internal/api/models"
	"github.com/dexxeth/tourist-safety-shield/internal/auth"
	"github.com/dexxeth/tourist-safety-shield/internal/dashboard"
	"github.com/dexxeth/tourist-safety-shield/internal/digitalid"
	"github.com/dexxeth/tourist-safety-shield/internal/geocoding"
	"github.com/dexxeth/tourist-safety-shield/internal/location"
	"github.com/dexxeth/tourist-safety-shield/internal/places"
	"github.com/dexxeth/tourist-safety-shield/internal/profile"
	"github.com/dexxeth/tourist-safety-shield/internal/provider/resilience"
	"github.com/dexxeth/tourist-safety-shield/internal/realtime"
	"github.com/dexxeth/tourist-safety-shield/internal/routing"
	"github.com/dexxeth/tourist-safety-shield/internal/sos"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

const (
	testUser         = "user-123"
	testServiceToken = "svc-token"
)

func strPtr(s string) *string { return &s }

type stubGeocoder struct{}

func (stubGeocoder) Reverse(context.Context, geo.Coordinate) (geocoding.Place, error) {
	return geocoding.Place{City: strPtr("Jaipur"), Area: strPtr("Pink City")}, nil
}

func (stubGeocoder) Search(_ context.Context, q string, _ int) ([]geocoding.Result, error) {
	return []geocoding.Result{{DisplayName: q + ", Rajasthan", Lat: 26.92, Lng: 75.82}}, nil
}

func (stubGeocoder) Name() string { return "stub" }

type testEnv struct {
	router    http.Handler
	verifier  *auth.Verifier
	alerts    *alerts.InMemoryRepository
	locations *location.InMemoryRepository
	sosRepo   *sos.InMemoryRepository
	profiles  *profile.InMemoryRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	hub := realtime.NewHub(realtime.HubConfig{Logger: logger})
	t.Cleanup(hub.Close)

	verifier := auth.NewVerifier(auth.Config{SigningKey: "test-secret-key-for-testing-only"})

	geocoder := geocoding.NewService(stubGeocoder{}, geocoding.ServiceConfig{Logger: logger})

	locRepo := location.NewInMemoryRepository(hub)
	store := location.NewStore(location.StoreConfig{
		Repository:     locRepo,
		ThrottleWindow: 15 * time.Second,
		Geocoder:       geocoder,
		Logger:         logger,
	})
	watcher := location.NewWatcher(store, hub, logger)

	alertRepo := alerts.NewInMemoryRepository(hub)
	alertAgg := alerts.NewAggregator(alerts.AggregatorConfig{Repository: alertRepo, Subscriber: hub, Logger: logger})

	finder := places.NewFinder(places.NewInMemoryRepository(&places.Accommodation{
		ID:             "acc-1",
		Name:           "Safe Haveli",
		City:           strPtr("Jaipur"),
		Coordinate:     &geo.Coordinate{Lat: 26.9239, Lng: 75.8267},
		SafetyFeatures: []string{"24h security", "police nearby"},
	}), logger)

	profiles := profile.NewInMemoryRepository(hub)
	scores := profile.NewScores(profiles, hub, logger)

	sosRepo := sos.NewInMemoryRepository()
	notifier := sos.NewNotifyService(sosRepo, logger)
	manager := sos.NewManager(sos.SessionConfig{
		Incidents: sosRepo,
		Contacts:  sosRepo,
		Notifier:  notifier,
		Locations: store,
		Logger:    logger,
	})

	routes := routing.NewService(routing.ServiceConfig{Alerts: alertAgg, Logger: logger})

	router := api.NewRouter(api.RouterConfig{
		Version:      "test",
		Logger:       logger,
		Tokens:       verifier,
		ServiceToken: testServiceToken,
		Locations:    store,
		Alerts:       alertAgg,
		Routes:       routes,
		Places:       finder,
		Geocoder:     geocoder,
		SOS:          manager,
		Notifier:     notifier,
		Stats: dashboard.NewAggregator(dashboard.Config{
			Locations: watcher,
			Alerts:    alertAgg,
			Places:    finder,
			Scores:    scores,
			Logger:    logger,
		}),
		Activity: activity.NewFeed(activity.Config{
			Locations:  store,
			Alerts:     alertAgg,
			Scores:     scores,
			Subscriber: hub,
			Logger:     logger,
		}),
		Scores: scores,
		IDs:    digitalid.NewService(digitalid.NewInMemoryRepository(), digitalid.ServiceConfig{Logger: logger}),
		Checks: map[string]handler.Check{
			"database": func(context.Context) error { return nil },
		},
		Providers: resilience.NewRegistry(),
	})

	return &testEnv{
		router:    router,
		verifier:  verifier,
		alerts:    alertRepo,
		locations: locRepo,
		sosRepo:   sosRepo,
		profiles:  profiles,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := e.verifier.Issue(testUser, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRouter_Health(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))

		assert.Equal(t, http.StatusOK, rec.Code, path)
		health := decode[models.Health](t, rec)
		assert.Equal(t, models.HealthStatusOK, health.Status)
		assert.Equal(t, "test", health.Version)
		assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	}
}

func TestRouter_ProvidersIsPublic(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/meta/providers", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[models.ProvidersResponse](t, rec).Providers)
}

func TestRouter_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/v1/sos/state", "/v1/dashboard", "/v1/locations/latest", "/v1/alerts"} {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestRouter_Locations(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/locations/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/locations", map[string]any{"lat": 26.9124, "lng": 75.7873, "accuracy": 12.5})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	recorded := decode[models.RecordLocationResponse](t, rec)
	assert.True(t, recorded.Persisted)
	assert.False(t, recorded.Throttled)
	require.NotNil(t, recorded.Stored)
	assert.Equal(t, "Pink City", *recorded.Stored.AreaName)

	// Second sample inside the throttle window updates the live value only.
	rec = env.do(t, http.MethodPost, "/v1/locations", map[string]any{"lat": 26.92, "lng": 75.79})
	require.Equal(t, http.StatusAccepted, rec.Code)
	recorded = decode[models.RecordLocationResponse](t, rec)
	assert.False(t, recorded.Persisted)
	assert.True(t, recorded.Throttled)

	rec = env.do(t, http.MethodGet, "/v1/locations/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	latest := decode[models.LatestLocation](t, rec)
	assert.InDelta(t, 26.92, *latest.Lat, 1e-9)

	rec = env.do(t, http.MethodPost, "/v1/locations/share", map[string]any{"lat": 26.93, "lng": 75.8, "areaName": "Amer"})
	require.Equal(t, http.StatusCreated, rec.Code)
	shared := decode[models.StoredLocation](t, rec)
	assert.Equal(t, "manual", shared.CheckinType)
}

func TestRouter_LocationValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/locations", map[string]any{"lat": 123.0, "lng": 75.0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decode[models.Problem](t, rec)
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "lat", problem.Errors[0].Field)

	rec = env.do(t, http.MethodPost, "/v1/locations", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Alerts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()
	old := now.Add(-48 * time.Hour)
	require.NoError(t, env.alerts.Create(ctx, &alerts.Alert{Severity: alerts.SeverityHigh, City: strPtr("Jaipur"), Description: "Pickpocketing near Hawa Mahal", ValidFrom: &now}))
	require.NoError(t, env.alerts.Create(ctx, &alerts.Alert{Severity: alerts.SeverityLow, City: strPtr("Jaipur"), Description: "Old closure", ValidFrom: &old}))
	require.NoError(t, env.alerts.Create(ctx, &alerts.Alert{Severity: alerts.SeverityMedium, City: strPtr("Goa"), Description: "Rip currents"}))

	rec := env.do(t, http.MethodGet, "/v1/alerts/count?city=jaipur", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.AlertCountResponse](t, rec).Count)

	rec = env.do(t, http.MethodGet, "/v1/alerts?city=Jaipur&window=72h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[models.AlertsResponse](t, rec)
	assert.Len(t, list.Alerts, 2)
	assert.Equal(t, "72h0m0s", list.Window)

	rec = env.do(t, http.MethodGet, "/v1/alerts?window=forever", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_SaferRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/routes/safer", map[string]any{
		"origin":      map[string]float64{"lat": 26.9124, "lng": 75.7873},
		"destination": map[string]float64{"lat": 26.9855, "lng": 75.8513},
		"city":        "Jaipur",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	suggestion := decode[routing.Suggestion](t, rec)
	assert.Len(t, suggestion.Options, 3)
	assert.True(t, suggestion.Degraded)

	rec = env.do(t, http.MethodPost, "/v1/routes/safer", map[string]any{
		"origin": map[string]float64{"lat": 26.9, "lng": 75.7},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decode[models.Problem](t, rec)
	assert.Equal(t, "destination", problem.Errors[0].Field)
}

func TestRouter_Places(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/places/nearby?lat=26.92&lng=75.82&city=Jaipur", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	nearby := decode[[]models.NearbyPlace](t, rec)
	require.Len(t, nearby, 1)
	require.NotNil(t, nearby[0].DistanceKm)

	rec = env.do(t, http.MethodGet, "/v1/places/help?lat=26.92&lng=75.82&city=Jaipur", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	help := decode[models.HelpResponse](t, rec)
	assert.Len(t, help.Catalog, 1)

	rec = env.do(t, http.MethodGet, "/v1/places/help", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[models.HelpResponse](t, rec).Curated)

	rec = env.do(t, http.MethodGet, "/v1/places/popular?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.LessOrEqual(t, len(decode[[]models.PopularPlace](t, rec)), 2)

	rec = env.do(t, http.MethodGet, "/v1/places/nearby?lat=26.92", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Geocode(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/geocode/reverse?lat=26.92&lng=75.82", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Pink City", decode[models.ReverseGeocodeResponse](t, rec).Label)

	rec = env.do(t, http.MethodGet, "/v1/geocode/reverse", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/geocode/search?q=Amer%20Fort", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[models.SearchResponse](t, rec).Results
	require.Len(t, results, 1)
	assert.Equal(t, "Amer Fort, Rajasthan", results[0].DisplayName)
}

func TestRouter_SOSPressAndCancel(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/sos/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sos.PhaseIdle, decode[sos.State](t, rec).Phase)

	rec = env.do(t, http.MethodPost, "/v1/sos/press", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[sos.State](t, rec)
	assert.Equal(t, sos.PhaseCountingDown, state.Phase)
	assert.Equal(t, sos.DefaultCountdown, state.Countdown)

	rec = env.do(t, http.MethodPost, "/v1/sos/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sos.PhaseIdle, decode[sos.State](t, rec).Phase)

	assert.Empty(t, env.sosRepo.Incidents())
	assert.Empty(t, env.sosRepo.Notifications())

	rec = env.do(t, http.MethodPost, "/v1/sos/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_SOSNotify(t *testing.T) {
	env := newTestEnv(t)

	send := func(token string, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/sos/notify", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set(middleware.ServiceTokenHeader, token)
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	valid := `{"userId":"user-9","contacts":[{"id":"c1","name":"Asha","phone":"+911234"}],"location":{"lat":26.9,"lng":75.8,"areaName":"Amer"}}`

	assert.Equal(t, http.StatusUnauthorized, send("", valid).Code)
	assert.Empty(t, env.sosRepo.Notifications())

	rec := send(testServiceToken, `{"userId":"user-9","contacts":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least one contact")
	assert.Empty(t, env.sosRepo.Notifications())

	rec = send(testServiceToken, valid)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[sos.NotifyResponse](t, rec)
	require.Len(t, resp.Delivered, 1)
	assert.Equal(t, "c1", resp.Delivered[0].ID)

	stored := env.sosRepo.Notifications()
	require.Len(t, stored, 1)
	assert.Equal(t, "user-9", stored[0].UserID)
	assert.Contains(t, stored[0].Message, "Amer")
}

func TestRouter_DashboardActivityAndScore(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/profile/safety-score", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[models.SafetyScoreResponse](t, rec).Score)

	rec = env.do(t, http.MethodGet, "/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[dashboard.Stats](t, rec)
	assert.False(t, stats.HasLocation)
	assert.Equal(t, dashboard.ScoreHeuristic, stats.ScoreSource)
	assert.Equal(t, dashboard.HeuristicScore(0, stats.SafeRoutes, 0, false), stats.SafetyScore)

	_, err := env.profiles.SetSafetyScore(context.Background(), testUser, 72)
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/v1/profile/safety-score", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	score := decode[models.SafetyScoreResponse](t, rec).Score
	require.NotNil(t, score)
	assert.Equal(t, 72, *score)

	rec = env.do(t, http.MethodPost, "/v1/locations", map[string]any{"lat": 26.9124, "lng": 75.7873})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/activity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[models.ActivityResponse](t, rec).Items
	require.NotEmpty(t, items)
	texts := make([]string, 0, len(items))
	for _, it := range items {
		texts = append(texts, it.Text)
	}
	assert.Contains(t, texts, "Entered Pink City")
	assert.Contains(t, texts, "Safety score is 72")
}

func TestRouter_DashboardStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/dashboard/stream", http.NoBody)
	require.NoError(t, err)
	token, err := env.verifier.Issue(testUser, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	assert.Equal(t, "stats", event)

	var stats dashboard.Stats
	require.NoError(t, json.Unmarshal([]byte(data), &stats))
	assert.Equal(t, dashboard.ScoreHeuristic, stats.ScoreSource)
}

func TestRouter_UnsupportedContentType(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/locations", strings.NewReader("lat=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRouter_RequestIDPreserved(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", http.NoBody)
	req.Header.Set("X-Request-Id", "req_custom")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, "req_custom", rec.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nope", http.NoBody))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_DigitalID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/digital-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/digital-id", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	issued := decode[map[string]any](t, rec)
	tssID, _ := issued["tssId"].(string)
	assert.True(t, digitalid.Valid(tssID), tssID)
	assert.Equal(t, "active", issued["effectiveStatus"])
	assert.Equal(t, "Basic", issued["badge"])

	rec = env.do(t, http.MethodPost, "/v1/digital-id", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tssID, decode[map[string]any](t, rec)["tssId"])

	rec = env.do(t, http.MethodGet, "/v1/digital-id/verify?tssId="+tssID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	verified := decode[map[string]any](t, rec)
	assert.Equal(t, true, verified["valid"])
	assert.NotEmpty(t, verified["lastVerification"])

	rec = env.do(t, http.MethodGet, "/v1/digital-id/verify?tssId=TSS-20-abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/digital-id/verify?tssId=TSS-2024-ZZZZZZ", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
