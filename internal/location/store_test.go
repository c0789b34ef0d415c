package location

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexxeth/tourist-safety-shield/internal/geocoding"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubGeocoder struct {
	place geocoding.Place
	calls int
}

func (g *stubGeocoder) ReverseGeocode(_ context.Context, _, _ float64) geocoding.Place {
	g.calls++
	return g.place
}

func strPtr(s string) *string { return &s }

var jaipur = geo.Coordinate{Lat: 26.9124, Lng: 75.7873}

func newTestStore(t *testing.T, variant SchemaVariant) (*Store, *InMemoryRepository, *fakeClock, *stubGeocoder) {
	t.Helper()
	clock := newFakeClock()
	repo := NewInMemoryRepository(nil)
	repo.SetClock(clock.Now)
	gc := &stubGeocoder{place: geocoding.Place{Area: strPtr("Pink City"), City: strPtr("Jaipur")}}
	store := NewStore(StoreConfig{
		Repository: repo,
		Variant:    variant,
		Geocoder:   gc,
		Logger:     zerolog.Nop(),
		Now:        clock.Now,
	})
	return store, repo, clock, gc
}

func TestStore_ThrottlesPersistencePerWindow(t *testing.T) {
	store, repo, clock, _ := newTestStore(t, VariantAuto)
	ctx := context.Background()

	first, err := store.Record(ctx, "u-1", Sample{Coordinate: jaipur})
	require.NoError(t, err)
	assert.True(t, first.Persisted)

	for i := 0; i < 2; i++ {
		clock.Advance(5 * time.Second)
		res, err := store.Record(ctx, "u-1", Sample{Coordinate: jaipur})
		require.NoError(t, err)
		assert.True(t, res.Throttled)
		assert.False(t, res.Persisted)
	}
	assert.Len(t, repo.Attempts(), 1)

	clock.Advance(6 * time.Second) // 16s after the first sample
	res, err := store.Record(ctx, "u-1", Sample{Coordinate: jaipur})
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Len(t, repo.Attempts(), 2)
}

func TestStore_ThrottleIsPerUser(t *testing.T) {
	store, repo, _, _ := newTestStore(t, VariantAuto)
	ctx := context.Background()

	_, err := store.Record(ctx, "u-1", Sample{Coordinate: jaipur})
	require.NoError(t, err)
	res, err := store.Record(ctx, "u-2", Sample{Coordinate: jaipur})
	require.NoError(t, err)

	assert.True(t, res.Persisted)
	assert.Len(t, repo.Attempts(), 2)
}

func TestStore_LiveValueUpdatesWhenThrottled(t *testing.T) {
	store, _, clock, _ := newTestStore(t, VariantAuto)
	ctx := context.Background()

	_, err := store.Record(ctx, "u-1", Sample{Coordinate: jaipur})
	require.NoError(t, err)

	clock.Advance(time.Second)
	moved := geo.Coordinate{Lat: 26.95, Lng: 75.80}
	res, err := store.Record(ctx, "u-1", Sample{Coordinate: moved})
	require.NoError(t, err)
	require.True(t, res.Throttled)

	latest, ok := store.Latest(ctx, "u-1")
	require.True(t, ok)
	assert.Equal(t, moved, latest.Coordinate)
	assert.Equal(t, SourceDevice, latest.Source)
}

func TestStore_RejectsInvalidInput(t *testing.T) {
	store, repo, _, _ := newTestStore(t, VariantAuto)
	ctx := context.Background()

	_, err := store.Record(ctx, "u-1", Sample{Coordinate: geo.Coordinate{Lat: 91, Lng: 0}})
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)

	_, err = store.Record(ctx, "", Sample{Coordinate: jaipur})
	assert.ErrorIs(t, err, ErrMissingUser)

	assert.Empty(t, repo.Attempts())
}

func TestStore_FallsBackThroughVariants(t *testing.T) {
	store, repo, _, _ := newTestStore(t, VariantAuto)
	undefinedColumn := &pgconn.PgError{Code: "42703", Message: `column "accuracy_meters" does not exist`}
	repo.FailInsert(VariantFull, undefinedColumn)
	repo.FailInsert(VariantArea, undefinedColumn)

	res, err := store.Record(context.Background(), "u-1", Sample{Coordinate: jaipur})
	require.NoError(t, err)

	require.True(t, res.Persisted)
	assert.Equal(t, []SchemaVariant{VariantFull, VariantArea, VariantCity}, repo.Attempts())
	require.NotNil(t, res.Location.City)
	assert.Equal(t, "Jaipur", *res.Location.City)
	assert.Nil(t, res.Location.AreaName)
}

func TestStore_GroupingErrorStopsChain(t *testing.T) {
	store, repo, _, _ := newTestStore(t, VariantAuto)
	repo.FailInsert(VariantFull, &pgconn.PgError{Code: "42803"})

	res, err := store.Record(context.Background(), "u-1", Sample{Coordinate: jaipur})
	require.NoError(t, err)

	assert.False(t, res.Persisted)
	assert.Equal(t, []SchemaVariant{VariantFull}, repo.Attempts())
}

func TestStore_AllVariantsFailingDropsSample(t *testing.T) {
	store, repo, _, _ := newTestStore(t, VariantAuto)
	for _, v := range FallbackChain {
		repo.FailInsert(v, assert.AnError)
	}

	res, err := store.Record(context.Background(), "u-1", Sample{Coordinate: jaipur})
	require.NoError(t, err)

	assert.False(t, res.Persisted)
	assert.Equal(t, FallbackChain, repo.Attempts())
}

func TestStore_PinnedVariantIssuesOneShape(t *testing.T) {
	store, repo, _, _ := newTestStore(t, VariantMinimal)
	repo.FailInsert(VariantMinimal, assert.AnError)

	res, err := store.Record(context.Background(), "u-1", Sample{Coordinate: jaipur})
	require.NoError(t, err)

	assert.False(t, res.Persisted)
	assert.Equal(t, []SchemaVariant{VariantMinimal}, repo.Attempts())
}

func TestStore_GeocodesMissingArea(t *testing.T) {
	store, _, _, gc := newTestStore(t, VariantAuto)
	ctx := context.Background()

	res, err := store.Record(ctx, "u-1", Sample{Coordinate: jaipur})
	require.NoError(t, err)

	assert.Equal(t, 1, gc.calls)
	require.NotNil(t, res.Location.AreaName)
	assert.Equal(t, "Pink City", *res.Location.AreaName)
	assert.Equal(t, "Pink City", res.Latest.Label())

	_, err = store.Share(ctx, "u-1", Sample{Coordinate: jaipur, AreaName: strPtr("Amer")})
	require.NoError(t, err)
	assert.Equal(t, 1, gc.calls)
}

func TestStore_ShareBypassesThrottle(t *testing.T) {
	store, repo, _, _ := newTestStore(t, VariantAuto)
	ctx := context.Background()

	_, err := store.Record(ctx, "u-1", Sample{Coordinate: jaipur})
	require.NoError(t, err)

	loc, err := store.Share(ctx, "u-1", Sample{Coordinate: jaipur})
	require.NoError(t, err)

	assert.Equal(t, CheckinManual, loc.CheckinType)
	assert.Len(t, repo.Attempts(), 2)
}

func TestStore_ShareReturnsPersistenceError(t *testing.T) {
	store, repo, _, _ := newTestStore(t, VariantFull)
	repo.FailInsert(VariantFull, assert.AnError)

	_, err := store.Share(context.Background(), "u-1", Sample{Coordinate: jaipur})
	assert.ErrorIs(t, err, ErrPersistFailed)
}

func TestStore_LatestPrefersNewerStoredRow(t *testing.T) {
	store, repo, clock, _ := newTestStore(t, VariantAuto)
	ctx := context.Background()

	_, err := store.Record(ctx, "u-1", Sample{Coordinate: jaipur})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	other := geo.Coordinate{Lat: 27.0, Lng: 75.9}
	_, err = repo.Insert(ctx, VariantMinimal, InsertPayload{UserID: "u-1", Latitude: other.Lat, Longitude: other.Lng})
	require.NoError(t, err)

	latest, ok := store.Latest(ctx, "u-1")
	require.True(t, ok)
	assert.Equal(t, other, latest.Coordinate)
	assert.Equal(t, SourceStore, latest.Source)

	_, ok = store.Latest(ctx, "nobody")
	assert.False(t, ok)
}

func TestPayloadFor(t *testing.T) {
	acc := 12.6
	alt := 431.0
	s := Sample{Coordinate: jaipur, Accuracy: &acc, Altitude: &alt, AreaName: strPtr("Pink City")}

	full := PayloadFor(VariantFull, "u-1", s, CheckinManual)
	require.NotNil(t, full.AccuracyMeters)
	assert.Equal(t, 13, *full.AccuracyMeters)
	assert.Equal(t, CheckinManual, full.CheckinType)

	city := PayloadFor(VariantCity, "u-1", s, CheckinManual)
	assert.Nil(t, city.AreaName)
	require.NotNil(t, city.City)
	assert.Equal(t, "Pink City", *city.City)

	minimal := PayloadFor(VariantMinimal, "u-1", s, CheckinManual)
	assert.Equal(t, InsertPayload{UserID: "u-1", Latitude: jaipur.Lat, Longitude: jaipur.Lng}, minimal)
}

func TestParseSchemaVariant(t *testing.T) {
	v, err := ParseSchemaVariant("")
	require.NoError(t, err)
	assert.Equal(t, FallbackChain, v.Chain())

	v, err = ParseSchemaVariant(" City ")
	require.NoError(t, err)
	assert.Equal(t, []SchemaVariant{VariantCity}, v.Chain())

	_, err = ParseSchemaVariant("wide")
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

type outcomeCounter struct {
	mu       sync.Mutex
	outcomes []string
}

func (c *outcomeCounter) LocationSample(_ context.Context, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

func TestStore_ReportsOutcomes(t *testing.T) {
	clock := newFakeClock()
	repo := NewInMemoryRepository(nil)
	counter := &outcomeCounter{}
	store := NewStore(StoreConfig{
		Repository: repo,
		Variant:    VariantMinimal,
		Observer:   counter,
		Logger:     zerolog.Nop(),
		Now:        clock.Now,
	})
	ctx := context.Background()

	_, err := store.Record(ctx, "user-1", Sample{Coordinate: jaipur})
	require.NoError(t, err)
	_, err = store.Record(ctx, "user-1", Sample{Coordinate: jaipur})
	require.NoError(t, err)

	clock.Advance(DefaultThrottleWindow)
	repo.FailInsert(VariantMinimal, &pgconn.PgError{Code: "08006"})
	_, err = store.Record(ctx, "user-1", Sample{Coordinate: jaipur})
	require.NoError(t, err)

	assert.Equal(t, []string{OutcomePersisted, OutcomeThrottled, OutcomeFailed}, counter.outcomes)
}
