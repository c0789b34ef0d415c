package realtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexxeth/tourist-safety-shield/internal/realtime"
)

type alertRow struct {
	ID   string `json:"id"`
	City string `json:"city"`
}

func mustEvent(t *testing.T, table string, typ realtime.EventType, row any) realtime.ChangeEvent {
	t.Helper()
	evt, err := realtime.NewEvent(table, typ, row, time.Now())
	require.NoError(t, err)
	return evt
}

func receive(t *testing.T, sub *realtime.Subscription) realtime.ChangeEvent {
	t.Helper()
	select {
	case evt, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return realtime.ChangeEvent{}
	}
}

func assertNoEvent(t *testing.T, sub *realtime.Subscription) {
	t.Helper()
	select {
	case evt := <-sub.C():
		t.Fatalf("unexpected event %+v", evt)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_DeliversMatchingEventsInOrder(t *testing.T) {
	hub := realtime.NewHub(realtime.HubConfig{})
	ctx := context.Background()

	sub := hub.Subscribe(ctx, realtime.TableSafetyAlerts, realtime.Eq("city", "goa"))
	defer sub.Close()

	require.NoError(t, hub.Publish(ctx, mustEvent(t, realtime.TableSafetyAlerts, realtime.Insert, alertRow{ID: "1", City: "Goa"})))
	require.NoError(t, hub.Publish(ctx, mustEvent(t, realtime.TableSafetyAlerts, realtime.Insert, alertRow{ID: "x", City: "Delhi"})))
	require.NoError(t, hub.Publish(ctx, mustEvent(t, realtime.TableProfiles, realtime.Insert, alertRow{ID: "p", City: "Goa"})))
	require.NoError(t, hub.Publish(ctx, mustEvent(t, realtime.TableSafetyAlerts, realtime.Delete, alertRow{ID: "2", City: "Goa"})))

	var first, second alertRow
	require.NoError(t, receive(t, sub).Decode(&first))
	require.NoError(t, receive(t, sub).Decode(&second))
	assert.Equal(t, "1", first.ID)
	assert.Equal(t, "2", second.ID)
	assertNoEvent(t, sub)
}

func TestHub_FiltersByEventType(t *testing.T) {
	hub := realtime.NewHub(realtime.HubConfig{})
	ctx := context.Background()

	sub := hub.Subscribe(ctx, realtime.TableUserLocations, realtime.Eq("user_id", "u1"), realtime.Insert)
	defer sub.Close()

	_ = hub.Publish(ctx, mustEvent(t, realtime.TableUserLocations, realtime.Update, map[string]string{"user_id": "u1"}))
	_ = hub.Publish(ctx, mustEvent(t, realtime.TableUserLocations, realtime.Insert, map[string]string{"user_id": "u1"}))

	evt := receive(t, sub)
	assert.Equal(t, realtime.Insert, evt.Type)
	assertNoEvent(t, sub)
}

func TestHub_ContextCancelClosesSubscription(t *testing.T) {
	hub := realtime.NewHub(realtime.HubConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	sub := hub.Subscribe(ctx, realtime.TableProfiles, realtime.Filter{})
	assert.Equal(t, 1, hub.SubscriberCount())

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	_, open := <-sub.C()
	assert.False(t, open)
	assert.Equal(t, 0, hub.SubscriberCount())
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	hub := realtime.NewHub(realtime.HubConfig{})
	sub := hub.Subscribe(context.Background(), realtime.TableProfiles, realtime.Filter{})

	sub.Close()
	sub.Close()

	assert.Equal(t, 0, hub.SubscriberCount())
	assert.NoError(t, hub.Publish(context.Background(), mustEvent(t, realtime.TableProfiles, realtime.Update, map[string]int{"safety_score": 1})))
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := realtime.NewHub(realtime.HubConfig{Buffer: 2})
	sub := hub.Subscribe(context.Background(), realtime.TableProfiles, realtime.Filter{})
	defer sub.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, hub.Publish(context.Background(), mustEvent(t, realtime.TableProfiles, realtime.Update, map[string]int{"n": i})))
	}
	assert.Equal(t, uint64(3), hub.Dropped())
}

func TestHub_CloseEndsAllSubscriptions(t *testing.T) {
	hub := realtime.NewHub(realtime.HubConfig{})
	a := hub.Subscribe(context.Background(), realtime.TableProfiles, realtime.Filter{})
	b := hub.Subscribe(context.Background(), realtime.TableSafetyAlerts, realtime.Filter{})

	hub.Close()
	<-a.Done()
	<-b.Done()

	late := hub.Subscribe(context.Background(), realtime.TableProfiles, realtime.Filter{})
	_, open := <-late.C()
	assert.False(t, open)
}

func TestFilter_MatchesOldRowOnUpdate(t *testing.T) {
	evt := realtime.ChangeEvent{
		Table: realtime.TableSafetyAlerts,
		Type:  realtime.Update,
		New:   []byte(`{"id":"1","city":"Delhi"}`),
		Old:   []byte(`{"id":"1","city":"Goa"}`),
	}
	assert.True(t, realtime.Eq("city", "GOA").Matches(evt))
	assert.True(t, realtime.Eq("city", "delhi").Matches(evt))
	assert.False(t, realtime.Eq("city", "Agra").Matches(evt))
	assert.True(t, realtime.Filter{}.Matches(evt))
}

func TestFilter_NumericColumns(t *testing.T) {
	evt := realtime.ChangeEvent{Table: "t", Type: realtime.Insert, New: []byte(`{"score":72}`)}
	assert.True(t, realtime.Eq("score", "72").Matches(evt))
}

func TestParseEvent(t *testing.T) {
	evt, err := realtime.ParseEvent([]byte(`{"table":"profiles","type":"UPDATE","new":{"id":"u1","safety_score":80}}`))
	require.NoError(t, err)
	assert.Equal(t, realtime.TableProfiles, evt.Table)
	assert.Equal(t, realtime.Update, evt.Type)

	_, err = realtime.ParseEvent([]byte(`{"table":"profiles","type":"TRUNCATE"}`))
	assert.ErrorIs(t, err, realtime.ErrMalformedEvent)

	_, err = realtime.ParseEvent([]byte(`{"type":"INSERT"}`))
	assert.ErrorIs(t, err, realtime.ErrMalformedEvent)

	_, err = realtime.ParseEvent([]byte(`nope`))
	assert.ErrorIs(t, err, realtime.ErrMalformedEvent)
}

func TestChangeEvent_DecodeWithoutRow(t *testing.T) {
	var v map[string]any
	err := realtime.ChangeEvent{Table: "t", Type: realtime.Delete}.Decode(&v)
	assert.ErrorIs(t, err, realtime.ErrMalformedEvent)
}
