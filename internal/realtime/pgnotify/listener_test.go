package pgnotify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexxeth/tourist-safety-shield/internal/realtime"
	"github.com/dexxeth/tourist-safety-shield/internal/realtime/pgnotify"
)

func TestListener_HandleRepublishesTriggerPayload(t *testing.T) {
	hub := realtime.NewHub(realtime.HubConfig{})
	listener := pgnotify.NewListener(pgnotify.ListenerConfig{Target: hub})

	sub := hub.Subscribe(context.Background(), realtime.TableUserLocations, realtime.Eq("user_id", "u-1"), realtime.Insert)
	defer sub.Close()

	listener.Handle(context.Background(), `{
		"table": "user_locations",
		"type": "INSERT",
		"new": {"id": "loc-1", "user_id": "u-1", "latitude": 15.49, "longitude": 73.82},
		"old": null,
		"commit_time": "2026-03-01T10:00:00.123456+00:00"
	}`)

	select {
	case evt := <-sub.C():
		assert.Equal(t, realtime.Insert, evt.Type)
		var row struct {
			ID string `json:"id"`
		}
		require.NoError(t, evt.Decode(&row))
		assert.Equal(t, "loc-1", row.ID)
		assert.Equal(t, 2026, evt.CommitTime.Year())
	case <-time.After(time.Second):
		t.Fatal("event not republished")
	}
}

func TestListener_HandleSkipsMalformedPayload(t *testing.T) {
	hub := realtime.NewHub(realtime.HubConfig{})
	listener := pgnotify.NewListener(pgnotify.ListenerConfig{Target: hub})

	sub := hub.Subscribe(context.Background(), realtime.TableProfiles, realtime.Filter{})
	defer sub.Close()

	listener.Handle(context.Background(), `{"table": "profiles", "type": "VACUUM"}`)
	listener.Handle(context.Background(), `garbage`)

	select {
	case evt := <-sub.C():
		t.Fatalf("unexpected event %+v", evt)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestListener_RunStopsOnCancel(t *testing.T) {
	hub := realtime.NewHub(realtime.HubConfig{})
	listener := pgnotify.NewListener(pgnotify.ListenerConfig{
		ConnString:           "postgres://nobody@127.0.0.1:1/none?connect_timeout=1",
		Target:               hub,
		MaxReconnectInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}
