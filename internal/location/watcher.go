package location

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/realtime"
)

// Watcher streams the latest location of a user from local samples and
// rows inserted by any session.
type Watcher struct {
	store  *Store
	sub    realtime.Subscriber
	logger zerolog.Logger
}

// NewWatcher creates a Watcher.
func NewWatcher(store *Store, sub realtime.Subscriber, logger zerolog.Logger) *Watcher {
	return &Watcher{
		store:  store,
		sub:    sub,
		logger: logger.With().Str("component", "location_watcher").Logger(),
	}
}

// Watch emits the current latest location (when known), then every newer
// value. The channel is closed when ctx ends.
func (w *Watcher) Watch(ctx context.Context, userID string) <-chan Latest {
	out := make(chan Latest, 1)

	inserts := w.sub.Subscribe(ctx, realtime.TableUserLocations, realtime.Eq("user_id", userID), realtime.Insert)
	local, unsubscribe := w.store.subscribe(userID)

	go func() {
		defer close(out)
		defer unsubscribe()
		defer inserts.Close()

		var last Latest
		emit := func(l Latest) bool {
			if !last.UpdatedAt.IsZero() {
				if l.UpdatedAt.Before(last.UpdatedAt) {
					return true
				}
				if l.UpdatedAt.Equal(last.UpdatedAt) && l.Coordinate == last.Coordinate {
					return true
				}
			}
			last = l
			select {
			case out <- l:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if l, ok := w.store.Latest(ctx, userID); ok {
			if !emit(l) {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case l := <-local:
				if !emit(l) {
					return
				}
			case evt, ok := <-inserts.C():
				if !ok {
					return
				}
				stored, err := StoredFromEvent(evt)
				if err != nil {
					w.logger.Warn().Err(err).Msg("skipping undecodable location row")
					continue
				}
				if !emit(LatestFromStored(stored)) {
					return
				}
			}
		}
	}()

	return out
}

// StoredFromEvent decodes the row of a user_locations change event.
func StoredFromEvent(evt realtime.ChangeEvent) (*StoredLocation, error) {
	var r row
	if err := evt.Decode(&r); err != nil {
		return nil, err
	}
	return r.stored(), nil
}

// Latest returns the latest location known to the store.
func (w *Watcher) Latest(ctx context.Context, userID string) (Latest, bool) {
	return w.store.Latest(ctx, userID)
}
