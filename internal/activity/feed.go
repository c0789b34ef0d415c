// Package activity builds the recent activity feed of a user from location
// check-ins, city alerts and safety score changes.
package activity

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/alerts"
	"github.com/dexxeth/tourist-safety-shield/internal/location"
	"github.com/dexxeth/tourist-safety-shield/internal/profile"
	"github.com/dexxeth/tourist-safety-shield/internal/realtime"
)

// Feed limits.
const (
	MaxItems      = 20
	LocationLimit = 5
	AlertLimit    = 3
	AlertWindow   = 6 * time.Hour
)

// ItemType classifies a feed item.
type ItemType string

const (
	TypeLocation ItemType = "location"
	TypeAlert    ItemType = "alert"
	TypeScore    ItemType = "score"
)

// Color returns the display color of an item type.
func (t ItemType) Color() string {
	switch t {
	case TypeAlert:
		return "red"
	case TypeScore:
		return "blue"
	default:
		return "green"
	}
}

// Item is one feed entry.
type Item struct {
	ID    string    `json:"id"`
	Type  ItemType  `json:"type"`
	Text  string    `json:"text"`
	Color string    `json:"color"`
	At    time.Time `json:"at"`
}

func newItem(id string, typ ItemType, text string, at time.Time) Item {
	return Item{ID: id, Type: typ, Text: text, Color: typ.Color(), At: at}
}

// LocationHistory lists a user's recent stored locations, newest first.
type LocationHistory interface {
	Recent(ctx context.Context, userID string, limit int) ([]*location.StoredLocation, error)
}

// AlertLister lists recent alerts of a city, newest first.
type AlertLister interface {
	Recent(ctx context.Context, city string, window time.Duration, limit int) ([]*alerts.Alert, error)
}

// ScoreReader reads the stored safety score.
type ScoreReader interface {
	Get(ctx context.Context, userID string) (int, bool, error)
}

// Config configures a Feed.
type Config struct {
	Locations  LocationHistory
	Alerts     AlertLister
	Scores     ScoreReader
	Subscriber realtime.Subscriber
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Feed assembles activity items.
type Feed struct {
	locations LocationHistory
	alerts    AlertLister
	scores    ScoreReader
	sub       realtime.Subscriber
	logger    zerolog.Logger
	now       func() time.Time
}

// NewFeed creates a Feed.
func NewFeed(cfg Config) *Feed {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Feed{
		locations: cfg.Locations,
		alerts:    cfg.Alerts,
		scores:    cfg.Scores,
		sub:       cfg.Subscriber,
		logger:    cfg.Logger.With().Str("component", "activity").Logger(),
		now:       cfg.Now,
	}
}

// Recent returns the merged feed, newest first. Sources that fail are
// logged and left out.
func (f *Feed) Recent(ctx context.Context, userID, city string) []Item {
	var items []Item

	locs, err := f.locations.Recent(ctx, userID, LocationLimit)
	if err != nil {
		f.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to load recent locations")
	}
	for i, l := range locs {
		items = append(items, locationItem(l, i == 0))
	}

	if city != "" {
		recent, err := f.alerts.Recent(ctx, city, AlertWindow, AlertLimit)
		if err != nil {
			f.logger.Warn().Err(err).Str("city", city).Msg("failed to load recent alerts")
		}
		for _, a := range recent {
			items = append(items, alertItem(a, f.now()))
		}
	}

	score, ok, err := f.scores.Get(ctx, userID)
	if err != nil {
		f.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to load safety score")
	}
	if ok {
		items = append(items, newItem("score-current", TypeScore, "Safety score is "+strconv.Itoa(score), f.now()))
	}

	return top(items)
}

// Watch emits the feed, then an updated feed after every location insert,
// alert insert in city and profile update of the user.
func (f *Feed) Watch(ctx context.Context, userID, city string) <-chan []Item {
	out := make(chan []Item, 1)

	locs := f.sub.Subscribe(ctx, realtime.TableUserLocations, realtime.Eq("user_id", userID), realtime.Insert)
	var alertFilter realtime.Filter
	if city != "" {
		alertFilter = realtime.Eq("city", city)
	}
	alertSub := f.sub.Subscribe(ctx, realtime.TableSafetyAlerts, alertFilter, realtime.Insert)
	profiles := f.sub.Subscribe(ctx, realtime.TableProfiles, realtime.Eq("user_id", userID), realtime.Update)

	go func() {
		defer close(out)
		defer locs.Close()
		defer alertSub.Close()
		defer profiles.Close()

		items := f.Recent(ctx, userID, city)
		emit := func() bool {
			snapshot := append([]Item(nil), items...)
			select {
			case out <- snapshot:
				return true
			case <-ctx.Done():
				return false
			}
		}
		push := func(it Item) bool {
			items = top(append(items, it))
			return emit()
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-locs.C():
				if !ok {
					return
				}
				l, err := location.StoredFromEvent(evt)
				if err != nil {
					f.logger.Warn().Err(err).Msg("skipping undecodable location event")
					continue
				}
				if !push(locationItem(l, false)) {
					return
				}
			case evt, ok := <-alertSub.C():
				if !ok {
					return
				}
				var a alerts.Alert
				if err := evt.Decode(&a); err != nil {
					f.logger.Warn().Err(err).Msg("skipping undecodable alert event")
					continue
				}
				if !push(alertItem(&a, evt.CommitTime)) {
					return
				}
			case evt, ok := <-profiles.C():
				if !ok {
					return
				}
				var p profile.Profile
				if err := evt.Decode(&p); err != nil || p.SafetyScore == nil {
					continue
				}
				at := p.UpdatedAt
				if at.IsZero() {
					at = evt.CommitTime
				}
				id := fmt.Sprintf("score-%d", at.UnixNano())
				if !push(newItem(id, TypeScore, "Safety score updated to "+strconv.Itoa(*p.SafetyScore), at)) {
					return
				}
			}
		}
	}()

	return out
}

func locationItem(l *location.StoredLocation, first bool) Item {
	text := "Location updated"
	if name := l.DisplayName(); name != "" {
		if first {
			text = "Entered " + name
		} else {
			text = "Moved to " + name
		}
	}
	return newItem("location-"+l.ID, TypeLocation, text, l.CreatedAt)
}

func alertItem(a *alerts.Alert, fallback time.Time) Item {
	text := "New safety alert"
	if a.City != nil && *a.City != "" {
		text += " in " + *a.City
	}
	if a.Description != "" {
		text += ": " + a.Description
	}
	at := fallback
	if a.ValidFrom != nil {
		at = *a.ValidFrom
	}
	return newItem("alert-"+a.ID, TypeAlert, text, at)
}

// top sorts newest first, drops duplicate ids and keeps MaxItems.
func top(items []Item) []Item {
	sort.SliceStable(items, func(i, j int) bool { return items[i].At.After(items[j].At) })
	seen := make(map[string]bool, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
		if len(out) == MaxItems {
			break
		}
	}
	return out
}
