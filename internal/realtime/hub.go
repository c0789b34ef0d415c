package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultBuffer is the per-subscription channel capacity.
const DefaultBuffer = 64

// Subscriber creates subscriptions. The subscription is closed when ctx is
// cancelled or Close is called.
type Subscriber interface {
	Subscribe(ctx context.Context, table string, filter Filter, types ...EventType) *Subscription
}

// Publisher delivers change events.
type Publisher interface {
	Publish(ctx context.Context, evt ChangeEvent) error
}

// HubConfig configures a Hub.
type HubConfig struct {
	Buffer int
	Logger zerolog.Logger
}

// Hub is an in-process fan-out of change events. Each subscription sees
// events in publish order; a subscriber whose buffer is full loses the event
// instead of blocking the publisher.
type Hub struct {
	buffer int
	logger zerolog.Logger

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	dropped atomic.Uint64
}

var (
	_ Subscriber = (*Hub)(nil)
	_ Publisher  = (*Hub)(nil)
)

// NewHub creates a Hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	return &Hub{
		buffer: cfg.Buffer,
		logger: cfg.Logger.With().Str("component", "realtime").Logger(),
		subs:   make(map[uint64]*Subscription),
	}
}

// Subscription receives events for one table and filter.
type Subscription struct {
	id     uint64
	hub    *Hub
	table  string
	filter Filter
	types  map[EventType]bool
	ch     chan ChangeEvent
	done   chan struct{}
	once   sync.Once
}

// C returns the event channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan ChangeEvent {
	return s.ch
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
		close(s.ch)
		close(s.done)
	})
}

func (s *Subscription) wants(evt ChangeEvent) bool {
	return evt.Table == s.table && s.types[evt.Type] && s.filter.Matches(evt)
}

// Subscribe registers a subscription. With no types every event type is delivered.
func (h *Hub) Subscribe(ctx context.Context, table string, filter Filter, types ...EventType) *Subscription {
	if len(types) == 0 {
		types = AllEvents
	}
	wanted := make(map[EventType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	h.mu.Lock()
	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		hub:    h,
		table:  table,
		filter: filter,
		types:  wanted,
		ch:     make(chan ChangeEvent, h.buffer),
		done:   make(chan struct{}),
	}
	closed := h.closed
	if !closed {
		h.subs[sub.id] = sub
	}
	h.mu.Unlock()

	if closed {
		sub.Close()
		return sub
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub
}

// Publish delivers evt to every matching subscription without blocking.
func (h *Hub) Publish(_ context.Context, evt ChangeEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.wants(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			h.dropped.Add(1)
			h.logger.Warn().
				Str("table", evt.Table).
				Str("type", string(evt.Type)).
				Uint64("subscription", sub.id).
				Msg("subscriber buffer full, dropping change event")
		}
	}
	return nil
}

// Dropped returns the number of events dropped because of full buffers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}
