package events

import (
	"slices"
	"sync"
	"time"

	"github.com/joescharf/ghostvault/internal/metrics"
)

// Kind identifies what changed.
type Kind string

const (
	ProjectCreated      Kind = "project.created"
	ProjectUpdated      Kind = "project.updated"
	ProjectDeleted      Kind = "project.deleted"
	InterestCreated     Kind = "interest.created"
	InterestUpdated     Kind = "interest.updated"
	NotificationCreated Kind = "notification.created"
)

// Event is a change notification. UserUIDs lists the users it concerns.
type Event struct {
	Kind       Kind      `json:"kind"`
	UserUIDs   []string  `json:"userUids,omitempty"`
	ProjectID  string    `json:"projectId,omitempty"`
	InterestID string    `json:"interestId,omitempty"`
	At         time.Time `json:"at"`
}

// Concerns reports whether the event lists uid.
func (e Event) Concerns(uid string) bool {
	return slices.Contains(e.UserUIDs, uid)
}

// Publisher accepts events.
type Publisher interface {
	Publish(Event)
}

// Match filters events for a subscriber. A nil Match receives everything.
type Match func(Event) bool

// ForUser matches events concerning uid.
func ForUser(uid string) Match {
	return func(e Event) bool { return e.Concerns(uid) }
}

const defaultBuffer = 16

type subscription struct {
	ch    chan Event
	match Match
}

// Hub fans events out to in-process subscribers.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	buffer int
	closed bool
}

// NewHub returns a Hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: make(map[*subscription]struct{}), buffer: buffer}
}

// Subscribe registers a subscriber. The returned cancel func removes it
// and closes the channel; calling it more than once is safe.
func (h *Hub) Subscribe(match Match) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, h.buffer), match: match}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Publish delivers e to every matching subscriber without blocking.
// Subscribers whose buffer is full miss the event.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		if sub.match != nil && !sub.match(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			metrics.Get().EventsDropped.Inc()
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscription. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}
