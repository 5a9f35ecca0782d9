// Package alerts holds the notification store that backs the alert banners of the
// similarity client. Backend responses carrying a message envelope are turned into
// alerts by the request layer; UIs subscribe to the store to render them.
package alerts

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Alert is one notification entry.
type Alert struct {
	ID        string    `json:"id"`
	Message   string    `json:"msg"`
	Color     Color     `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// Subscriber receives the full alert sequence. The slice must not be modified.
type Subscriber func([]Alert)

type subscriber struct {
	fn   Subscriber
	seen int64
}

type delivery struct {
	alerts  []Alert
	version int64
}

// Store is an append-only, subscribable list of alerts. The zero value is not usable;
// construct it with NewStore and pass it to whoever needs it.
//
// Every Add replaces the sequence with a new slice, so snapshots handed out earlier
// never change. Notifications are queued and delivered in version order: a subscriber
// sees each state once, and never an older state after a newer one. An Add issued from
// inside a subscriber is delivered after the current delivery round completes. Likewise,
// a Subscribe issued from inside a subscriber returns before the new subscriber has been
// called; it receives the current sequence once the running round completes, before the
// outer Add returns.
type Store struct {
	mu         sync.Mutex
	alerts     []Alert
	version    int64
	subs       map[uint64]*subscriber
	order      []uint64
	nextSub    uint64
	queue      []delivery
	delivering bool
	now        func() time.Time
}

func NewStore() *Store {
	return &Store{
		alerts: []Alert{},
		subs:   map[uint64]*subscriber{},
		now:    time.Now,
	}
}

// Add appends an alert and notifies subscribers. The color defaults to Dark; unknown
// colors are also rendered as Dark.
func (s *Store) Add(message string, color ...Color) Alert {
	c := Dark
	if len(color) > 0 && color[0].Valid() {
		c = color[0]
	}
	alert := Alert{
		ID:        uuid.NewString(),
		Message:   message,
		Color:     c,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	next := make([]Alert, len(s.alerts), len(s.alerts)+1)
	copy(next, s.alerts)
	next = append(next, alert)
	s.alerts = next
	s.version++
	s.queue = append(s.queue, delivery{alerts: next, version: s.version})
	s.mu.Unlock()

	s.drain()
	return alert
}

// Subscribe registers fn and immediately calls it with the current sequence, unless a
// delivery round is already running (see Store). The
// returned function removes the subscription; calling it more than once is harmless.
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = &subscriber{fn: fn, seen: s.version - 1}
	s.order = append(s.order, id)
	s.queue = append(s.queue, delivery{alerts: s.alerts, version: s.version})
	s.mu.Unlock()

	s.drain()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

// Alerts returns a copy of the current sequence.
func (s *Store) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.alerts)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func (s *Store) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
	for i, sid := range s.order {
		if sid == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

// drain delivers queued states until the queue is empty. Only one goroutine drains
// at a time; others leave their entries for the active one.
func (s *Store) drain() {
	s.mu.Lock()
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	s.mu.Unlock()

	finished := false
	defer func() {
		if !finished {
			// a subscriber panicked; let the next Add resume delivery
			s.mu.Lock()
			s.delivering = false
			s.mu.Unlock()
		}
	}()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.delivering = false
			s.mu.Unlock()
			finished = true
			return
		}
		d := s.queue[0]
		s.queue = s.queue[1:]
		targets := s.targetsLocked(d.version)
		s.mu.Unlock()

		for _, fn := range targets {
			fn(d.alerts)
		}
	}
}

func (s *Store) targetsLocked(version int64) []Subscriber {
	targets := make([]Subscriber, 0, len(s.order))
	for _, id := range s.order {
		sub := s.subs[id]
		if sub.seen >= version {
			continue
		}
		sub.seen = version
		targets = append(targets, sub.fn)
	}
	return targets
}
