// Package notify is the change notifier: a small pub/sub hub that tells
// subscribers when rows underneath their locator were mutated.
package notify

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/i474232898/forecast-cache/internal/weather"
)

// Listener receives a committed change that affects its locator.
type Listener func(weather.Change)

// Notifier fans committed changes out to interested subscribers.
// The zero value is not usable; use New.
type Notifier struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription
}

// Subscription is the cancellation handle returned by Subscribe.
type Subscription struct {
	id       uint64
	loc      weather.Locator
	fn       Listener
	n        *Notifier
	canceled atomic.Bool
	once     sync.Once
}

// New creates an empty Notifier.
func New() *Notifier {
	return &Notifier{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers fn for changes affecting loc.
func (n *Notifier) Subscribe(loc weather.Locator, fn Listener) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	sub := &Subscription{id: n.nextID, loc: loc, fn: fn, n: n}
	n.subs[sub.id] = sub
	return sub
}

// Publish delivers change to every subscriber whose locator it affects, on the
// calling goroutine and in subscription order. It returns the number of
// deliveries made.
func (n *Notifier) Publish(change weather.Change) int {
	if change.Empty() {
		return 0
	}

	n.mu.RLock()
	targets := make([]*Subscription, 0, len(n.subs))
	for _, sub := range n.subs {
		if change.Affects(sub.loc) {
			targets = append(targets, sub)
		}
	}
	n.mu.RUnlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })

	delivered := 0
	for _, sub := range targets {
		// Best effort: a Cancel racing with this loop may still see one delivery.
		if sub.canceled.Load() {
			continue
		}
		sub.fn(change)
		delivered++
	}
	return delivered
}

// Len returns the number of active subscriptions.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Locator returns the locator this subscription watches.
func (s *Subscription) Locator() weather.Locator {
	return s.loc
}

// Cancel stops further deliveries. Calling it more than once is a no-op.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.canceled.Store(true)
		s.n.mu.Lock()
		delete(s.n.subs, s.id)
		s.n.mu.Unlock()
	})
}
