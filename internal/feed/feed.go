// Package feed is the in-process change channel for class session rows.
// It replaces the hosted realtime feed of the original deployment: the
// store publishes after every committed write, and each student view holds
// a subscription filtered to its teacher's row.
package feed

import (
	"sync"

	"go.uber.org/zap"

	"classlink/pkg/interfaces"
)

const subscriptionBuffer = 8

// Feed fans out per-teacher change notifications.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{} // teacherID -> subscriptions
	seq         uint64
	closed      bool
	logger      *zap.Logger
}

// Subscription is a cancellable stream of events for one teacher's row.
type Subscription struct {
	teacherID string
	events    chan interfaces.Event
	feed      *Feed
	once      sync.Once
}

// Events yields change notifications until the subscription is cancelled.
func (s *Subscription) Events() <-chan interfaces.Event {
	return s.events
}

// Cancel releases the subscription. Safe to call more than once; the
// event channel is closed so consumers range-loop cleanly.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.feed.remove(s)
		close(s.events)
	})
}

// NewFeed creates an empty change feed.
func NewFeed(logger *zap.Logger) *Feed {
	return &Feed{
		subscribers: make(map[string]map[*Subscription]struct{}),
		logger:      logger,
	}
}

// Subscribe registers for change events on one teacher's row.
func (f *Feed) Subscribe(teacherID string) interfaces.Subscription {
	sub := &Subscription{
		teacherID: teacherID,
		events:    make(chan interfaces.Event, subscriptionBuffer),
		feed:      f,
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		// A subscription on a closed feed yields nothing; cancel it
		// eagerly so Events() is a closed channel.
		sub.once.Do(func() { close(sub.events) })
		return sub
	}

	if f.subscribers[teacherID] == nil {
		f.subscribers[teacherID] = make(map[*Subscription]struct{})
	}
	f.subscribers[teacherID][sub] = struct{}{}
	return sub
}

// Publish notifies all subscribers for a teacher. The send never blocks:
// a subscriber with a full buffer misses the event and converges on the
// next poll, since events carry no payload to lose.
func (f *Feed) Publish(teacherID string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.seq++
	event := interfaces.Event{TeacherID: teacherID, Seq: f.seq}
	// Sends happen under the lock so a concurrent Cancel cannot close a
	// channel between the snapshot and the send. Sends are non-blocking,
	// so the lock is held only briefly.
	for sub := range f.subscribers[teacherID] {
		select {
		case sub.events <- event:
		default:
			f.logger.Debug("change feed subscriber lagging, event dropped",
				zap.String("teacher_id", teacherID),
				zap.Uint64("seq", event.Seq))
		}
	}
	f.mu.Unlock()
}

// Close cancels every subscription and rejects future publishes.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	var all []*Subscription
	for _, subs := range f.subscribers {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	f.subscribers = make(map[string]map[*Subscription]struct{})
	f.mu.Unlock()

	for _, sub := range all {
		sub.once.Do(func() { close(sub.events) })
	}
}

// Stats reports subscriber counts for the health endpoint.
func (f *Feed) Stats() map[string]int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	total := 0
	for _, subs := range f.subscribers {
		total += len(subs)
	}
	return map[string]int{
		"subscribed_teachers": len(f.subscribers),
		"total_subscriptions": total,
	}
}

func (f *Feed) remove(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if subs, exists := f.subscribers[sub.teacherID]; exists {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(f.subscribers, sub.teacherID)
		}
	}
}
