// Package status tracks the lifecycle of intents the node has seen and fans
// transitions out to subscribers. Terminal states are sticky: once an intent
// is filled, expired, or cancelled, no later event can revive it.
package status

import (
	"sync"

	"github.com/google/uuid"

	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/types"
)

// subscriptionBuffer is the per-subscriber event buffer. A subscriber that
// falls this far behind starts losing intermediate transitions; the latest
// state is always queryable.
const subscriptionBuffer = 64

// Subscription is a feed of intent state transitions.
type Subscription struct {
	// ID uniquely identifies the subscription for Unsubscribe.
	ID string

	// C delivers transitions in order. It stops receiving after
	// Unsubscribe; Done signals termination.
	C <-chan types.IntentStatus

	ch   chan types.IntentStatus
	done chan struct{}
}

// Done is closed when the subscription is terminated.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Tracker records the last known state of every intent and notifies
// subscribers of transitions.
type Tracker struct {
	logger log.Logger

	mtx      sync.RWMutex
	statuses map[types.IntentID]types.IntentStatus
	subs     map[string]*Subscription
}

func NewTracker(logger log.Logger) *Tracker {
	return &Tracker{
		logger:   logger,
		statuses: make(map[types.IntentID]types.IntentStatus),
		subs:     make(map[string]*Subscription),
	}
}

// Update records a transition and notifies subscribers. Updates against a
// terminal state are dropped; a settlement verdict can race the expiry
// sweep, and whichever lands first stands.
func (t *Tracker) Update(status types.IntentStatus) {
	t.mtx.Lock()

	if prev, ok := t.statuses[status.ID]; ok && prev.State.Terminal() {
		t.mtx.Unlock()
		return
	}
	t.statuses[status.ID] = status

	subs := make([]*Subscription, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	t.mtx.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- status:
		default:
			t.logger.Debug("status subscriber lagging, dropping event",
				"subscription", sub.ID,
				"intent", status.ID,
			)
		}
	}
}

// Status returns the last recorded state of an intent.
func (t *Tracker) Status(id types.IntentID) (types.IntentStatus, bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	status, ok := t.statuses[id]
	return status, ok
}

// Subscribe opens a feed of all intent transitions.
func (t *Tracker) Subscribe() *Subscription {
	ch := make(chan types.IntentStatus, subscriptionBuffer)
	sub := &Subscription{
		ID:   uuid.NewString(),
		C:    ch,
		ch:   ch,
		done: make(chan struct{}),
	}

	t.mtx.Lock()
	t.subs[sub.ID] = sub
	t.mtx.Unlock()

	return sub
}

// Unsubscribe terminates a feed. Unknown IDs are a no-op.
func (t *Tracker) Unsubscribe(id string) {
	t.mtx.Lock()
	sub, ok := t.subs[id]
	delete(t.subs, id)
	t.mtx.Unlock()

	if ok {
		close(sub.done)
	}
}
