// Package eventbus implements the event bus (C6): subscription management,
// per-session bounded event delivery queues, flood suppression, basic and
// extended filter presets, and inactivity garbage collection.
//
// The bounded-queue-with-drop-counter shape is grounded on
// _examples/ashureev-shsh-labs/internal/terminal/async_dual_writer.go's
// AsyncDualWriter, generalized from one writer's output queue to one
// subscription's event queue.
package eventbus

import (
	"sync"
	"time"

	"github.com/game-hub/wbp-hub/internal/model"
)

// DefaultQueueSize bounds a single subscription's pending-event queue.
const DefaultQueueSize = 256

// DefaultInactivityTimeout is how long a subscription may go without
// activity before the GC sweep removes it.
const DefaultInactivityTimeout = 30 * time.Minute

// Preset names for commonly requested filter scopes.
const (
	PresetBasic    = "basic"
	PresetExtended = "extended"
)

// BasicKinds is the event-kind set the "basic" preset subscribes to.
var BasicKinds = []string{"player.join", "player.leave", "server.status"}

// ExtendedKinds is the event-kind set the "extended" preset subscribes to,
// supplementing the basic set with chat and administrative activity.
var ExtendedKinds = append(append([]string{}, BasicKinds...), "player.chat", "player.death", "admin.action")

// subscriptionState is one subscription's live bookkeeping.
type subscriptionState struct {
	sub   model.Subscription
	queue chan model.Event

	mu          sync.Mutex
	dropped     int64
	floodWindow time.Time
	floodCount  int
}

// Bus is the event bus owning every active subscription.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*subscriptionState // keyed by SubscriptionID

	queueSize         int
	inactivityTimeout time.Duration

	floodWindow    time.Duration
	floodThreshold int
}

// New creates an event bus with default queue sizing and flood suppression.
func New() *Bus {
	return &Bus{
		subs:              make(map[string]*subscriptionState),
		queueSize:         DefaultQueueSize,
		inactivityTimeout: DefaultInactivityTimeout,
		floodWindow:       time.Second,
		floodThreshold:    50,
	}
}

// Subscribe registers a new subscription and returns its delivery queue.
func Subscribe(b *Bus, sessionID string, filter model.SubscriptionFilter, subscriptionID string) <-chan model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	st := &subscriptionState{
		sub: model.Subscription{
			SubscriptionID: subscriptionID,
			SessionID:      sessionID,
			Filter:         filter,
			CreatedAt:      now,
			LastActivity:   now,
			Active:         true,
		},
		queue: make(chan model.Event, b.queueSize),
	}
	b.subs[subscriptionID] = st
	return st.queue
}

// SubscribePreset registers a subscription using one of the named presets
// ("basic" or "extended"), optionally scoped to one server.
func SubscribePreset(b *Bus, sessionID, preset, serverID, subscriptionID string) <-chan model.Event {
	kinds := BasicKinds
	if preset == PresetExtended {
		kinds = ExtendedKinds
	}
	kindSet := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}
	return Subscribe(b, sessionID, model.SubscriptionFilter{ServerID: serverID, Kinds: kindSet}, subscriptionID)
}

// Unsubscribe removes a subscription and closes its queue.
func (b *Bus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.subs[subscriptionID]; ok {
		close(st.queue)
		delete(b.subs, subscriptionID)
	}
}

// UnsubscribeSession removes every subscription owned by a session.
func (b *Bus) UnsubscribeSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, st := range b.subs {
		if st.sub.SessionID == sessionID {
			close(st.queue)
			delete(b.subs, id)
		}
	}
}

// Publish fans an event out to every subscription whose filter matches it,
// applying per-subscription flood suppression and queue-drop counting.
func (b *Bus) Publish(e model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	now := time.Now()
	for _, st := range b.subs {
		if !st.sub.Filter.Matches(e) {
			continue
		}
		if b.isFlooding(st, now) {
			continue
		}

		select {
		case st.queue <- e:
			st.mu.Lock()
			st.sub.LastActivity = now
			st.mu.Unlock()
		default:
			st.mu.Lock()
			st.dropped++
			st.mu.Unlock()
		}
	}
}

// isFlooding applies a fixed-window count to suppress events once a
// subscription exceeds the configured rate within one window; the count
// restarts when the window has elapsed.
func (b *Bus) isFlooding(st *subscriptionState, now time.Time) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if now.Sub(st.floodWindow) > b.floodWindow {
		st.floodWindow = now
		st.floodCount = 0
	}
	st.floodCount++
	return st.floodCount > b.floodThreshold
}

// DroppedCount reports how many events have been dropped for a
// subscription due to a full queue.
func (b *Bus) DroppedCount(subscriptionID string) int64 {
	b.mu.RLock()
	st, ok := b.subs[subscriptionID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.dropped
}

// ActiveCount reports the number of live subscriptions.
func (b *Bus) ActiveCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// GC removes subscriptions that have been inactive past the configured
// timeout. Returns the subscription ids removed.
func (b *Bus) GC() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	var removed []string
	for id, st := range b.subs {
		st.mu.Lock()
		idle := now.Sub(st.sub.LastActivity)
		st.mu.Unlock()
		if idle > b.inactivityTimeout {
			close(st.queue)
			delete(b.subs, id)
			removed = append(removed, id)
		}
	}
	return removed
}
