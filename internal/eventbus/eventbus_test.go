package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/game-hub/wbp-hub/internal/model"
)

func TestSubscribeAndPublishDeliversMatchingEvent(t *testing.T) {
	b := New()
	ch := Subscribe(b, "sess-1", model.SubscriptionFilter{ServerID: "srv-1"}, "sub-1")

	b.Publish(model.Event{ServerID: "srv-1", Kind: "player.join", Timestamp: time.Now()})

	select {
	case e := <-ch:
		assert.Equal(t, "player.join", e.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}

func TestPublishSkipsNonMatchingSubscription(t *testing.T) {
	b := New()
	ch := Subscribe(b, "sess-1", model.SubscriptionFilter{ServerID: "srv-2"}, "sub-1")

	b.Publish(model.Event{ServerID: "srv-1", Kind: "player.join", Timestamp: time.Now()})

	select {
	case <-ch:
		t.Fatal("did not expect delivery for non-matching server")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribePresetBasicMatchesOnlyBasicKinds(t *testing.T) {
	b := New()
	ch := SubscribePreset(b, "sess-1", PresetBasic, "srv-1", "sub-1")

	b.Publish(model.Event{ServerID: "srv-1", Kind: "player.chat", Timestamp: time.Now()})
	select {
	case <-ch:
		t.Fatal("basic preset should not receive player.chat")
	case <-time.After(50 * time.Millisecond):
	}

	b.Publish(model.Event{ServerID: "srv-1", Kind: "player.join", Timestamp: time.Now()})
	select {
	case e := <-ch:
		assert.Equal(t, "player.join", e.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected basic preset to receive player.join")
	}
}

func TestSubscribePresetExtendedIncludesChat(t *testing.T) {
	b := New()
	ch := SubscribePreset(b, "sess-1", PresetExtended, "srv-1", "sub-1")

	b.Publish(model.Event{ServerID: "srv-1", Kind: "player.chat", Timestamp: time.Now()})
	select {
	case e := <-ch:
		assert.Equal(t, "player.chat", e.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected extended preset to receive player.chat")
	}
}

func TestUnsubscribeClosesQueue(t *testing.T) {
	b := New()
	ch := Subscribe(b, "sess-1", model.SubscriptionFilter{}, "sub-1")
	b.Unsubscribe("sub-1")

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.ActiveCount())
}

func TestUnsubscribeSessionRemovesAllItsSubscriptions(t *testing.T) {
	b := New()
	Subscribe(b, "sess-1", model.SubscriptionFilter{}, "sub-1")
	Subscribe(b, "sess-1", model.SubscriptionFilter{}, "sub-2")
	Subscribe(b, "sess-2", model.SubscriptionFilter{}, "sub-3")

	b.UnsubscribeSession("sess-1")
	assert.Equal(t, 1, b.ActiveCount())
}

func TestFloodSuppressionDropsExcessEvents(t *testing.T) {
	b := New()
	b.floodThreshold = 2
	ch := Subscribe(b, "sess-1", model.SubscriptionFilter{}, "sub-1")

	for i := 0; i < 5; i++ {
		b.Publish(model.Event{Kind: "player.chat", Timestamp: time.Now()})
	}

	received := 0
	timeout := time.After(200 * time.Millisecond)
loop:
	for {
		select {
		case <-ch:
			received++
		case <-timeout:
			break loop
		}
	}
	assert.LessOrEqual(t, received, 2)
}

func TestGCRemovesInactiveSubscriptions(t *testing.T) {
	b := New()
	b.inactivityTimeout = time.Millisecond
	Subscribe(b, "sess-1", model.SubscriptionFilter{}, "sub-1")

	time.Sleep(5 * time.Millisecond)
	removed := b.GC()
	require.Equal(t, []string{"sub-1"}, removed)
	assert.Equal(t, 0, b.ActiveCount())
}

func TestDroppedCountTracksFullQueue(t *testing.T) {
	b := New()
	b.queueSize = 1
	ch := Subscribe(b, "sess-1", model.SubscriptionFilter{}, "sub-1")

	b.Publish(model.Event{Kind: "k", Timestamp: time.Now()})
	b.Publish(model.Event{Kind: "k", Timestamp: time.Now()})

	assert.Equal(t, int64(1), b.DroppedCount("sub-1"))
	<-ch
}
