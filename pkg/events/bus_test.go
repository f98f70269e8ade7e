package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusPublishReachesAllHandlers(t *testing.T) {
	bus := NewBus(nil)

	var got []string
	bus.Subscribe(func(ev BusEvent) { got = append(got, "a:"+ev.Type) })
	bus.Subscribe(func(ev BusEvent) { got = append(got, "b:"+ev.Type) })

	bus.Publish(BusEvent{Type: "tick"})
	assert.ElementsMatch(t, []string{"a:tick", "b:tick"}, got)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	id := bus.Subscribe(func(BusEvent) { calls++ })
	assert.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(id)
	assert.Zero(t, bus.SubscriberCount())

	bus.Publish(BusEvent{Type: "tick"})
	assert.Zero(t, calls)

	// Unknown ids are ignored.
	bus.Unsubscribe(999)
}

func TestBusStampsTimestamp(t *testing.T) {
	bus := NewBus(nil)

	var seen BusEvent
	bus.Subscribe(func(ev BusEvent) { seen = ev })
	bus.Publish(BusEvent{Type: "tick"})
	assert.False(t, seen.Timestamp.IsZero())
}

func TestKnownChannel(t *testing.T) {
	for _, ch := range []string{ChannelEvents, ChannelStatus, ChannelNotifications, ChannelQueue, ChannelDiscussion} {
		assert.True(t, KnownChannel(ch), ch)
	}
	assert.False(t, KnownChannel("metrics"))
	assert.False(t, KnownChannel(""))
}
