package bus_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Moonflower-labs/livechat/internal/bus"
)

func TestBus_EmitDeliversInRegistrationOrder(t *testing.T) {
	b := bus.New()
	var order []int
	b.On("t", func(bus.Event) { order = append(order, 1) })
	b.On("t", func(bus.Event) { order = append(order, 2) })
	b.On("t", func(bus.Event) { order = append(order, 3) })

	b.Emit("t", bus.Event{Source: bus.SourceLocal})

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	b := bus.New()
	delivered := false
	b.On("t", func(bus.Event) { panic("boom") })
	b.On("t", func(bus.Event) { delivered = true })

	require.NotPanics(t, func() {
		b.Emit("t", bus.Event{Source: bus.SourceLocal})
	})
	assert.True(t, delivered, "handler after the panicking one must still run")
}

func TestBus_OffRemovesOnlyThatSubscription(t *testing.T) {
	b := bus.New()
	var a, c int
	subA := b.On("t", func(bus.Event) { a++ })
	b.On("t", func(bus.Event) { c++ })

	b.Emit("t", bus.Event{})
	b.Off(subA)
	b.Emit("t", bus.Event{})

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, c)
	assert.Equal(t, 1, b.Subscribers("t"))
}

func TestBus_OffUnknownSubscriptionIsNoop(t *testing.T) {
	b := bus.New()
	sub := b.On("t", func(bus.Event) {})
	b.Off(sub)
	// 重复取消和 nil 都不应 panic
	require.NotPanics(t, func() {
		b.Off(sub)
		b.Off(nil)
	})
}

func TestBus_LateSubscriberMissesEarlierEvents(t *testing.T) {
	b := bus.New()
	payload, _ := json.Marshal(map[string]any{"id": 1})

	var early, late int
	b.On("t", func(bus.Event) { early++ })
	b.Emit("t", bus.Event{Source: bus.SourceBroker, Payload: payload})

	b.On("t", func(bus.Event) { late++ })

	assert.Equal(t, 1, early)
	assert.Equal(t, 0, late, "subscriber registered after emission receives nothing")
}

func TestBus_TopicsAreIndependent(t *testing.T) {
	b := bus.New()
	var got int
	b.On("a", func(bus.Event) { got++ })
	b.Emit("b", bus.Event{})
	assert.Zero(t, got)
}

func TestDefault_ReturnsSameInstance(t *testing.T) {
	assert.Same(t, bus.Default(), bus.Default())
}
