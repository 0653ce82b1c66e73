package run

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEventsSubscriptionOrder verifies handlers fire in subscription order.
func TestEventsSubscriptionOrder(t *testing.T) {
	t.Parallel()

	events := NewEvents()
	var got []string
	events.On(EventStatus, func(any) { got = append(got, "first") })
	events.On(EventStatus, func(any) { got = append(got, "second") })
	events.On(EventProgress, func(any) { got = append(got, "other-kind") })

	events.emit(EventStatus, nil)

	require.Equal(t, []string{"first", "second"}, got)
}

// TestEventsOff verifies removed handlers no longer fire and unknown ids are ignored.
func TestEventsOff(t *testing.T) {
	t.Parallel()

	events := NewEvents()
	var calls int
	id := events.On(EventProgress, func(any) { calls++ })

	events.emit(EventProgress, nil)
	events.Off(EventProgress, id)
	events.Off(EventProgress, 9999)
	events.emit(EventProgress, nil)

	require.Equal(t, 1, calls)
}

// TestEventsOffFromHandler verifies a handler may unsubscribe itself without deadlock.
func TestEventsOffFromHandler(t *testing.T) {
	t.Parallel()

	events := NewEvents()
	var calls int
	var id int
	id = events.On(EventCompleted, func(any) {
		calls++
		events.Off(EventCompleted, id)
	})

	events.emit(EventCompleted, nil)
	events.emit(EventCompleted, nil)

	require.Equal(t, 1, calls)
}

// TestEventsPayloadDelivery verifies the payload reaches the handler unchanged.
func TestEventsPayloadDelivery(t *testing.T) {
	t.Parallel()

	events := NewEvents()
	var got any
	events.On(EventError, func(p any) { got = p })

	events.emit(EventError, "boom")

	require.Equal(t, "boom", got)
}
