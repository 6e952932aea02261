package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversToNamedAndWildcardHandlers(t *testing.T) {
	bus := NewBus()

	var named, all []string
	bus.Listen(SaleCompleted, func(evt Event) { named = append(named, evt.Name) })
	bus.Listen("*", func(evt Event) { all = append(all, evt.Name) })

	bus.Dispatch(Event{Name: SaleCompleted, SessionID: 7})
	bus.Dispatch(Event{Name: SessionCreated})

	assert.Equal(t, []string{SaleCompleted}, named)
	assert.Equal(t, []string{SaleCompleted, SessionCreated}, all)
}

func TestDispatchStampsTime(t *testing.T) {
	bus := NewBus()
	var got Event
	bus.Listen(SessionMerged, func(evt Event) { got = evt })

	bus.Dispatch(Event{Name: SessionMerged})

	assert.False(t, got.At.IsZero())
}
