package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBus_SingleWorkerKeepsOrder(t *testing.T) {
	bus := NewWithConfig(1, 10)

	var (
		mu  sync.Mutex
		got []int
	)
	bus.Subscribe(EventTypeLedCommand, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Payload.(int))
	})

	for i := 0; i < 5; i++ {
		assert.True(t, bus.Publish(Event{Type: EventTypeLedCommand, Payload: i}))
	}
	bus.Close(context.Background())

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewWithConfig(1, 1)
	defer bus.Close(context.Background())

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.Subscribe(EventTypeAction, func(e Event) {
		started <- struct{}{}
		<-release
	})

	assert.True(t, bus.Publish(Event{Type: EventTypeAction}))
	<-started // worker busy
	assert.True(t, bus.Publish(Event{Type: EventTypeAction}))
	assert.False(t, bus.Publish(Event{Type: EventTypeAction}), "queue of one is full")
	close(release)
}

func TestBus_PanicDoesNotKillWorker(t *testing.T) {
	bus := NewWithConfig(1, 10)

	done := make(chan struct{})
	bus.Subscribe(EventTypeDeviceState, func(e Event) {
		if e.Payload == "boom" {
			panic("boom")
		}
		close(done)
	})

	bus.Publish(Event{Type: EventTypeDeviceState, Payload: "boom"})
	bus.Publish(Event{Type: EventTypeDeviceState, Payload: "ok"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive panic")
	}
	bus.Close(context.Background())
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := New()
	bus.Subscribe(EventTypeLedCommand, func(Event) {})
	bus.Close(context.Background())
	bus.Close(context.Background())

	assert.False(t, bus.Publish(Event{Type: EventTypeLedCommand}))
}
