package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/wxstatusd/internal/command"
	"github.com/dokzlo13/wxstatusd/internal/device"
	"github.com/dokzlo13/wxstatusd/internal/zwave"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type fakeBroker struct {
	mu       sync.Mutex
	handlers map[string]MessageHandler
	messages []published
	err      error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]MessageHandler)}
}

func (b *fakeBroker) Publish(topic string, payload []byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.messages = append(b.messages, published{topic, payload, retained})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, handler MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) deliver(subscription, topic string, payload []byte) error {
	b.mu.Lock()
	h := b.handlers[subscription]
	b.mu.Unlock()
	return h(topic, payload)
}

type fakeSubmitter struct {
	got []command.Command
	err error
}

func (s *fakeSubmitter) Submit(cmd command.Command) (command.Command, error) {
	if s.err != nil {
		return cmd, s.err
	}
	s.got = append(s.got, cmd)
	return cmd, nil
}

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "home/wx/"}
	assert.Equal(t, "home/wx/status", topics.Status())
	assert.Equal(t, "home/wx/devices/E7A1B2C3/5/state", topics.DeviceState("E7A1B2C3", 5))
	assert.Equal(t, "home/wx/command/led", topics.LedCommand())
	assert.Equal(t, "home/wx/command/action/+", topics.ActionCommands())

	name, ok := topics.ActionName("home/wx/command/action/doorbell")
	assert.True(t, ok)
	assert.Equal(t, "doorbell", name)

	_, ok = topics.ActionName("home/wx/command/action/")
	assert.False(t, ok)
	_, ok = topics.ActionName("other/command/action/doorbell")
	assert.False(t, ok)

	assert.Equal(t, "wxstatus/status", Topics{}.Status())
}

func TestBridge_LedCommand(t *testing.T) {
	broker := newFakeBroker()
	sub := &fakeSubmitter{}
	topics := Topics{Prefix: "wx"}
	require.NoError(t, NewBridge(broker, topics, sub, nil).Start())

	err := broker.deliver(topics.LedCommand(), topics.LedCommand(),
		[]byte(`{"filter":"_kitchen","led":"all","color":"red","blink":true,"idempotency_key":"k1"}`))
	require.NoError(t, err)

	require.Len(t, sub.got, 1)
	cmd := sub.got[0]
	assert.Equal(t, "_kitchen", cmd.Filter)
	assert.Equal(t, command.AllLeds, cmd.Led)
	assert.Equal(t, zwave.ColorRed, cmd.Color)
	assert.True(t, cmd.Blink)
	assert.Equal(t, "mqtt", cmd.Source)
	assert.Equal(t, "k1", cmd.IdempotencyKey)
}

func TestBridge_LedCommandRejectsGarbage(t *testing.T) {
	broker := newFakeBroker()
	sub := &fakeSubmitter{}
	topics := Topics{}
	require.NoError(t, NewBridge(broker, topics, sub, nil).Start())

	assert.Error(t, broker.deliver(topics.LedCommand(), topics.LedCommand(), []byte(`not json`)))
	assert.Error(t, broker.deliver(topics.LedCommand(), topics.LedCommand(), []byte(`{"filter":"10","led":1,"color":"plaid"}`)))
	assert.Empty(t, sub.got)

	sub.err = device.ErrBadFilter
	err := broker.deliver(topics.LedCommand(), topics.LedCommand(), []byte(`{"filter":"x","led":1,"color":"red"}`))
	assert.ErrorIs(t, err, device.ErrBadFilter)
}

func TestBridge_Actions(t *testing.T) {
	broker := newFakeBroker()
	topics := Topics{}

	var gotName string
	var gotArgs map[string]any
	runner := func(name string, args map[string]any) error {
		gotName, gotArgs = name, args
		return nil
	}
	require.NoError(t, NewBridge(broker, topics, &fakeSubmitter{}, runner).Start())

	err := broker.deliver(topics.ActionCommands(), "wxstatus/command/action/doorbell", []byte(`{"times":2}`))
	require.NoError(t, err)
	assert.Equal(t, "doorbell", gotName)
	assert.Equal(t, float64(2), gotArgs["times"])

	err = broker.deliver(topics.ActionCommands(), "wxstatus/command/action/alarm", nil)
	require.NoError(t, err)
	assert.Equal(t, "alarm", gotName)
	assert.Empty(t, gotArgs)
}

func TestBridge_NoActionSubscriptionWithoutRunner(t *testing.T) {
	broker := newFakeBroker()
	require.NoError(t, NewBridge(broker, Topics{}, &fakeSubmitter{}, nil).Start())

	assert.Contains(t, broker.handlers, Topics{}.LedCommand())
	assert.NotContains(t, broker.handlers, Topics{}.ActionCommands())
}

func TestBridge_PublishState(t *testing.T) {
	broker := newFakeBroker()
	b := NewBridge(broker, Topics{Prefix: "wx"}, &fakeSubmitter{}, nil)

	b.PublishState(device.Snapshot{
		Ref:     10,
		HomeID:  "E7A1B2C3",
		NodeID:  5,
		Variant: "WX300",
		Leds:    []device.LedState{{Color: zwave.ColorGreen}},
		Synced:  true,
	})

	require.Len(t, broker.messages, 1)
	msg := broker.messages[0]
	assert.Equal(t, "wx/devices/E7A1B2C3/5/state", msg.topic)
	assert.True(t, msg.retained)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.payload, &decoded))
	assert.Equal(t, float64(10), decoded["ref"])
	assert.Equal(t, true, decoded["synced"])

	// Publish failures are logged, not raised
	broker.err = errors.New("not connected")
	b.PublishState(device.Snapshot{Ref: 11})
	assert.Len(t, broker.messages, 1)
}

func TestStatusPayload(t *testing.T) {
	var online map[string]string
	require.NoError(t, json.Unmarshal([]byte(statusPayload("online", "")), &online))
	assert.Equal(t, "online", online["status"])
	assert.NotContains(t, online, "reason")

	var offline map[string]string
	require.NoError(t, json.Unmarshal([]byte(statusPayload("offline", "graceful_shutdown")), &offline))
	assert.Equal(t, "graceful_shutdown", offline["reason"])
}
