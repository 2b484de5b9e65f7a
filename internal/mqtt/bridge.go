package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/command"
	"github.com/dokzlo13/wxstatusd/internal/device"
)

// Broker is the part of Client the bridge needs.
type Broker interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler MessageHandler) error
}

// Submitter queues LED commands. *command.Dispatcher implements it.
type Submitter interface {
	Submit(cmd command.Command) (command.Command, error)
}

// ActionRunner queues a named script action.
type ActionRunner func(name string, args map[string]any) error

// Bridge maps device state and commands onto MQTT topics.
type Bridge struct {
	broker  Broker
	topics  Topics
	submit  Submitter
	actions ActionRunner
}

// NewBridge creates a bridge. actions may be nil when no script is loaded.
func NewBridge(broker Broker, topics Topics, submit Submitter, actions ActionRunner) *Bridge {
	return &Bridge{broker: broker, topics: topics, submit: submit, actions: actions}
}

// Start subscribes to the command topics.
func (b *Bridge) Start() error {
	if err := b.broker.Subscribe(b.topics.LedCommand(), b.handleLed); err != nil {
		return err
	}
	if b.actions != nil {
		if err := b.broker.Subscribe(b.topics.ActionCommands(), b.handleAction); err != nil {
			return err
		}
	}
	log.Info().Str("topic", b.topics.LedCommand()).Msg("MQTT command intake started")
	return nil
}

// PublishState publishes a retained device snapshot.
func (b *Bridge) PublishState(s device.Snapshot) {
	payload, err := json.Marshal(s)
	if err != nil {
		log.Error().Err(err).Int("ref", s.Ref).Msg("Failed to encode device state")
		return
	}
	if err := b.broker.Publish(b.topics.DeviceState(s.HomeID, s.NodeID), payload, true); err != nil {
		log.Warn().Err(err).Int("ref", s.Ref).Msg("Failed to publish device state")
	}
}

func (b *Bridge) handleLed(_ string, payload []byte) error {
	var req command.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("invalid LED command: %w", err)
	}

	cmd, err := b.submit.Submit(req.Command("mqtt"))
	if err != nil {
		return err
	}
	log.Debug().Str("command", cmd.ID.String()).Msg("LED command received over MQTT")
	return nil
}

func (b *Bridge) handleAction(topic string, payload []byte) error {
	name, ok := b.topics.ActionName(topic)
	if !ok {
		return fmt.Errorf("invalid action topic %q", topic)
	}

	args := map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &args); err != nil {
			return fmt.Errorf("invalid action arguments: %w", err)
		}
	}
	return b.actions(name, args)
}
