package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/config"
	"github.com/dokzlo13/wxstatusd/internal/device"
	"github.com/dokzlo13/wxstatusd/internal/eventbus"
	"github.com/dokzlo13/wxstatusd/internal/mqtt"
)

// MQTTService bridges the broker to the command dispatcher and publishes
// device state changes.
type MQTTService struct {
	cfg    *config.Config
	client *mqtt.Client
	states *mqtt.StateCoalescer
	Bridge *mqtt.Bridge
}

// NewMQTTService creates a new MQTTService. Nothing connects until Start.
func NewMQTTService(cfg *config.Config) *MQTTService {
	return &MQTTService{cfg: cfg}
}

// Start connects to the broker, subscribes to command topics and forwards
// device state events from the bus.
func (s *MQTTService) Start(bus *eventbus.Bus, submit mqtt.Submitter, actions mqtt.ActionRunner) error {
	if !s.cfg.MQTT.Enabled {
		return nil
	}

	topics := mqtt.Topics{Prefix: s.cfg.MQTT.TopicPrefix}
	client, err := mqtt.Connect(mqtt.Config{
		Broker:   s.cfg.MQTT.Broker,
		ClientID: s.cfg.MQTT.ClientID,
		Username: s.cfg.MQTT.Username,
		Password: s.cfg.MQTT.Password,
		QoS:      byte(s.cfg.MQTT.QoS),
		Topics:   topics,
	})
	if err != nil {
		return err
	}
	s.client = client

	s.Bridge = mqtt.NewBridge(client, topics, submit, actions)
	if err := s.Bridge.Start(); err != nil {
		return err
	}

	s.states = mqtt.NewStateCoalescer(s.cfg.MQTT.StateQuietPeriod.Duration(), s.Bridge.PublishState)
	bus.Subscribe(eventbus.EventTypeDeviceState, func(e eventbus.Event) {
		snap, ok := e.Payload.(device.Snapshot)
		if !ok {
			log.Error().Type("payload", e.Payload).Msg("Unexpected device state payload")
			return
		}
		s.states.Add(snap)
	})
	return nil
}

// Close publishes pending state and disconnects from the broker.
func (s *MQTTService) Close() {
	if s.client == nil {
		return
	}
	if s.states != nil {
		s.states.Close()
	}
	if err := s.client.Close(); err != nil {
		log.Warn().Err(err).Msg("MQTT disconnect error")
	}
}
