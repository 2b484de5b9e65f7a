package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/device"
	"github.com/dokzlo13/wxstatusd/internal/eventbus"
	"github.com/dokzlo13/wxstatusd/internal/ledger"
)

var (
	// ErrQueueFull is returned when a command could not be queued.
	ErrQueueFull = errors.New("command queue full")

	// ErrUnavailable is returned while a fatal error disables device commands.
	ErrUnavailable = errors.New("device commands unavailable")
)

// Health reports whether device commands are disabled.
// *status.Tracker implements it.
type Health interface {
	IsFatal() bool
}

// Resolver turns a filter into a device collection.
type Resolver interface {
	Collection(filter string) (*device.Collection, error)
}

// Ledger records command outcomes. *ledger.Ledger implements it.
type Ledger interface {
	Append(r ledger.Record) error
	HasCompleted(eventType ledger.EventType, idempotencyKey string) bool
}

// Dispatcher runs LED commands. Submit hands the command to the event bus
// and returns at once; Execute runs it on the caller's goroutine.
type Dispatcher struct {
	bus      *eventbus.Bus
	resolver Resolver
	ledger   Ledger
	timeout  time.Duration
	health   Health
}

// NewDispatcher creates a dispatcher. A zero timeout leaves async commands
// bounded only by the context given to Register.
func NewDispatcher(bus *eventbus.Bus, resolver Resolver, l Ledger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		bus:      bus,
		resolver: resolver,
		ledger:   l,
		timeout:  timeout,
	}
}

// SetHealth makes Submit and Execute refuse commands once h is fatal.
func (d *Dispatcher) SetHealth(h Health) {
	d.health = h
}

func (d *Dispatcher) available() error {
	if d.health != nil && d.health.IsFatal() {
		return ErrUnavailable
	}
	return nil
}

// Register subscribes the dispatcher to LED command events. Commands run
// under ctx, so cancelling it abandons queued work.
func (d *Dispatcher) Register(ctx context.Context) {
	d.bus.Subscribe(eventbus.EventTypeLedCommand, func(e eventbus.Event) {
		cmd, ok := e.Payload.(Command)
		if !ok {
			log.Error().Type("payload", e.Payload).Msg("Unexpected LED command payload")
			return
		}

		runCtx := ctx
		if d.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}

		if err := d.Execute(runCtx, cmd); err != nil {
			log.Warn().Err(err).
				Str("command", cmd.ID.String()).
				Str("filter", cmd.Filter).
				Msg("LED command failed")
		}
	})
}

// Submit validates cmd, resolves its filter and queues it. The returned
// command carries the assigned ID. Device RPCs happen later on the bus.
func (d *Dispatcher) Submit(cmd Command) (Command, error) {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}
	if err := cmd.Validate(); err != nil {
		return cmd, err
	}
	if err := d.available(); err != nil {
		return cmd, err
	}
	if _, err := d.resolver.Collection(cmd.Filter); err != nil {
		return cmd, err
	}

	if !d.bus.Publish(eventbus.Event{Type: eventbus.EventTypeLedCommand, Payload: cmd}) {
		return cmd, ErrQueueFull
	}

	log.Debug().
		Str("command", cmd.ID.String()).
		Str("filter", cmd.Filter).
		Stringer("led", cmd.Led).
		Stringer("color", cmd.Color).
		Bool("blink", cmd.Blink).
		Str("source", cmd.Source).
		Msg("LED command queued")
	return cmd, nil
}

// Execute runs cmd now. A command whose idempotency key already completed
// is skipped.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command) error {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}
	if err := cmd.Validate(); err != nil {
		return err
	}

	if d.ledger != nil && d.ledger.HasCompleted(ledger.EventLedCommandCompleted, cmd.IdempotencyKey) {
		log.Debug().
			Str("command", cmd.ID.String()).
			Str("idempotency_key", cmd.IdempotencyKey).
			Msg("LED command already completed, skipping")
		return nil
	}

	start := time.Now()
	var collection *device.Collection
	err := d.available()
	if err == nil {
		collection, err = d.resolver.Collection(cmd.Filter)
	}
	if err == nil {
		err = collection.SetStatusLed(ctx, int(cmd.Led), cmd.Color, cmd.Blink)
	}

	payload := map[string]any{
		"command": cmd.ID.String(),
		"led":     cmd.Led.String(),
		"color":   cmd.Color.String(),
		"blink":   cmd.Blink,
		"ms":      time.Since(start).Milliseconds(),
	}
	if collection != nil {
		payload["devices"] = collection.Len()
	}

	if err != nil {
		payload["error"] = err.Error()
		d.record(ledger.EventLedCommandFailed, cmd, payload)
		return fmt.Errorf("command %s: %w", cmd.ID, err)
	}

	d.record(ledger.EventLedCommandCompleted, cmd, payload)
	log.Info().
		Str("filter", cmd.Filter).
		Stringer("led", cmd.Led).
		Stringer("color", cmd.Color).
		Bool("blink", cmd.Blink).
		Int("devices", collection.Len()).
		Int64("ms", time.Since(start).Milliseconds()).
		Msg("LED command completed")
	return nil
}

func (d *Dispatcher) record(eventType ledger.EventType, cmd Command, payload map[string]any) {
	if d.ledger == nil {
		return
	}
	err := d.ledger.Append(ledger.Record{
		Type:           eventType,
		IdempotencyKey: cmd.IdempotencyKey,
		Source:         cmd.Source,
		Subject:        cmd.Filter,
		Payload:        payload,
	})
	if err != nil {
		log.Error().Err(err).Str("event", string(eventType)).Msg("Failed to record LED command")
	}
}
