package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/ledger"
)

// ErrUnknownAction is returned for names that were never registered.
var ErrUnknownAction = errors.New("unknown action")

// Ledger records action outcomes. *ledger.Ledger implements it.
type Ledger interface {
	Append(r ledger.Record) error
	HasCompleted(eventType ledger.EventType, idempotencyKey string) bool
}

// Request describes one invocation.
type Request struct {
	Name           string
	Args           map[string]any
	Source         string // "api", "mqtt", "lua"
	IdempotencyKey string // "" disables deduplication
}

// Invoker executes actions with ledger-backed deduplication
type Invoker struct {
	registry *Registry
	ledger   Ledger
}

// NewInvoker creates a new action invoker. l may be nil.
func NewInvoker(registry *Registry, l Ledger) *Invoker {
	return &Invoker{
		registry: registry,
		ledger:   l,
	}
}

// HasAction checks if an action is registered
func (i *Invoker) HasAction(name string) bool {
	_, exists := i.registry.Get(name)
	return exists
}

// Invoke runs the named action on the caller's goroutine. A request whose
// idempotency key already completed is skipped.
func (i *Invoker) Invoke(ctx context.Context, req Request) error {
	if req.IdempotencyKey != "" && i.ledger != nil && i.ledger.HasCompleted(ledger.EventActionCompleted, req.IdempotencyKey) {
		log.Debug().
			Str("action", req.Name).
			Str("idempotency_key", req.IdempotencyKey).
			Msg("Action already completed, skipping")
		return nil
	}

	action, exists := i.registry.Get(req.Name)
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownAction, req.Name)
	}

	logEvent := log.Debug().Str("action", req.Name).Interface("args", req.Args)
	if req.Source != "" {
		logEvent = logEvent.Str("source", req.Source)
	}
	logEvent.Msg("Executing action")

	start := time.Now()
	err := action.Execute(ctx, req.Args)
	elapsed := time.Since(start)

	if err != nil {
		i.record(ledger.EventActionFailed, req, map[string]any{
			"error":      err.Error(),
			"elapsed_ms": elapsed.Milliseconds(),
		})
		return fmt.Errorf("action %q failed: %w", req.Name, err)
	}

	i.record(ledger.EventActionCompleted, req, map[string]any{
		"elapsed_ms": elapsed.Milliseconds(),
	})
	return nil
}

func (i *Invoker) record(eventType ledger.EventType, req Request, payload map[string]any) {
	if i.ledger == nil {
		return
	}
	if len(req.Args) > 0 {
		payload["args"] = req.Args
	}
	err := i.ledger.Append(ledger.Record{
		Type:           eventType,
		IdempotencyKey: req.IdempotencyKey,
		Source:         req.Source,
		Subject:        req.Name,
		Payload:        payload,
	})
	if err != nil {
		log.Error().Err(err).Str("action", req.Name).Msg("Failed to record action outcome")
	}
}
