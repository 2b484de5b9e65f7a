// Package ledger provides an append-only event history for LED commands,
// device syncs and script actions. It backs command deduplication and the
// audit endpoint.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventLedCommandCompleted EventType = "led_command_completed"
	EventLedCommandFailed    EventType = "led_command_failed"
	EventDeviceSyncCompleted EventType = "device_sync_completed"
	EventDeviceSyncDegraded  EventType = "device_sync_degraded"
	EventActionCompleted     EventType = "action_completed"
	EventActionFailed        EventType = "action_failed"
)

// completion reports whether the type is deduplicated by idempotency key.
func (t EventType) completion() bool {
	return t == EventLedCommandCompleted || t == EventActionCompleted
}

// Entry represents a single event in the ledger
type Entry struct {
	ID             int64          `json:"id"`
	EventType      EventType      `json:"event_type"`
	Timestamp      time.Time      `json:"timestamp"`
	Payload        map[string]any `json:"payload,omitempty"`
	Source         string         `json:"source,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Subject        string         `json:"subject,omitempty"` // device address, filter or action name
}

// Record is the input to Append.
type Record struct {
	Type           EventType
	IdempotencyKey string
	Source         string
	Subject        string
	Payload        map[string]any
}

// Ledger provides append-only event logging with deduplication
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append adds a new event to the ledger. Completion events with an
// idempotency key use INSERT OR IGNORE so that concurrent completions record
// only the first.
func (l *Ledger) Append(r Record) error {
	var payloadJSON []byte
	if r.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(r.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	insertSQL := `INSERT INTO event_ledger (event_type, timestamp, payload, source, idempotency_key, subject) VALUES (?, ?, ?, ?, ?, ?)`
	if r.Type.completion() && r.IdempotencyKey != "" {
		insertSQL = `INSERT OR IGNORE INTO event_ledger (event_type, timestamp, payload, source, idempotency_key, subject) VALUES (?, ?, ?, ?, ?, ?)`
	}

	_, err := l.db.Exec(insertSQL, string(r.Type), time.Now().UTC().UnixMilli(), string(payloadJSON), r.Source, r.IdempotencyKey, r.Subject)
	if err != nil {
		return fmt.Errorf("failed to append %s: %w", r.Type, err)
	}
	return nil
}

// HasCompleted checks if work with the given idempotency key has a recorded
// completion of eventType.
func (l *Ledger) HasCompleted(eventType EventType, idempotencyKey string) bool {
	if idempotencyKey == "" {
		return false // Empty key = no dedupe
	}

	var exists int
	err := l.db.QueryRow(`
		SELECT 1 FROM event_ledger
		WHERE idempotency_key = ? AND event_type = ?
		LIMIT 1
	`, idempotencyKey, string(eventType)).Scan(&exists)

	return err == nil && exists == 1
}

// Recent returns the newest entries, optionally filtered by event type.
func (l *Ledger) Recent(eventType EventType, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, event_type, timestamp, payload, source, idempotency_key, subject
		FROM event_ledger`
	args := []any{}
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	result, err := l.db.Exec(`
		DELETE FROM event_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RunRetention deletes expired entries every interval until ctx is done.
func (l *Ledger) RunRetention(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.DeleteOlderThan(retention)
			if err != nil {
				log.Warn().Err(err).Msg("Ledger retention cleanup failed")
			} else if n > 0 {
				log.Debug().Int64("deleted", n).Msg("Ledger retention cleanup")
			}
		}
	}
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr, source, idempotencyKey, subject sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.EventType, &timestamp, &payloadStr, &source, &idempotencyKey, &subject,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		entry.Source = source.String
		entry.IdempotencyKey = idempotencyKey.String
		entry.Subject = subject.String

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
