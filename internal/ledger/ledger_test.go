package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/wxstatusd/internal/db"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestLedger_HasCompleted(t *testing.T) {
	l := newTestLedger(t)

	assert.False(t, l.HasCompleted(EventLedCommandCompleted, "k1"))
	require.NoError(t, l.Append(Record{Type: EventLedCommandFailed, IdempotencyKey: "k1"}))
	assert.False(t, l.HasCompleted(EventLedCommandCompleted, "k1"))

	require.NoError(t, l.Append(Record{Type: EventLedCommandCompleted, IdempotencyKey: "k1"}))
	assert.True(t, l.HasCompleted(EventLedCommandCompleted, "k1"))
	assert.False(t, l.HasCompleted(EventActionCompleted, "k1"))
	assert.False(t, l.HasCompleted(EventLedCommandCompleted, ""))
}

func TestLedger_CompletionFirstWriterWins(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Append(Record{Type: EventLedCommandCompleted, IdempotencyKey: "k", Source: "first"}))
	require.NoError(t, l.Append(Record{Type: EventLedCommandCompleted, IdempotencyKey: "k", Source: "second"}))

	entries, err := l.Recent(EventLedCommandCompleted, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "first", entries[0].Source)
}

func TestLedger_Recent(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Append(Record{Type: EventDeviceSyncCompleted, Subject: "abc-5", Payload: map[string]any{"attempts": 1}}))
	require.NoError(t, l.Append(Record{Type: EventDeviceSyncDegraded, Subject: "abc-6"}))
	require.NoError(t, l.Append(Record{Type: EventDeviceSyncCompleted, Subject: "abc-7"}))

	all, err := l.Recent("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "abc-7", all[0].Subject, "newest first")

	syncs, err := l.Recent(EventDeviceSyncCompleted, 1)
	require.NoError(t, err)
	require.Len(t, syncs, 1)
	assert.Equal(t, "abc-7", syncs[0].Subject)

	syncs, err = l.Recent(EventDeviceSyncCompleted, 5)
	require.NoError(t, err)
	require.Len(t, syncs, 2)
	assert.Equal(t, float64(1), syncs[1].Payload["attempts"])
}

func TestLedger_DeleteOlderThan(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.db.Exec(`INSERT INTO event_ledger (event_type, timestamp) VALUES (?, ?)`,
		string(EventActionFailed), time.Now().Add(-48*time.Hour).UnixMilli())
	require.NoError(t, err)
	require.NoError(t, l.Append(Record{Type: EventActionCompleted}))

	n, err := l.DeleteOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := l.Recent("", 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, EventActionCompleted, left[0].EventType)
}
