package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Journal limits.
const (
	// DefaultRecentLimit is used when Recent is asked for zero rows.
	DefaultRecentLimit = 50

	// MaxRecentLimit caps a single Recent query.
	MaxRecentLimit = 1000

	// timeLayout is fixed-width so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Execer is the database access Journal needs. Satisfied by *database.DB.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Journal appends events to the ring_events table and reads them back.
type Journal struct {
	db Execer
}

// NewJournal creates a Journal. The ring_events migration must be applied.
func NewJournal(db Execer) *Journal {
	return &Journal{db: db}
}

// Emit inserts ev. Re-emitting an event with the same ID is a no-op.
func (j *Journal) Emit(ctx context.Context, ev Event) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO ring_events (id, event_type, doorbell, unique_id, topic, message_topic, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Type, ev.Doorbell, ev.UniqueID, ev.Topic, ev.MessageTopic,
		ev.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("journaling event %s: %w", ev.ID, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	return j.query(ctx, `
		SELECT id, event_type, doorbell, unique_id, topic, message_topic, occurred_at
		FROM ring_events
		ORDER BY occurred_at DESC, rowid DESC
		LIMIT ?`, clampLimit(limit))
}

// RecentFor returns up to limit events for one doorbell identity, newest first.
func (j *Journal) RecentFor(ctx context.Context, uniqueID string, limit int) ([]Event, error) {
	return j.query(ctx, `
		SELECT id, event_type, doorbell, unique_id, topic, message_topic, occurred_at
		FROM ring_events
		WHERE unique_id = ?
		ORDER BY occurred_at DESC, rowid DESC
		LIMIT ?`, uniqueID, clampLimit(limit))
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ring events: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var ev Event
		var occurredAt string
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Doorbell, &ev.UniqueID, &ev.Topic, &ev.MessageTopic, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning ring event: %w", err)
		}
		ev.DeviceClass = DeviceClassDoorbell
		ev.Timestamp, err = time.Parse(timeLayout, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing occurred_at %q: %w", occurredAt, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ring events: %w", err)
	}
	return out, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}
