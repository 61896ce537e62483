package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/offerstream/internal/domain"
)

// EventJournal implements domain.EventJournal on the offer_events table. It
// doubles as a hub sink so every broadcast envelope is journaled.
type EventJournal struct {
	pool *pgxpool.Pool
}

// NewEventJournal creates an EventJournal backed by the given pool.
func NewEventJournal(pool *pgxpool.Pool) *EventJournal {
	return &EventJournal{pool: pool}
}

// Name identifies the sink in logs and metrics.
func (j *EventJournal) Name() string { return "postgres" }

// Write journals a broadcast envelope, storing only its payload.
func (j *EventJournal) Write(ctx context.Context, eventType domain.EventType, data []byte) error {
	return j.Append(ctx, eventType, envelopePayload(data))
}

// Append inserts one row. payload must be valid JSON.
func (j *EventJournal) Append(ctx context.Context, eventType domain.EventType, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("postgres: append %s: %w", eventType, domain.ErrInvalidEnvelope)
	}
	const query = `INSERT INTO offer_events (type, payload) VALUES ($1, $2)`
	if _, err := j.pool.Exec(ctx, query, string(eventType), payload); err != nil {
		return fmt.Errorf("postgres: append %s: %w", eventType, err)
	}
	return nil
}

// List returns entries newest first with pagination and optional time bounds.
func (j *EventJournal) List(ctx context.Context, opts domain.ListOpts) ([]domain.JournalEntry, error) {
	query, args := listQuery(opts)
	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	return collectEntries(rows)
}

// ListBefore returns every entry created strictly before the cutoff, oldest
// first.
func (j *EventJournal) ListBefore(ctx context.Context, before time.Time) ([]domain.JournalEntry, error) {
	const query = `SELECT id, type, payload, created_at FROM offer_events
		WHERE created_at < $1 ORDER BY id ASC`
	rows, err := j.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before: %w", err)
	}
	return collectEntries(rows)
}

// DeleteBefore removes entries created strictly before the cutoff and
// reports how many rows went.
func (j *EventJournal) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := j.pool.Exec(ctx, `DELETE FROM offer_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectEntries(rows pgx.Rows) ([]domain.JournalEntry, error) {
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var (
			e       domain.JournalEntry
			typ     string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &typ, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Type = domain.EventType(typ)
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return entries, nil
}

// listQuery builds the paginated select for List.
func listQuery(opts domain.ListOpts) (string, []any) {
	query := `SELECT id, type, payload, created_at FROM offer_events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

// envelopePayload extracts the payload member of a wire envelope. Anything
// that is not an envelope is journaled whole.
func envelopePayload(data []byte) []byte {
	var env struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil || len(env.Payload) == 0 {
		return data
	}
	return env.Payload
}
