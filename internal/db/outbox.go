package db

import (
	"context"
	"fmt"
	"time"

	"github.com/xtrntr/resale/internal/models"
)

// EnqueueEvent appends an event to the outbox in the caller's transaction
func (db *DB) EnqueueEvent(ctx context.Context, e models.Event) error {
	_, err := db.exec(ctx,
		"INSERT INTO outbox (event_type, aggregate_id, payload, created_at) VALUES ($1, $2, $3, $4)",
		string(e.Type), e.AggregateID, []byte(e.Payload), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s event: %w", e.Type, err)
	}
	return nil
}

// FetchUnpublished returns up to limit unpublished events in id order. Inside
// a transaction the rows are claimed and rows claimed elsewhere are skipped.
func (db *DB) FetchUnpublished(ctx context.Context, limit int) ([]models.Event, error) {
	rows, err := db.query(ctx, `
SELECT id, event_type, aggregate_id, payload, created_at
FROM outbox
WHERE published_at IS NULL
ORDER BY id
LIMIT $1
FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			e       models.Event
			typ     string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &typ, &e.AggregateID, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = models.EventType(typ)
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch outbox: %w", err)
	}
	return events, nil
}

// MarkPublished stamps the given events as delivered
func (db *DB) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := db.exec(ctx, "UPDATE outbox SET published_at = $2 WHERE id = ANY($1)", ids, at); err != nil {
		return fmt.Errorf("failed to mark events published: %w", err)
	}
	return nil
}
