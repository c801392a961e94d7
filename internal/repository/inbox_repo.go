package repository

import (
	"database/sql"
	"fmt"

	"turnero/internal/db"
)

// MaxRetries is the per-row retry budget. A row that reaches it is parked
// as poison and never retried automatically.
const MaxRetries = 5

type InboxRepository struct {
	DB *sql.DB
}

func NewInboxRepository(database *sql.DB) *InboxRepository {
	return &InboxRepository{DB: database}
}

// InsertEvents appends normalized events to the inbox. The unique
// (provider, dedup_key) index absorbs provider redeliveries: replays insert
// zero rows and trigger no side effects. Returns how many rows actually
// landed.
func (r *InboxRepository) InsertEvents(events []db.InboxEvent) (int, error) {
	inserted := 0
	for _, event := range events {
		query := `
			INSERT INTO webhook_events_inbox
			(id, provider, event_type, dedup_key, phone_number_id, payload_jsonb, received_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
			ON CONFLICT (provider, dedup_key) DO NOTHING`
		result, err := r.DB.Exec(query,
			newID(), event.Provider, event.EventType, event.DedupKey,
			event.PhoneNumberID, event.Payload, event.ReceivedAt,
		)
		if err != nil {
			return inserted, fmt.Errorf("error inserting inbox event %s: %w", event.DedupKey, err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// ListPending returns up to limit unprocessed rows still under the retry
// budget, oldest receipt first.
func (r *InboxRepository) ListPending(limit int) ([]db.InboxEvent, error) {
	query := `
		SELECT id, provider, event_type, dedup_key, COALESCE(phone_number_id, ''),
		       payload_jsonb, received_at, attempt_count, COALESCE(last_error, '')
		FROM webhook_events_inbox
		WHERE processed_at IS NULL AND attempt_count < $1
		ORDER BY received_at ASC
		LIMIT $2`
	rows, err := r.DB.Query(query, MaxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing pending inbox events: %w", err)
	}
	defer rows.Close()

	var events []db.InboxEvent
	for rows.Next() {
		var e db.InboxEvent
		if err := rows.Scan(&e.ID, &e.Provider, &e.EventType, &e.DedupKey, &e.PhoneNumberID,
			&e.Payload, &e.ReceivedAt, &e.AttemptCount, &e.LastError); err != nil {
			return nil, fmt.Errorf("error scanning inbox event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkProcessed stamps processed_at, counts the attempt and clears any
// previous error.
func (r *InboxRepository) MarkProcessed(eventID string, attemptCount int) error {
	query := `
		UPDATE webhook_events_inbox
		SET processed_at = NOW(), attempt_count = $2, last_error = NULL, updated_at = NOW()
		WHERE id = $1`
	if _, err := r.DB.Exec(query, eventID, attemptCount); err != nil {
		return fmt.Errorf("error marking inbox event processed: %w", err)
	}
	return nil
}

// MarkFailed records the failure and leaves processed_at null so the row
// becomes eligible again on the next poll, until the retry budget runs out.
func (r *InboxRepository) MarkFailed(eventID string, attemptCount int, lastError string) error {
	query := `
		UPDATE webhook_events_inbox
		SET attempt_count = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1`
	if _, err := r.DB.Exec(query, eventID, attemptCount, lastError); err != nil {
		return fmt.Errorf("error marking inbox event failed: %w", err)
	}
	return nil
}

// ListPoison returns rows that exhausted their retry budget. They stay in
// the table for operator inspection; nothing auto-resolves them.
func (r *InboxRepository) ListPoison(limit int) ([]db.InboxEvent, error) {
	query := `
		SELECT id, provider, event_type, dedup_key, COALESCE(phone_number_id, ''),
		       payload_jsonb, received_at, attempt_count, COALESCE(last_error, '')
		FROM webhook_events_inbox
		WHERE processed_at IS NULL AND attempt_count >= $1
		ORDER BY received_at DESC
		LIMIT $2`
	rows, err := r.DB.Query(query, MaxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing poison inbox events: %w", err)
	}
	defer rows.Close()

	var events []db.InboxEvent
	for rows.Next() {
		var e db.InboxEvent
		if err := rows.Scan(&e.ID, &e.Provider, &e.EventType, &e.DedupKey, &e.PhoneNumberID,
			&e.Payload, &e.ReceivedAt, &e.AttemptCount, &e.LastError); err != nil {
			return nil, fmt.Errorf("error scanning poison inbox event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
