package postgres

import (
	"context"
	"fmt"
	"time"
)

// Outbox statuses. PENDING rows are retried by the sweeper; FAILED is
// terminal and operator-visible. Successful re-publishes delete the row.
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusFailed  = "FAILED"
)

const outboxRetryDelay = 30 * time.Second

// Enqueue buffers a payload whose bus publish failed. event_id is unique, so
// a duplicated enqueue of the same event is a no-op.
func (r *Repository) Enqueue(ctx context.Context, eventID, topic, eventType string, payload []byte, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO message_outbox
			(event_id, topic, payload, event_type, status, retry_count, max_retries, next_retry_at, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, NOW() + $7::interval, $8, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, topic, payload, eventType, OutboxStatusPending,
		r.outboxMaxRetries, intervalSeconds(outboxRetryDelay), lastError)
	return err
}

const outboxMaxRetriesDefault = 10

type outboxRow struct {
	ID         int64
	EventID    string
	Topic      string
	Payload    []byte
	EventType  string
	RetryCount int
	MaxRetries int
}

// claimDue selects PENDING rows that are due, pushing next_retry_at forward
// inside the claim tx so a concurrent sweeper skips them while in flight.
func (r *Repository) claimDue(ctx context.Context, limit int, inFlightFor time.Duration) ([]outboxRow, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, event_id, topic, payload, event_type, retry_count, max_retries
		FROM message_outbox
		WHERE status = $1
		  AND next_retry_at <= NOW()
		ORDER BY next_retry_at ASC, created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, OutboxStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []outboxRow
	for rows.Next() {
		var m outboxRow
		if err := rows.Scan(&m.ID, &m.EventID, &m.Topic, &m.Payload, &m.EventType, &m.RetryCount, &m.MaxRetries); err != nil {
			return nil, err
		}
		batch = append(batch, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(batch) == 0 {
		return nil, tx.Commit(ctx)
	}

	inFlightUntil := time.Now().UTC().Add(inFlightFor)
	for _, m := range batch {
		if _, err := tx.Exec(ctx,
			`UPDATE message_outbox SET next_retry_at = $2 WHERE id = $1`,
			m.ID, inFlightUntil); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return batch, nil
}

// deleteSent removes a successfully re-published row.
func (r *Repository) deleteSent(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM message_outbox WHERE id = $1`, id)
	return err
}

// markRetry bumps the retry count. At max_retries the row goes FAILED and is
// never swept again; it stays for operator inspection.
func (r *Repository) markRetry(ctx context.Context, m outboxRow, errMsg string, delay time.Duration) (dead bool, err error) {
	next := m.RetryCount + 1
	if next >= m.MaxRetries {
		_, err = r.pool.Exec(ctx, `
			UPDATE message_outbox
			SET status = $2, retry_count = $3, last_error = $4
			WHERE id = $1
		`, m.ID, OutboxStatusFailed, next, errMsg)
		return true, err
	}

	_, err = r.pool.Exec(ctx, `
		UPDATE message_outbox
		SET retry_count = $2,
		    next_retry_at = NOW() + $3::interval,
		    last_error = $4
		WHERE id = $1
	`, m.ID, next, intervalSeconds(delay), errMsg)
	return false, err
}

func intervalSeconds(d time.Duration) string {
	return fmt.Sprintf("%f seconds", d.Seconds())
}
