package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is one pending outbox row claimed for delivery.
type Event struct {
	ID            int64
	TransactionID int64
	Payload       []byte
	Attempts      int
}

// Storage persists outbox events and hands them out for delivery.
type Storage interface {
	ClaimPending(ctx context.Context, limit int, lockTTL time.Duration) ([]Event, error)
	MarkPublished(ctx context.Context, id int64) error
	Release(ctx context.Context, id int64, nextAttempt time.Time, lastError string) error
}

// PGStorage is the PostgreSQL outbox table.
type PGStorage struct {
	pool *pgxpool.Pool
}

// NewPGStorage constructs PGStorage.
func NewPGStorage(pool *pgxpool.Pool) *PGStorage {
	return &PGStorage{pool: pool}
}

// ClaimPending atomically marks a batch of deliverable rows as processing and
// returns them. SKIP LOCKED lets several drainers run without stepping on
// each other, and rows stuck in processing longer than lockTTL are reclaimed.
func (s *PGStorage) ClaimPending(ctx context.Context, limit int, lockTTL time.Duration) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `UPDATE transaction_outbox SET status = 'processing', locked_at = NOW()
WHERE id IN (
    SELECT id FROM transaction_outbox
    WHERE (status = 'pending' AND next_attempt_at <= NOW())
       OR (status = 'processing' AND locked_at < NOW() - make_interval(secs => $2))
    ORDER BY id
    LIMIT $1
    FOR UPDATE SKIP LOCKED
)
RETURNING id, transaction_id, payload, attempts`, limit, lockTTL.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.Payload, &e.Attempts); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkPublished finalises a delivered event.
func (s *PGStorage) MarkPublished(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE transaction_outbox
SET status = 'published', published_at = NOW(), locked_at = NULL, last_error = NULL
WHERE id = $1`, id)
	return err
}

// Release puts a failed event back in the queue for a later retry.
func (s *PGStorage) Release(ctx context.Context, id int64, nextAttempt time.Time, lastError string) error {
	_, err := s.pool.Exec(ctx, `UPDATE transaction_outbox
SET status = 'pending', attempts = attempts + 1, next_attempt_at = $2, locked_at = NULL, last_error = $3
WHERE id = $1`, id, nextAttempt, lastError)
	return err
}
