package outbox

import (
	"context"
	"log/slog"
	"time"
)

// Publisher hands one claimed event to the delivery transport.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

const maxBackoff = 10 * time.Minute

// Drainer moves committed outbox rows onto the job queue. It runs alongside
// the HTTP server so indexing jobs are enqueued only for transactions that
// actually committed.
type Drainer struct {
	logger    *slog.Logger
	storage   Storage
	publisher Publisher
	batchSize int
	interval  time.Duration
	lockTTL   time.Duration
}

// NewDrainer constructs a Drainer.
func NewDrainer(logger *slog.Logger, storage Storage, publisher Publisher, batchSize int, interval, lockTTL time.Duration) *Drainer {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = time.Second
	}
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &Drainer{
		logger:    logger,
		storage:   storage,
		publisher: publisher,
		batchSize: batchSize,
		interval:  interval,
		lockTTL:   lockTTL,
	}
}

// Run drains until the context is cancelled.
func (d *Drainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := d.DrainOnce(ctx); err != nil {
				d.logger.Error("outbox drain failed", slog.Any("error", err))
			} else if n > 0 {
				d.logger.Debug("outbox drained", slog.Int("events", n))
			}
		}
	}
}

// DrainOnce claims one batch and publishes it. Returns how many events were
// delivered.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	events, err := d.storage.ClaimPending(ctx, d.batchSize, d.lockTTL)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, event := range events {
		if err := d.publisher.Publish(ctx, event); err != nil {
			next := time.Now().Add(backoff(event.Attempts))
			if relErr := d.storage.Release(ctx, event.ID, next, err.Error()); relErr != nil {
				d.logger.Error("outbox release failed", slog.Int64("event", event.ID), slog.Any("error", relErr))
			}
			continue
		}
		if err := d.storage.MarkPublished(ctx, event.ID); err != nil {
			d.logger.Error("outbox mark published failed", slog.Int64("event", event.ID), slog.Any("error", err))
			continue
		}
		published++
	}
	return published, nil
}

// backoff grows exponentially with the attempt count, capped at maxBackoff.
func backoff(attempts int) time.Duration {
	delay := time.Second
	for i := 0; i < attempts && delay < maxBackoff; i++ {
		delay *= 2
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}
