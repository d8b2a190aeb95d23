package jobs

import (
	"context"

	"github.com/stockroom-app/stockroom/internal/outbox"
)

// OutboxPublisher bridges the outbox drainer onto the job queue.
type OutboxPublisher struct {
	client *Client
}

// NewOutboxPublisher constructs an OutboxPublisher.
func NewOutboxPublisher(client *Client) *OutboxPublisher {
	return &OutboxPublisher{client: client}
}

// Publish enqueues the indexing task for one drained outbox event.
func (p *OutboxPublisher) Publish(ctx context.Context, event outbox.Event) error {
	_, err := p.client.EnqueueRaw(ctx, event.Payload)
	return err
}
