package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTransactionIndex triggers semantic indexing of one recorded transaction.
	TaskTransactionIndex = "transaction:index"
)

// TransactionIndexPayload identifies the transaction to index. It matches the
// outbox event body written when the transaction committed.
type TransactionIndexPayload struct {
	TransactionID int64 `json:"transaction_id"`
	OwnerID       int64 `json:"owner_id"`
}

// NewTransactionIndexTask constructs an Asynq task.
func NewTransactionIndexTask(payload TransactionIndexPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTransactionIndex, data, asynq.Queue(QueueDefault)), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueTransactionIndex enqueues an indexing task for one transaction.
func (c *Client) EnqueueTransactionIndex(ctx context.Context, payload TransactionIndexPayload) (*asynq.TaskInfo, error) {
	task, err := NewTransactionIndexTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// EnqueueRaw enqueues an indexing task whose payload was already serialised,
// as happens when draining the outbox.
func (c *Client) EnqueueRaw(ctx context.Context, payload []byte) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, asynq.NewTask(TaskTransactionIndex, payload, asynq.Queue(QueueDefault)))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
