package queue

import (
	"context"
	"time"

	"github.com/docpipe/docpipe/pkg/models"
)

// Delivery is one task handed to a worker. Acknowledgement is explicit: a
// worker acks only after the stage result is persisted and the next task is
// enqueued (or the job is terminally failed). An unacked delivery is
// redelivered after the visibility timeout, so duplicates are possible and
// workers must tolerate them.
type Delivery struct {
	Task models.TaskMessage
	Ack  func(ctx context.Context) error
}

// Queue is the broker adapter: a durable mapping from queue name to pending
// task messages with at-least-once delivery. Implementations must be safe
// for concurrent use.
type Queue interface {
	// Enqueue publishes a task for immediate delivery.
	Enqueue(ctx context.Context, queue string, task models.TaskMessage) error

	// EnqueueIn publishes a task that becomes deliverable after delay.
	// Backoff re-enqueues use this so retries do not hot-loop.
	EnqueueIn(ctx context.Context, queue string, task models.TaskMessage, delay time.Duration) error

	// Consume returns an unbounded stream of deliveries for one queue. The
	// channel closes when ctx is cancelled. Multiple consumers on the same
	// queue share work; a message goes to exactly one of them per delivery.
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)

	Ping(ctx context.Context) error
}
