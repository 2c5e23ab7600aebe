package queue

import (
	"context"
	"sync"
	"time"

	"github.com/docpipe/docpipe/pkg/models"
)

// Memory is an in-process Queue for local runs and tests. Deliveries are
// at-most-once (no redelivery of unacked messages); acks are counted so
// tests can assert on them.
type Memory struct {
	mu     sync.Mutex
	queues map[string]chan models.TaskMessage
	acked  int
	timers []*time.Timer
}

// NewMemory creates an in-process queue.
func NewMemory() *Memory {
	return &Memory{queues: make(map[string]chan models.TaskMessage)}
}

func (m *Memory) channel(queue string) chan models.TaskMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.queues[queue]
	if !ok {
		ch = make(chan models.TaskMessage, 1024)
		m.queues[queue] = ch
	}
	return ch
}

func (m *Memory) Enqueue(_ context.Context, queue string, task models.TaskMessage) error {
	m.channel(queue) <- task
	return nil
}

func (m *Memory) EnqueueIn(ctx context.Context, queue string, task models.TaskMessage, delay time.Duration) error {
	if delay <= 0 {
		return m.Enqueue(ctx, queue, task)
	}
	t := time.AfterFunc(delay, func() {
		m.channel(queue) <- task
	})
	m.mu.Lock()
	m.timers = append(m.timers, t)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	src := m.channel(queue)
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case task := <-src:
				d := Delivery{
					Task: task,
					Ack: func(context.Context) error {
						m.mu.Lock()
						m.acked++
						m.mu.Unlock()
						return nil
					},
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Acked returns how many deliveries have been acknowledged.
func (m *Memory) Acked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked
}

// Pending returns how many tasks are waiting in a queue (delayed tasks whose
// timer has not fired are not counted).
func (m *Memory) Pending(queue string) int {
	return len(m.channel(queue))
}

// Stop cancels outstanding delayed deliveries.
func (m *Memory) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.timers {
		t.Stop()
	}
	m.timers = nil
}
