package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docpipe/docpipe/pkg/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	streamPrefix  = "docpipe:stream:"
	delayedPrefix = "docpipe:delayed:"
	group         = "docpipe"

	readBlock    = 5 * time.Second
	claimBatch   = 10
	promoteBatch = 100
)

// promoteScript atomically moves due delayed tasks from the sorted set into
// the stream. KEYS[1] = delayed zset, KEYS[2] = stream, ARGV[1] = now (ms).
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ` + strconv.Itoa(promoteBatch) + `)
for _, task in ipairs(due) do
	redis.call('XADD', KEYS[2], '*', 'task', task)
	redis.call('ZREM', KEYS[1], task)
end
return #due
`)

// RedisQueue implements the Queue interface on Redis streams with consumer
// groups. Unacked entries are reclaimed after the visibility timeout via
// XAUTOCLAIM, giving at-least-once delivery. Delayed tasks sit in a per-queue
// sorted set scored by their ready time and are promoted by consumers.
type RedisQueue struct {
	client     *redis.Client
	visibility time.Duration
	consumer   string
}

// NewRedisQueue creates a RedisQueue from a Redis URL. visibility is how
// long a delivery may stay unacked before another consumer reclaims it.
func NewRedisQueue(redisURL string, visibility time.Duration) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	host, _ := os.Hostname()
	return &RedisQueue{
		client:     redis.NewClient(opts),
		visibility: visibility,
		consumer:   host + "-" + uuid.NewString()[:8],
	}, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Enqueue(ctx context.Context, queue string, task models.TaskMessage) error {
	payload, err := models.EncodeTask(task)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}
	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamPrefix + queue,
		Values: map[string]any{"task": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return nil
}

func (q *RedisQueue) EnqueueIn(ctx context.Context, queue string, task models.TaskMessage, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, queue, task)
	}
	payload, err := models.EncodeTask(task)
	if err != nil {
		return fmt.Errorf("enqueue delayed %s: %w", queue, err)
	}
	readyAt := float64(time.Now().Add(delay).UnixMilli())
	err = q.client.ZAdd(ctx, delayedPrefix+queue, redis.Z{Score: readyAt, Member: payload}).Err()
	if err != nil {
		return fmt.Errorf("enqueue delayed %s: %w", queue, err)
	}
	return nil
}

func (q *RedisQueue) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	stream := streamPrefix + queue

	err := q.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group for %s: %w", queue, err)
	}

	out := make(chan Delivery)
	go q.consumeLoop(ctx, queue, stream, out)
	return out, nil
}

func (q *RedisQueue) consumeLoop(ctx context.Context, queue, stream string, out chan<- Delivery) {
	defer close(out)

	for ctx.Err() == nil {
		q.promoteDue(ctx, queue, stream)

		msgs := q.claimStale(ctx, stream)
		if len(msgs) == 0 {
			res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    group,
				Consumer: q.consumer,
				Streams:  []string{stream, ">"},
				Count:    1,
				Block:    readBlock,
			}).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("read from queue failed", "queue", queue, "error", err)
				sleepCtx(ctx, time.Second)
				continue
			}
			for _, s := range res {
				msgs = append(msgs, s.Messages...)
			}
		}

		for _, msg := range msgs {
			d, ok := q.toDelivery(ctx, queue, stream, msg)
			if !ok {
				continue
			}
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}
}

// promoteDue moves delayed tasks whose ready time has passed into the stream.
func (q *RedisQueue) promoteDue(ctx context.Context, queue, stream string) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	err := promoteScript.Run(ctx, q.client, []string{delayedPrefix + queue, stream}, now).Err()
	if err != nil && !errors.Is(err, redis.Nil) && ctx.Err() == nil {
		slog.Error("promote delayed tasks failed", "queue", queue, "error", err)
	}
}

// claimStale takes over pending entries whose consumer has held them longer
// than the visibility timeout (crashed or stalled worker).
func (q *RedisQueue) claimStale(ctx context.Context, stream string) []redis.XMessage {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: q.consumer,
		MinIdle:  q.visibility,
		Start:    "0-0",
		Count:    claimBatch,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) && ctx.Err() == nil {
		slog.Error("claim stale deliveries failed", "stream", stream, "error", err)
		return nil
	}
	return msgs
}

func (q *RedisQueue) toDelivery(ctx context.Context, queue, stream string, msg redis.XMessage) (Delivery, bool) {
	raw, _ := msg.Values["task"].(string)
	task, err := models.DecodeTask([]byte(raw))
	if err != nil {
		// Undecodable payloads would redeliver forever; drop them.
		slog.Error("dropping malformed task message", "queue", queue, "id", msg.ID, "error", err)
		if ackErr := q.client.XAck(ctx, stream, group, msg.ID).Err(); ackErr != nil {
			slog.Error("ack malformed task failed", "queue", queue, "id", msg.ID, "error", ackErr)
		}
		return Delivery{}, false
	}

	id := msg.ID
	return Delivery{
		Task: task,
		Ack: func(ctx context.Context) error {
			return q.client.XAck(ctx, stream, group, id).Err()
		},
	}, true
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
