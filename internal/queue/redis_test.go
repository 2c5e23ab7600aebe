package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/docpipe/docpipe/internal/queue"
	"github.com/docpipe/docpipe/pkg/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns its URL.
func setupRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return "redis://" + host + ":" + port.Port()
}

func newQueue(t *testing.T, url string, visibility time.Duration) *queue.RedisQueue {
	t.Helper()
	q, err := queue.NewRedisQueue(url, visibility)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func receive(t *testing.T, deliveries <-chan queue.Delivery, timeout time.Duration) queue.Delivery {
	t.Helper()
	select {
	case d := <-deliveries:
		return d
	case <-time.After(timeout):
		t.Fatal("no delivery received")
		return queue.Delivery{}
	}
}

func TestRedisQueue_Ping(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	q := newQueue(t, setupRedis(t), time.Minute)
	assert.NoError(t, q.Ping(context.Background()))
}

func TestRedisQueue_EnqueueConsumeAck(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	q := newQueue(t, setupRedis(t), time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	task := models.NewTask(uuid.New(), models.StageIngest)
	require.NoError(t, q.Enqueue(ctx, "ingest", task))

	deliveries, err := q.Consume(ctx, "ingest")
	require.NoError(t, err)

	d := receive(t, deliveries, 5*time.Second)
	assert.Equal(t, task.JobID, d.Task.JobID)
	assert.Equal(t, models.StageIngest, d.Task.TargetStage)
	assert.NoError(t, d.Ack(ctx))
}

func TestRedisQueue_UnackedRedelivered(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	url := setupRedis(t)
	task := models.NewTask(uuid.New(), models.StageChunk)

	// First consumer receives the task but never acks.
	first := newQueue(t, url, 300*time.Millisecond)
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	require.NoError(t, first.Enqueue(firstCtx, "chunk", task))
	deliveries, err := first.Consume(firstCtx, "chunk")
	require.NoError(t, err)
	_ = receive(t, deliveries, 5*time.Second)
	cancelFirst()

	// Second consumer claims it once the visibility timeout expires.
	second := newQueue(t, url, 300*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	redeliveries, err := second.Consume(ctx, "chunk")
	require.NoError(t, err)

	d := receive(t, redeliveries, 10*time.Second)
	assert.Equal(t, task.JobID, d.Task.JobID, "unacked task must be redelivered")
	assert.NoError(t, d.Ack(ctx))
}

func TestRedisQueue_DelayedPromotion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	q := newQueue(t, setupRedis(t), time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	task := models.NewTask(uuid.New(), models.StageEmbed)
	require.NoError(t, q.EnqueueIn(ctx, "embeddings", task, 500*time.Millisecond))

	start := time.Now()
	deliveries, err := q.Consume(ctx, "embeddings")
	require.NoError(t, err)

	d := receive(t, deliveries, 10*time.Second)
	assert.Equal(t, task.JobID, d.Task.JobID)
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond, "task must not arrive before its delay")
	assert.NoError(t, d.Ack(ctx))
}

func TestRedisQueue_MalformedPayloadDropped(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	url := setupRedis(t)
	q := newQueue(t, url, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Inject garbage directly into the stream, bypassing EncodeTask.
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: "docpipe:stream:ingest",
		Values: map[string]any{"task": "{broken"},
	}).Err())

	task := models.NewTask(uuid.New(), models.StageIngest)
	require.NoError(t, q.Enqueue(ctx, "ingest", task))

	deliveries, err := q.Consume(ctx, "ingest")
	require.NoError(t, err)

	// The garbage entry is acked away; only the valid task surfaces.
	d := receive(t, deliveries, 5*time.Second)
	assert.Equal(t, task.JobID, d.Task.JobID)
	assert.NoError(t, d.Ack(ctx))
}
