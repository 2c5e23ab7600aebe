package worker_test

import (
	"testing"
	"time"

	"github.com/docpipe/docpipe/internal/worker"
	"github.com/stretchr/testify/assert"
)

func TestBackoff_Delay(t *testing.T) {
	b := worker.Backoff{Base: time.Second, Cap: time.Minute}

	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 4*time.Second, b.Delay(3))
	assert.Equal(t, 32*time.Second, b.Delay(6))
}

func TestBackoff_Cap(t *testing.T) {
	b := worker.Backoff{Base: time.Second, Cap: 10 * time.Second}

	assert.Equal(t, 8*time.Second, b.Delay(4))
	assert.Equal(t, 10*time.Second, b.Delay(5))
	assert.Equal(t, 10*time.Second, b.Delay(20), "stays at the cap no matter the attempt")
}

func TestBackoff_BadAttemptClamped(t *testing.T) {
	b := worker.Backoff{Base: time.Second, Cap: time.Minute}

	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, time.Second, b.Delay(-3))
}

func TestBackoff_NoCap(t *testing.T) {
	b := worker.Backoff{Base: 500 * time.Millisecond}

	assert.Equal(t, 4*time.Second, b.Delay(4))
}
