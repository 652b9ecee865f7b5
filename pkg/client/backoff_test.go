package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff_Delay(t *testing.T) {
	b := &ExponentialBackoff{Initial: 50 * time.Millisecond, Ceiling: 300 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 50*time.Millisecond, b.Delay(-3))
	assert.Equal(t, 50*time.Millisecond, b.Delay(0))
	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 300*time.Millisecond, b.Delay(3))
	assert.Equal(t, 300*time.Millisecond, b.Delay(5000))
}

func TestExponentialBackoff_Spread(t *testing.T) {
	b := &ExponentialBackoff{Initial: time.Second, Ceiling: time.Minute, Multiplier: 3, Spread: 0.25}
	for i := 0; i < 200; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 2250*time.Millisecond)
		assert.LessOrEqual(t, d, 3750*time.Millisecond)
	}
}

func TestPause_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pause(ctx, time.Hour), context.Canceled)
	assert.NoError(t, pause(context.Background(), time.Millisecond))
}
