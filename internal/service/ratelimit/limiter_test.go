package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterBurstPerKey(t *testing.T) {
	l := New(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
	assert.Equal(t, 2, l.Len())

	l.Reset()
	assert.Zero(t, l.Len())
	assert.True(t, l.Allow("10.0.0.1"))
}

func TestLimiterWaitHonoursContext(t *testing.T) {
	l := New(0.001, 1)
	require.True(t, l.Allow("k"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "k"))
}
