package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookChainOrder(t *testing.T) {
	type key string
	var calls []string
	mk := func(name string) ConsumerHook {
		return HookFuncs{
			OnBefore: func(ctx context.Context, _ string, _ kafka.Message) (context.Context, error) {
				calls = append(calls, "before:"+name)
				return context.WithValue(ctx, key(name), true), nil
			},
			OnAfter: func(context.Context, string, kafka.Message, error) {
				calls = append(calls, "after:"+name)
			},
		}
	}
	chain := NewHookChain(mk("a"), nil, mk("b"))
	require.Len(t, chain, 2)

	ctx, err := chain.Before(context.Background(), "t", kafka.Message{})
	require.NoError(t, err)
	assert.Equal(t, true, ctx.Value(key("a")))
	assert.Equal(t, true, ctx.Value(key("b")))

	chain.After(ctx, "t", kafka.Message{}, nil)
	assert.Equal(t, []string{"before:a", "before:b", "after:b", "after:a"}, calls)
}

func TestHookChainStopsOnBeforeError(t *testing.T) {
	ran := false
	chain := NewHookChain(
		HookFuncs{OnBefore: func(ctx context.Context, _ string, _ kafka.Message) (context.Context, error) {
			return ctx, errors.New("rejected")
		}},
		HookFuncs{OnBefore: func(ctx context.Context, _ string, _ kafka.Message) (context.Context, error) {
			ran = true
			return ctx, nil
		}},
	)
	_, err := chain.Before(context.Background(), "t", kafka.Message{})
	assert.EqualError(t, err, "rejected")
	assert.False(t, ran)
}

func TestHookChainRecoversPanic(t *testing.T) {
	var failed error
	chain := NewHookChain(
		HookFuncs{
			OnBefore: func(context.Context, string, kafka.Message) (context.Context, error) { panic("boom") },
			OnAfter:  func(context.Context, string, kafka.Message, error) { panic("again") },
		},
		HookFuncs{OnFailed: func(_ context.Context, _ string, _ kafka.Message, err error) { failed = err }},
	)

	_, err := chain.Before(context.Background(), "t", kafka.Message{})
	assert.True(t, IsPermanent(err))
	assert.ErrorContains(t, err, "hook panic: boom")

	assert.NotPanics(t, func() { chain.After(context.Background(), "t", kafka.Message{}, err) })
	chain.Failed(context.Background(), "t", kafka.Message{}, err)
	assert.Equal(t, err, failed)
}

func TestTraceHookUsesHeaderOrGenerates(t *testing.T) {
	h := TraceHook()

	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, err := h.Before(context.Background(), "t", km)
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceIDFrom(ctx))
	_, ok := ctx.Value(startKey).(time.Time)
	assert.True(t, ok)

	ctx, err = h.Before(context.Background(), "t", kafka.Message{})
	require.NoError(t, err)
	assert.Len(t, TraceIDFrom(ctx), 36)
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	assert.Nil(t, traceHeaders(context.Background()))
	assert.Equal(t, context.Background(), WithTraceID(context.Background(), ""))
	hs := traceHeaders(WithTraceID(context.Background(), "id-1"))
	assert.Equal(t, "id-1", headerValue(kafka.Message{Headers: hs}, traceHeader))
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
	assert.GreaterOrEqual(t, backoffWithJitter(100*time.Millisecond, time.Second, 10), 500*time.Millisecond)
}

func TestStartOffset(t *testing.T) {
	assert.Equal(t, kafka.LastOffset, startOffset("latest"))
	assert.Equal(t, kafka.FirstOffset, startOffset("earliest"))
}
