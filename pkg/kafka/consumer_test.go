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

type flakyHandler struct {
	fails int
	err   error
	calls int
	panic bool
}

func (h *flakyHandler) Topic() string { return "obs" }

func (h *flakyHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.panic {
		panic("boom")
	}
	if h.calls <= h.fails {
		return h.err
	}
	return nil
}

func newTestConsumer(t *testing.T, opts ...ConsumerOption) *Consumer {
	t.Helper()
	opts = append([]ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	}, opts...)
	c, err := NewConsumer(opts...)
	require.NoError(t, err)
	return c
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer()
	assert.Error(t, err)
}

func TestStartWithoutHandlers(t *testing.T) {
	c := newTestConsumer(t)
	assert.Error(t, c.Start())
	assert.NoError(t, c.Stop(context.Background()))
}

func TestLaneForIsStable(t *testing.T) {
	for p := 0; p < 16; p++ {
		first := laneFor("obs", p, 4)
		assert.GreaterOrEqual(t, first, 0)
		assert.Less(t, first, 4)
		assert.Equal(t, first, laneFor("obs", p, 4))
	}
	assert.Equal(t, 0, laneFor("obs", 7, 1))
	assert.Equal(t, 0, laneFor("obs", 7, 0))
}

func TestRetryUntilSuccess(t *testing.T) {
	c := newTestConsumer(t)
	h := &flakyHandler{fails: 2, err: errors.New("transient")}

	_, attempts, err := c.handleWithRetry(h, &message{topic: "obs"})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUpAfterMax(t *testing.T) {
	c := newTestConsumer(t)
	h := &flakyHandler{fails: 10, err: errors.New("transient")}

	_, attempts, err := c.handleWithRetry(h, &message{topic: "obs"})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.False(t, IsPermanent(err))
}

func TestPermanentErrorSkipsRetry(t *testing.T) {
	c := newTestConsumer(t)
	base := errors.New("bad payload")
	h := &flakyHandler{fails: 10, err: Permanent(base)}

	_, attempts, err := c.handleWithRetry(h, &message{topic: "obs"})
	assert.Equal(t, 1, attempts)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.Nil(t, Permanent(nil))
}

func TestHandlerPanicIsPermanent(t *testing.T) {
	c := newTestConsumer(t)
	_, attempts, err := c.handleWithRetry(&flakyHandler{panic: true}, &message{topic: "obs"})
	assert.Equal(t, 1, attempts)
	assert.True(t, IsPermanent(err))
}

func TestTraceIDCapturedFromHook(t *testing.T) {
	c := newTestConsumer(t)
	c.WithConsumerHook(TraceHook())
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}

	traceID, _, err := c.handleWithRetry(&flakyHandler{}, &message{topic: "obs", km: km})
	require.NoError(t, err)
	assert.Equal(t, "abc", traceID)
}

func TestPoisonMessageWithoutDLQ(t *testing.T) {
	c := newTestConsumer(t)
	msg := &message{topic: "obs"}
	assert.True(t, c.publishDLQ(msg, Permanent(errors.New("x")), 1, ""))
	assert.False(t, c.publishDLQ(msg, errors.New("x"), 3, ""))
}

func TestDLQMessageCarriesContext(t *testing.T) {
	km := kafka.Message{Key: []byte("BTC"), Value: []byte(`{"symbol":"BTC"}`), Partition: 2, Offset: 41}
	out := dlqMessage("obs", km, errors.New("decode observation: eof"), 4, "trace-1")

	assert.Equal(t, []byte("BTC"), out.Key)
	assert.Equal(t, km.Value, out.Value)
	assert.Empty(t, out.Topic)

	headers := map[string]string{}
	for _, h := range out.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, map[string]string{
		"source_topic":     "obs",
		"source_partition": "2",
		"source_offset":    "41",
		"error":            "decode observation: eof",
		"attempts":         "4",
		"trace_id":         "trace-1",
	}, headers)

	out = dlqMessage("obs", km, errors.New("x"), 1, "")
	for _, h := range out.Headers {
		assert.NotEqual(t, "trace_id", h.Key)
	}
}
