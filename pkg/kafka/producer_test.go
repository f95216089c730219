package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestProducer(w *fakeWriter) *Producer {
	initMetrics()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return &Producer{w: w, compression: "snappy", now: func() time.Time { return at }}
}

func TestPublishEncodesAndPropagatesTrace(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w)
	before := testutil.ToFloat64(producerMessages.WithLabelValues("signals.test", "ok"))

	ctx := WithTraceID(context.Background(), "t-1")
	require.NoError(t, p.Publish(ctx, "signals.test", []byte("ETH"), map[string]string{"origin": "ETH"}))

	require.Len(t, w.msgs, 1)
	m := w.msgs[0]
	assert.Equal(t, "signals.test", m.Topic)
	assert.Equal(t, []byte("ETH"), m.Key)
	assert.JSONEq(t, `{"origin":"ETH"}`, string(m.Value))
	assert.Equal(t, "t-1", headerValue(m, traceHeader))
	assert.Equal(t, before+1, testutil.ToFloat64(producerMessages.WithLabelValues("signals.test", "ok")))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishReportsWriteError(t *testing.T) {
	p := newTestProducer(&fakeWriter{err: errors.New("leader not available")})
	err := p.PublishMessage(context.Background(), "logs.test", "line")
	assert.ErrorContains(t, err, "publish logs.test: leader not available")
	assert.Equal(t, float64(1), testutil.ToFloat64(producerMessages.WithLabelValues("logs.test", "error")))

	assert.Error(t, p.Publish(context.Background(), "logs.test", nil, make(chan int)))
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	b, err = encodeValue("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	_, err = encodeValue(make(chan int))
	assert.Error(t, err)
}
