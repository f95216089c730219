package repository

import (
	"context"
	"errors"
	"testing"

	"ContagionRadar/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishCall struct {
	topic string
	key   string
	value interface{}
}

type fakeProducer struct {
	calls []publishCall
	err   error
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	f.calls = append(f.calls, publishCall{topic: topic, key: string(key), value: value})
	return f.err
}

func TestKafkaSignalPublisherKeys(t *testing.T) {
	p := &fakeProducer{}
	pub := NewKafkaSignalPublisher(p, "contagion.signals", "contagion.rotations")
	ctx := context.Background()

	require.NoError(t, pub.PublishContagion(ctx, models.ContagionSignal{Event: models.ContagionEvent{ID: "e1", OriginAsset: "ETH"}}))
	require.NoError(t, pub.PublishRotation(ctx, models.SectorRotation{ID: "r1", FromSector: "defi", ToSector: "gaming"}))

	require.Len(t, p.calls, 2)
	assert.Equal(t, "contagion.signals", p.calls[0].topic)
	assert.Equal(t, "ETH", p.calls[0].key)
	assert.Equal(t, "contagion.rotations", p.calls[1].topic)
	assert.Equal(t, "defi", p.calls[1].key)
	assert.Equal(t, "kafka", pub.Name())
}

func TestKafkaSignalPublisherWrapsErrors(t *testing.T) {
	boom := errors.New("broker down")
	pub := NewKafkaSignalPublisher(&fakeProducer{err: boom}, "s", "r")
	err := pub.PublishContagion(context.Background(), models.ContagionSignal{Event: models.ContagionEvent{ID: "e9"}})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "e9")
}
