package usecase

import (
	"context"
	"testing"
	"time"

	"ContagionRadar/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorRecordsAndCountsSource(t *testing.T) {
	m := newFakeMetrics()
	svc := newService(m)
	p := NewObservationProcessor(svc, nil, m, nil, 0, 0)

	ctx := WithSource(context.Background(), "http")
	require.NoError(t, p.Process(ctx, &models.AssetObservation{Symbol: "ETH", Timestamp: t0}))
	assert.Equal(t, 1, m.observationCount("http"))
	assert.Len(t, svc.History("ETH"), 1)

	assert.Error(t, p.Process(ctx, nil))
	assert.ErrorIs(t, p.Process(ctx, &models.AssetObservation{}), models.ErrEmptySymbol)
	assert.NoError(t, p.Close(context.Background()))
}

func TestSourceFromDefaults(t *testing.T) {
	assert.Equal(t, "unknown", SourceFrom(context.Background()))
	assert.Equal(t, "kafka", SourceFrom(WithSource(context.Background(), "kafka")))
}

func TestProcessorArchivesInBatches(t *testing.T) {
	m := newFakeMetrics()
	archive := &fakeArchive{}
	p := NewObservationProcessor(newService(m), archive, m, nil, 3, time.Hour)
	p.Start(context.Background())

	for i := 0; i < 7; i++ {
		require.NoError(t, p.Process(context.Background(), &models.AssetObservation{Symbol: "ETH", Timestamp: at(i)}))
	}
	assert.Eventually(t, func() bool { return archive.rows() == 6 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 7, archive.rows())
}

func TestProcessorArchiveFailureDoesNotFailRecord(t *testing.T) {
	m := newFakeMetrics()
	archive := &fakeArchive{err: errBoom}
	p := NewObservationProcessor(newService(m), archive, m, nil, 1, time.Hour)
	p.Start(context.Background())

	require.NoError(t, p.Process(context.Background(), &models.AssetObservation{Symbol: "ETH", Timestamp: t0}))
	assert.Eventually(t, func() bool { return m.errorCount("archive_store") == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Close(context.Background()))
}

func TestProcessorFlushesOnTimer(t *testing.T) {
	m := newFakeMetrics()
	archive := &fakeArchive{}
	p := NewObservationProcessor(newService(m), archive, m, nil, 100, 20*time.Millisecond)
	p.Start(context.Background())
	defer p.Close(context.Background())

	require.NoError(t, p.Process(context.Background(), &models.AssetObservation{Symbol: "ETH", Timestamp: t0}))
	assert.Eventually(t, func() bool { return archive.rows() == 1 }, time.Second, 5*time.Millisecond)
}
