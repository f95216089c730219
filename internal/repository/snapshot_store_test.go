package repository

import (
	"context"
	"testing"
	"time"

	"ContagionRadar/internal/domain/models"
	"ContagionRadar/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signalAt(origin string, ts time.Time, sev models.Severity) models.ContagionSignal {
	return models.ContagionSignal{
		Event:    models.ContagionEvent{ID: origin + "-" + ts.Format("150405"), OriginAsset: origin, Timestamp: ts},
		Severity: sev,
	}
}

func TestSnapshotStoreMemory(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()
	store := NewCacheSnapshotStore(mem, time.Hour)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.LatestSignal(ctx, "ETH")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = store.LatestRotation(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, store.PublishContagion(ctx, signalAt("eth", base, models.SeverityLow)))
	require.NoError(t, store.PublishContagion(ctx, signalAt("ETH", base.Add(time.Minute), models.SeverityHigh)))
	require.NoError(t, store.PublishContagion(ctx, signalAt("SOL", base.Add(2*time.Minute), models.SeverityMedium)))

	latest, err := store.LatestSignal(ctx, "eth")
	require.NoError(t, err)
	assert.Equal(t, models.SeverityHigh, latest.Severity)

	all, err := store.LatestSignals(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "SOL", all[0].Event.OriginAsset)
	assert.Equal(t, "ETH", all[1].Event.OriginAsset)

	rot := models.SectorRotation{ID: "r1", FromSector: "defi", ToSector: "gaming", Assets: []string{"UNI", "AXS"}}
	require.NoError(t, store.PublishRotation(ctx, rot))
	gotRot, err := store.LatestRotation(ctx)
	require.NoError(t, err)
	assert.Equal(t, rot, *gotRot)
}

func TestSnapshotStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewCacheSnapshotStore(cache.NewRedisCacheWithClient(client, "contagion"), time.Minute)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.PublishContagion(ctx, signalAt("ETH", base, models.SeverityHigh)))
	assert.True(t, mr.Exists("contagion:latest:ETH"))

	all, err := store.LatestSignals(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "ETH", all[0].Event.OriginAsset)

	mr.FastForward(2 * time.Minute)
	_, err = store.LatestSignal(ctx, "ETH")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSnapshotStoreEmptyListing(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()
	all, err := NewCacheSnapshotStore(mem, 0).LatestSignals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSnapshotStoreClear(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	defer mem.Close()
	store := NewCacheSnapshotStore(mem, time.Minute)

	sig := models.ContagionSignal{Event: models.ContagionEvent{ID: "a", OriginAsset: "BTC"}}
	require.NoError(t, store.PublishContagion(ctx, sig))
	require.NoError(t, store.PublishRotation(ctx, models.SectorRotation{ID: "r"}))
	require.NoError(t, mem.Set(ctx, "unrelated", "keep", time.Minute))

	require.NoError(t, store.Clear(ctx))

	all, err := store.LatestSignals(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	_, err = store.LatestRotation(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 1, mem.Len())
}
