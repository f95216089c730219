package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ContagionRadar/internal/domain/models"
	domrepo "ContagionRadar/internal/domain/repository"
	"ContagionRadar/pkg/cache"
)

const (
	latestSignalPrefix = "latest"
	latestRotationKey  = "rotation:latest"
)

// CacheSnapshotStore keeps the most recent signal per origin asset and the most
// recent sector rotation in a cache.Service. It is also a SignalSink so the
// dispatcher keeps it current.
type CacheSnapshotStore struct {
	c   cache.Service
	ttl time.Duration
}

var (
	_ domrepo.SnapshotStore = (*CacheSnapshotStore)(nil)
	_ domrepo.SignalSink    = (*CacheSnapshotStore)(nil)
)

func NewCacheSnapshotStore(c cache.Service, ttl time.Duration) *CacheSnapshotStore {
	return &CacheSnapshotStore{c: c, ttl: ttl}
}

func signalKey(origin string) string {
	return cache.Key(latestSignalPrefix, strings.ToUpper(origin))
}

func (s *CacheSnapshotStore) Name() string { return "snapshot" }

func (s *CacheSnapshotStore) PublishContagion(ctx context.Context, sig models.ContagionSignal) error {
	if err := s.c.Set(ctx, signalKey(sig.Event.OriginAsset), sig, s.ttl); err != nil {
		return fmt.Errorf("snapshot signal: %w", err)
	}
	return nil
}

func (s *CacheSnapshotStore) PublishRotation(ctx context.Context, rot models.SectorRotation) error {
	if err := s.c.Set(ctx, latestRotationKey, rot, s.ttl); err != nil {
		return fmt.Errorf("snapshot rotation: %w", err)
	}
	return nil
}

func (s *CacheSnapshotStore) LatestSignal(ctx context.Context, origin string) (*models.ContagionSignal, error) {
	var sig models.ContagionSignal
	if err := s.c.Get(ctx, signalKey(origin), &sig); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("latest signal: %w", err)
	}
	return &sig, nil
}

func (s *CacheSnapshotStore) LatestRotation(ctx context.Context) (*models.SectorRotation, error) {
	var rot models.SectorRotation
	if err := s.c.Get(ctx, latestRotationKey, &rot); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("latest rotation: %w", err)
	}
	return &rot, nil
}

// LatestSignals lists the latest signal of every origin, newest first.
func (s *CacheSnapshotStore) LatestSignals(ctx context.Context) ([]models.ContagionSignal, error) {
	keys, err := s.c.Keys(ctx, cache.Pattern(latestSignalPrefix))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if len(keys) == 0 {
		return []models.ContagionSignal{}, nil
	}
	byKey, err := cache.MGetTyped[models.ContagionSignal](ctx, s.c, keys...)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	out := make([]models.ContagionSignal, 0, len(byKey))
	for _, sig := range byKey {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Event.Timestamp.After(out[j].Event.Timestamp)
	})
	return out, nil
}

// Clear drops every stored snapshot.
func (s *CacheSnapshotStore) Clear(ctx context.Context) error {
	if err := s.c.DeleteByPattern(ctx, cache.Pattern(latestSignalPrefix)); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	if err := s.c.Delete(ctx, latestRotationKey); err != nil {
		return fmt.Errorf("clear rotation: %w", err)
	}
	return nil
}
