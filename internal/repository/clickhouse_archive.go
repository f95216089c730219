package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ContagionRadar/internal/domain/models"
	domrepo "ContagionRadar/internal/domain/repository"
	pkgch "ContagionRadar/pkg/clickhouse"
	applogger "ContagionRadar/pkg/logger"
)

const (
	observationsTable = "observations"
	eventsTable       = "contagion_events"
	rotationsTable    = "sector_rotations"
)

// ArchiveSchema returns idempotent DDL for the archive tables in database.
func ArchiveSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			ts        DateTime64(3, 'UTC'),
			symbol    LowCardinality(String),
			chain     LowCardinality(String),
			sector    LowCardinality(String),
			sentiment Float64,
			volume    Float64,
			price     Nullable(Float64)
		) ENGINE = MergeTree
		PARTITION BY toYYYYMMDD(ts)
		ORDER BY (symbol, ts)
		TTL toDateTime(ts) + INTERVAL 30 DAY`, database, observationsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			ts           DateTime64(3, 'UTC'),
			id           String,
			origin       LowCardinality(String),
			origin_chain LowCardinality(String),
			severity     LowCardinality(String),
			polarity     LowCardinality(String),
			reach        UInt32,
			velocity     Float64,
			confidence   Float64,
			payload      String
		) ENGINE = ReplacingMergeTree
		ORDER BY (origin, ts, id)`, database, eventsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			ts           DateTime64(3, 'UTC'),
			id           String,
			from_sector  LowCardinality(String),
			to_sector    LowCardinality(String),
			strength     Float64,
			duration_h   Float64,
			assets       Array(String)
		) ENGINE = ReplacingMergeTree
		ORDER BY (ts, id)`, database, rotationsTable),
	}
}

// ClickHouseArchive stores observations and engine output in ClickHouse.
type ClickHouseArchive struct {
	ch       *pkgch.Client
	db       *sql.DB
	database string
	l        *applogger.Logger
}

var (
	_ domrepo.ObservationArchive = (*ClickHouseArchive)(nil)
	_ domrepo.SignalSink         = (*ClickHouseArchive)(nil)
)

func NewClickHouseArchive(ch *pkgch.Client, database string, l *applogger.Logger) *ClickHouseArchive {
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseArchive{
		ch:       ch,
		db:       ch.DB(),
		database: database,
		l:        l.With(applogger.String("component", "clickhouse_archive")),
	}
}

func (s *ClickHouseArchive) table(name string) string {
	return s.database + "." + name
}

func (s *ClickHouseArchive) Init(ctx context.Context) error {
	if err := s.ch.Exec(ctx, ArchiveSchema(s.database)...); err != nil {
		return fmt.Errorf("init archive schema: %w", err)
	}
	return nil
}

func observationArgs(o models.AssetObservation) []any {
	var price sql.NullFloat64
	if o.Price != nil {
		price = sql.NullFloat64{Float64: *o.Price, Valid: true}
	}
	return []any{
		o.Timestamp.UTC(),
		o.Symbol,
		strings.ToLower(strings.TrimSpace(o.Chain)),
		strings.ToLower(strings.TrimSpace(o.Sector)),
		o.Sentiment,
		o.Volume,
		price,
	}
}

func (s *ClickHouseArchive) insertObservationSQL() string {
	return fmt.Sprintf("INSERT INTO %s (ts, symbol, chain, sector, sentiment, volume, price) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table(observationsTable))
}

func (s *ClickHouseArchive) StoreObservation(ctx context.Context, o models.AssetObservation) error {
	if _, err := s.db.ExecContext(ctx, s.insertObservationSQL(), observationArgs(o)...); err != nil {
		return fmt.Errorf("store observation: %w", err)
	}
	return nil
}

func (s *ClickHouseArchive) StoreObservations(ctx context.Context, batch []models.AssetObservation) error {
	err := s.ch.InsertBatch(ctx, s.insertObservationSQL(), len(batch), func(i int) []any {
		return observationArgs(batch[i])
	})
	if err != nil {
		s.l.Error("store observations failed", applogger.Int("rows", len(batch)), applogger.Error(err))
		return fmt.Errorf("store observations: %w", err)
	}
	return nil
}

func eventArgs(sig models.ContagionSignal) ([]any, error) {
	payload, err := json.Marshal(sig)
	if err != nil {
		return nil, fmt.Errorf("marshal signal: %w", err)
	}
	ev := sig.Event
	return []any{
		ev.Timestamp.UTC(),
		ev.ID,
		ev.OriginAsset,
		ev.OriginChain,
		string(sig.Severity),
		string(ev.Polarity),
		uint32(ev.Reach),
		ev.Velocity,
		sig.Confidence,
		string(payload),
	}, nil
}

func (s *ClickHouseArchive) StoreEvent(ctx context.Context, sig models.ContagionSignal) error {
	args, err := eventArgs(sig)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, id, origin, origin_chain, severity, polarity, reach, velocity, confidence, payload) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table(eventsTable))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("store event %s: %w", sig.Event.ID, err)
	}
	return nil
}

func (s *ClickHouseArchive) StoreRotation(ctx context.Context, rot models.SectorRotation) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, id, from_sector, to_sector, strength, duration_h, assets) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table(rotationsTable))
	if _, err := s.db.ExecContext(ctx, q,
		rot.Timestamp.UTC(), rot.ID, rot.FromSector, rot.ToSector, rot.Strength, rot.DurationHoursEstimate, rot.Assets,
	); err != nil {
		return fmt.Errorf("store rotation %s: %w", rot.ID, err)
	}
	return nil
}

// LoadSince returns archived observations with ts >= since in timestamp order,
// at most limit rows (the most recent ones when the window holds more).
func (s *ClickHouseArchive) LoadSince(ctx context.Context, since time.Time, limit int) ([]models.AssetObservation, error) {
	start := time.Now()
	q := fmt.Sprintf(`
		SELECT ts, symbol, chain, sector, sentiment, volume, price FROM (
			SELECT ts, symbol, chain, sector, sentiment, volume, price
			FROM %s
			WHERE ts >= ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC`, s.table(observationsTable))
	rows, err := s.db.QueryContext(ctx, q, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	defer rows.Close()

	out := make([]models.AssetObservation, 0, 1024)
	for rows.Next() {
		var (
			o     models.AssetObservation
			price sql.NullFloat64
		)
		if err := rows.Scan(&o.Timestamp, &o.Symbol, &o.Chain, &o.Sector, &o.Sentiment, &o.Volume, &price); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if price.Valid {
			p := price.Float64
			o.Price = &p
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("loaded observations",
		applogger.Int("rows", len(out)),
		applogger.Duration("took", time.Since(start)),
	)
	return out, nil
}

func (s *ClickHouseArchive) Name() string { return "clickhouse" }

func (s *ClickHouseArchive) PublishContagion(ctx context.Context, sig models.ContagionSignal) error {
	return s.StoreEvent(ctx, sig)
}

func (s *ClickHouseArchive) PublishRotation(ctx context.Context, rot models.SectorRotation) error {
	return s.StoreRotation(ctx, rot)
}

func (s *ClickHouseArchive) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *ClickHouseArchive) Close() error {
	return nil
}
